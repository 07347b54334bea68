// Package media owns the local capture tracks of a participant and their
// senders on every peer connection.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/callroom/internal/domain"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateEnded
)

var (
	VP8  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	Opus = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

// Track is a local capture track. Muting flips its state in place: samples
// written while muted are dropped and the senders keep the same track.
type Track struct {
	local  *webrtc.TrackLocalStaticSample
	kind   webrtc.RTPCodecType
	source domain.VideoSource
	state  atomic.Int32 // Zero by default (TrackStateLive)

	mu      sync.Mutex
	onEnded []func()
	release func()
}

// NewTrack creates a live track. source is VideoNone for audio.
func NewTrack(kind webrtc.RTPCodecType, source domain.VideoSource, codec webrtc.RTPCodecCapability, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, kind.String()+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return &Track{local: local, kind: kind, source: source}, nil
}

func (t *Track) Local() webrtc.TrackLocal   { return t.local }
func (t *Track) Kind() webrtc.RTPCodecType  { return t.kind }
func (t *Track) Source() domain.VideoSource { return t.source }
func (t *Track) GetState() TrackState       { return TrackState(t.state.Load()) }
func (t *Track) Enabled() bool              { return t.GetState() == TrackStateLive }
func (t *Track) Ended() bool                { return t.GetState() == TrackStateEnded }

// SetEnabled mutes or unmutes the track. Ended tracks stay ended.
func (t *Track) SetEnabled(on bool) {
	from, to := int32(TrackStateMuted), int32(TrackStateLive)
	if !on {
		from, to = to, from
	}
	t.state.CompareAndSwap(from, to)
}

// WriteSample forwards an encoded sample unless the track is muted or ended.
func (t *Track) WriteSample(s media.Sample) error {
	if !t.Enabled() {
		return nil
	}
	return t.local.WriteSample(s)
}

// OnEnded registers fn for a device-side end (unplugged camera, the OS
// "stop sharing" control). Stop does not fire it.
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *Track) setRelease(fn func()) {
	t.mu.Lock()
	t.release = fn
	t.mu.Unlock()
}

// End marks the track ended by its source and notifies OnEnded listeners.
func (t *Track) End() {
	if TrackState(t.state.Swap(int32(TrackStateEnded))) == TrackStateEnded {
		return
	}
	t.mu.Lock()
	fns := t.onEnded
	release := t.release
	t.onEnded, t.release = nil, nil
	t.mu.Unlock()

	if release != nil {
		release()
	}
	for _, fn := range fns {
		fn()
	}
}

// Stop releases the underlying device.
func (t *Track) Stop() {
	if TrackState(t.state.Swap(int32(TrackStateEnded))) == TrackStateEnded {
		return
	}
	t.mu.Lock()
	release := t.release
	t.onEnded, t.release = nil, nil
	t.mu.Unlock()

	if release != nil {
		release()
	}
}
