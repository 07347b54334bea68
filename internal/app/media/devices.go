package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/callroom/internal/domain"
)

type Constraints struct {
	Audio bool
	Video bool
}

// Stream is the result of a capture request. Tracks not asked for are nil.
type Stream struct {
	Audio *Track
	Video *Track
}

func (s Stream) Stop() {
	if s.Audio != nil {
		s.Audio.Stop()
	}
	if s.Video != nil {
		s.Video.Stop()
	}
}

// Devices opens capture sources. Errors wrap domain.ErrPermissionDenied or
// domain.ErrDeviceUnavailable.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
	GetDisplayMedia(ctx context.Context) (*Track, error)
}

// classify maps a driver error onto the media error taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrDeviceUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrDeviceUnavailable, err)
	}
}

// StaticDevices hands out silent tracks that never touch hardware. Headless
// peers and tests use it; FailUserMedia and FailDisplayMedia simulate a refusal.
type StaticDevices struct {
	StreamID string

	mu         sync.Mutex
	userErr    error
	displayErr error
	opened     []*Track
}

func NewStaticDevices(streamID string) *StaticDevices {
	return &StaticDevices{StreamID: streamID}
}

func (d *StaticDevices) FailUserMedia(err error) {
	d.mu.Lock()
	d.userErr = err
	d.mu.Unlock()
}

func (d *StaticDevices) FailDisplayMedia(err error) {
	d.mu.Lock()
	d.displayErr = err
	d.mu.Unlock()
}

func (d *StaticDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userErr != nil {
		return Stream{}, classify("get user media", d.userErr)
	}

	var s Stream
	if c.Audio {
		t, err := NewTrack(webrtc.RTPCodecTypeAudio, domain.VideoNone, Opus, d.StreamID)
		if err != nil {
			return Stream{}, classify("get user media", err)
		}
		s.Audio = t
		d.opened = append(d.opened, t)
	}
	if c.Video {
		t, err := NewTrack(webrtc.RTPCodecTypeVideo, domain.VideoCamera, VP8, d.StreamID)
		if err != nil {
			s.Stop()
			return Stream{}, classify("get user media", err)
		}
		s.Video = t
		d.opened = append(d.opened, t)
	}
	return s, nil
}

func (d *StaticDevices) GetDisplayMedia(ctx context.Context) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.displayErr != nil {
		return nil, classify("get display media", d.displayErr)
	}
	t, err := NewTrack(webrtc.RTPCodecTypeVideo, domain.VideoScreen, VP8, d.StreamID)
	if err != nil {
		return nil, classify("get display media", err)
	}
	d.opened = append(d.opened, t)
	return t, nil
}

// Opened lists every track handed out so far.
func (d *StaticDevices) Opened() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.opened...)
}
