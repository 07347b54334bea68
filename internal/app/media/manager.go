package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

type attachment struct {
	audio core.TrackSender
	video core.TrackSender
}

// Manager owns the local tracks and the senders they feed. The published
// MediaState is always derived from the tracks.
type Manager struct {
	devices Devices
	log     zerolog.Logger

	// share serializes screen-share start/stop, including the automatic stop.
	share sync.Mutex

	mu      sync.Mutex
	audio   *Track
	camera  *Track
	screen  *Track
	conns   map[core.PeerConnection]*attachment
	subs    map[uint64]func(domain.MediaState)
	nextSub uint64
}

func NewManager(devices Devices) *Manager {
	return &Manager{
		devices: devices,
		log:     log.With().Str("module", "app.media").Logger(),
		conns:   make(map[core.PeerConnection]*attachment),
		subs:    make(map[uint64]func(domain.MediaState)),
	}
}

// AcquireLocalMedia opens microphone and camera. It blocks until the device
// provider answers or ctx ends; tracks that arrive after ctx ended are released.
func (m *Manager) AcquireLocalMedia(ctx context.Context, c Constraints) (domain.MediaState, error) {
	type result struct {
		s   Stream
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.devices.GetUserMedia(ctx, c)
		done <- result{s, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.err == nil {
				late.s.Stop()
			}
		}()
		return domain.MediaState{}, ctx.Err()
	}
	if res.err != nil {
		m.log.Warn().Err(res.err).Msg("acquire local media failed")
		return domain.MediaState{}, res.err
	}

	m.mu.Lock()
	old := Stream{Audio: m.audio, Video: m.camera}
	m.audio, m.camera = res.s.Audio, res.s.Video
	m.mu.Unlock()
	old.Stop()

	m.log.Info().Bool("audio", res.s.Audio != nil).Bool("video", res.s.Video != nil).Msg("local media acquired")
	return m.notify(), nil
}

// Attach adds the local tracks to pc and remembers the senders for later
// replacement. Attaching the same connection twice is a no-op.
func (m *Manager) Attach(pc core.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[pc]; ok {
		return nil
	}
	att := &attachment{}
	if m.audio != nil {
		s, err := pc.AddTrack(m.audio.Local())
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		att.audio = s
	}
	if v := m.videoLocked(); v != nil {
		s, err := pc.AddTrack(v.Local())
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		att.video = s
	}
	m.conns[pc] = att
	return nil
}

// Detach forgets pc and removes its senders when the connection is still open.
func (m *Manager) Detach(pc core.PeerConnection) {
	m.mu.Lock()
	att, ok := m.conns[pc]
	delete(m.conns, pc)
	m.mu.Unlock()
	if !ok || pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	for _, s := range []core.TrackSender{att.audio, att.video} {
		if s == nil {
			continue
		}
		if err := pc.RemoveTrack(s); err != nil {
			m.log.Debug().Err(err).Msg("remove track")
		}
	}
}

// ToggleMic flips the microphone in place and returns the new state.
func (m *Manager) ToggleMic() (bool, error) {
	m.mu.Lock()
	t := m.audio
	m.mu.Unlock()
	if t == nil {
		return false, fmt.Errorf("toggle mic: %w", domain.ErrDeviceUnavailable)
	}
	on := !t.Enabled()
	t.SetEnabled(on)
	m.notify()
	return on, nil
}

// ToggleVideo flips the current video track (camera or screen) in place.
func (m *Manager) ToggleVideo() (bool, error) {
	m.mu.Lock()
	t := m.videoLocked()
	m.mu.Unlock()
	if t == nil {
		return false, fmt.Errorf("toggle video: %w", domain.ErrDeviceUnavailable)
	}
	on := !t.Enabled()
	t.SetEnabled(on)
	m.notify()
	return on, nil
}

// StartScreenShare swaps the camera for a display capture on every video
// sender without renegotiating. Senders on closed connections are skipped
// and reported with domain.ErrConnectionClosed.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	m.share.Lock()
	defer m.share.Unlock()

	m.mu.Lock()
	sharing := m.screen != nil
	m.mu.Unlock()
	if sharing {
		return nil
	}

	screen, err := m.devices.GetDisplayMedia(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("screen capture refused")
		return err
	}

	m.mu.Lock()
	camera := m.camera
	if camera != nil && !camera.Enabled() {
		screen.SetEnabled(false)
	}
	m.camera, m.screen = nil, screen
	targets := m.videoSendersLocked()
	m.mu.Unlock()

	if camera != nil {
		camera.Stop()
	}
	err = m.replaceVideo(targets, screen.Local())
	screen.OnEnded(func() {
		go func() {
			if err := m.stopScreenShare(context.Background(), screen); err != nil {
				m.log.Warn().Err(err).Msg("automatic screen share stop")
			}
		}()
	})

	m.log.Info().Int("senders", len(targets)).Msg("screen share started")
	m.notify()
	return err
}

// StopScreenShare reacquires the camera and puts it back on the same senders.
func (m *Manager) StopScreenShare(ctx context.Context) error {
	return m.stopScreenShare(ctx, nil)
}

// stopScreenShare stops the current share, or only expect when it is non-nil.
func (m *Manager) stopScreenShare(ctx context.Context, expect *Track) error {
	m.share.Lock()
	defer m.share.Unlock()

	m.mu.Lock()
	screen := m.screen
	m.mu.Unlock()
	if screen == nil || (expect != nil && screen != expect) {
		return nil
	}

	var camera *Track
	var errs []error
	s, err := m.devices.GetUserMedia(ctx, Constraints{Video: true})
	if err != nil {
		errs = append(errs, err)
	} else {
		camera = s.Video
		if camera != nil && !screen.Enabled() && !screen.Ended() {
			camera.SetEnabled(false)
		}
	}

	m.mu.Lock()
	m.screen, m.camera = nil, camera
	targets := m.videoSendersLocked()
	m.mu.Unlock()

	var local webrtc.TrackLocal
	if camera != nil {
		local = camera.Local()
	}
	if err := m.replaceVideo(targets, local); err != nil {
		errs = append(errs, err)
	}
	screen.Stop()

	m.log.Info().Bool("camera", camera != nil).Msg("screen share stopped")
	m.notify()
	return errors.Join(errs...)
}

type videoTarget struct {
	pc     core.PeerConnection
	sender core.TrackSender
}

// Must hold m.mu.
func (m *Manager) videoSendersLocked() []videoTarget {
	out := make([]videoTarget, 0, len(m.conns))
	for pc, att := range m.conns {
		if att.video != nil {
			out = append(out, videoTarget{pc: pc, sender: att.video})
		}
	}
	return out
}

func (m *Manager) replaceVideo(targets []videoTarget, track webrtc.TrackLocal) error {
	var errs []error
	for _, t := range targets {
		if t.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
			errs = append(errs, fmt.Errorf("replace video track: %w", domain.ErrConnectionClosed))
			continue
		}
		if err := t.sender.ReplaceTrack(track); err != nil {
			errs = append(errs, fmt.Errorf("replace video track: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Must hold m.mu.
func (m *Manager) videoLocked() *Track {
	if m.screen != nil {
		return m.screen
	}
	return m.camera
}

func (m *Manager) AudioTrack() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// VideoTrack is the track currently feeding the video senders.
func (m *Manager) VideoTrack() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoLocked()
}

func (m *Manager) State() domain.MediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Must hold m.mu.
func (m *Manager) stateLocked() domain.MediaState {
	st := domain.MediaState{Source: domain.VideoNone}
	if m.audio != nil {
		st.Mic = m.audio.Enabled()
	}
	switch {
	case m.screen != nil:
		st.Source = domain.VideoScreen
		st.Video = m.screen.Enabled()
	case m.camera != nil:
		st.Source = domain.VideoCamera
		st.Video = m.camera.Enabled()
	}
	return st
}

// Subscribe calls fn with every new MediaState until cancel.
func (m *Manager) Subscribe(fn func(domain.MediaState)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify() domain.MediaState {
	m.mu.Lock()
	st := m.stateLocked()
	fns := make([]func(domain.MediaState), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
	return st
}

// StopAll releases every local track and forgets all connections.
func (m *Manager) StopAll() {
	m.mu.Lock()
	tracks := []*Track{m.audio, m.camera, m.screen}
	m.audio, m.camera, m.screen = nil, nil, nil
	m.conns = make(map[core.PeerConnection]*attachment)
	m.mu.Unlock()

	for _, t := range tracks {
		if t != nil {
			t.Stop()
		}
	}
	m.log.Info().Msg("local media stopped")
	m.notify()
}
