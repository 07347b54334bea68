package orch

import (
	"context"

	"github.com/dkeye/callroom/internal/app/chat"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

func (e *Endpoint) publishMedia(st domain.MediaState) {
	if err := e.signal.UpdateMediaState(e.cfg.Room, e.cfg.Self, st); err != nil {
		e.log.Debug().Err(err).Msg("publish media state")
	}
}

func (e *Endpoint) onRemoteMedia(msg core.Message) {
	if msg.Media == nil {
		return
	}
	e.mu.Lock()
	e.remoteMedia[msg.UserID] = *msg.Media
	e.mu.Unlock()
	e.log.Debug().
		Str("remote", string(msg.UserID)).
		Bool("mic", msg.Media.Mic).
		Bool("video", msg.Media.Video).
		Str("source", string(msg.Media.Source)).
		Msg("remote media")
}

// RemoteMedia returns the last media state announced by each member.
func (e *Endpoint) RemoteMedia() map[domain.ParticipantID]domain.MediaState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.ParticipantID]domain.MediaState, len(e.remoteMedia))
	for pid, st := range e.remoteMedia {
		out[pid] = st
	}
	return out
}

func (e *Endpoint) ToggleMic() (bool, error)   { return e.media.ToggleMic() }
func (e *Endpoint) ToggleVideo() (bool, error) { return e.media.ToggleVideo() }

func (e *Endpoint) StartScreenShare(ctx context.Context) error {
	return e.media.StartScreenShare(ctx)
}

func (e *Endpoint) StopScreenShare(ctx context.Context) error {
	return e.media.StopScreenShare(ctx)
}

// SendMessage sends a chat line to every member with an open channel and
// returns how many received it.
func (e *Endpoint) SendMessage(content string) int {
	e.mu.Lock()
	targets := make([]*chat.Messenger, 0, len(e.messengers))
	for _, m := range e.messengers {
		targets = append(targets, m)
	}
	e.mu.Unlock()

	sent := 0
	for _, m := range targets {
		if m.SendMessage(content) {
			sent++
		}
	}
	return sent
}

// OnMessage subscribes to chat lines from any member.
func (e *Endpoint) OnMessage(fn func(domain.ChatMessage)) func() {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.chatSubs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.chatSubs, id)
		e.mu.Unlock()
	}
}

func (e *Endpoint) dispatchChat(msg domain.ChatMessage) {
	e.mu.Lock()
	fns := make([]func(domain.ChatMessage), 0, len(e.chatSubs))
	for _, fn := range e.chatSubs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}
