package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/callroom/internal/app/chat"
	"github.com/dkeye/callroom/internal/app/negotiation"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// pairOutbox sends one session's negotiation traffic to its remote only.
type pairOutbox struct {
	signal core.Signaler
	room   domain.RoomID
	self   domain.ParticipantID
	remote domain.ParticipantID
}

func (o pairOutbox) SendOffer(offer webrtc.SessionDescription) error {
	return o.signal.SendOffer(o.room, o.self, offer, core.To(o.remote))
}

func (o pairOutbox) SendAnswer(answer webrtc.SessionDescription) error {
	return o.signal.SendAnswer(o.room, o.self, answer, core.To(o.remote))
}

func (o pairOutbox) SendCandidate(c webrtc.ICECandidateInit) error {
	return o.signal.SendIceCandidate(o.room, o.self, c, core.To(o.remote))
}

func (e *Endpoint) key(remote domain.ParticipantID) negotiation.PairKey {
	return negotiation.NewPairKey(e.cfg.Room, e.cfg.Self, remote)
}

// session returns the live pair with remote, building the connection, the
// media senders and the chat messenger when there is none.
func (e *Endpoint) session(remote domain.ParticipantID) (*negotiation.Session, bool, error) {
	return e.table.GetOrCreate(e.key(remote), func() (*negotiation.Session, error) {
		pc, err := e.newConn()
		if err != nil {
			return nil, fmt.Errorf("new connection: %w", err)
		}
		if err := e.media.Attach(pc); err != nil {
			_ = pc.Close()
			return nil, err
		}

		s := negotiation.NewSession(e.key(remote), e.cfg.Self, pc, pairOutbox{
			signal: e.signal,
			room:   e.cfg.Room,
			self:   e.cfg.Self,
			remote: remote,
		}, e.cfg.Negotiation)

		m := e.newMessenger(remote)
		pc.OnDataChannel(func(ch core.DataChannel) {
			if ch.Label() != chat.Label {
				e.log.Debug().Str("label", ch.Label()).Msg("unexpected data channel ignored")
				return
			}
			m.Attach(ch)
		})
		s.OnFailure(func(err error) { e.pairFailed(remote, s, err) })
		s.OnStateChange(func(st negotiation.State) {
			e.log.Debug().Str("remote", string(remote)).Str("state", st.String()).Msg("pair state")
		})
		return s, nil
	})
}

func (e *Endpoint) newMessenger(remote domain.ParticipantID) *chat.Messenger {
	m := chat.NewMessenger(e.cfg.Self, remote)
	m.OnMessage(e.dispatchChat)

	e.mu.Lock()
	old := e.messengers[remote]
	e.messengers[remote] = m
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return m
}

func (e *Endpoint) messenger(remote domain.ParticipantID) (*chat.Messenger, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.messengers[remote]
	return m, ok
}

// offerTo starts negotiation with a member that joined after us. Only the
// member already in the room offers, so two sides never offer each other.
func (e *Endpoint) offerTo(ctx context.Context, remote domain.ParticipantID) error {
	s, isNew, err := e.session(remote)
	if err != nil {
		return err
	}
	if !isNew {
		return fmt.Errorf("%w: pair with %s already %s", domain.ErrStaleMessage, remote, s.State())
	}

	if m, ok := e.messenger(remote); ok {
		if err := m.Open(s.Conn()); err != nil {
			e.table.Remove(s.Key())
			return err
		}
	}
	_, err = s.CreateOffer(ctx)
	return err
}

func (e *Endpoint) onOffer(ctx context.Context, msg core.Message) error {
	if msg.Offer == nil {
		return fmt.Errorf("%w: offer without description", domain.ErrStaleMessage)
	}
	s, _, err := e.session(msg.UserID)
	if err != nil {
		return err
	}
	_, err = s.HandleOffer(ctx, *msg.Offer)
	return err
}

func (e *Endpoint) onAnswer(ctx context.Context, msg core.Message) error {
	if msg.Answer == nil {
		return fmt.Errorf("%w: answer without description", domain.ErrStaleMessage)
	}
	s, ok := e.table.Get(e.key(msg.UserID))
	if !ok {
		return fmt.Errorf("%w: no pair with %s", domain.ErrStaleMessage, msg.UserID)
	}
	return s.HandleAnswer(ctx, *msg.Answer)
}

// onCandidate queues candidates that race ahead of their offer. A room wide
// candidate only reaches pairs that already exist.
func (e *Endpoint) onCandidate(msg core.Message) error {
	if msg.Candidate == nil {
		return fmt.Errorf("%w: empty candidate", domain.ErrStaleMessage)
	}
	var (
		s   *negotiation.Session
		err error
	)
	if msg.To == e.cfg.Self {
		s, _, err = e.session(msg.UserID)
		if err != nil {
			return err
		}
	} else {
		var ok bool
		if s, ok = e.table.Get(e.key(msg.UserID)); !ok {
			return fmt.Errorf("%w: no pair with %s", domain.ErrStaleMessage, msg.UserID)
		}
	}
	return s.AddICECandidate(*msg.Candidate)
}

// dropPeer tears down everything held for a member that left.
func (e *Endpoint) dropPeer(remote domain.ParticipantID) {
	key := e.key(remote)
	if s, ok := e.table.Get(key); ok {
		e.media.Detach(s.Conn())
	}
	e.table.Remove(key)

	e.mu.Lock()
	m := e.messengers[remote]
	delete(e.messengers, remote)
	delete(e.remoteMedia, remote)
	e.mu.Unlock()
	if m != nil {
		m.Close()
	}
	e.log.Info().Str("remote", string(remote)).Msg("peer left")
}

func (e *Endpoint) pairFailed(remote domain.ParticipantID, s *negotiation.Session, err error) {
	e.media.Detach(s.Conn())

	e.mu.Lock()
	m := e.messengers[remote]
	if m != nil {
		delete(e.messengers, remote)
	}
	fn := e.onFailure
	e.mu.Unlock()
	if m != nil {
		m.Close()
	}

	e.log.Warn().Err(err).Str("remote", string(remote)).Msg("pair failed")
	if fn != nil && errors.Is(err, domain.ErrNegotiationFailure) {
		fn(remote, err)
	}
}
