// Package orch wires one local participant: bus events drive the per-pair
// negotiation, local media is attached to every connection and chat runs
// over each pair's data channel.
package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app/chat"
	"github.com/dkeye/callroom/internal/app/media"
	"github.com/dkeye/callroom/internal/app/negotiation"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// ConnFactory builds a fresh peer connection for a new pair.
type ConnFactory func() (core.PeerConnection, error)

type Config struct {
	Room        domain.RoomID
	Self        domain.ParticipantID
	Constraints media.Constraints
	Negotiation negotiation.Config
}

type Endpoint struct {
	cfg     Config
	signal  core.Signaler
	newConn ConnFactory
	media   *media.Manager
	table   *negotiation.Table
	log     zerolog.Logger

	mu          sync.Mutex
	joined      bool
	stop        context.CancelFunc
	cancelSub   func()
	cancelMedia func()
	done        chan struct{}
	messengers  map[domain.ParticipantID]*chat.Messenger
	remoteMedia map[domain.ParticipantID]domain.MediaState
	chatSubs    map[uint64]func(domain.ChatMessage)
	nextSub     uint64
	onFailure   func(domain.ParticipantID, error)
	onInvite    func(domain.Invitation)
}

func NewEndpoint(cfg Config, signal core.Signaler, newConn ConnFactory, mm *media.Manager) *Endpoint {
	return &Endpoint{
		cfg:         cfg,
		signal:      signal,
		newConn:     newConn,
		media:       mm,
		table:       negotiation.NewTable(),
		messengers:  make(map[domain.ParticipantID]*chat.Messenger),
		remoteMedia: make(map[domain.ParticipantID]domain.MediaState),
		chatSubs:    make(map[uint64]func(domain.ChatMessage)),
		log: log.With().
			Str("module", "app.orch").
			Str("room", string(cfg.Room)).
			Str("self", string(cfg.Self)).
			Logger(),
	}
}

func (e *Endpoint) Self() domain.ParticipantID { return e.cfg.Self }
func (e *Endpoint) Room() domain.RoomID        { return e.cfg.Room }
func (e *Endpoint) Media() *media.Manager      { return e.media }

// Join acquires local media, then subscribes and joins the room. A refused
// capture aborts before any signaling happens.
func (e *Endpoint) Join(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.joined {
		return nil
	}

	if c := e.cfg.Constraints; c.Audio || c.Video {
		if _, err := e.media.AcquireLocalMedia(ctx, c); err != nil {
			return err
		}
	}

	events, cancelSub := e.signal.Subscribe(e.cfg.Self)
	if err := e.signal.JoinRoom(e.cfg.Room, e.cfg.Self); err != nil {
		cancelSub()
		e.media.StopAll()
		return err
	}

	loopCtx, stop := context.WithCancel(context.Background())
	e.joined = true
	e.stop = stop
	e.cancelSub = cancelSub
	e.done = make(chan struct{})
	e.cancelMedia = e.media.Subscribe(e.publishMedia)
	go e.run(loopCtx, events, e.done)

	e.publishMedia(e.media.State())
	e.log.Info().Msg("joined")
	return nil
}

// Leave stops the tracks, closes every pair and leaves the room.
func (e *Endpoint) Leave() error {
	e.mu.Lock()
	if !e.joined {
		e.mu.Unlock()
		return nil
	}
	e.joined = false
	stop, cancelSub, cancelMedia, done := e.stop, e.cancelSub, e.cancelMedia, e.done
	messengers := e.messengers
	e.messengers = make(map[domain.ParticipantID]*chat.Messenger)
	e.remoteMedia = make(map[domain.ParticipantID]domain.MediaState)
	e.mu.Unlock()

	stop()
	cancelMedia()
	e.media.StopAll()
	n := e.table.CloseAll(e.cfg.Room)
	for _, m := range messengers {
		m.Close()
	}
	err := e.signal.LeaveRoom(e.cfg.Room, e.cfg.Self)
	cancelSub()
	<-done

	e.log.Info().Int("pairs_closed", n).Msg("left")
	return err
}

// Done is closed when the event loop ended, either through Leave or because
// the signaling subscription went away.
func (e *Endpoint) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.done
}

func (e *Endpoint) run(ctx context.Context, events <-chan core.Message, done chan struct{}) {
	defer close(done)
	for msg := range events {
		if ctx.Err() != nil {
			continue
		}
		e.handle(ctx, msg)
	}
}

func (e *Endpoint) handle(ctx context.Context, msg core.Message) {
	if msg.Type == core.MsgInvitation {
		e.onInvitation(msg)
		return
	}
	if msg.RoomID != e.cfg.Room || msg.UserID == e.cfg.Self || !msg.Addressed(e.cfg.Self) {
		return
	}

	var err error
	switch msg.Type {
	case core.MsgUserJoined:
		err = e.offerTo(ctx, msg.UserID)
	case core.MsgUserLeft:
		e.dropPeer(msg.UserID)
	case core.MsgOffer:
		err = e.onOffer(ctx, msg)
	case core.MsgAnswer:
		err = e.onAnswer(ctx, msg)
	case core.MsgIceCandidate:
		err = e.onCandidate(msg)
	case core.MsgMediaState:
		e.onRemoteMedia(msg)
	default:
		e.log.Debug().Str("type", string(msg.Type)).Msg("unknown message ignored")
	}

	switch {
	case err == nil:
	case domain.Silent(err):
		e.log.Debug().Err(err).Str("from", string(msg.UserID)).Str("type", string(msg.Type)).Msg("dropped")
	default:
		e.log.Warn().Err(err).Str("from", string(msg.UserID)).Str("type", string(msg.Type)).Msg("handle message")
	}
}

// OnFailure registers fn for pairs that closed with domain.ErrNegotiationFailure.
func (e *Endpoint) OnFailure(fn func(remote domain.ParticipantID, err error)) {
	e.mu.Lock()
	e.onFailure = fn
	e.mu.Unlock()
}

// OnInvitation registers fn for invitations pushed to this participant.
func (e *Endpoint) OnInvitation(fn func(domain.Invitation)) {
	e.mu.Lock()
	e.onInvite = fn
	e.mu.Unlock()
}

func (e *Endpoint) onInvitation(msg core.Message) {
	if msg.Invitation == nil {
		return
	}
	e.mu.Lock()
	fn := e.onInvite
	e.mu.Unlock()
	e.log.Info().Str("id", string(msg.Invitation.ID)).Str("from", string(msg.Invitation.From)).Msg("invitation received")
	if fn != nil {
		fn(*msg.Invitation)
	}
}

// PeerStates reports the negotiation state of every live pair by remote participant.
func (e *Endpoint) PeerStates() map[domain.ParticipantID]negotiation.State {
	out := make(map[domain.ParticipantID]negotiation.State)
	for _, s := range e.table.Sessions(e.cfg.Room) {
		out[s.Remote()] = s.State()
	}
	return out
}
