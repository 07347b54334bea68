package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app/bus"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// ClientTokenCookie carries the participant id to the server.
const ClientTokenCookie = "ct"

const DefaultRequestTimeout = 10 * time.Second

var (
	ErrRemote          = errors.New("signaling server error")
	ErrRequestTimeout  = errors.New("signaling request timed out")
	ErrForeignIdentity = errors.New("participant is not this client's identity")
)

type ClientOptions struct {
	ID             domain.ParticipantID
	Name           string
	RequestTimeout time.Duration
	SendBuffer     int
}

var _ core.Signaler = (*Client)(nil)

// Client is a core.Signaler backed by one WebSocket to a WSController.
type Client struct {
	id      domain.ParticipantID
	name    string
	timeout time.Duration
	conn    *wsConn
	log     zerolog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	ref     atomic.Uint64

	mu      sync.Mutex
	closed  bool
	subs    map[uint64]*bus.Mailbox
	nextSub uint64
	pending map[string]chan Reply
}

func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	if err := domain.ValidateParticipantID(opts.ID); err != nil {
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}

	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: ClientTokenCookie, Value: string(opts.ID)}).String())
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:      opts.ID,
		name:    opts.Name,
		timeout: opts.RequestTimeout,
		conn:    newWSConn(ws, opts.SendBuffer),
		log:     log.With().Str("module", "signal.client").Str("pid", string(opts.ID)).Logger(),
		cancel:  cancel,
		done:    make(chan struct{}),
		subs:    make(map[uint64]*bus.Mailbox),
		pending: make(map[string]chan Reply),
	}
	go writePump(pumpCtx, c.conn)
	go c.readLoop()
	return c, nil
}

func (c *Client) ID() domain.ParticipantID { return c.id }

// Done is closed once the socket is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.conn.Close()
	<-c.done
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			c.log.Debug().Err(err).Msg("bad json ignored")
			continue
		}

		if isReply(head.Type) {
			var r Reply
			if err := json.Unmarshal(data, &r); err != nil {
				c.log.Debug().Err(err).Msg("bad reply ignored")
				continue
			}
			c.resolve(r)
			continue
		}

		var msg core.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("bad message ignored")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = make(map[uint64]*bus.Mailbox)
	c.mu.Unlock()

	for _, box := range subs {
		box.Close()
	}
	c.conn.Close()
	c.cancel()
	close(c.done)
	c.log.Info().Msg("signaling closed")
}

func (c *Client) resolve(r Reply) {
	c.mu.Lock()
	ch, ok := c.pending[r.Ref]
	c.mu.Unlock()
	if ok {
		ch <- r
		return
	}
	if r.Type == TypeError {
		c.log.Warn().Str("op", r.Op).Str("error", r.Error).Msg("server error")
	}
}

func (c *Client) dispatch(msg core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, box := range c.subs {
		box.Push(msg)
	}
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.TrySend(data)
}

func (c *Client) request(ctx context.Context, req Control) (Reply, error) {
	req.Ref = strconv.FormatUint(c.ref.Add(1), 10)
	ch := make(chan Reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Reply{}, domain.ErrConnectionClosed
	}
	c.pending[req.Ref] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.Ref)
		c.mu.Unlock()
	}()

	if err := c.send(req); err != nil {
		return Reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case r := <-ch:
		if r.Type == TypeError {
			return r, replyError(r)
		}
		return r, nil
	case <-c.done:
		return Reply{}, domain.ErrConnectionClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reply{}, fmt.Errorf("%w: %s", ErrRequestTimeout, req.Type)
		}
		return Reply{}, ctx.Err()
	}
}

// replyError turns a wire error code back into the domain error it came from.
func replyError(r Reply) error {
	var base error
	switch r.Error {
	case "not_member":
		base = domain.ErrNotMember
	case "invitation_not_found":
		base = domain.ErrInvitationNotFound
	case "self_invitation":
		base = domain.ErrSelfInvitation
	case "rate_limited":
		base = domain.ErrRateLimited
	default:
		base = ErrRemote
	}
	return fmt.Errorf("%s: %w: %s", r.Op, base, r.Error)
}

func (c *Client) own(pid domain.ParticipantID) error {
	if pid != c.id {
		return fmt.Errorf("%w: %s", ErrForeignIdentity, pid)
	}
	return nil
}

func (c *Client) JoinRoom(roomID domain.RoomID, pid domain.ParticipantID) error {
	if err := c.own(pid); err != nil {
		return err
	}
	_, err := c.request(context.Background(), Control{Type: TypeJoin, Room: roomID, Name: c.name})
	return err
}

func (c *Client) LeaveRoom(roomID domain.RoomID, pid domain.ParticipantID) error {
	if err := c.own(pid); err != nil {
		return err
	}
	_, err := c.request(context.Background(), Control{Type: TypeLeave, Room: roomID})
	return err
}

func (c *Client) relay(msg core.Message, opts []core.SendOption) error {
	if err := c.own(msg.UserID); err != nil {
		return err
	}
	core.ApplySendOptions(&msg, opts)
	return c.send(msg)
}

func (c *Client) SendOffer(roomID domain.RoomID, sender domain.ParticipantID, offer webrtc.SessionDescription, opts ...core.SendOption) error {
	return c.relay(core.Message{Type: core.MsgOffer, RoomID: roomID, UserID: sender, Offer: &offer}, opts)
}

func (c *Client) SendAnswer(roomID domain.RoomID, sender domain.ParticipantID, answer webrtc.SessionDescription, opts ...core.SendOption) error {
	return c.relay(core.Message{Type: core.MsgAnswer, RoomID: roomID, UserID: sender, Answer: &answer}, opts)
}

func (c *Client) SendIceCandidate(roomID domain.RoomID, sender domain.ParticipantID, candidate webrtc.ICECandidateInit, opts ...core.SendOption) error {
	return c.relay(core.Message{Type: core.MsgIceCandidate, RoomID: roomID, UserID: sender, Candidate: &candidate}, opts)
}

func (c *Client) UpdateMediaState(roomID domain.RoomID, pid domain.ParticipantID, state domain.MediaState) error {
	return c.relay(core.Message{Type: core.MsgMediaState, RoomID: roomID, UserID: pid, Media: &state}, nil)
}

// Subscribe streams everything the server pushes to this socket. pid must be
// the client's own identity.
func (c *Client) Subscribe(pid domain.ParticipantID) (<-chan core.Message, func()) {
	box := bus.NewMailbox()
	if err := c.own(pid); err != nil {
		c.log.Warn().Err(err).Msg("subscribe")
		box.Close()
		return box.Out(), func() {}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		box.Close()
		return box.Out(), func() {}
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = box
	c.mu.Unlock()

	var once sync.Once
	return box.Out(), func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			box.Close()
		})
	}
}

func (c *Client) Invite(ctx context.Context, roomID domain.RoomID, to domain.ParticipantID) (domain.Invitation, error) {
	r, err := c.request(ctx, Control{Type: TypeInvite, Room: roomID, To: to})
	if err != nil {
		return domain.Invitation{}, err
	}
	if r.Invitation == nil {
		return domain.Invitation{}, fmt.Errorf("%w: invite reply without invitation", ErrRemote)
	}
	return *r.Invitation, nil
}

// Accept answers an invitation; on success the server has already added this
// participant to the room.
func (c *Client) Accept(ctx context.Context, id domain.InvitationID) (domain.Invitation, error) {
	return c.answer(ctx, TypeAccept, id)
}

func (c *Client) Decline(ctx context.Context, id domain.InvitationID) (domain.Invitation, error) {
	return c.answer(ctx, TypeDecline, id)
}

func (c *Client) answer(ctx context.Context, typ string, id domain.InvitationID) (domain.Invitation, error) {
	r, err := c.request(ctx, Control{Type: typ, ID: id})
	if err != nil {
		return domain.Invitation{}, err
	}
	if r.Invitation == nil {
		return domain.Invitation{}, fmt.Errorf("%w: %s reply without invitation", ErrRemote, typ)
	}
	return *r.Invitation, nil
}

func (c *Client) Pending(ctx context.Context) ([]domain.Invitation, error) {
	r, err := c.request(ctx, Control{Type: TypePending})
	if err != nil {
		return nil, err
	}
	return r.Invitations, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, Control{Type: TypePing})
	return err
}

// WhoAmI returns the rooms the server has this participant in.
func (c *Client) WhoAmI(ctx context.Context) ([]domain.RoomID, error) {
	r, err := c.request(ctx, Control{Type: TypeWhoAmI})
	if err != nil {
		return nil, err
	}
	return r.Rooms, nil
}
