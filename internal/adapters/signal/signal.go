// Package signal carries the signaling bus over WebSocket: the server-side
// controller and a client that satisfies core.Signaler.
package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app/bus"
	"github.com/dkeye/callroom/internal/app/invite"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const (
	DefaultSendBuffer = 64
	DefaultReadLimit  = 64 << 10
)

type WSController struct {
	reg        *bus.RoomRegistry
	invites    *invite.Manager
	policy     Policy
	validate   *validator.Validate
	sendBuffer int
	readLimit  int64

	mu    sync.Mutex
	conns map[domain.ParticipantID]int
}

type Option func(*WSController)

func WithPolicy(p Policy) Option {
	return func(c *WSController) { c.policy = p }
}

func WithSendBuffer(n int) Option {
	return func(c *WSController) { c.sendBuffer = n }
}

// WithReadLimit caps the size of one inbound frame.
func WithReadLimit(n int64) Option {
	return func(c *WSController) {
		if n > 0 {
			c.readLimit = n
		}
	}
}

func NewWSController(reg *bus.RoomRegistry, invites *invite.Manager, opts ...Option) *WSController {
	ctl := &WSController{
		reg:        reg,
		invites:    invites,
		policy:     SimplePolicy{},
		validate:   validator.New(),
		sendBuffer: DefaultSendBuffer,
		readLimit:  DefaultReadLimit,
		conns:      make(map[domain.ParticipantID]int),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

var _ core.SignalConnection = (*wsConn)(nil)

// wsConn owns a socket. Writes go through send and a single writePump.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. The participant id is the client token
// put on the context by the HTTP layer.
func (ctl *WSController) HandleSignal(ctx context.Context, c *gin.Context) {
	pid := domain.ParticipantID(c.GetString("client_token"))
	if err := domain.ValidateParticipantID(pid); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.readLimit)

	conn := newWSConn(ws, ctl.sendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := ctl.reg.Subscribe(pid)
	ctl.track(pid)

	go writePump(ctx, conn)
	go ctl.forward(ctx, pid, conn, events)
	go ctl.readPump(ctx, pid, conn, func() {
		cancel()
		unsubscribe()
		ctl.release(pid)
	})
}

func (ctl *WSController) track(pid domain.ParticipantID) {
	ctl.mu.Lock()
	ctl.conns[pid]++
	ctl.mu.Unlock()
}

// release leaves every room once the last socket of pid is gone.
func (ctl *WSController) release(pid domain.ParticipantID) {
	ctl.mu.Lock()
	ctl.conns[pid]--
	last := ctl.conns[pid] <= 0
	if last {
		delete(ctl.conns, pid)
	}
	ctl.mu.Unlock()
	if !last {
		return
	}
	for _, room := range ctl.reg.RoomsOf(pid) {
		if err := ctl.reg.LeaveRoom(room, pid); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("leave on disconnect")
		}
	}
}

// Online reports how many sockets pid holds.
func (ctl *WSController) Online(pid domain.ParticipantID) int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.conns[pid]
}
