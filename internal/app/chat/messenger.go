// Package chat carries text messages over the "chat" data channel of a peer pair.
package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const (
	Label = "chat"

	TypeChat = "chat"
)

// Envelope is the data-channel wire format. Timestamp is unix milliseconds.
type Envelope struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler receives a raw envelope of a registered type.
type Handler func(sender domain.ParticipantID, raw []byte)

// Messenger is one side of the chat channel with a single remote participant.
type Messenger struct {
	local  domain.ParticipantID
	remote domain.ParticipantID
	now    func() time.Time
	log    zerolog.Logger

	mu       sync.RWMutex
	ch       core.DataChannel
	handlers map[string]Handler
	subs     map[uint64]func(domain.ChatMessage)
	nextSub  uint64
	onReady  []func()
}

func NewMessenger(local, remote domain.ParticipantID) *Messenger {
	return &Messenger{
		local:    local,
		remote:   remote,
		now:      time.Now,
		handlers: make(map[string]Handler),
		subs:     make(map[uint64]func(domain.ChatMessage)),
		log: log.With().
			Str("module", "app.chat").
			Str("local", string(local)).
			Str("remote", string(remote)).
			Logger(),
	}
}

func (m *Messenger) Remote() domain.ParticipantID { return m.remote }

// Open creates the channel on the offering side. It must run before the offer
// is created so the channel is part of it.
func (m *Messenger) Open(pc core.PeerConnection) error {
	ch, err := pc.CreateDataChannel(Label)
	if err != nil {
		return fmt.Errorf("create %s channel: %w", Label, err)
	}
	m.Attach(ch)
	return nil
}

// Attach binds an existing channel, typically the one announced by the remote
// side through OnDataChannel.
func (m *Messenger) Attach(ch core.DataChannel) {
	m.mu.Lock()
	m.ch = ch
	m.mu.Unlock()

	ch.OnOpen(func() {
		m.log.Debug().Msg("channel open")
		m.mu.RLock()
		fns := append([]func(){}, m.onReady...)
		m.mu.RUnlock()
		for _, fn := range fns {
			fn()
		}
	})
	ch.OnClose(func() { m.log.Debug().Msg("channel closed") })
	ch.OnMessage(m.receive)
}

// Ready reports whether the channel is open.
func (m *Messenger) Ready() bool {
	m.mu.RLock()
	ch := m.ch
	m.mu.RUnlock()
	return ch != nil && ch.ReadyState() == webrtc.DataChannelStateOpen
}

// OnReady registers fn for the moment the channel opens.
func (m *Messenger) OnReady(fn func()) {
	m.mu.Lock()
	m.onReady = append(m.onReady, fn)
	m.mu.Unlock()
}

// SendMessage sends a chat line and reports whether it went out.
func (m *Messenger) SendMessage(content string) bool {
	if err := m.Send(content); err != nil {
		m.log.Debug().Err(err).Msg("chat message not sent")
		return false
	}
	return true
}

// Send is SendMessage with the reason; domain.ErrChannelNotReady unless the channel is open.
func (m *Messenger) Send(content string) error {
	return m.SendEnvelope(Envelope{Type: TypeChat, Content: content, Timestamp: m.now().UnixMilli()})
}

func (m *Messenger) SendEnvelope(env Envelope) error {
	m.mu.RLock()
	ch := m.ch
	m.mu.RUnlock()
	if ch == nil || ch.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrChannelNotReady
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := ch.SendText(string(raw)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelNotReady, err)
	}
	return nil
}

// Handle registers fn for envelopes of type typ. The chat type is built in.
func (m *Messenger) Handle(typ string, fn Handler) {
	m.mu.Lock()
	m.handlers[typ] = fn
	m.mu.Unlock()
}

// OnMessage subscribes to incoming chat lines.
func (m *Messenger) OnMessage(fn func(domain.ChatMessage)) func() {
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

func (m *Messenger) receive(msg webrtc.DataChannelMessage) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &head); err != nil {
		m.log.Debug().Err(err).Msg("malformed message ignored")
		return
	}

	if head.Type != TypeChat {
		m.mu.RLock()
		fn, ok := m.handlers[head.Type]
		m.mu.RUnlock()
		if !ok {
			m.log.Debug().Str("type", head.Type).Msg("unknown message type ignored")
			return
		}
		fn(m.remote, msg.Data)
		return
	}

	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		m.log.Debug().Err(err).Msg("malformed chat message ignored")
		return
	}
	at := time.UnixMilli(env.Timestamp)
	if env.Timestamp == 0 {
		at = m.now()
	}
	cm := domain.NewChatMessage(m.remote, env.Content, at)

	m.mu.RLock()
	fns := make([]func(domain.ChatMessage), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(cm)
	}
}

func (m *Messenger) Close() {
	m.mu.Lock()
	ch := m.ch
	m.ch = nil
	m.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
}
