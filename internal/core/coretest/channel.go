package coretest

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/callroom/internal/core"
)

// Channel is a fake data channel. Linked channels deliver text to each other
// synchronously once both are open.
type Channel struct {
	label string

	mu      sync.Mutex
	state   webrtc.DataChannelState
	peer    *Channel
	sent    []string
	onOpen  func()
	onClose func()
	onMsg   func(webrtc.DataChannelMessage)
}

var _ core.DataChannel = (*Channel)(nil)

func newChannel(label string) *Channel {
	return &Channel{label: label, state: webrtc.DataChannelStateConnecting}
}

// NewOpenPair returns two linked, open channels.
func NewOpenPair(label string) (*Channel, *Channel) {
	a, b := newChannel(label), newChannel(label)
	a.link(b)
	a.open()
	b.open()
	return a, b
}

// NewChannel returns an unlinked channel that stays in the connecting state.
func NewChannel(label string) *Channel {
	return newChannel(label)
}

func (c *Channel) link(other *Channel) {
	c.mu.Lock()
	c.peer = other
	c.mu.Unlock()
	other.mu.Lock()
	other.peer = c
	other.mu.Unlock()
}

func (c *Channel) open() {
	c.mu.Lock()
	if c.state != webrtc.DataChannelStateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = webrtc.DataChannelStateOpen
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Channel) Label() string { return c.label }

func (c *Channel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) SendText(text string) error {
	c.mu.Lock()
	if c.state != webrtc.DataChannelStateOpen {
		c.mu.Unlock()
		return errClosed
	}
	c.sent = append(c.sent, text)
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.deliver(text)
	}
	return nil
}

func (c *Channel) deliver(text string) {
	c.mu.Lock()
	fn := c.onMsg
	open := c.state == webrtc.DataChannelStateOpen
	c.mu.Unlock()
	if open && fn != nil {
		fn(webrtc.DataChannelMessage{IsString: true, Data: []byte(text)})
	}
}

// Inject delivers a raw message as if the remote side had sent it.
func (c *Channel) Inject(text string) {
	c.deliver(text)
}

// Sent returns the texts written to this channel.
func (c *Channel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Channel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	c.mu.Lock()
	c.onMsg = fn
	c.mu.Unlock()
}

// Close closes both ends.
func (c *Channel) Close() error {
	if c.closeLocal() {
		c.mu.Lock()
		peer := c.peer
		c.mu.Unlock()
		if peer != nil {
			peer.closeLocal()
		}
	}
	return nil
}

func (c *Channel) closeLocal() bool {
	c.mu.Lock()
	if c.state == webrtc.DataChannelStateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = webrtc.DataChannelStateClosed
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}
