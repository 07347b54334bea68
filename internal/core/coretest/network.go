// Package coretest provides an in-memory peer network for tests. Connections
// created by the same Network pair up through the SDP they exchange: an answer
// applied by the offerer connects both sides and opens the offerer's data
// channels on the answerer.
package coretest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/callroom/internal/core"
)

var (
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrUnknownSDP          = errors.New("sdp does not belong to this network")
	errClosed              = errors.New("connection closed")
)

type Network struct {
	mu     sync.Mutex
	nextID int
	conns  map[string]*Conn
	all    []*Conn
}

func NewNetwork() *Network {
	return &Network{conns: make(map[string]*Conn)}
}

// NewConnection matches the endpoint's connection factory signature.
func (n *Network) NewConnection() (core.PeerConnection, error) {
	return n.NewConn(), nil
}

func (n *Network) NewConn() *Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	c := &Conn{net: n, id: fmt.Sprintf("pc%d", n.nextID), state: webrtc.PeerConnectionStateNew}
	n.conns[c.id] = c
	n.all = append(n.all, c)
	return c
}

// Conns returns every connection created so far, in creation order.
func (n *Network) Conns() []*Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Conn(nil), n.all...)
}

func (n *Network) lookup(sdp string) (*Conn, error) {
	parts := strings.Split(sdp, ":")
	if len(parts) != 3 || parts[0] != "fake" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSDP, sdp)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[parts[2]]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSDP, sdp)
	}
	return c, nil
}

// Conn is a fake core.PeerConnection.
type Conn struct {
	net *Network
	id  string

	mu         sync.Mutex
	state      webrtc.PeerConnectionState
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	peer       *Conn
	applied    []webrtc.ICECandidateInit
	channels   []*Channel
	senders    []*Sender
	candidates int

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onDC    func(core.DataChannel)
}

var _ core.PeerConnection = (*Conn)(nil)

func (c *Conn) ID() string { return c.id }

func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.createLocal(webrtc.SDPTypeOffer)
}

func (c *Conn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	hasRemote := c.remote != nil
	c.mu.Unlock()
	if !hasRemote {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	return c.createLocal(webrtc.SDPTypeAnswer)
}

// createLocal sets the local description and gathers one host candidate.
func (c *Conn) createLocal(typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	if c.state == webrtc.PeerConnectionStateClosed {
		c.mu.Unlock()
		return webrtc.SessionDescription{}, errClosed
	}
	desc := webrtc.SessionDescription{Type: typ, SDP: fmt.Sprintf("fake:%s:%s", typ, c.id)}
	c.local = &desc
	c.candidates++
	cand := webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%s %d udp host", c.id, c.candidates)}
	onICE := c.onICE
	c.mu.Unlock()

	if onICE != nil {
		onICE(cand)
	}
	return desc, nil
}

func (c *Conn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	other, err := c.net.lookup(desc.SDP)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == webrtc.PeerConnectionStateClosed {
		c.mu.Unlock()
		return errClosed
	}
	c.remote = &desc
	c.peer = other
	isAnswer := desc.Type == webrtc.SDPTypeAnswer
	c.mu.Unlock()

	if isAnswer {
		c.connect(other)
	}
	return nil
}

// connect runs on the offerer once the answer is applied.
func (c *Conn) connect(answerer *Conn) {
	c.setState(webrtc.PeerConnectionStateConnected)
	answerer.setState(webrtc.PeerConnectionStateConnected)

	c.mu.Lock()
	channels := append([]*Channel(nil), c.channels...)
	c.mu.Unlock()

	for _, local := range channels {
		remote := newChannel(local.label)
		local.link(remote)
		answerer.mu.Lock()
		answerer.channels = append(answerer.channels, remote)
		onDC := answerer.onDC
		answerer.mu.Unlock()
		if onDC != nil {
			onDC(remote)
		}
		local.open()
		remote.open()
	}
}

func (c *Conn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == webrtc.PeerConnectionStateClosed {
		return errClosed
	}
	if c.remote == nil {
		return ErrNoRemoteDescription
	}
	c.applied = append(c.applied, cand)
	return nil
}

// Applied returns the remote candidates applied so far, in order.
func (c *Conn) Applied() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.applied...)
}

func (c *Conn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Conn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Conn) AddTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == webrtc.PeerConnectionStateClosed {
		return nil, errClosed
	}
	s := &Sender{conn: c, track: track}
	c.senders = append(c.senders, s)
	return s, nil
}

func (c *Conn) RemoveTrack(sender core.TrackSender) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.senders {
		if s == sender {
			c.senders = append(c.senders[:i], c.senders[i+1:]...)
			return nil
		}
	}
	return errors.New("sender not found")
}

func (c *Conn) Senders() []*Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Sender(nil), c.senders...)
}

func (c *Conn) CreateDataChannel(label string) (core.DataChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == webrtc.PeerConnectionStateClosed {
		return nil, errClosed
	}
	ch := newChannel(label)
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *Conn) ConnectionState() webrtc.PeerConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Conn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Conn) OnDataChannel(fn func(core.DataChannel)) {
	c.mu.Lock()
	c.onDC = fn
	c.mu.Unlock()
}

// Fail simulates an ICE failure on this side.
func (c *Conn) Fail() {
	c.setState(webrtc.PeerConnectionStateFailed)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == webrtc.PeerConnectionStateClosed {
		c.mu.Unlock()
		return nil
	}
	channels := append([]*Channel(nil), c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	c.setState(webrtc.PeerConnectionStateClosed)
	return nil
}

func (c *Conn) setState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	if c.state == s || c.state == webrtc.PeerConnectionStateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Sender is a fake outbound RTP sender.
type Sender struct {
	conn *Conn

	mu    sync.Mutex
	track webrtc.TrackLocal
}

var _ core.TrackSender = (*Sender)(nil)

func (s *Sender) ReplaceTrack(track webrtc.TrackLocal) error {
	if s.conn.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return errClosed
	}
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	return nil
}

func (s *Sender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *Sender) Conn() *Conn { return s.conn }
