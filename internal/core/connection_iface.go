package core

import (
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of a WebRTC peer connection the negotiation,
// media and chat components drive. rtc.Connection wraps pion for it.
type PeerConnection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. Requires a remote description.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddTrack attaches a local track and returns its outbound sender.
	AddTrack(webrtc.TrackLocal) (TrackSender, error)
	RemoveTrack(TrackSender) error
	// CreateDataChannel opens an ordered, reliable channel.
	CreateDataChannel(label string) (DataChannel, error)
	ConnectionState() webrtc.PeerConnectionState
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnDataChannel fires when the remote side announces a channel.
	OnDataChannel(func(DataChannel))
	Close() error
}

// TrackSender is an outbound RTP sender; *webrtc.RTPSender satisfies it.
type TrackSender interface {
	ReplaceTrack(webrtc.TrackLocal) error
	Track() webrtc.TrackLocal
}

// DataChannel is the part of *webrtc.DataChannel the messenger uses.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	SendText(string) error
	OnOpen(func())
	OnClose(func())
	OnMessage(func(webrtc.DataChannelMessage))
	Close() error
}
