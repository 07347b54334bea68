package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/callroom/internal/domain"
)

type MessageType string

const (
	MsgOffer        MessageType = "offer"
	MsgAnswer       MessageType = "answer"
	MsgIceCandidate MessageType = "iceCandidate"
	MsgUserJoined   MessageType = "userJoined"
	MsgUserLeft     MessageType = "userLeft"
	MsgInvitation   MessageType = "invitation"
	MsgMediaState   MessageType = "mediaState"
)

// Message is the signaling wire message exchanged over the bus boundary.
// UserID is always the sender; To narrows delivery to one member.
type Message struct {
	Type       MessageType                `json:"type"`
	RoomID     domain.RoomID              `json:"roomId,omitempty"`
	UserID     domain.ParticipantID       `json:"userId,omitempty"`
	To         domain.ParticipantID       `json:"to,omitempty"`
	Offer      *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer     *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Invitation *domain.Invitation         `json:"invitation,omitempty"`
	Media      *domain.MediaState         `json:"media,omitempty"`
}

// Addressed reports whether pid should see m.
func (m Message) Addressed(pid domain.ParticipantID) bool {
	return m.To == "" || m.To == pid
}

type SendOption func(*Message)

// To targets a negotiation message at a single member instead of the whole room.
func To(pid domain.ParticipantID) SendOption {
	return func(m *Message) { m.To = pid }
}

func ApplySendOptions(m *Message, opts []SendOption) {
	for _, opt := range opts {
		opt(m)
	}
}

// Signaler is the surface an endpoint needs from the signaling bus.
// The in-process bus.RoomRegistry and the websocket client both satisfy it.
type Signaler interface {
	JoinRoom(roomID domain.RoomID, pid domain.ParticipantID) error
	LeaveRoom(roomID domain.RoomID, pid domain.ParticipantID) error
	SendOffer(roomID domain.RoomID, sender domain.ParticipantID, offer webrtc.SessionDescription, opts ...SendOption) error
	SendAnswer(roomID domain.RoomID, sender domain.ParticipantID, answer webrtc.SessionDescription, opts ...SendOption) error
	SendIceCandidate(roomID domain.RoomID, sender domain.ParticipantID, candidate webrtc.ICECandidateInit, opts ...SendOption) error
	UpdateMediaState(roomID domain.RoomID, pid domain.ParticipantID, state domain.MediaState) error
	// Subscribe returns the events addressed to pid and a cancel func.
	// The channel is closed after cancel.
	Subscribe(pid domain.ParticipantID) (<-chan Message, func())
}
