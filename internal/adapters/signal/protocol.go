package signal

import (
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// Control message types sent by clients. Negotiation traffic uses the
// core.Message types unchanged.
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeInvite  = "invite"
	TypeAccept  = "accept"
	TypeDecline = "decline"
	TypePending = "pending"
	TypePing    = "ping"
	TypeWhoAmI  = "whoami"
)

// Reply types sent by the server.
const (
	TypeJoined   = "joined"
	TypeLeft     = "left"
	TypeInvited  = "invited"
	TypeAccepted = "accepted"
	TypeDeclined = "declined"
	TypePong     = "pong"
	TypeError    = "error"
)

// Control is a client request. Ref is echoed in the reply.
type Control struct {
	Type string               `json:"type"`
	Ref  string               `json:"ref,omitempty"`
	Room domain.RoomID        `json:"room,omitempty"`
	Name string               `json:"name,omitempty"`
	To   domain.ParticipantID `json:"to,omitempty"`
	ID   domain.InvitationID  `json:"id,omitempty"`
}

type joinPayload struct {
	Room string `validate:"required,max=128"`
	Name string `validate:"omitempty,max=36"`
}

type invitePayload struct {
	Room string `validate:"required,max=128"`
	To   string `validate:"required,max=64"`
}

type answerPayload struct {
	ID string `validate:"required,max=64"`
}

// Reply is the server's answer to a Control.
type Reply struct {
	Type        string               `json:"type"`
	Ref         string               `json:"ref,omitempty"`
	Op          string               `json:"op,omitempty"`
	Error       string               `json:"error,omitempty"`
	ID          domain.ParticipantID `json:"id,omitempty"`
	Room        domain.RoomID        `json:"room,omitempty"`
	Rooms       []domain.RoomID      `json:"rooms,omitempty"`
	Members     []domain.Participant `json:"members,omitempty"`
	Invitation  *domain.Invitation   `json:"invitation,omitempty"`
	Invitations []domain.Invitation  `json:"invitations,omitempty"`
}

func isNegotiation(t string) bool {
	switch core.MessageType(t) {
	case core.MsgOffer, core.MsgAnswer, core.MsgIceCandidate, core.MsgMediaState:
		return true
	}
	return false
}

func isReply(t string) bool {
	switch t {
	case TypeJoined, TypeLeft, TypeInvited, TypeAccepted, TypeDeclined, TypePending, TypePong, TypeWhoAmI, TypeError:
		return true
	}
	return false
}
