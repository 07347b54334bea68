package domain

import (
	"time"
)

type InvitationID string

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation asks To to join RoomID on behalf of From.
// Status transitions are one-shot: pending -> accepted | declined.
type Invitation struct {
	ID        InvitationID     `json:"id"`
	RoomID    RoomID           `json:"roomId"`
	From      ParticipantID    `json:"from"`
	To        ParticipantID    `json:"to"`
	CreatedAt time.Time        `json:"createdAt"`
	Status    InvitationStatus `json:"status"`
}

func (i *Invitation) Pending() bool { return i.Status == InvitationPending }

// Expired reports whether a pending invitation outlived ttl. A zero ttl never expires.
func (i *Invitation) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(i.CreatedAt) > ttl
}

// Accept moves a pending invitation to accepted. It returns false, leaving the
// invitation untouched, when it was already answered.
func (i *Invitation) Accept() bool {
	return i.transition(InvitationAccepted)
}

// Decline moves a pending invitation to declined, see Accept.
func (i *Invitation) Decline() bool {
	return i.transition(InvitationDeclined)
}

func (i *Invitation) transition(to InvitationStatus) bool {
	if !i.Pending() {
		return false
	}
	i.Status = to
	return true
}
