//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=../mocks/mock_store.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/callroom/internal/domain"
)

// InvitationStore is the external invitation persistence.
// Schema ownership stays with the store.
type InvitationStore interface {
	Create(ctx context.Context, inv domain.Invitation) error
	Get(ctx context.Context, id domain.InvitationID) (domain.Invitation, error)
	UpdateStatus(ctx context.Context, id domain.InvitationID, status domain.InvitationStatus) error
	ListByRecipient(ctx context.Context, to domain.ParticipantID) ([]domain.Invitation, error)
}

// TokenIssuer hands out short-lived access tokens for the managed media relay,
// scoped to one room and one identity. The token is opaque to the core.
type TokenIssuer interface {
	Issue(ctx context.Context, roomName string, identity domain.ParticipantID) (string, error)
}

// Notifier delivers invitations out of band (email, push).
type Notifier interface {
	NotifyInvitation(ctx context.Context, inv domain.Invitation) error
}

// RoomJoiner is what accepting an invitation needs from the bus.
type RoomJoiner interface {
	JoinRoom(roomID domain.RoomID, pid domain.ParticipantID) error
}

// InvitationDeliverer pushes an invitation to the recipient's live subscriptions.
type InvitationDeliverer interface {
	DeliverInvitation(inv domain.Invitation) int
}
