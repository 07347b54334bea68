package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

func stores(t *testing.T) map[string]core.InvitationStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]core.InvitationStore{
		"memory": NewMemoryStore(),
		"badger": NewBadgerStore(db),
	}
}

func invitation(id, to string, at time.Time) domain.Invitation {
	return domain.Invitation{
		ID:        domain.InvitationID(id),
		RoomID:    "room",
		From:      "host",
		To:        domain.ParticipantID(to),
		CreatedAt: at,
		Status:    domain.InvitationPending,
	}
}

func TestStore_Create_Get_Update(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			inv := invitation("i1", "bob", time.Unix(100, 0).UTC())

			req.NoError(store.Create(ctx, inv))
			req.ErrorIs(store.Create(ctx, inv), ErrDuplicate)

			got, err := store.Get(ctx, "i1")
			req.NoError(err)
			req.Equal(inv.ID, got.ID)
			req.Equal(inv.To, got.To)
			req.True(inv.CreatedAt.Equal(got.CreatedAt))
			req.Equal(domain.InvitationPending, got.Status)

			req.NoError(store.UpdateStatus(ctx, "i1", domain.InvitationAccepted))
			got, err = store.Get(ctx, "i1")
			req.NoError(err)
			req.Equal(domain.InvitationAccepted, got.Status)
		})
	}
}

func TestStore_Missing_Invitation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			_, err := store.Get(ctx, "nope")
			req.ErrorIs(err, domain.ErrInvitationNotFound)
			req.ErrorIs(store.UpdateStatus(ctx, "nope", domain.InvitationDeclined), domain.ErrInvitationNotFound)
		})
	}
}

func TestStore_ListByRecipient(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			base := time.Unix(1000, 0).UTC()

			req.NoError(store.Create(ctx, invitation("late", "bob", base.Add(time.Minute))))
			req.NoError(store.Create(ctx, invitation("early", "bob", base)))
			req.NoError(store.Create(ctx, invitation("other", "carol", base)))

			list, err := store.ListByRecipient(ctx, "bob")
			req.NoError(err)
			req.Len(list, 2)
			ids := []domain.InvitationID{list[0].ID, list[1].ID}
			req.ElementsMatch([]domain.InvitationID{"early", "late"}, ids)

			none, err := store.ListByRecipient(ctx, "dave")
			req.NoError(err)
			req.Empty(none)
		})
	}
}

func TestBadgerStore_Lists_In_Creation_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := OpenBadger("")
	req.NoError(err)
	defer store.Close()
	base := time.Unix(1000, 0).UTC()

	req.NoError(store.Create(ctx, invitation("b", "bob", base.Add(2*time.Second))))
	req.NoError(store.Create(ctx, invitation("a", "bob", base)))

	list, err := store.ListByRecipient(ctx, "bob")
	req.NoError(err)
	req.Equal(domain.InvitationID("a"), list[0].ID)
	req.Equal(domain.InvitationID("b"), list[1].ID)
}
