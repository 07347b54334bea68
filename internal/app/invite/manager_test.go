package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/callroom/internal/adapters/storage"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/mocks"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestManager_Create_Stores_And_Delivers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	joiner := mocks.NewMockRoomJoiner(ctrl)
	deliverer := mocks.NewMockInvitationDeliverer(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	store := storage.NewMemoryStore()
	m := NewManager(store, joiner, Config{TTL: DefaultTTL}, WithDeliverer(deliverer), WithNotifier(notifier))

	// Given the recipient is online and has a mailbox
	var delivered domain.Invitation
	deliverer.EXPECT().DeliverInvitation(gomock.Any()).DoAndReturn(func(inv domain.Invitation) int {
		delivered = inv
		return 1
	}).Times(1)
	notifier.EXPECT().NotifyInvitation(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	// When alice invites bob
	inv, err := m.Create(ctx, "room", "alice", "bob")
	req.NoError(err)
	m.Wait()

	// Then a pending invitation is stored and pushed to bob
	req.Equal(domain.InvitationPending, inv.Status)
	req.Equal(inv, delivered)
	req.NotEmpty(inv.ID)
	stored, err := store.Get(ctx, inv.ID)
	req.NoError(err)
	req.Equal(inv.ID, stored.ID)

	pending, err := m.Pending(ctx, "bob")
	req.NoError(err)
	req.Len(pending, 1)
}

func TestManager_Create_Validates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := NewManager(mocks.NewMockInvitationStore(ctrl), mocks.NewMockRoomJoiner(ctrl), Config{})
	ctx := context.Background()

	_, err := m.Create(ctx, "room", "alice", "alice")
	req.ErrorIs(err, domain.ErrSelfInvitation)
	_, err = m.Create(ctx, "", "alice", "bob")
	req.ErrorIs(err, domain.ErrRoomIDEmpty)
	_, err = m.Create(ctx, "room", "alice", "")
	req.ErrorIs(err, domain.ErrParticipantIDEmpty)
}

func TestManager_Create_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockInvitationStore(ctrl)
	deliverer := mocks.NewMockInvitationDeliverer(ctrl)
	m := NewManager(store, mocks.NewMockRoomJoiner(ctrl), Config{}, WithDeliverer(deliverer))
	boom := errors.New("disk full")

	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(boom)
	deliverer.EXPECT().DeliverInvitation(gomock.Any()).Times(0)

	_, err := m.Create(context.Background(), "room", "alice", "bob")
	m.Wait()

	req.ErrorIs(err, boom)
}

func TestManager_Create_Is_Rate_Limited_Per_Sender(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	c := &clock{now: time.Unix(0, 0)}
	m := NewManager(storage.NewMemoryStore(), mocks.NewMockRoomJoiner(ctrl),
		Config{RateLimit: 2, RateWindow: time.Minute}, WithClock(c.Now))
	ctx := context.Background()

	_, err := m.Create(ctx, "room", "alice", "bob")
	req.NoError(err)
	_, err = m.Create(ctx, "room", "alice", "carol")
	req.NoError(err)

	// When alice sends a third invitation inside the window
	_, err = m.Create(ctx, "room", "alice", "dave")
	req.ErrorIs(err, domain.ErrRateLimited)

	// Then other senders are unaffected
	_, err = m.Create(ctx, "room", "bob", "dave")
	req.NoError(err)

	// And alice can invite again once the window passed
	c.now = c.now.Add(2 * time.Minute)
	_, err = m.Create(ctx, "room", "alice", "dave")
	req.NoError(err)
}

func TestManager_Accept_Joins_Room_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	joiner := mocks.NewMockRoomJoiner(ctrl)
	m := NewManager(storage.NewMemoryStore(), joiner, Config{TTL: DefaultTTL})

	inv, err := m.Create(ctx, "room", "alice", "bob")
	req.NoError(err)

	// Given joining succeeds exactly once
	joiner.EXPECT().JoinRoom(domain.RoomID("room"), domain.ParticipantID("bob")).Return(nil).Times(1)

	// When bob accepts
	accepted, err := m.Accept(ctx, inv.ID)
	req.NoError(err)
	req.NotNil(accepted)
	req.Equal(domain.InvitationAccepted, accepted.Status)

	// Then accepting or declining again is a no-op
	again, err := m.Accept(ctx, inv.ID)
	req.NoError(err)
	req.Nil(again)
	declined, err := m.Decline(ctx, inv.ID)
	req.NoError(err)
	req.Nil(declined)

	stored, err := m.Get(ctx, inv.ID)
	req.NoError(err)
	req.Equal(domain.InvitationAccepted, stored.Status)

	pending, err := m.Pending(ctx, "bob")
	req.NoError(err)
	req.Empty(pending)
}

func TestManager_Decline_Is_One_Shot(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	joiner := mocks.NewMockRoomJoiner(ctrl)
	m := NewManager(storage.NewMemoryStore(), joiner, Config{})

	inv, err := m.Create(ctx, "room", "alice", "bob")
	req.NoError(err)

	joiner.EXPECT().JoinRoom(gomock.Any(), gomock.Any()).Times(0)

	declined, err := m.Decline(ctx, inv.ID)
	req.NoError(err)
	req.Equal(domain.InvitationDeclined, declined.Status)

	accepted, err := m.Accept(ctx, inv.ID)
	req.NoError(err)
	req.Nil(accepted)
}

func TestManager_Accept_Unknown_Invitation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := NewManager(storage.NewMemoryStore(), mocks.NewMockRoomJoiner(ctrl), Config{})

	_, err := m.Accept(context.Background(), "missing")

	req.ErrorIs(err, domain.ErrInvitationNotFound)
}

func TestManager_Expired_Invitations_Are_Not_Pending(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	c := &clock{now: time.Unix(0, 0)}
	joiner := mocks.NewMockRoomJoiner(ctrl)
	m := NewManager(storage.NewMemoryStore(), joiner, Config{TTL: time.Hour}, WithClock(c.Now))

	old, err := m.Create(ctx, "room", "alice", "bob")
	req.NoError(err)
	c.now = c.now.Add(30 * time.Minute)
	fresh, err := m.Create(ctx, "other", "carol", "bob")
	req.NoError(err)

	// When the first invitation outlives its TTL
	c.now = c.now.Add(45 * time.Minute)

	// Then only the fresh one is pending and the old one cannot be accepted
	pending, err := m.Pending(ctx, "bob")
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal(fresh.ID, pending[0].ID)

	joiner.EXPECT().JoinRoom(gomock.Any(), gomock.Any()).Times(0)
	accepted, err := m.Accept(ctx, old.ID)
	req.NoError(err)
	req.Nil(accepted)
}

func TestManager_Pending_Is_Oldest_First(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := mocks.NewMockInvitationStore(ctrl)
	m := NewManager(store, mocks.NewMockRoomJoiner(ctrl), Config{})

	t0 := time.Unix(100, 0)
	store.EXPECT().ListByRecipient(gomock.Any(), domain.ParticipantID("bob")).Return([]domain.Invitation{
		{ID: "2", To: "bob", CreatedAt: t0.Add(time.Second), Status: domain.InvitationPending},
		{ID: "x", To: "bob", CreatedAt: t0, Status: domain.InvitationDeclined},
		{ID: "1", To: "bob", CreatedAt: t0, Status: domain.InvitationPending},
	}, nil)

	pending, err := m.Pending(ctx, "bob")

	req.NoError(err)
	req.Len(pending, 2)
	req.Equal(domain.InvitationID("1"), pending[0].ID)
	req.Equal(domain.InvitationID("2"), pending[1].ID)
}

func TestJoinLink(t *testing.T) {
	req := require.New(t)

	link, err := JoinLink("https://call.example.com/app", domain.Invitation{ID: "abc", RoomID: "team standup"})

	req.NoError(err)
	req.Equal("https://call.example.com/app/invite/abc?room=team+standup", link)
}
