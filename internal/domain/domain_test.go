package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewParticipant(t *testing.T) {
	tests := []struct {
		name string
		id   ParticipantID
		nick string
		err  error
	}{
		{name: "ok", id: "alice", nick: "Alice"},
		{name: "empty id", id: "", nick: "Alice", err: ErrParticipantIDEmpty},
		{name: "long id", id: ParticipantID(strings.Repeat("x", MaxParticipantIDLen+1)), nick: "A", err: ErrParticipantIDTooLong},
		{name: "empty name", id: "alice", nick: "", err: ErrNameEmpty},
		{name: "long name", id: "alice", nick: strings.Repeat("é", MaxNameLen+1), err: ErrNameTooLong},
		{name: "name at limit in runes", id: "alice", nick: strings.Repeat("é", MaxNameLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParticipant(tt.id, tt.nick)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, RoleGuest, p.Role)
			require.Equal(t, tt.nick, p.Name)
		})
	}
}

func TestInvitation_Transitions_Are_One_Shot(t *testing.T) {
	req := require.New(t)
	inv := Invitation{ID: "i1", Status: InvitationPending}

	req.True(inv.Accept())
	req.False(inv.Decline())
	req.False(inv.Accept())
	req.Equal(InvitationAccepted, inv.Status)
}

func TestInvitation_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inv := Invitation{CreatedAt: now.Add(-2 * time.Hour)}

	require.True(t, inv.Expired(now, time.Hour))
	require.False(t, inv.Expired(now, 3*time.Hour))
	require.False(t, inv.Expired(now, 0))
}

func TestMediaState_Derived_Flags(t *testing.T) {
	require.True(t, MediaState{Source: VideoScreen, Video: true}.ScreenSharing())
	require.False(t, MediaState{Source: VideoCamera}.ScreenSharing())
	require.True(t, MediaState{Source: VideoCamera}.HasVideo())
	require.False(t, MediaState{Source: VideoNone}.HasVideo())
	require.False(t, MediaState{}.HasVideo())
}

func TestError_Classes(t *testing.T) {
	wrapped := fmt.Errorf("offer to bob: %w", ErrStaleMessage)

	require.True(t, Silent(wrapped))
	require.True(t, Silent(ErrInvalidTransition))
	require.False(t, Silent(ErrNegotiationFailure))

	require.True(t, Retriable(fmt.Errorf("camera: %w", ErrPermissionDenied)))
	require.True(t, Retriable(ErrDeviceUnavailable))
	require.True(t, Retriable(ErrNegotiationFailure))
	require.False(t, Retriable(ErrStaleMessage))
	require.False(t, Retriable(errors.New("boom")))
}

func TestNewChatMessage(t *testing.T) {
	at := time.Now()
	a := NewChatMessage("alice", "hi", at)
	b := NewChatMessage("alice", "hi", at)

	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, ParticipantID("alice"), a.SenderID)
	require.Equal(t, at, a.Timestamp)
}
