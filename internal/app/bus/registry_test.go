package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const waitFor = 2 * time.Second

func recv(t *testing.T, ch <-chan core.Message) core.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(waitFor):
		t.Fatal("no message delivered")
	}
	return core.Message{}
}

func expectNone(t *testing.T, ch <-chan core.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s from %s", msg.Type, msg.UserID)
	case <-time.After(50 * time.Millisecond):
	}
}

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestRegistry_JoinRoom_Notifies_Other_Members(t *testing.T) {
	req := require.New(t)
	r := New(WithRedeliveryDelay(0))
	t.Cleanup(r.Close)

	aCh, cancelA := r.Subscribe("a")
	defer cancelA()
	bCh, cancelB := r.Subscribe("b")
	defer cancelB()

	// Given a alone in the room
	req.NoError(r.JoinRoom("room", "a"))

	// When b joins
	req.NoError(r.JoinRoom("room", "b"))

	// Then a hears about b, and b hears nothing about itself
	msg := recv(t, aCh)
	req.Equal(core.MsgUserJoined, msg.Type)
	req.Equal(domain.RoomID("room"), msg.RoomID)
	req.Equal(domain.ParticipantID("b"), msg.UserID)
	expectNone(t, bCh)

	req.Equal([]domain.ParticipantID{"a", "b"}, r.Participants("room"))
}

func TestRegistry_JoinRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	aCh, cancel := r.Subscribe("a")
	defer cancel()
	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))
	recv(t, aCh)

	// When b joins twice
	req.NoError(r.JoinRoom("room", "b"))

	// Then membership is unchanged and no second event is emitted
	req.Equal([]domain.ParticipantID{"a", "b"}, r.Participants("room"))
	expectNone(t, aCh)
}

func TestRegistry_JoinRoom_Rejects_Empty_Ids(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	req.ErrorIs(r.JoinRoom("", "a"), domain.ErrRoomIDEmpty)
	req.ErrorIs(r.JoinRoom("room", ""), domain.ErrParticipantIDEmpty)
	req.Empty(r.Rooms())
}

func TestRegistry_First_Joiner_Is_Host_And_Host_Moves_On_Leave(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))
	req.NoError(r.JoinRoom("room", "c"))

	host, ok := r.Host("room")
	req.True(ok)
	req.Equal(domain.ParticipantID("a"), host)

	members := r.Members("room")
	req.Equal(domain.RoleHost, members[0].Role)
	req.Equal(domain.RoleGuest, members[1].Role)

	// When the host leaves
	req.NoError(r.LeaveRoom("room", "a"))

	// Then the earliest remaining member is promoted
	host, ok = r.Host("room")
	req.True(ok)
	req.Equal(domain.ParticipantID("b"), host)
	req.Equal(domain.RoleHost, r.Members("room")[0].Role)
}

func TestRegistry_LeaveRoom_Notifies_Remaining_And_Destroys_Empty_Room(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))
	req.NoError(r.SendOffer("room", "a", offer("sdp-a")))
	recv(t, bCh)

	// When a leaves
	req.NoError(r.LeaveRoom("room", "a"))

	// Then b is told and a's buffered offer is gone
	msg := recv(t, bCh)
	req.Equal(core.MsgUserLeft, msg.Type)
	req.Equal(domain.ParticipantID("a"), msg.UserID)
	_, ok := r.BufferedOffer("room")
	req.False(ok)

	// When the last member leaves the room disappears
	req.NoError(r.LeaveRoom("room", "b"))
	req.Empty(r.Rooms())
	req.Nil(r.Participants("room"))

	// And leaving again is a no-op
	req.NoError(r.LeaveRoom("room", "b"))
}

func TestRegistry_Send_Requires_Membership(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	req.NoError(r.JoinRoom("room", "a"))

	req.ErrorIs(r.SendOffer("room", "x", offer("sdp")), domain.ErrNotMember)
	req.ErrorIs(r.SendIceCandidate("nope", "a", candidate("c")), domain.ErrNotMember)
	req.ErrorIs(r.UpdateMediaState("room", "x", domain.MediaState{}), domain.ErrNotMember)
}

func TestRegistry_Targeted_Messages_Reach_Only_The_Target(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	bCh, cancelB := r.Subscribe("b")
	defer cancelB()
	cCh, cancelC := r.Subscribe("c")
	defer cancelC()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))
	req.NoError(r.JoinRoom("room", "c"))
	recv(t, bCh) // c joined

	// When a offers to c only
	req.NoError(r.SendOffer("room", "a", offer("for-c"), core.To("c")))

	// Then only c gets it
	msg := recv(t, cCh)
	req.Equal(core.MsgOffer, msg.Type)
	req.Equal("for-c", msg.Offer.SDP)
	req.Equal(domain.ParticipantID("c"), msg.To)
	expectNone(t, bCh)
}

func TestRegistry_Preserves_Per_Sender_Order(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()
	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))

	// When a sends an offer followed by many candidates
	req.NoError(r.SendOffer("room", "a", offer("sdp")))
	for i := 0; i < 100; i++ {
		req.NoError(r.SendIceCandidate("room", "a", candidate(fmt.Sprint(i))))
	}

	// Then b observes them in send order
	req.Equal(core.MsgOffer, recv(t, bCh).Type)
	for i := 0; i < 100; i++ {
		msg := recv(t, bCh)
		req.Equal(core.MsgIceCandidate, msg.Type)
		req.Equal(fmt.Sprint(i), msg.Candidate.Candidate)
	}
}

func TestRegistry_Late_Joiner_Gets_Buffered_Offer_Then_Candidates(t *testing.T) {
	req := require.New(t)
	r := New(WithRedeliveryDelay(0))
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()

	// Given a offered to the room while alone, then trickled candidates
	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.SendOffer("room", "a", offer("sdp-a")))
	req.NoError(r.SendIceCandidate("room", "a", candidate("c1")))
	req.NoError(r.SendIceCandidate("room", "a", candidate("c2")))

	// When b joins
	req.NoError(r.JoinRoom("room", "b"))

	// Then b receives the offer before the candidates
	msg := recv(t, bCh)
	req.Equal(core.MsgOffer, msg.Type)
	req.Equal("sdp-a", msg.Offer.SDP)
	req.Equal(domain.ParticipantID("a"), msg.UserID)
	req.Equal("c1", recv(t, bCh).Candidate.Candidate)
	req.Equal("c2", recv(t, bCh).Candidate.Candidate)
}

func TestRegistry_Delayed_Redelivery_Holds_Later_Messages(t *testing.T) {
	req := require.New(t)
	r := New(WithRedeliveryDelay(30 * time.Millisecond))
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.SendOffer("room", "a", offer("sdp-a")))
	req.NoError(r.JoinRoom("room", "b"))

	// When a keeps trickling during the redelivery delay
	req.NoError(r.SendIceCandidate("room", "a", candidate("late")))

	// Then b still sees the offer first
	msg := recv(t, bCh)
	req.Equal(core.MsgOffer, msg.Type)
	msg = recv(t, bCh)
	req.Equal(core.MsgIceCandidate, msg.Type)
	req.Equal("late", msg.Candidate.Candidate)
}

func TestRegistry_Redelivery_Skips_Offer_Targeted_Elsewhere(t *testing.T) {
	req := require.New(t)
	r := New(WithRedeliveryDelay(0))
	t.Cleanup(r.Close)

	cCh, cancel := r.Subscribe("c")
	defer cancel()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))
	req.NoError(r.SendOffer("room", "a", offer("for-b"), core.To("b")))

	req.NoError(r.JoinRoom("room", "c"))
	expectNone(t, cCh)
}

func TestRegistry_Expired_Offer_Is_Not_Redelivered(t *testing.T) {
	req := require.New(t)
	now := time.Unix(1000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	r := New(WithRedeliveryDelay(0), WithOfferTTL(time.Minute), WithClock(clock))
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.SendOffer("room", "a", offer("old")))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	req.NoError(r.JoinRoom("room", "b"))
	expectNone(t, bCh)
	_, ok := r.BufferedOffer("room")
	req.False(ok)
}

func TestRegistry_Redelivery_Cancelled_When_Sender_Leaves(t *testing.T) {
	req := require.New(t)
	r := New(WithRedeliveryDelay(40 * time.Millisecond))
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()

	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.SendOffer("room", "a", offer("sdp-a")))
	req.NoError(r.JoinRoom("room", "b"))

	// When a leaves before the delay elapses
	req.NoError(r.LeaveRoom("room", "a"))

	// Then b only sees the leave
	req.Equal(core.MsgUserLeft, recv(t, bCh).Type)
	expectNone(t, bCh)
}

func TestRegistry_UpdateMediaState_Broadcasts_And_Snapshots(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	bCh, cancel := r.Subscribe("b")
	defer cancel()
	req.NoError(r.JoinRoom("room", "a"))
	req.NoError(r.JoinRoom("room", "b"))

	state := domain.MediaState{Mic: true, Video: true, Source: domain.VideoScreen}
	req.NoError(r.UpdateMediaState("room", "a", state))

	msg := recv(t, bCh)
	req.Equal(core.MsgMediaState, msg.Type)
	req.Equal(state, *msg.Media)
	req.Equal(state, r.Members("room")[0].Media)
}

func TestRegistry_DeliverInvitation_Reaches_All_Subscriptions(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	ch1, cancel1 := r.Subscribe("b")
	defer cancel1()
	ch2, cancel2 := r.Subscribe("b")
	defer cancel2()

	inv := domain.Invitation{ID: "inv", RoomID: "room", From: "a", To: "b", Status: domain.InvitationPending}
	req.Equal(2, r.DeliverInvitation(inv))

	for _, ch := range []<-chan core.Message{ch1, ch2} {
		msg := recv(t, ch)
		req.Equal(core.MsgInvitation, msg.Type)
		req.Equal(inv.ID, msg.Invitation.ID)
	}
	req.Zero(r.DeliverInvitation(domain.Invitation{To: "nobody"}))
}

func TestRegistry_Subscribe_Cancel_Closes_Channel(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	ch, cancel := r.Subscribe("a")
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		req.False(ok)
	case <-time.After(waitFor):
		t.Fatal("channel not closed")
	}
}

func TestRegistry_Concurrent_Joins_And_Leaves(t *testing.T) {
	req := require.New(t)
	r := New()
	t.Cleanup(r.Close)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := domain.ParticipantID(fmt.Sprintf("p%d", i))
			assert.NoError(t, r.JoinRoom("room", pid))
			if i%2 == 0 {
				assert.NoError(t, r.LeaveRoom("room", pid))
			}
		}(i)
	}
	wg.Wait()

	// Then membership equals joins minus leaves with no duplicates
	ids := r.Participants("room")
	req.Len(ids, n/2)
	seen := make(map[domain.ParticipantID]bool)
	for _, id := range ids {
		req.False(seen[id])
		seen[id] = true
	}
	host, ok := r.Host("room")
	req.True(ok)
	req.Equal(ids[0], host)
}
