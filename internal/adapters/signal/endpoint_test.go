package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/app/media"
	"github.com/dkeye/callroom/internal/app/negotiation"
	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/core/coretest"
	"github.com/dkeye/callroom/internal/domain"
)

func TestEndpoints_Connect_Over_WebSocket(t *testing.T) {
	req := require.New(t)
	s := newServer(t)
	network := coretest.NewNetwork()

	join := func(pid domain.ParticipantID) *orch.Endpoint {
		client := s.dial(t, pid)
		e := orch.NewEndpoint(orch.Config{
			Room:        room,
			Self:        pid,
			Constraints: media.Constraints{Audio: true},
		}, client, network.NewConnection, media.NewManager(media.NewStaticDevices(string(pid))))
		req.NoError(e.Join(context.Background()))
		t.Cleanup(func() { _ = e.Leave() })
		return e
	}

	alice := join("alice")
	bob := join("bob")

	req.Eventually(func() bool {
		return alice.PeerStates()["bob"] == negotiation.Connected &&
			bob.PeerStates()["alice"] == negotiation.Connected
	}, 5*time.Second, 10*time.Millisecond)

	// And chat flows once the channel is open
	got := make(chan domain.ChatMessage, 1)
	alice.OnMessage(func(m domain.ChatMessage) { got <- m })
	req.Eventually(func() bool { return bob.SendMessage("over ws") == 1 }, 5*time.Second, 10*time.Millisecond)
	select {
	case m := <-got:
		req.Equal("over ws", m.Content)
		req.Equal(domain.ParticipantID("bob"), m.SenderID)
	case <-time.After(waitFor):
		t.Fatal("chat not delivered")
	}
}
