package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/core/coretest"
	"github.com/dkeye/callroom/internal/domain"
)

func TestMessenger_Send_Before_Open_Returns_False(t *testing.T) {
	req := require.New(t)
	m := NewMessenger("a", "b")

	// Given no channel at all
	req.False(m.SendMessage("hello"))
	req.ErrorIs(m.Send("hello"), domain.ErrChannelNotReady)

	// Given a channel that is still connecting
	ch := coretest.NewChannel(Label)
	m.Attach(ch)
	req.False(m.Ready())
	req.False(m.SendMessage("hello"))
	req.Empty(ch.Sent())
}

func TestMessenger_Delivers_Chat_Between_Peers(t *testing.T) {
	req := require.New(t)
	left, right := coretest.NewOpenPair(Label)
	a := NewMessenger("a", "b")
	b := NewMessenger("b", "a")
	fixed := time.UnixMilli(1_700_000_000_000)
	a.now = func() time.Time { return fixed }
	a.Attach(left)
	b.Attach(right)

	var got []domain.ChatMessage
	cancel := b.OnMessage(func(m domain.ChatMessage) { got = append(got, m) })
	defer cancel()

	// When a sends a line
	req.True(a.SendMessage("hi there"))

	// Then b receives it attributed to a with the sender's timestamp
	req.Len(got, 1)
	req.Equal(domain.ParticipantID("a"), got[0].SenderID)
	req.Equal("hi there", got[0].Content)
	req.True(fixed.Equal(got[0].Timestamp))
	req.NotEmpty(got[0].ID)

	// And the wire envelope has the documented shape
	var env map[string]any
	req.NoError(json.Unmarshal([]byte(left.Sent()[0]), &env))
	req.Equal("chat", env["type"])
	req.Equal("hi there", env["content"])
	req.EqualValues(fixed.UnixMilli(), env["timestamp"])
}

func TestMessenger_Ignores_Unknown_And_Malformed_Messages(t *testing.T) {
	req := require.New(t)
	_, right := coretest.NewOpenPair(Label)
	b := NewMessenger("b", "a")
	b.Attach(right)

	calls := 0
	b.OnMessage(func(domain.ChatMessage) { calls++ })

	right.Inject(`{"type":"reaction","emoji":"+1"}`)
	right.Inject(`not json`)
	right.Inject(`{"type":"chat","content":"ok","timestamp":1}`)

	req.Equal(1, calls)
}

func TestMessenger_Handle_Extends_Dispatch(t *testing.T) {
	req := require.New(t)
	_, right := coretest.NewOpenPair(Label)
	b := NewMessenger("b", "a")
	b.Attach(right)

	var sender domain.ParticipantID
	var raw []byte
	b.Handle("typing", func(from domain.ParticipantID, data []byte) {
		sender, raw = from, data
	})

	right.Inject(`{"type":"typing"}`)

	req.Equal(domain.ParticipantID("a"), sender)
	req.JSONEq(`{"type":"typing"}`, string(raw))
}

func TestMessenger_Close_Makes_Send_Fail(t *testing.T) {
	req := require.New(t)
	left, right := coretest.NewOpenPair(Label)
	a := NewMessenger("a", "b")
	b := NewMessenger("b", "a")
	a.Attach(left)
	b.Attach(right)

	b.Close()

	req.Equal("closed", right.ReadyState().String())
	req.False(a.SendMessage("anyone?"))
	req.False(b.Ready())
}

func TestMessenger_Open_Creates_Labelled_Channel(t *testing.T) {
	req := require.New(t)
	conn := coretest.NewNetwork().NewConn()
	m := NewMessenger("a", "b")

	ready := false
	m.OnReady(func() { ready = true })
	req.NoError(m.Open(conn))

	req.False(m.Ready())
	req.False(ready)
}
