package negotiation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/callroom/internal/core/coretest"
	"github.com/dkeye/callroom/internal/domain"
)

func roomID(s string) domain.RoomID    { return domain.RoomID(s) }
func pid(s string) domain.ParticipantID { return domain.ParticipantID(s) }

func TestPairKey_Is_Symmetric(t *testing.T) {
	req := require.New(t)

	k1 := NewPairKey("room", "b", "a")
	k2 := NewPairKey("room", "a", "b")

	req.Equal(k1, k2)
	req.Equal("a", string(k1.A))
	req.Equal("b", string(k1.Other("a")))
	req.True(k1.Has("b"))
	req.False(k1.Has("c"))
}

func TestTable_At_Most_One_Live_Session_Per_Pair(t *testing.T) {
	req := require.New(t)
	net := coretest.NewNetwork()
	table := NewTable()
	key := NewPairKey("room", "a", "b")

	created := 0
	create := func() (*Session, error) {
		created++
		return NewSession(key, "a", net.NewConn(), &recordingOutbox{}, Config{}), nil
	}

	// When the pair is requested twice
	s1, isNew, err := table.GetOrCreate(key, create)
	req.NoError(err)
	req.True(isNew)
	s2, isNew, err := table.GetOrCreate(key, create)
	req.NoError(err)
	req.False(isNew)

	// Then the same session is returned
	req.Same(s1, s2)
	req.Equal(1, created)
	req.Equal(1, table.Live())

	// When the session closes it is replaced on the next request
	s1.Close()
	_, ok := table.Get(key)
	req.False(ok)
	s3, isNew, err := table.GetOrCreate(key, create)
	req.NoError(err)
	req.True(isNew)
	req.NotSame(s1, s3)
	req.Equal(1, table.Live())
}

func TestTable_GetOrCreate_Propagates_Errors(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	boom := errors.New("boom")

	_, _, err := table.GetOrCreate(NewPairKey("room", "a", "b"), func() (*Session, error) { return nil, boom })

	req.ErrorIs(err, boom)
	req.Zero(table.Live())
}

func TestTable_ClosePeer_And_CloseAll(t *testing.T) {
	req := require.New(t)
	net := coretest.NewNetwork()
	table := NewTable()

	add := func(room string, x, y string) *Session {
		key := NewPairKey(roomID(room), pid(x), pid(y))
		s, _, err := table.GetOrCreate(key, func() (*Session, error) {
			return NewSession(key, pid(x), net.NewConn(), &recordingOutbox{}, Config{}), nil
		})
		req.NoError(err)
		return s
	}
	ab := add("r1", "a", "b")
	ac := add("r1", "a", "c")
	bc := add("r1", "b", "c")
	other := add("r2", "a", "b")

	// When c leaves r1
	req.Equal(2, table.ClosePeer("r1", "c"))

	// Then only its pairs are closed
	req.Equal(Closed, ac.State())
	req.Equal(Closed, bc.State())
	req.Equal(Idle, ab.State())
	req.Len(table.Sessions("r1"), 1)

	// When r1 ends entirely
	req.Equal(1, table.CloseAll("r1"))
	req.Equal(Closed, ab.State())
	req.Equal(Idle, other.State())
	req.Equal(1, table.Live())
}
