// Package negotiation drives the offer/answer/ICE exchange of one peer pair.
package negotiation

import (
	"github.com/dkeye/callroom/internal/domain"
)

type State int32

const (
	Idle State = iota
	Offering
	AwaitingAnswer
	Answering
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case AwaitingAnswer:
		return "awaiting-answer"
	case Answering:
		return "answering"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PairKey identifies a session between two participants of a room.
// A and B are ordered so both sides derive the same key.
type PairKey struct {
	Room domain.RoomID
	A, B domain.ParticipantID
}

func NewPairKey(room domain.RoomID, x, y domain.ParticipantID) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{Room: room, A: x, B: y}
}

// Other returns the participant of the pair that is not pid.
func (k PairKey) Other(pid domain.ParticipantID) domain.ParticipantID {
	if k.A == pid {
		return k.B
	}
	return k.A
}

func (k PairKey) Has(pid domain.ParticipantID) bool {
	return k.A == pid || k.B == pid
}

func (k PairKey) String() string {
	return string(k.Room) + "/" + string(k.A) + "<>" + string(k.B)
}
