package signal

import (
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens when a member's socket cannot keep up.
type Policy interface {
	OnBackpressure(pid domain.ParticipantID, msg core.Message) BackpressureAction
}

// SimplePolicy drops media state updates, which a later one supersedes, and
// kicks the member for anything else since a lost negotiation step breaks the pair.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(_ domain.ParticipantID, msg core.Message) BackpressureAction {
	if msg.Type == core.MsgMediaState {
		return DropFrame
	}
	return KickMember
}
