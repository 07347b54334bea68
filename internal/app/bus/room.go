package bus

import (
	"slices"
	"time"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type bufferedSDP struct {
	msg core.Message
	at  time.Time
	// candidates sent by the same sender after the offer, kept so a late
	// joiner gets them right after the redelivered offer.
	candidates []core.Message
}

// room keeps members in join order. Guarded by RoomRegistry.mu.
type room struct {
	id      domain.RoomID
	members []*domain.Participant
	offer   *bufferedSDP
	answer  *bufferedSDP
}

func newRoom(id domain.RoomID) *room {
	return &room{id: id}
}

func (r *room) index(pid domain.ParticipantID) int {
	return slices.IndexFunc(r.members, func(p *domain.Participant) bool { return p.ID == pid })
}

func (r *room) has(pid domain.ParticipantID) bool { return r.index(pid) >= 0 }

func (r *room) member(pid domain.ParticipantID) *domain.Participant {
	if i := r.index(pid); i >= 0 {
		return r.members[i]
	}
	return nil
}

func (r *room) add(p domain.Participant) {
	if len(r.members) == 0 {
		p.Role = domain.RoleHost
	} else {
		p.Role = domain.RoleGuest
	}
	r.members = append(r.members, &p)
}

// remove drops pid and promotes the earliest remaining member when the host leaves.
func (r *room) remove(pid domain.ParticipantID) bool {
	i := r.index(pid)
	if i < 0 {
		return false
	}
	wasHost := r.members[i].Role == domain.RoleHost
	r.members = slices.Delete(r.members, i, i+1)
	if wasHost && len(r.members) > 0 {
		r.members[0].Role = domain.RoleHost
	}
	if r.offer != nil && r.offer.msg.UserID == pid {
		r.offer = nil
	}
	if r.answer != nil && r.answer.msg.UserID == pid {
		r.answer = nil
	}
	return true
}

func (r *room) ids() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p.ID)
	}
	return out
}
