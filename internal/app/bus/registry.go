// Package bus is the signaling and room-membership bus.
//
// A RoomRegistry is a plain value: tests and processes create as many
// isolated instances as they need. It is the only writer of room membership.
package bus

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

// Compile-time interface checks.
var (
	_ core.Signaler            = (*RoomRegistry)(nil)
	_ core.RoomJoiner          = (*RoomRegistry)(nil)
	_ core.InvitationDeliverer = (*RoomRegistry)(nil)
)

const DefaultRedeliveryDelay = time.Second

type redeliveryKey struct {
	room   domain.RoomID
	joiner domain.ParticipantID
}

// redelivery holds a buffered offer for a late joiner. Messages from the
// same sender to the joiner are held back until the offer went out, so the
// joiner never sees candidates before the offer they belong to.
type redelivery struct {
	sender     domain.ParticipantID
	offer      core.Message
	candidates []core.Message
	held       []core.Message
	timer      *time.Timer
}

type RoomRegistry struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomID]*room
	subs         map[domain.ParticipantID]map[uint64]*Mailbox
	redeliveries map[redeliveryKey]*redelivery
	nextSub      uint64
	closed       bool

	redeliveryDelay time.Duration
	offerTTL        time.Duration
	now             func() time.Time
	log             zerolog.Logger
}

type Option func(*RoomRegistry)

// WithRedeliveryDelay sets how long a late joiner waits for the buffered offer.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(r *RoomRegistry) { r.redeliveryDelay = d }
}

// WithOfferTTL makes buffered offers older than d unfit for redelivery. Zero keeps them forever.
func WithOfferTTL(d time.Duration) Option {
	return func(r *RoomRegistry) { r.offerTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *RoomRegistry) { r.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *RoomRegistry) { r.log = l }
}

func New(opts ...Option) *RoomRegistry {
	r := &RoomRegistry{
		rooms:           make(map[domain.RoomID]*room),
		subs:            make(map[domain.ParticipantID]map[uint64]*Mailbox),
		redeliveries:    make(map[redeliveryKey]*redelivery),
		redeliveryDelay: DefaultRedeliveryDelay,
		now:             time.Now,
		log:             log.With().Str("module", "app.bus").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a listener for everything addressed to pid: events of
// rooms pid is a member of and invitations sent to pid.
func (r *RoomRegistry) Subscribe(pid domain.ParticipantID) (<-chan core.Message, func()) {
	box := NewMailbox()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		box.Close()
		return box.Out(), func() {}
	}
	r.nextSub++
	id := r.nextSub
	if r.subs[pid] == nil {
		r.subs[pid] = make(map[uint64]*Mailbox)
	}
	r.subs[pid][id] = box
	r.mu.Unlock()

	r.log.Debug().Str("pid", string(pid)).Uint64("sub", id).Msg("subscribed")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			if boxes, ok := r.subs[pid]; ok {
				delete(boxes, id)
				if len(boxes) == 0 {
					delete(r.subs, pid)
				}
			}
			r.mu.Unlock()
			box.Close()
			r.log.Debug().Str("pid", string(pid)).Uint64("sub", id).Msg("unsubscribed")
		})
	}
	return box.Out(), cancel
}

func (r *RoomRegistry) JoinRoom(roomID domain.RoomID, pid domain.ParticipantID) error {
	return r.JoinRoomAs(roomID, domain.Participant{ID: pid})
}

// JoinRoomAs adds p to the room if absent. The first member of a room is its host.
func (r *RoomRegistry) JoinRoomAs(roomID domain.RoomID, p domain.Participant) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if err := domain.ValidateParticipantID(p.ID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID)
		r.rooms[roomID] = rm
		r.log.Info().Str("room", string(roomID)).Msg("room created")
	}
	if rm.has(p.ID) {
		return nil
	}
	rm.add(p)
	r.log.Info().Str("room", string(roomID)).Str("pid", string(p.ID)).Int("members", len(rm.members)).Msg("member joined")

	joined := core.Message{Type: core.MsgUserJoined, RoomID: roomID, UserID: p.ID}
	for _, m := range rm.members {
		if m.ID != p.ID {
			r.enqueue(m.ID, joined)
		}
	}

	if rm.offer != nil {
		r.scheduleRedelivery(rm, p.ID)
	}
	return nil
}

// scheduleRedelivery hands the buffered offer to a late joiner after the
// configured delay. Must hold r.mu.
func (r *RoomRegistry) scheduleRedelivery(rm *room, joiner domain.ParticipantID) {
	buf := rm.offer
	if buf.msg.UserID == joiner || !buf.msg.Addressed(joiner) {
		return
	}
	if r.offerTTL > 0 && r.now().Sub(buf.at) > r.offerTTL {
		r.log.Debug().Str("room", string(rm.id)).Str("sender", string(buf.msg.UserID)).Msg("buffered offer expired")
		rm.offer = nil
		return
	}

	offer := buf.msg
	offer.To = joiner
	rd := &redelivery{
		sender:     buf.msg.UserID,
		offer:      offer,
		candidates: retarget(buf.candidates, joiner),
	}
	key := redeliveryKey{room: rm.id, joiner: joiner}
	if old, ok := r.redeliveries[key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	if r.redeliveryDelay <= 0 {
		r.flushRedelivery(rd, joiner)
		return
	}
	r.redeliveries[key] = rd
	rd.timer = time.AfterFunc(r.redeliveryDelay, func() { r.redeliver(key, rd) })
}

func (r *RoomRegistry) redeliver(key redeliveryKey, rd *redelivery) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.redeliveries[key]; !ok || cur != rd {
		return
	}
	delete(r.redeliveries, key)
	rm, ok := r.rooms[key.room]
	if !ok || !rm.has(key.joiner) || !rm.has(rd.sender) {
		return
	}
	r.log.Info().Str("room", string(key.room)).Str("pid", string(key.joiner)).Str("sender", string(rd.sender)).Msg("redelivering buffered offer")
	r.flushRedelivery(rd, key.joiner)
}

// Must hold r.mu.
func (r *RoomRegistry) flushRedelivery(rd *redelivery, joiner domain.ParticipantID) {
	r.enqueue(joiner, rd.offer)
	for _, m := range rd.candidates {
		r.enqueue(joiner, m)
	}
	for _, m := range rd.held {
		r.enqueue(joiner, m)
	}
}

func (r *RoomRegistry) LeaveRoom(roomID domain.RoomID, pid domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok || !rm.has(pid) {
		return nil
	}
	rm.remove(pid)
	r.dropRedeliveries(roomID, pid)

	left := core.Message{Type: core.MsgUserLeft, RoomID: roomID, UserID: pid}
	for _, m := range rm.members {
		r.enqueue(m.ID, left)
	}
	r.log.Info().Str("room", string(roomID)).Str("pid", string(pid)).Int("members", len(rm.members)).Msg("member left")

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		r.log.Info().Str("room", string(roomID)).Msg("room destroyed")
	}
	return nil
}

// Must hold r.mu.
func (r *RoomRegistry) dropRedeliveries(roomID domain.RoomID, pid domain.ParticipantID) {
	for key, rd := range r.redeliveries {
		if key.room != roomID || (key.joiner != pid && rd.sender != pid) {
			continue
		}
		if rd.timer != nil {
			rd.timer.Stop()
		}
		delete(r.redeliveries, key)
	}
}

func (r *RoomRegistry) SendOffer(roomID domain.RoomID, sender domain.ParticipantID, offer webrtc.SessionDescription, opts ...core.SendOption) error {
	msg := core.Message{Type: core.MsgOffer, RoomID: roomID, UserID: sender, Offer: &offer}
	return r.publish(msg, opts)
}

func (r *RoomRegistry) SendAnswer(roomID domain.RoomID, sender domain.ParticipantID, answer webrtc.SessionDescription, opts ...core.SendOption) error {
	msg := core.Message{Type: core.MsgAnswer, RoomID: roomID, UserID: sender, Answer: &answer}
	return r.publish(msg, opts)
}

func (r *RoomRegistry) SendIceCandidate(roomID domain.RoomID, sender domain.ParticipantID, candidate webrtc.ICECandidateInit, opts ...core.SendOption) error {
	msg := core.Message{Type: core.MsgIceCandidate, RoomID: roomID, UserID: sender, Candidate: &candidate}
	return r.publish(msg, opts)
}

// UpdateMediaState stores the member's media snapshot and tells the others.
func (r *RoomRegistry) UpdateMediaState(roomID domain.RoomID, pid domain.ParticipantID, state domain.MediaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrNotMember
	}
	p := rm.member(pid)
	if p == nil {
		return domain.ErrNotMember
	}
	p.Media = state
	r.fanout(rm, core.Message{Type: core.MsgMediaState, RoomID: roomID, UserID: pid, Media: &state})
	return nil
}

// Publish routes a negotiation message built elsewhere (e.g. decoded from a socket).
func (r *RoomRegistry) Publish(msg core.Message) error {
	return r.publish(msg, nil)
}

func (r *RoomRegistry) publish(msg core.Message, opts []core.SendOption) error {
	core.ApplySendOptions(&msg, opts)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[msg.RoomID]
	if !ok || !rm.has(msg.UserID) {
		return domain.ErrNotMember
	}

	switch msg.Type {
	case core.MsgOffer:
		rm.offer = &bufferedSDP{msg: msg, at: r.now()}
	case core.MsgAnswer:
		rm.answer = &bufferedSDP{msg: msg, at: r.now()}
	case core.MsgIceCandidate:
		if rm.offer != nil && rm.offer.msg.UserID == msg.UserID {
			rm.offer.candidates = append(rm.offer.candidates, msg)
		}
	}

	r.fanout(rm, msg)
	return nil
}

// fanout delivers msg to every other addressed member. Must hold r.mu.
func (r *RoomRegistry) fanout(rm *room, msg core.Message) {
	sent := 0
	for _, m := range rm.members {
		if m.ID == msg.UserID || !msg.Addressed(m.ID) {
			continue
		}
		if rd, ok := r.redeliveries[redeliveryKey{room: rm.id, joiner: m.ID}]; ok && rd.sender == msg.UserID {
			rd.held = append(rd.held, msg)
			continue
		}
		r.enqueue(m.ID, msg)
		sent++
	}
	r.log.Debug().Str("room", string(rm.id)).Str("from", string(msg.UserID)).Str("type", string(msg.Type)).Int("sent_to", sent).Msg("fanout")
}

// DeliverInvitation pushes inv to the recipient's live subscriptions and
// reports how many got it. Offline recipients recover it from the store.
func (r *RoomRegistry) DeliverInvitation(inv domain.Invitation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.subs[inv.To])
	r.enqueue(inv.To, core.Message{Type: core.MsgInvitation, RoomID: inv.RoomID, UserID: inv.From, To: inv.To, Invitation: &inv})
	return n
}

// Must hold r.mu.
func (r *RoomRegistry) enqueue(pid domain.ParticipantID, msg core.Message) {
	for _, box := range r.subs[pid] {
		box.Push(msg)
	}
}

// Participants returns the members of roomID in join order.
func (r *RoomRegistry) Participants(roomID domain.RoomID) []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.ids()
}

// Members returns copies of the members of roomID in join order.
func (r *RoomRegistry) Members(roomID domain.RoomID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Map(rm.members, func(p *domain.Participant, _ int) domain.Participant { return *p })
}

// Host returns the earliest member still present.
func (r *RoomRegistry) Host(roomID domain.RoomID) (domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok || len(rm.members) == 0 {
		return "", false
	}
	return rm.members[0].ID, true
}

func (r *RoomRegistry) IsMember(roomID domain.RoomID, pid domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return ok && rm.has(pid)
}

// RoomsOf lists the rooms pid is currently a member of.
func (r *RoomRegistry) RoomsOf(pid domain.ParticipantID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RoomID
	for id, rm := range r.rooms {
		if rm.has(pid) {
			out = append(out, id)
		}
	}
	return out
}

// BufferedOffer returns the latest offer kept for late joiners.
func (r *RoomRegistry) BufferedOffer(roomID domain.RoomID) (core.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok || rm.offer == nil {
		return core.Message{}, false
	}
	return rm.offer.msg, true
}

func (r *RoomRegistry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(rm.members)})
	}
	return out
}

// Close stops pending redeliveries and closes every subscription.
func (r *RoomRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for key, rd := range r.redeliveries {
		if rd.timer != nil {
			rd.timer.Stop()
		}
		delete(r.redeliveries, key)
	}
	for pid, boxes := range r.subs {
		for _, box := range boxes {
			box.Close()
		}
		delete(r.subs, pid)
	}
}

func retarget(msgs []core.Message, to domain.ParticipantID) []core.Message {
	return lo.FilterMap(msgs, func(m core.Message, _ int) (core.Message, bool) {
		if !m.Addressed(to) {
			return core.Message{}, false
		}
		m.To = to
		return m, true
	})
}
