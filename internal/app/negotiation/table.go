package negotiation

import (
	"fmt"
	"sync"

	"github.com/dkeye/callroom/internal/domain"
)

// Table holds at most one live session per pair. Closed sessions are
// replaced on the next GetOrCreate.
type Table struct {
	mu       sync.RWMutex
	sessions map[PairKey]*Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[PairKey]*Session)}
}

// Get returns the live session for key.
func (t *Table) Get(key PairKey) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[key]
	if !ok || s.State() == Closed {
		return nil, false
	}
	return s, true
}

// GetOrCreate returns the live session for key, building one with create when
// there is none. The bool reports whether the session is new.
func (t *Table) GetOrCreate(key PairKey, create func() (*Session, error)) (*Session, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[key]; ok && s.State() != Closed {
		return s, false, nil
	}
	s, err := create()
	if err != nil {
		return nil, false, fmt.Errorf("create session %s: %w", key, err)
	}
	t.sessions[key] = s
	return s, true, nil
}

// Remove closes and forgets the session for key.
func (t *Table) Remove(key PairKey) {
	t.mu.Lock()
	s, ok := t.sessions[key]
	delete(t.sessions, key)
	t.mu.Unlock()
	if ok {
		s.Close()
	}
}

// ClosePeer closes every session of room that involves pid.
func (t *Table) ClosePeer(room domain.RoomID, pid domain.ParticipantID) int {
	return t.closeWhere(func(k PairKey) bool { return k.Room == room && k.Has(pid) })
}

// CloseAll closes every session of room.
func (t *Table) CloseAll(room domain.RoomID) int {
	return t.closeWhere(func(k PairKey) bool { return k.Room == room })
}

func (t *Table) closeWhere(match func(PairKey) bool) int {
	t.mu.Lock()
	var victims []*Session
	for k, s := range t.sessions {
		if match(k) {
			victims = append(victims, s)
			delete(t.sessions, k)
		}
	}
	t.mu.Unlock()

	for _, s := range victims {
		s.Close()
	}
	return len(victims)
}

// Sessions lists the live sessions of room.
func (t *Table) Sessions(room domain.RoomID) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Session
	for k, s := range t.sessions {
		if k.Room == room && s.State() != Closed {
			out = append(out, s)
		}
	}
	return out
}

// Live counts sessions that are not closed.
func (t *Table) Live() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.State() != Closed {
			n++
		}
	}
	return n
}
