// Package storage implements core.InvitationStore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

var ErrDuplicate = errors.New("invitation already exists")

var (
	_ core.InvitationStore = (*MemoryStore)(nil)
	_ core.InvitationStore = (*BadgerStore)(nil)
)

type MemoryStore struct {
	mu          sync.RWMutex
	invitations map[domain.InvitationID]domain.Invitation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{invitations: make(map[domain.InvitationID]domain.Invitation)}
}

func (s *MemoryStore) Create(_ context.Context, inv domain.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, inv.ID)
	}
	s.invitations[inv.ID] = inv
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.InvitationID) (domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[id]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	return inv, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id domain.InvitationID, status domain.InvitationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	inv.Status = status
	s.invitations[id] = inv
	return nil
}

func (s *MemoryStore) ListByRecipient(_ context.Context, to domain.ParticipantID) ([]domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(lo.Values(s.invitations), func(inv domain.Invitation, _ int) bool {
		return inv.To == to
	}), nil
}
