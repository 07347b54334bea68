// Package invite implements the invitation workflow: create, deliver,
// accept (which joins the room) and decline.
package invite

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

const DefaultTTL = 24 * time.Hour

type Config struct {
	// TTL after which a pending invitation no longer counts as pending. Zero disables expiry.
	TTL time.Duration
	// RateLimit caps invitations per sender within RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

type Option func(*Manager)

// WithDeliverer pushes new invitations to the recipient's live subscriptions.
func WithDeliverer(d core.InvitationDeliverer) Option {
	return func(m *Manager) { m.deliverer = d }
}

// WithNotifier adds an out-of-band channel such as an email link.
func WithNotifier(n core.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.limiter.now = now
	}
}

type Manager struct {
	store     core.InvitationStore
	joiner    core.RoomJoiner
	deliverer core.InvitationDeliverer
	notifier  core.Notifier
	limiter   *RateLimiter
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger

	// mu serializes status transitions so accept and decline never both win.
	mu       sync.Mutex
	inflight sync.WaitGroup
}

func NewManager(store core.InvitationStore, joiner core.RoomJoiner, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		joiner:  joiner,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("module", "app.invite").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a pending invitation and delivers it in the background.
func (m *Manager) Create(ctx context.Context, roomID domain.RoomID, from, to domain.ParticipantID) (domain.Invitation, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return domain.Invitation{}, err
	}
	if err := errors.Join(domain.ValidateParticipantID(from), domain.ValidateParticipantID(to)); err != nil {
		return domain.Invitation{}, err
	}
	if from == to {
		return domain.Invitation{}, domain.ErrSelfInvitation
	}
	if !m.limiter.Allow(from) {
		m.log.Warn().Str("from", string(from)).Msg("invitation rate limited")
		return domain.Invitation{}, domain.ErrRateLimited
	}

	inv := domain.Invitation{
		ID:        domain.InvitationID(uuid.NewString()),
		RoomID:    roomID,
		From:      from,
		To:        to,
		CreatedAt: m.now(),
		Status:    domain.InvitationPending,
	}
	if err := m.store.Create(ctx, inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("store invitation: %w", err)
	}
	m.log.Info().
		Str("id", string(inv.ID)).
		Str("room", string(roomID)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("invitation created")

	m.deliver(context.WithoutCancel(ctx), inv)
	return inv, nil
}

func (m *Manager) deliver(ctx context.Context, inv domain.Invitation) {
	if m.deliverer == nil && m.notifier == nil {
		return
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if m.deliverer != nil {
			n := m.deliverer.DeliverInvitation(inv)
			m.log.Debug().Str("id", string(inv.ID)).Int("subscriptions", n).Msg("invitation delivered")
		}
		if m.notifier != nil {
			if err := m.notifier.NotifyInvitation(ctx, inv); err != nil {
				m.log.Warn().Err(err).Str("id", string(inv.ID)).Msg("invitation notify failed")
			}
		}
	}()
}

// Wait blocks until background deliveries finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Accept turns a pending invitation into accepted and joins the invitee to the
// room. It returns (nil, nil) when the invitation is no longer pending.
func (m *Manager) Accept(ctx context.Context, id domain.InvitationID) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok, err := m.answer(ctx, id, (*domain.Invitation).Accept)
	if err != nil || !ok {
		return nil, err
	}
	if err := m.joiner.JoinRoom(inv.RoomID, inv.To); err != nil {
		return &inv, fmt.Errorf("join room %s: %w", inv.RoomID, err)
	}
	m.log.Info().Str("id", string(id)).Str("room", string(inv.RoomID)).Str("pid", string(inv.To)).Msg("invitation accepted")
	return &inv, nil
}

// Decline turns a pending invitation into declined; (nil, nil) when it is not pending.
func (m *Manager) Decline(ctx context.Context, id domain.InvitationID) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok, err := m.answer(ctx, id, (*domain.Invitation).Decline)
	if err != nil || !ok {
		return nil, err
	}
	m.log.Info().Str("id", string(id)).Msg("invitation declined")
	return &inv, nil
}

// answer applies a one-shot transition. Must hold m.mu.
func (m *Manager) answer(ctx context.Context, id domain.InvitationID, transition func(*domain.Invitation) bool) (domain.Invitation, bool, error) {
	inv, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Invitation{}, false, fmt.Errorf("load invitation %s: %w", id, err)
	}
	if inv.Expired(m.now(), m.cfg.TTL) || !transition(&inv) {
		m.log.Debug().Str("id", string(id)).Str("status", string(inv.Status)).Msg("invitation not pending")
		return domain.Invitation{}, false, nil
	}
	if err := m.store.UpdateStatus(ctx, id, inv.Status); err != nil {
		return domain.Invitation{}, false, fmt.Errorf("update invitation %s: %w", id, err)
	}
	return inv, true, nil
}

func (m *Manager) Get(ctx context.Context, id domain.InvitationID) (domain.Invitation, error) {
	return m.store.Get(ctx, id)
}

// Pending lists live invitations addressed to pid, oldest first.
func (m *Manager) Pending(ctx context.Context, pid domain.ParticipantID) ([]domain.Invitation, error) {
	all, err := m.store.ListByRecipient(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	now := m.now()
	out := lo.Filter(all, func(inv domain.Invitation, _ int) bool {
		return inv.Pending() && !inv.Expired(now, m.cfg.TTL)
	})
	slices.SortFunc(out, func(a, b domain.Invitation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
