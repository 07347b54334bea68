package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dkeye/callroom/internal/domain"
)

// BadgerStore keeps invitations in badger:
//
//	inv:id:<id>                      -> json invitation
//	inv:to:<to>:<created-nanos>:<id> -> empty, recipient index in creation order
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a store at path. An empty path keeps everything in memory.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	return NewBadgerStore(db), nil
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func idKey(id domain.InvitationID) []byte {
	return []byte("inv:id:" + string(id))
}

func recipientPrefix(to domain.ParticipantID) []byte {
	return []byte("inv:to:" + string(to) + ":")
}

func recipientKey(inv domain.Invitation) []byte {
	return fmt.Appendf(recipientPrefix(inv.To), "%020d:%s", inv.CreatedAt.UnixNano(), inv.ID)
}

func (s *BadgerStore) Create(_ context.Context, inv domain.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(idKey(inv.ID))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, inv.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(idKey(inv.ID), data); err != nil {
			return err
		}
		return txn.Set(recipientKey(inv), nil)
	})
}

func (s *BadgerStore) Get(_ context.Context, id domain.InvitationID) (domain.Invitation, error) {
	var inv domain.Invitation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		inv, err = getInvitation(txn, id)
		return err
	})
	return inv, err
}

func (s *BadgerStore) UpdateStatus(_ context.Context, id domain.InvitationID, status domain.InvitationStatus) error {
	return s.db.Update(func(txn *badger.Txn) error {
		inv, err := getInvitation(txn, id)
		if err != nil {
			return err
		}
		inv.Status = status
		data, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		return txn.Set(idKey(id), data)
	})
}

// ListByRecipient returns the invitations addressed to `to` in creation order.
func (s *BadgerStore) ListByRecipient(_ context.Context, to domain.ParticipantID) ([]domain.Invitation, error) {
	var out []domain.Invitation
	prefix := recipientPrefix(to)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) <= len(prefix)+21 {
				continue
			}
			inv, err := getInvitation(txn, domain.InvitationID(key[len(prefix)+21:]))
			if errors.Is(err, domain.ErrInvitationNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			// ids containing ':' can share a prefix
			if inv.To == to {
				out = append(out, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list invitations for %s: %w", to, err)
	}
	return out, nil
}

func getInvitation(txn *badger.Txn, id domain.InvitationID) (domain.Invitation, error) {
	var inv domain.Invitation
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return inv, domain.ErrInvitationNotFound
	}
	if err != nil {
		return inv, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &inv)
	})
	return inv, err
}
