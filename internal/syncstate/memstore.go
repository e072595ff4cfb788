package syncstate

import (
	"context"
	"sync"
	"time"

	"htngsync/internal/model"
)

// MemStore is an in-process Store implementation for tests and for running
// the dispatch plumbing without a database.
type MemStore struct {
	mu    sync.Mutex
	rows  map[string]*model.SyncStatus
	locks map[string]*sync.Mutex
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: map[string]*model.SyncStatus{}, locks: map[string]*sync.Mutex{}}
}

func (s *MemStore) Get(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string) (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[Key(propertyID, kind, entityType, entityID)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *MemStore) Upsert(ctx context.Context, row *model.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.rows[Key(row.PropertyID, row.Kind, row.EntityType, row.EntityID)] = &cp
	return nil
}

func (s *MemStore) rowLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// WithLock serializes mutations to a single row via a per-key mutex held for
// the entire read-modify-write; concurrent calls on distinct keys proceed
// independently.
func (s *MemStore) WithLock(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string, fn func(row *model.SyncStatus) error) error {
	key := Key(propertyID, kind, entityType, entityID)
	lock := s.rowLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	row, ok := s.rows[key]
	var current model.SyncStatus
	if ok {
		current = *row
	} else {
		current = model.SyncStatus{
			PropertyID: propertyID,
			Kind:       kind,
			EntityType: entityType,
			EntityID:   entityID,
			State:      model.SyncStatePending,
			RetryCap:   3,
			AutoRetry:  true,
		}
	}
	s.mu.Unlock()

	if err := fn(&current); err != nil {
		return err
	}

	s.mu.Lock()
	s.rows[key] = &current
	s.mu.Unlock()
	return nil
}

// ListDue mirrors SQLStore.ListDue for tests and dry-run mode.
func (s *MemStore) ListDue(ctx context.Context, now time.Time) ([]*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*model.SyncStatus
	for _, row := range s.rows {
		if !row.AutoRetry {
			continue
		}
		switch row.State {
		case model.SyncStatePending, model.SyncStateRunning, model.SyncStateFailed, model.SyncStateError:
		default:
			continue
		}
		if row.NextRetryAt.IsZero() || !row.NextRetryAt.After(now) {
			cp := *row
			due = append(due, &cp)
		}
	}
	return due, nil
}
