// Package memory provides an in-memory execution log for tests and
// single-process deployments. It enforces the same idempotency and
// status-transition rules as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/dispatch"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*domain.ExecutionRecord
	byTuple map[string]uuid.UUID
}

func New() *Store {
	return &Store{
		byID:    make(map[uuid.UUID]*domain.ExecutionRecord),
		byTuple: make(map[string]uuid.UUID),
	}
}

// InsertExecution claims the idempotency tuple for rec. A second insert
// for the same (trigger, snapshot, generation) returns
// dispatch.ErrDuplicateExecution, mirroring the unique constraint in the
// Postgres store.
func (s *Store) InsertExecution(_ context.Context, rec domain.ExecutionRecord) error {
	key := domain.IdempotencyKey(rec.TriggerID, rec.SnapshotID, rec.Generation)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTuple[key]; ok {
		return dispatch.ErrDuplicateExecution
	}

	stored := rec
	s.byID[rec.ID] = &stored
	s.byTuple[key] = rec.ID
	return nil
}

// FinalizeExecution moves a pending record to a terminal status. Records
// that are already terminal return dispatch.ErrAlreadyFinalized.
func (s *Store) FinalizeExecution(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, outcome domain.Outcome, finalizedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	if rec.Status.Terminal() {
		return dispatch.ErrAlreadyFinalized
	}

	rec.Status = status
	rec.Outcome = &outcome
	at := finalizedAt
	rec.FinalizedAt = &at
	return nil
}

// HasExecution reports whether the idempotency tuple has a record in any
// status, pending included.
func (s *Store) HasExecution(_ context.Context, triggerID, snapshotID uuid.UUID, generation int) (bool, error) {
	key := domain.IdempotencyKey(triggerID, snapshotID, generation)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byTuple[key]
	return ok, nil
}

// ListExecutions returns records for a tenant, newest first. A non-nil
// snapshotID narrows to one snapshot. Offset and limit page the result.
func (s *Store) ListExecutions(_ context.Context, tenantID, snapshotID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	out := make([]domain.ExecutionRecord, 0)
	for _, rec := range s.byID {
		if rec.TenantID != tenantID {
			continue
		}
		if snapshotID != uuid.Nil && rec.SnapshotID != snapshotID {
			continue
		}
		out = append(out, *rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if offset >= len(out) {
		return []domain.ExecutionRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ListByRoot returns every record in a trigger chain, ordered by
// generation then trigger type. Chains are identified by the root
// snapshot.
func (s *Store) ListByRoot(_ context.Context, rootSnapshotID uuid.UUID) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	out := make([]domain.ExecutionRecord, 0)
	for _, rec := range s.byID {
		if rec.RootSnapshotID == rootSnapshotID {
			out = append(out, *rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].TriggerType < out[j].TriggerType
	})
	return out, nil
}

// GetStalePendingExecutions returns pending records executed before the
// cutoff, oldest first, capped at limit.
func (s *Store) GetStalePendingExecutions(_ context.Context, olderThan time.Time, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	out := make([]domain.ExecutionRecord, 0)
	for _, rec := range s.byID {
		if rec.Status == domain.ExecutionStatusPending && rec.ExecutedAt.Before(olderThan) {
			out = append(out, *rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

var _ dispatch.Store = (*Store)(nil)
