// Package resolve orders and deduplicates the matches of one evaluation
// pass into a dispatch list.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// ExecutionChecker answers whether an idempotency tuple already has an
// execution record. The resolver consults it so a re-run of evaluation on
// the same snapshot never schedules a second dispatch; the storage unique
// constraint remains the final guard under races.
type ExecutionChecker interface {
	HasExecution(ctx context.Context, triggerID, snapshotID uuid.UUID, generation int) (bool, error)
}

type Resolver struct {
	store ExecutionChecker
	log   zerolog.Logger
}

func New(store ExecutionChecker, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log.With().Str("component", "resolve").Logger(),
	}
}

// Resolve returns the dispatch list for one pass: deduplicated within the
// batch and against the execution log, ordered by ascending priority with
// trigger ID as the deterministic tiebreak. The skipped count reports
// matches dropped by deduplication.
//
// A store error is systemic and aborts the pass as a single top-level
// error rather than per-trigger failures.
func (r *Resolver) Resolve(ctx context.Context, matches []domain.Match, generation int) (ordered []domain.Match, skipped int, err error) {
	seen := make(map[string]struct{}, len(matches))
	ordered = make([]domain.Match, 0, len(matches))

	for _, m := range matches {
		key := domain.IdempotencyKey(m.Definition.ID, m.SnapshotID, generation)
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}

		exists, err := r.store.HasExecution(ctx, m.Definition.ID, m.SnapshotID, generation)
		if err != nil {
			return nil, 0, fmt.Errorf("check execution log: %w", err)
		}
		if exists {
			r.log.Debug().
				Str("trigger", m.Definition.Type).
				Stringer("snapshot", m.SnapshotID).
				Int("generation", generation).
				Msg("already executed, skipping")
			skipped++
			continue
		}

		ordered = append(ordered, m)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Definition, ordered[j].Definition
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID.String() < b.ID.String()
	})

	return ordered, skipped, nil
}
