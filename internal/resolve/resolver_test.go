package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// mockChecker records which tuples the resolver asked about.
type mockChecker struct {
	mu       sync.Mutex
	existing map[string]bool
	err      error
	queries  int
}

func newMockChecker() *mockChecker {
	return &mockChecker{existing: make(map[string]bool)}
}

func (c *mockChecker) HasExecution(ctx context.Context, triggerID, snapshotID uuid.UUID, generation int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.err != nil {
		return false, c.err
	}
	return c.existing[domain.IdempotencyKey(triggerID, snapshotID, generation)], nil
}

func (c *mockChecker) markExecuted(triggerID, snapshotID uuid.UUID, generation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.existing[domain.IdempotencyKey(triggerID, snapshotID, generation)] = true
}

func matchWith(id uuid.UUID, typ string, priority int, snapshot uuid.UUID) domain.Match {
	return domain.Match{
		Definition: domain.TriggerDefinition{
			ID:       id,
			Type:     typ,
			Priority: priority,
			Enabled:  true,
		},
		SnapshotID: snapshot,
	}
}

// TestResolve_PriorityOrdering verifies ascending priority with trigger ID
// as the tiebreak, independent of input order.
func TestResolve_PriorityOrdering(t *testing.T) {
	snapshot := uuid.New()
	idLow := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	idHigh := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")

	matches := []domain.Match{
		matchWith(uuid.New(), "later", 5, snapshot),
		matchWith(idHigh, "tie_b", 2, snapshot),
		matchWith(uuid.New(), "first", 1, snapshot),
		matchWith(idLow, "tie_a", 2, snapshot),
	}

	r := New(newMockChecker(), zerolog.Nop())
	ordered, skipped, err := r.Resolve(context.Background(), matches, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}

	wantTypes := []string{"first", "tie_a", "tie_b", "later"}
	if len(ordered) != len(wantTypes) {
		t.Fatalf("ordered = %d entries, want %d", len(ordered), len(wantTypes))
	}
	for i, typ := range wantTypes {
		if ordered[i].Definition.Type != typ {
			t.Errorf("ordered[%d] = %s, want %s", i, ordered[i].Definition.Type, typ)
		}
	}
}

// TestResolve_DedupInBatch verifies at most one dispatch per idempotency
// tuple within a single pass.
func TestResolve_DedupInBatch(t *testing.T) {
	snapshot := uuid.New()
	id := uuid.New()

	matches := []domain.Match{
		matchWith(id, "dup", 1, snapshot),
		matchWith(id, "dup", 1, snapshot),
	}

	ordered, skipped, err := New(newMockChecker(), zerolog.Nop()).Resolve(context.Background(), matches, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ordered) != 1 || skipped != 1 {
		t.Errorf("ordered=%d skipped=%d, want 1/1", len(ordered), skipped)
	}
}

// TestResolve_DedupAgainstLog verifies a tuple already present in the
// execution log is skipped, so re-evaluating a snapshot never
// double-dispatches.
func TestResolve_DedupAgainstLog(t *testing.T) {
	snapshot := uuid.New()
	executed := matchWith(uuid.New(), "already_ran", 1, snapshot)
	fresh := matchWith(uuid.New(), "fresh", 2, snapshot)

	checker := newMockChecker()
	checker.markExecuted(executed.Definition.ID, snapshot, 0)

	ordered, skipped, err := New(checker, zerolog.Nop()).Resolve(
		context.Background(), []domain.Match{executed, fresh}, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ordered) != 1 || ordered[0].Definition.Type != "fresh" {
		t.Errorf("ordered = %v", ordered)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}

	// The same tuple at a later generation is a different key and runs.
	ordered, _, err = New(checker, zerolog.Nop()).Resolve(
		context.Background(), []domain.Match{executed}, 1)
	if err != nil {
		t.Fatalf("Resolve gen 1: %v", err)
	}
	if len(ordered) != 1 {
		t.Error("same trigger at a later generation must not be deduplicated")
	}
}

// TestResolve_StoreErrorAborts verifies a log-store failure aborts the
// whole pass with a single top-level error.
func TestResolve_StoreErrorAborts(t *testing.T) {
	checker := newMockChecker()
	checker.err = errors.New("store unreachable")

	_, _, err := New(checker, zerolog.Nop()).Resolve(
		context.Background(),
		[]domain.Match{matchWith(uuid.New(), "a", 1, uuid.New())}, 0)
	if err == nil {
		t.Fatal("Resolve succeeded, want error")
	}
}

// TestResolve_Deterministic verifies a fixed match set always resolves to
// the same order.
func TestResolve_Deterministic(t *testing.T) {
	snapshot := uuid.New()
	matches := []domain.Match{
		matchWith(uuid.New(), "a", 3, snapshot),
		matchWith(uuid.New(), "b", 1, snapshot),
		matchWith(uuid.New(), "c", 2, snapshot),
		matchWith(uuid.New(), "d", 2, snapshot),
	}

	r := New(newMockChecker(), zerolog.Nop())
	first, _, err := r.Resolve(context.Background(), matches, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for i := 0; i < 20; i++ {
		again, _, err := r.Resolve(context.Background(), matches, 0)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		for j := range first {
			if again[j].Definition.ID != first[j].Definition.ID {
				t.Fatalf("iteration %d: order changed at %d", i, j)
			}
		}
	}
}
