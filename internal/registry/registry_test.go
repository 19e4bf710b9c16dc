package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// mockSource serves a swappable definition set and can be made to fail.
type mockSource struct {
	mu    sync.Mutex
	defs  []domain.TriggerDefinition
	err   error
	loads int
}

func (s *mockSource) Load(ctx context.Context) ([]domain.TriggerDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.TriggerDefinition, len(s.defs))
	copy(out, s.defs)
	return out, nil
}

func (s *mockSource) set(defs []domain.TriggerDefinition, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
	s.err = err
}

func def(typ string, tenant uuid.UUID, enabled bool) domain.TriggerDefinition {
	return domain.TriggerDefinition{
		ID:           uuid.New(),
		Type:         typ,
		TenantID:     tenant,
		Enabled:      enabled,
		TargetModule: "lxp",
		Condition:    domain.Condition{Kind: domain.ConditionKeyword, Keywords: []string{"x"}},
	}
}

func newTestRegistry(t *testing.T, source Source) *Registry {
	t.Helper()
	r, err := New(context.Background(), source, time.Minute, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// TestRegistry_TenantShadowing verifies a tenant-specific definition of
// type T replaces the global T for that tenant only; other tenants keep
// the global definition.
func TestRegistry_TenantShadowing(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	global := def("skill_gaps_critical", uuid.Nil, true)
	override := def("skill_gaps_critical", tenantA, true)
	override.Priority = 9

	source := &mockSource{}
	source.set([]domain.TriggerDefinition{global, override}, nil)
	r := newTestRegistry(t, source)

	forA := r.ListActive(tenantA)
	if len(forA) != 1 {
		t.Fatalf("tenant A active = %d, want 1", len(forA))
	}
	if forA[0].ID != override.ID {
		t.Error("tenant A must see its own definition, not the global one")
	}

	forB := r.ListActive(tenantB)
	if len(forB) != 1 || forB[0].ID != global.ID {
		t.Error("tenant B must still see the global definition")
	}

	got, ok := r.Get("skill_gaps_critical", tenantA)
	if !ok || got.ID != override.ID {
		t.Error("Get must apply the same shadowing rule")
	}
	got, ok = r.Get("skill_gaps_critical", tenantB)
	if !ok || got.ID != global.ID {
		t.Error("Get for tenant B must resolve to the global definition")
	}
}

// TestRegistry_DisabledExcluded verifies soft-disabled definitions never
// surface from lookups.
func TestRegistry_DisabledExcluded(t *testing.T) {
	tenant := uuid.New()
	source := &mockSource{}
	source.set([]domain.TriggerDefinition{
		def("a", uuid.Nil, true),
		def("b", uuid.Nil, false),
		def("c", tenant, false),
	}, nil)
	r := newTestRegistry(t, source)

	active := r.ListActive(tenant)
	if len(active) != 1 || active[0].Type != "a" {
		t.Errorf("active = %v, want only type a", active)
	}
	if _, ok := r.Get("b", tenant); ok {
		t.Error("disabled definition must not resolve")
	}
}

// TestRegistry_ListActive_SortedByType verifies deterministic ordering.
func TestRegistry_ListActive_SortedByType(t *testing.T) {
	source := &mockSource{}
	source.set([]domain.TriggerDefinition{
		def("zeta", uuid.Nil, true),
		def("alpha", uuid.Nil, true),
		def("mid", uuid.Nil, true),
	}, nil)
	r := newTestRegistry(t, source)

	active := r.ListActive(uuid.New())
	want := []string{"alpha", "mid", "zeta"}
	for i, typ := range want {
		if active[i].Type != typ {
			t.Fatalf("active[%d] = %s, want %s", i, active[i].Type, typ)
		}
	}
}

// TestRegistry_RefreshKeepsStaleOnError verifies a failing source leaves
// the previous definition set in place.
func TestRegistry_RefreshKeepsStaleOnError(t *testing.T) {
	source := &mockSource{}
	source.set([]domain.TriggerDefinition{def("a", uuid.Nil, true)}, nil)
	r := newTestRegistry(t, source)

	source.set(nil, errors.New("source down"))
	if err := r.refresh(context.Background()); err == nil {
		t.Fatal("refresh must report the source error")
	}

	if got := r.ListActive(uuid.New()); len(got) != 1 {
		t.Errorf("stale set lost after failed refresh: %v", got)
	}
}

// TestRegistry_RefreshPicksUpChanges verifies an edit becomes visible after
// the next refresh.
func TestRegistry_RefreshPicksUpChanges(t *testing.T) {
	source := &mockSource{}
	source.set([]domain.TriggerDefinition{def("a", uuid.Nil, true)}, nil)
	r := newTestRegistry(t, source)

	source.set([]domain.TriggerDefinition{def("a", uuid.Nil, true), def("b", uuid.Nil, true)}, nil)
	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := r.ListActive(uuid.New()); len(got) != 2 {
		t.Errorf("active = %d definitions, want 2", len(got))
	}
}
