// Package registry holds the set of active trigger definitions.
//
// Definitions come from a Source (YAML file or the trigger_definitions
// table) and are cached in memory. The cache refreshes on an interval, so
// admin edits become visible within one refresh period; the configured
// interval bounds the staleness window (validated to at most 60s).
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// Source loads the full definition set. Implementations: FileSource,
// StoreSource.
type Source interface {
	Load(ctx context.Context) ([]domain.TriggerDefinition, error)
}

// Registry caches definitions and answers tenant-scoped lookups.
type Registry struct {
	source   Source
	interval time.Duration
	log      zerolog.Logger

	mu   sync.RWMutex
	defs []domain.TriggerDefinition
}

// New builds a registry and performs the initial load.
func New(ctx context.Context, source Source, refreshInterval time.Duration, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		source:   source,
		interval: refreshInterval,
		log:      log.With().Str("component", "registry").Logger(),
	}
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Run refreshes the cache on the configured interval until ctx is
// cancelled. A failed refresh keeps serving the previous set.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("refresh loop started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("refresh loop stopped")
			return
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				r.log.Warn().Err(err).Msg("refresh failed, serving stale definitions")
			}
		}
	}
}

func (r *Registry) refresh(ctx context.Context) error {
	defs, err := r.source.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()

	r.log.Debug().Int("definitions", len(defs)).Msg("refreshed")
	return nil
}

// ListActive returns the enabled definitions effective for a tenant:
// global definitions plus the tenant's own, with a tenant definition
// shadowing the global one of the same type. The result is sorted by type
// for deterministic evaluation order.
func (r *Registry) ListActive(tenantID uuid.UUID) []domain.TriggerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	effective := make(map[string]domain.TriggerDefinition)
	for _, def := range r.defs {
		if !def.Enabled {
			continue
		}
		if !def.Global() && def.TenantID != tenantID {
			continue
		}
		current, ok := effective[def.Type]
		if ok && !current.Global() {
			// Tenant-specific already won; a global of the same type loses.
			continue
		}
		if ok && current.Global() && def.Global() {
			continue
		}
		if !ok || !def.Global() {
			effective[def.Type] = def
		}
	}

	out := make([]domain.TriggerDefinition, 0, len(effective))
	for _, def := range effective {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Get resolves a single type for a tenant, applying the same shadowing
// rule as ListActive. Disabled definitions are not returned.
func (r *Registry) Get(triggerType string, tenantID uuid.UUID) (domain.TriggerDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var global domain.TriggerDefinition
	var haveGlobal bool

	for _, def := range r.defs {
		if def.Type != triggerType || !def.Enabled {
			continue
		}
		if def.TenantID == tenantID && !def.Global() {
			return def, true
		}
		if def.Global() {
			global = def
			haveGlobal = true
		}
	}

	return global, haveGlobal
}
