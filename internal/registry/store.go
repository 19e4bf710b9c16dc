package registry

import (
	"context"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// DefinitionStore is the persistence-side view a StoreSource needs.
type DefinitionStore interface {
	ListDefinitions(ctx context.Context) ([]domain.TriggerDefinition, error)
}

// StoreSource loads definitions from the trigger_definitions table.
type StoreSource struct {
	store DefinitionStore
}

func NewStoreSource(store DefinitionStore) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Load(ctx context.Context) ([]domain.TriggerDefinition, error) {
	return s.store.ListDefinitions(ctx)
}

// MultiSource merges several sources; later sources win on (type, tenant)
// collisions. Used to seed from a file and let the table override.
type MultiSource struct {
	sources []Source
}

func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Load(ctx context.Context) ([]domain.TriggerDefinition, error) {
	merged := make(map[string]domain.TriggerDefinition)
	var order []string

	for _, src := range m.sources {
		defs, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			scope := def.Type + "/" + def.TenantID.String()
			if _, ok := merged[scope]; !ok {
				order = append(order, scope)
			}
			merged[scope] = def
		}
	}

	out := make([]domain.TriggerDefinition, 0, len(merged))
	for _, scope := range order {
		out = append(out, merged[scope])
	}
	return out, nil
}
