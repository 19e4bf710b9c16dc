// Package chain turns successful outcomes into follow-up evaluations.
//
// A handler's next triggers are not dispatched directly: each hop derives
// a synthetic snapshot for the next generation, re-checks the target
// definition's condition against it, and only then schedules a dispatch.
// The generation cap bounds every chain; hitting it drops the hop and is
// never an error.
package chain

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/condition"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// DefaultMaxGeneration caps chain depth. Generations run 0 through
// DefaultMaxGeneration-1, so a self-chaining trigger produces exactly
// DefaultMaxGeneration execution records.
const DefaultMaxGeneration = 5

// DefinitionSource resolves a trigger type within a tenant's scope.
type DefinitionSource interface {
	Get(triggerType string, tenantID uuid.UUID) (domain.TriggerDefinition, bool)
}

// Emitter schedules a dispatch request.
type Emitter interface {
	Emit(ctx context.Context, req domain.DispatchRequest) error
}

// MetricsSink defines the interface for recording chain metrics.
type MetricsSink interface {
	ChainHop(generation int)
	ChainDepthExceeded()
}

type Resolver struct {
	definitions   DefinitionSource
	evaluator     *condition.Evaluator
	bus           Emitter
	maxGeneration int
	metrics       MetricsSink // optional, nil = disabled
	log           zerolog.Logger
}

func New(definitions DefinitionSource, evaluator *condition.Evaluator, bus Emitter, log zerolog.Logger) *Resolver {
	return &Resolver{
		definitions:   definitions,
		evaluator:     evaluator,
		bus:           bus,
		maxGeneration: DefaultMaxGeneration,
		log:           log.With().Str("component", "chain").Logger(),
	}
}

// WithMaxGeneration overrides the chain depth cap.
func (r *Resolver) WithMaxGeneration(max int) *Resolver {
	if max > 0 {
		r.maxGeneration = max
	}
	return r
}

// WithMetrics attaches a metrics sink.
func (r *Resolver) WithMetrics(sink MetricsSink) *Resolver {
	r.metrics = sink
	return r
}

// OutcomeReady processes the next triggers of a successful outcome. Every
// skip reason (depth cap, already visited, unknown type, disabled,
// condition no longer met) is terminal for that hop and logged, never
// propagated.
func (r *Resolver) OutcomeReady(ctx context.Context, req domain.DispatchRequest, outcome domain.Outcome) {
	parent := req.Snapshot
	nextGen := parent.Generation + 1

	if nextGen >= r.maxGeneration {
		if r.metrics != nil {
			r.metrics.ChainDepthExceeded()
		}
		r.log.Warn().
			Str("trigger", req.Definition.Type).
			Stringer("root", chainRoot(parent)).
			Int("generation", parent.Generation).
			Strs("dropped", outcome.NextTriggers).
			Msg("chain depth exceeded, dropping follow-up triggers")
		return
	}

	derived := parent.Derive(outcome.Data, nextGen)

	for _, triggerType := range outcome.NextTriggers {
		r.resolveHop(ctx, req, derived, triggerType)
	}
}

func (r *Resolver) resolveHop(ctx context.Context, req domain.DispatchRequest, derived domain.Snapshot, triggerType string) {
	log := r.log.With().
		Str("trigger", triggerType).
		Stringer("root", chainRoot(derived)).
		Int("generation", derived.Generation).
		Logger()

	if req.Chain != nil && !req.Chain.Visit(triggerType, derived.Generation) {
		log.Debug().Msg("trigger already scheduled at this generation")
		return
	}

	def, ok := r.definitions.Get(triggerType, derived.TenantID)
	if !ok {
		log.Warn().Msg("chained trigger type not defined for tenant")
		return
	}
	if !def.Enabled {
		log.Debug().Msg("chained trigger disabled")
		return
	}

	// A chained trigger still has to earn its dispatch: the condition is
	// re-checked against the derived snapshot.
	result, err := r.evaluator.Evaluate(def, derived)
	if err != nil {
		log.Warn().Err(err).Msg("chained condition malformed")
		return
	}
	if !result.Matched {
		log.Debug().Msg("chained condition not met")
		return
	}

	err = r.bus.Emit(ctx, domain.DispatchRequest{
		Definition: def,
		Snapshot:   derived,
		Payload:    result.Payload,
		Chain:      req.Chain,
	})
	if err != nil {
		log.Error().Err(err).Msg("emit chained dispatch")
		return
	}

	if r.metrics != nil {
		r.metrics.ChainHop(derived.Generation)
	}
	log.Info().Str("module", def.TargetModule).Msg("chained trigger scheduled")
}

func chainRoot(s domain.Snapshot) uuid.UUID {
	if s.RootID == uuid.Nil {
		return s.ID
	}
	return s.RootID
}
