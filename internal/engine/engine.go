// Package engine runs the evaluation pass: snapshot in, ordered dispatch
// requests out.
//
// Evaluation fans out across workers, but the output order is
// deterministic: the resolver sorts matches by priority with a lexical
// tiebreak before anything reaches the bus. A malformed definition is a
// per-definition warning; only an unreachable execution log aborts the
// pass.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/condition"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
	"github.com/Annas82200/mizan-backend-sub010/internal/resolve"
)

// DefaultEvalWorkers bounds the per-snapshot evaluation fan-out.
const DefaultEvalWorkers = 4

// DefinitionSource lists the definitions in effect for a tenant.
type DefinitionSource interface {
	ListActive(tenantID uuid.UUID) []domain.TriggerDefinition
}

// Emitter schedules a dispatch request.
type Emitter interface {
	Emit(ctx context.Context, req domain.DispatchRequest) error
}

// MetricsSink defines the interface for recording evaluation metrics.
type MetricsSink interface {
	EvaluationCompleted(duration time.Duration, definitions, matched int, err error)
}

type Engine struct {
	definitions DefinitionSource
	evaluator   *condition.Evaluator
	resolver    *resolve.Resolver
	bus         Emitter

	workers int
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
	log     zerolog.Logger
}

func New(definitions DefinitionSource, evaluator *condition.Evaluator, resolver *resolve.Resolver, bus Emitter, log zerolog.Logger) *Engine {
	return &Engine{
		definitions: definitions,
		evaluator:   evaluator,
		resolver:    resolver,
		bus:         bus,
		workers:     DefaultEvalWorkers,
		clock:       time.Now,
		log:         log.With().Str("component", "engine").Logger(),
	}
}

// WithWorkers sets the evaluation fan-out.
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// WithMetrics attaches a metrics sink.
func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// EvaluateSnapshot runs one full evaluation pass for a snapshot. Dispatch
// is asynchronous: the report's Dispatched counts scheduled requests, and
// callers needing completion poll the execution log.
//
// The returned error is systemic (execution log unreachable); individual
// definition failures are warnings inside the report.
func (e *Engine) EvaluateSnapshot(ctx context.Context, snap domain.Snapshot) (domain.Report, error) {
	started := e.clock()

	defs := e.definitions.ListActive(snap.TenantID)
	matches := e.evaluate(defs, snap)

	ordered, skipped, err := e.resolver.Resolve(ctx, matches, snap.Generation)
	if e.metrics != nil {
		e.metrics.EvaluationCompleted(e.clock().Sub(started), len(defs), len(matches), err)
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("resolve matches: %w", err)
	}

	report := domain.Report{
		Matched: len(matches),
		Skipped: skipped,
	}

	chainState := domain.NewChainState(chainRoot(snap))
	for _, m := range ordered {
		chainState.Visit(m.Definition.Type, snap.Generation)
		emitErr := e.bus.Emit(ctx, domain.DispatchRequest{
			Definition: m.Definition,
			Snapshot:   snap,
			Payload:    m.Payload,
			Chain:      chainState,
		})
		if emitErr != nil {
			report.Failed++
			e.log.Error().Err(emitErr).
				Str("trigger", m.Definition.Type).
				Msg("emit dispatch request")
			continue
		}
		report.Dispatched++
	}

	e.log.Info().
		Stringer("snapshot", snap.ID).
		Stringer("tenant", snap.TenantID).
		Int("definitions", len(defs)).
		Int("matched", report.Matched).
		Int("dispatched", report.Dispatched).
		Int("skipped", report.Skipped).
		Msg("evaluation pass complete")

	return report, nil
}

// evaluate fans the definitions out over the worker pool and collects
// matches. Order is not preserved here; the resolver imposes it.
func (e *Engine) evaluate(defs []domain.TriggerDefinition, snap domain.Snapshot) []domain.Match {
	if len(defs) == 0 {
		return nil
	}

	in := make(chan domain.TriggerDefinition)
	out := make(chan domain.Match, len(defs))

	var wg sync.WaitGroup
	workers := e.workers
	if workers > len(defs) {
		workers = len(defs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for def := range in {
				result, err := e.evaluator.Evaluate(def, snap)
				if err != nil {
					e.log.Warn().Err(err).
						Str("trigger", def.Type).
						Msg("skipping malformed definition")
					continue
				}
				if !result.Matched {
					continue
				}
				out <- domain.Match{
					Definition: def,
					SnapshotID: snap.ID,
					MatchedAt:  e.clock().UTC(),
					Payload:    result.Payload,
				}
			}
		}()
	}

	for _, def := range defs {
		in <- def
	}
	close(in)
	wg.Wait()
	close(out)

	matches := make([]domain.Match, 0, len(defs))
	for m := range out {
		matches = append(matches, m)
	}
	return matches
}

func chainRoot(s domain.Snapshot) uuid.UUID {
	if s.RootID == uuid.Nil {
		return s.ID
	}
	return s.RootID
}
