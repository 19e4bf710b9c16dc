// Package dispatch invokes module handlers for resolved triggers.
//
// The pending execution record is the dispatch lock: inserting it claims
// the idempotency tuple, and a duplicate insert means another dispatcher
// (or an earlier run) already owns it. Handler failures are recorded,
// never propagated; one misbehaving module cannot abort its siblings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/circuitbreaker"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
	"github.com/Annas82200/mizan-backend-sub010/internal/metrics"
	"github.com/Annas82200/mizan-backend-sub010/internal/modules"
)

// DefaultHandlerTimeout bounds one handler invocation unless a per-module
// override is configured.
const DefaultHandlerTimeout = 30 * time.Second

// DefaultDrainTimeout is the maximum time to spend on buffered requests
// during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// ErrDuplicateExecution is returned by stores when the idempotency tuple
// (trigger, snapshot, generation) already has a record.
var ErrDuplicateExecution = errors.New("execution already exists for idempotency key")

// ErrAlreadyFinalized is returned by stores when a finalize would touch a
// record that already reached a terminal status. This keeps replays and
// sweeper races idempotent.
var ErrAlreadyFinalized = errors.New("execution already finalized")

// Store is the execution-log surface the dispatcher needs. Implementations
// MUST enforce the idempotency tuple with a unique constraint
// (InsertExecution returns ErrDuplicateExecution) and MUST reject
// finalizing terminal records (ErrAlreadyFinalized).
type Store interface {
	InsertExecution(ctx context.Context, rec domain.ExecutionRecord) error
	FinalizeExecution(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, outcome domain.Outcome, finalizedAt time.Time) error
}

// HandlerResolver maps a target module to its handler.
type HandlerResolver interface {
	Resolve(module string) (modules.Handler, error)
}

// ChainSink receives successful outcomes that request follow-up triggers.
type ChainSink interface {
	OutcomeReady(ctx context.Context, req domain.DispatchRequest, outcome domain.Outcome)
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DispatchOutcome(module, result string, duration time.Duration)
	DispatchSkipped()
	ExecutionsInFlightIncr()
	ExecutionsInFlightDecr()
}

// AnalyticsSink records finalized executions as a best-effort side effect.
type AnalyticsSink interface {
	Record(ctx context.Context, rec domain.ExecutionRecord)
}

type Dispatcher struct {
	store    Store
	handlers HandlerResolver

	chain     ChainSink                     // optional, nil = chaining disabled
	metrics   MetricsSink                   // optional, nil = disabled
	analytics AnalyticsSink                 // optional, nil = disabled
	breaker   *circuitbreaker.CircuitBreaker // optional, nil = disabled

	defaultTimeout time.Duration
	moduleTimeouts map[string]time.Duration
	workers        int
	drainTimeout   time.Duration

	clock func() time.Time
	log   zerolog.Logger
}

func New(store Store, handlers HandlerResolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:          store,
		handlers:       handlers,
		defaultTimeout: DefaultHandlerTimeout,
		moduleTimeouts: make(map[string]time.Duration),
		workers:        1,
		drainTimeout:   DefaultDrainTimeout,
		clock:          time.Now,
		log:            log.With().Str("component", "dispatch").Logger(),
	}
}

// WithChain attaches the chain resolver.
func (d *Dispatcher) WithChain(sink ChainSink) *Dispatcher {
	d.chain = sink
	return d
}

// WithMetrics attaches a metrics sink.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// WithAnalytics attaches an analytics sink.
func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithBreaker attaches a per-module circuit breaker.
func (d *Dispatcher) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Dispatcher {
	d.breaker = cb
	return d
}

// WithTimeout sets the default handler timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.defaultTimeout = timeout
	return d
}

// WithModuleTimeout overrides the timeout for one module.
func (d *Dispatcher) WithModuleTimeout(module string, timeout time.Duration) *Dispatcher {
	d.moduleTimeouts[module] = timeout
	return d
}

// WithWorkers sets the dispatch concurrency.
func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

// WithDrainTimeout bounds how long shutdown waits for buffered requests.
func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	d.drainTimeout = timeout
	return d
}

// Run processes requests from the channel with the configured worker count
// until ctx is cancelled, then drains remaining buffered requests with a
// timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.DispatchRequest) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, ch)
		}()
	}
	wg.Wait()
	d.drain(ch)
}

func (d *Dispatcher) work(ctx context.Context, ch <-chan domain.DispatchRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ch:
			if err := d.Dispatch(ctx, req); err != nil {
				d.log.Error().Err(err).Str("trigger", req.Definition.Type).Msg("dispatch error")
			}
		}
	}
}

// drain processes remaining requests in the channel buffer after the
// shutdown signal. Uses a background context since the main context is
// already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.DispatchRequest) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			d.log.Warn().Int("processed", count).Msg("drain timeout")
			return
		case req, ok := <-ch:
			if !ok {
				d.log.Info().Int("processed", count).Msg("drain complete")
				return
			}
			if err := d.Dispatch(drainCtx, req); err != nil {
				d.log.Error().Err(err).Msg("drain dispatch error")
			}
			count++
		default:
			if count > 0 {
				d.log.Info().Int("processed", count).Msg("drain complete")
			}
			return
		}
	}
}

// Dispatch executes one resolved trigger. The returned error is systemic
// (execution log unreachable); handler failures are captured in the record
// and are not errors here.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	if d.metrics != nil {
		d.metrics.ExecutionsInFlightIncr()
		defer d.metrics.ExecutionsInFlightDecr()
	}

	def := req.Definition
	snap := req.Snapshot

	root := snap.RootID
	if root == uuid.Nil {
		root = snap.ID
	}

	rec := domain.ExecutionRecord{
		ID:             uuid.New(),
		TriggerID:      def.ID,
		TriggerType:    def.Type,
		TenantID:       snap.TenantID,
		SnapshotID:     snap.ID,
		RootSnapshotID: root,
		Generation:     snap.Generation,
		Status:         domain.ExecutionStatusPending,
		ExecutedAt:     d.clock().UTC(),
	}

	// The pending insert is the lock: losing the unique-constraint race
	// means someone else owns this tuple, and skipping is the success path.
	if err := d.store.InsertExecution(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateExecution) {
			if d.metrics != nil {
				d.metrics.DispatchSkipped()
			}
			d.log.Debug().
				Str("trigger", def.Type).
				Stringer("snapshot", snap.ID).
				Int("generation", snap.Generation).
				Msg("duplicate dispatch attempt, skipping")
			return nil
		}
		return fmt.Errorf("insert execution: %w", err)
	}

	started := d.clock()
	outcome := d.invoke(ctx, req)
	duration := d.clock().Sub(started)

	status := domain.ExecutionStatusSucceeded
	if !outcome.Success {
		status = domain.ExecutionStatusFailed
	}

	if err := d.store.FinalizeExecution(ctx, rec.ID, status, outcome, d.clock().UTC()); err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			// The sweeper (or a replay) got there first. Safe to ignore.
			d.log.Warn().
				Str("trigger", def.Type).
				Stringer("execution", rec.ID).
				Msg("execution already finalized, skipping update")
			return nil
		}
		return fmt.Errorf("finalize execution: %w", err)
	}

	result := resultClass(outcome)
	if d.metrics != nil {
		d.metrics.DispatchOutcome(def.TargetModule, result, duration)
	}
	if d.analytics != nil {
		rec.Status = status
		rec.Outcome = &outcome
		d.analytics.Record(ctx, rec)
	}

	if outcome.Success {
		d.log.Info().
			Str("trigger", def.Type).
			Str("module", def.TargetModule).
			Str("action", outcome.Action).
			Int("generation", snap.Generation).
			Msg("dispatched")
	} else {
		d.log.Warn().
			Str("trigger", def.Type).
			Str("module", def.TargetModule).
			Str("error", outcome.Error).
			Msg("dispatch failed")
	}

	if outcome.Success && len(outcome.NextTriggers) > 0 && d.chain != nil {
		d.chain.OutcomeReady(ctx, req, outcome)
	}

	return nil
}

// invoke runs the handler with breaker, timeout and panic containment.
// It always returns an outcome; it never propagates a failure.
func (d *Dispatcher) invoke(ctx context.Context, req domain.DispatchRequest) domain.Outcome {
	module := req.Definition.TargetModule

	if d.breaker != nil {
		if err := d.breaker.Allow(module); err != nil {
			return domain.Outcome{Success: false, Error: err.Error()}
		}
	}

	handler, err := d.handlers.Resolve(module)
	if err != nil {
		// Unknown module is a configuration defect, not module health;
		// it does not count against the breaker.
		return domain.Outcome{Success: false, Error: err.Error()}
	}

	timeout := d.defaultTimeout
	if t, ok := d.moduleTimeouts[module]; ok {
		timeout = t
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan domain.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- domain.Outcome{Success: false, Error: fmt.Sprintf("handler panic: %v", r)}
			}
		}()
		done <- handler.Handle(tctx, req.Context())
	}()

	var outcome domain.Outcome
	select {
	case outcome = <-done:
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			outcome = domain.Outcome{Success: false, Error: fmt.Sprintf("handler timeout after %s", timeout)}
		} else {
			outcome = domain.Outcome{Success: false, Error: "dispatch cancelled"}
		}
	}

	if !outcome.Success {
		if outcome.Error == "" {
			outcome.Error = "handler reported failure"
		}
		// A failed outcome never chains.
		outcome.NextTriggers = nil
	}

	if d.breaker != nil {
		if outcome.Success {
			d.breaker.RecordSuccess(module)
		} else {
			d.breaker.RecordFailure(module)
		}
	}

	return outcome
}

func resultClass(outcome domain.Outcome) string {
	if outcome.Success {
		return metrics.ResultSucceeded
	}
	return metrics.ClassifyError(outcome.Error)
}
