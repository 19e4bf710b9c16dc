// Package reconciler sweeps stale pending executions.
//
// A pending record whose dispatcher died keeps its idempotency tuple
// claimed forever. The sweeper finalizes such records as failed so the
// log reflects reality; it never re-dispatches, because the handler may
// have produced its side effect before the crash. The store's terminal
// guard makes the sweep safe against a dispatcher that is merely slow:
// whoever finalizes first wins, the other sees ErrAlreadyFinalized.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/dispatch"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// Store defines the execution-log surface the sweeper needs.
type Store interface {
	GetStalePendingExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.ExecutionRecord, error)
	FinalizeExecution(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, outcome domain.Outcome, finalizedAt time.Time) error
}

// MetricsSink defines the interface for recording sweep metrics.
type MetricsSink interface {
	StalePendingSwept(count int)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweeper runs. Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a pending execution is considered
	// abandoned. Must comfortably exceed the longest handler timeout.
	// Default: 10 minutes.
	Threshold time.Duration

	// BatchSize caps records finalized per cycle. Default: 100.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 10 * time.Minute,
		BatchSize: 100,
	}
}

type Reconciler struct {
	config  Config
	store   Store
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
	log     zerolog.Logger
}

func New(config Config, store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		clock:  time.Now,
		log:    log.With().Str("component", "reconciler").Logger(),
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.log.Info().
		Dur("interval", r.config.Interval).
		Dur("threshold", r.config.Threshold).
		Int("batch", r.config.BatchSize).
		Msg("sweeper started")

	// Run immediately on startup, then on ticker.
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one sweep.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	cutoff := now.Add(-r.config.Threshold)

	stale, err := r.store.GetStalePendingExecutions(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		// Store error: abort the cycle, retry next interval.
		r.log.Error().Err(err).Msg("fetch stale pending executions")
		return
	}
	if len(stale) == 0 {
		return
	}

	r.log.Warn().Int("count", len(stale)).Msg("found stale pending executions")

	swept := 0
	for _, rec := range stale {
		if ctx.Err() != nil {
			r.log.Warn().Int("processed", swept).Int("total", len(stale)).Msg("sweep interrupted")
			return
		}

		outcome := domain.Outcome{
			Success: false,
			Error:   "dispatcher lost before finalization",
		}
		err := r.store.FinalizeExecution(ctx, rec.ID, domain.ExecutionStatusFailed, outcome, now)
		if errors.Is(err, dispatch.ErrAlreadyFinalized) {
			// The dispatcher was slow, not dead. Its result stands.
			continue
		}
		if err != nil {
			r.log.Error().Err(err).Stringer("execution", rec.ID).Msg("finalize stale execution")
			continue
		}

		r.log.Warn().
			Stringer("execution", rec.ID).
			Str("trigger", rec.TriggerType).
			Dur("age", now.Sub(rec.ExecutedAt).Round(time.Second)).
			Msg("swept stale pending execution")
		swept++
	}

	if r.metrics != nil && swept > 0 {
		r.metrics.StalePendingSwept(swept)
	}
	r.log.Info().Int("swept", swept).Msg("sweep cycle complete")
}
