package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log zerolog.Logger

	// Evaluation metrics
	evaluationsTotal      prometheus.Counter
	evaluationErrorsTotal prometheus.Counter
	matchesTotal          prometheus.Counter
	evaluationDuration    prometheus.Histogram

	// Dispatch metrics
	dispatchOutcomesTotal *prometheus.CounterVec
	dispatchDuration      prometheus.Histogram
	dispatchSkippedTotal  prometheus.Counter
	executionsInFlight    prometheus.Gauge

	// Chain metrics
	chainHopsTotal          *prometheus.CounterVec
	chainDepthExceededTotal prometheus.Counter

	// Bus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Sweeper metrics
	stalePendingSweptTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer, log zerolog.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log.With().Str("component", "metrics").Logger()}
	s.initEvaluationMetrics(reg)
	s.initDispatchMetrics(reg)
	s.initChainMetrics(reg)
	s.initBusMetrics(reg)
	s.initSweeperMetrics(reg)
	return s
}

func (s *PrometheusSink) initEvaluationMetrics(reg prometheus.Registerer) {
	s.evaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_evaluations_total",
		Help: "Total number of snapshot evaluation passes.",
	})
	s.evaluationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_evaluation_errors_total",
		Help: "Total number of evaluation passes that aborted with an error.",
	})
	s.matchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_matches_total",
		Help: "Total number of definitions matched across all passes.",
	})
	s.evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mizan_trigger_evaluation_duration_seconds",
		Help:    "Duration of one evaluation pass in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	s.register(reg, s.evaluationsTotal, "mizan_trigger_evaluations_total")
	s.register(reg, s.evaluationErrorsTotal, "mizan_trigger_evaluation_errors_total")
	s.register(reg, s.matchesTotal, "mizan_trigger_matches_total")
	s.register(reg, s.evaluationDuration, "mizan_trigger_evaluation_duration_seconds")
}

func (s *PrometheusSink) initDispatchMetrics(reg prometheus.Registerer) {
	s.dispatchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mizan_trigger_dispatch_outcomes_total",
		Help: "Total number of dispatch outcomes per module and result class.",
	}, []string{"module", "result"})

	s.dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mizan_trigger_dispatch_duration_seconds",
		Help:    "Handler invocation latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	s.dispatchSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_dispatch_skipped_total",
		Help: "Total number of dispatches skipped by the idempotency guard.",
	})

	s.executionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mizan_trigger_executions_in_flight",
		Help: "Number of dispatches currently being processed.",
	})

	s.register(reg, s.dispatchOutcomesTotal, "mizan_trigger_dispatch_outcomes_total")
	s.register(reg, s.dispatchDuration, "mizan_trigger_dispatch_duration_seconds")
	s.register(reg, s.dispatchSkippedTotal, "mizan_trigger_dispatch_skipped_total")
	s.register(reg, s.executionsInFlight, "mizan_trigger_executions_in_flight")
}

func (s *PrometheusSink) initChainMetrics(reg prometheus.Registerer) {
	s.chainHopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mizan_trigger_chain_hops_total",
		Help: "Total number of chain hops by generation.",
	}, []string{"generation"})

	s.chainDepthExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_chain_depth_exceeded_total",
		Help: "Total number of chain branches terminated at the generation cap.",
	})

	s.register(reg, s.chainHopsTotal, "mizan_trigger_chain_hops_total")
	s.register(reg, s.chainDepthExceededTotal, "mizan_trigger_chain_depth_exceeded_total")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mizan_trigger_bus_buffer_size",
		Help: "Current number of requests in the dispatch bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mizan_trigger_bus_buffer_capacity",
		Help: "Configured dispatch bus buffer capacity.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_bus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.bufferSize, "mizan_trigger_bus_buffer_size")
	s.register(reg, s.bufferCapacity, "mizan_trigger_bus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "mizan_trigger_bus_emit_errors_total")
}

func (s *PrometheusSink) initSweeperMetrics(reg prometheus.Registerer) {
	s.stalePendingSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mizan_trigger_stale_pending_swept_total",
		Help: "Total number of stale pending executions finalized as failed.",
	})

	s.register(reg, s.stalePendingSweptTotal, "mizan_trigger_stale_pending_swept_total")
}

// register attempts to register a collector, logging any errors without
// propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn().Err(err).Str("metric", name).Msg("failed to register")
	}
}

func (s *PrometheusSink) EvaluationCompleted(duration time.Duration, definitions, matched int, err error) {
	s.evaluationsTotal.Inc()
	s.evaluationDuration.Observe(duration.Seconds())
	s.matchesTotal.Add(float64(matched))
	if err != nil {
		s.evaluationErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) DispatchOutcome(module, result string, duration time.Duration) {
	s.dispatchOutcomesTotal.WithLabelValues(module, result).Inc()
	s.dispatchDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DispatchSkipped() {
	s.dispatchSkippedTotal.Inc()
}

func (s *PrometheusSink) ExecutionsInFlightIncr() {
	s.executionsInFlight.Inc()
}

func (s *PrometheusSink) ExecutionsInFlightDecr() {
	s.executionsInFlight.Dec()
}

func (s *PrometheusSink) ChainHop(generation int) {
	s.chainHopsTotal.WithLabelValues(strconv.Itoa(generation)).Inc()
}

func (s *PrometheusSink) ChainDepthExceeded() {
	s.chainDepthExceededTotal.Inc()
}

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

func (s *PrometheusSink) StalePendingSwept(count int) {
	s.stalePendingSweptTotal.Add(float64(count))
}

var _ Sink = (*PrometheusSink)(nil)
