package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording engine metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Evaluation metrics
	EvaluationCompleted(duration time.Duration, definitions, matched int, err error)

	// Dispatch metrics
	DispatchOutcome(module, result string, duration time.Duration)
	DispatchSkipped()
	ExecutionsInFlightIncr()
	ExecutionsInFlightDecr()

	// Chain metrics
	ChainHop(generation int)
	ChainDepthExceeded()

	// Bus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Sweeper metrics
	StalePendingSwept(count int)
}

// Result constants for DispatchOutcome.
const (
	ResultSucceeded     = "succeeded"
	ResultFailed        = "failed"
	ResultTimeout       = "timeout"
	ResultPanic         = "panic"
	ResultUnknownModule = "unknown_module"
	ResultCircuitOpen   = "circuit_open"
)

// ClassifyError maps a handler error message to a result class with
// bounded cardinality.
func ClassifyError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return ResultTimeout
	case strings.Contains(lower, "panic"):
		return ResultPanic
	case strings.Contains(lower, "unknown target module"):
		return ResultUnknownModule
	case strings.Contains(lower, "circuit"):
		return ResultCircuitOpen
	default:
		return ResultFailed
	}
}
