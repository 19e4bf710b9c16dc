package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) EvaluationCompleted(d time.Duration, definitions, matched int, err error) {}
func (n *NoopSink) DispatchOutcome(module, result string, d time.Duration)                   {}
func (n *NoopSink) DispatchSkipped()                                                         {}
func (n *NoopSink) ExecutionsInFlightIncr()                                                  {}
func (n *NoopSink) ExecutionsInFlightDecr()                                                  {}
func (n *NoopSink) ChainHop(generation int)                                                  {}
func (n *NoopSink) ChainDepthExceeded()                                                      {}
func (n *NoopSink) BufferSizeUpdate(size int)                                                {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                           {}
func (n *NoopSink) EmitError()                                                               {}
func (n *NoopSink) StalePendingSwept(count int)                                              {}

var _ Sink = (*NoopSink)(nil)
