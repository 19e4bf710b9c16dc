package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// TestPrometheusSink_RegistersAndRecords verifies the sink registers its
// collectors on a fresh registry and recording never panics.
func TestPrometheusSink_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg, zerolog.Nop())

	sink.EvaluationCompleted(12*time.Millisecond, 8, 2, nil)
	sink.EvaluationCompleted(3*time.Millisecond, 8, 0, errors.New("store down"))
	sink.DispatchOutcome("lxp", ResultSucceeded, 40*time.Millisecond)
	sink.DispatchOutcome("hiring", ResultTimeout, 30*time.Second)
	sink.DispatchSkipped()
	sink.ExecutionsInFlightIncr()
	sink.ExecutionsInFlightDecr()
	sink.ChainHop(1)
	sink.ChainDepthExceeded()
	sink.BufferCapacitySet(100)
	sink.BufferSizeUpdate(3)
	sink.EmitError()
	sink.StalePendingSwept(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}

	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"mizan_trigger_evaluations_total",
		"mizan_trigger_dispatch_outcomes_total",
		"mizan_trigger_chain_depth_exceeded_total",
		"mizan_trigger_bus_buffer_size",
		"mizan_trigger_stale_pending_swept_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

// TestPrometheusSink_DoubleRegistration verifies a second sink on the same
// registry degrades to warnings instead of panicking.
func TestPrometheusSink_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusSink(reg, zerolog.Nop())

	second := NewPrometheusSink(reg, zerolog.Nop())
	second.DispatchSkipped()
	second.ChainHop(0)
}
