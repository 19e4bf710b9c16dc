package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

type mockMetrics struct {
	mu         sync.Mutex
	sizes      []int
	capacity   int
	emitErrors int
}

func (m *mockMetrics) BufferSizeUpdate(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, size)
}

func (m *mockMetrics) BufferCapacitySet(capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = capacity
}

func (m *mockMetrics) EmitError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitErrors++
}

func (m *mockMetrics) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitErrors
}

func request() domain.DispatchRequest {
	return domain.DispatchRequest{
		Definition: domain.TriggerDefinition{ID: uuid.New(), Type: "t"},
		Snapshot:   domain.Snapshot{ID: uuid.New()},
	}
}

// TestBus_EmitAndReceive verifies FIFO delivery.
func TestBus_EmitAndReceive(t *testing.T) {
	bus := NewBus(2)
	first := request()
	second := request()

	if err := bus.Emit(context.Background(), first); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := bus.Emit(context.Background(), second); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got := <-bus.Channel()
	if got.Definition.ID != first.Definition.ID {
		t.Error("delivery order is not FIFO")
	}
	got = <-bus.Channel()
	if got.Definition.ID != second.Definition.ID {
		t.Error("second request lost")
	}
}

// TestBus_BufferFull verifies a zero emit timeout fails immediately with
// ErrBufferFull and records the error.
func TestBus_BufferFull(t *testing.T) {
	metrics := &mockMetrics{}
	bus := NewBus(1, WithEmitTimeout(0), WithMetrics(metrics))

	if err := bus.Emit(context.Background(), request()); err != nil {
		t.Fatalf("first Emit: %v", err)
	}
	err := bus.Emit(context.Background(), request())
	if !errors.Is(err, ErrBufferFull) {
		t.Errorf("err = %v, want ErrBufferFull", err)
	}
	if metrics.errorCount() != 1 {
		t.Errorf("emit errors = %d, want 1", metrics.errorCount())
	}
	if metrics.capacity != 1 {
		t.Errorf("capacity = %d, want 1", metrics.capacity)
	}
}

// TestBus_EmitTimeoutRecovers verifies a blocked Emit completes once the
// consumer drains the buffer within the timeout.
func TestBus_EmitTimeoutRecovers(t *testing.T) {
	bus := NewBus(1, WithEmitTimeout(2*time.Second))
	if err := bus.Emit(context.Background(), request()); err != nil {
		t.Fatalf("first Emit: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		<-bus.Channel()
	}()

	if err := bus.Emit(context.Background(), request()); err != nil {
		t.Errorf("Emit after drain: %v", err)
	}
}

// TestBus_EmitHonorsContext verifies cancellation wins over the timeout.
func TestBus_EmitHonorsContext(t *testing.T) {
	bus := NewBus(1, WithEmitTimeout(time.Minute))
	if err := bus.Emit(context.Background(), request()); err != nil {
		t.Fatalf("first Emit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := bus.Emit(ctx, request())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
