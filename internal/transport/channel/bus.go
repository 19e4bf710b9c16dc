// Package channel provides the in-memory bus between the resolve and
// dispatch stages.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// ErrBufferFull is returned when the buffer stays full past the emit
// timeout. Callers count the request as failed; the execution log has no
// record for it, so a later re-evaluation can schedule it again.
var ErrBufferFull = errors.New("dispatch bus buffer full")

// MetricsSink receives bus occupancy updates. Fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type Option func(*Bus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer before
// returning ErrBufferFull. Zero means fail immediately.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *Bus) { b.emitTimeout = d }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink MetricsSink) Option {
	return func(b *Bus) { b.metrics = sink }
}

// Bus is a bounded FIFO of dispatch requests. Emission order is dispatch
// order for a single worker, which preserves the resolver's priority
// ordering of record creation.
type Bus struct {
	ch          chan domain.DispatchRequest
	emitTimeout time.Duration
	metrics     MetricsSink
}

func NewBus(buffer int, opts ...Option) *Bus {
	b := &Bus{
		ch:          make(chan domain.DispatchRequest, buffer),
		emitTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit enqueues a request. It blocks up to the emit timeout when the
// buffer is full, then fails with ErrBufferFull; ctx cancellation wins
// over the timeout.
func (b *Bus) Emit(ctx context.Context, req domain.DispatchRequest) error {
	select {
	case b.ch <- req:
		b.updateSize()
		return nil
	default:
	}

	if b.emitTimeout <= 0 {
		b.emitError()
		return ErrBufferFull
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- req:
		b.updateSize()
		return nil
	case <-ctx.Done():
		b.emitError()
		return ctx.Err()
	case <-timer.C:
		b.emitError()
		return ErrBufferFull
	}
}

// Channel exposes the consumer side for the dispatcher.
func (b *Bus) Channel() <-chan domain.DispatchRequest {
	return b.ch
}

func (b *Bus) updateSize() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}

func (b *Bus) emitError() {
	if b.metrics != nil {
		b.metrics.EmitError()
	}
}
