package statesync

import (
	"context"
	"log/slog"
	"sync"
)

// FlushFunc sends one claimed batch to its destination. It must treat the
// batch atomically: returning an error requeues every claimed operation.
type FlushFunc func(ctx context.Context, ops []*Operation) error

// BatchProcessor accumulates update operations for a single data type and
// flushes them as one unit once the size threshold is reached or a flush
// is forced. A processing guard serializes flushes; a failed flush pushes
// the claimed operations back to the front of the batch in order, so no
// operation is ever silently lost.
type BatchProcessor struct {
	mu         sync.Mutex
	pending    []*Operation
	size       int
	processing bool
	flush      FlushFunc
	logger     *slog.Logger
}

// NewBatchProcessor creates a processor that flushes through fn once size
// operations accumulate. A non-positive size falls back to
// DefaultBatchSize.
func NewBatchProcessor(size int, fn FlushFunc, logger *slog.Logger) *BatchProcessor {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{size: size, flush: fn, logger: logger}
}

// Add appends an operation to the batch and triggers a flush when the
// threshold is reached and no flush is in flight.
func (b *BatchProcessor) Add(ctx context.Context, op *Operation) {
	b.mu.Lock()
	b.pending = append(b.pending, op)
	full := len(b.pending) >= b.size && !b.processing
	b.mu.Unlock()

	if full {
		if err := b.Process(ctx); err != nil {
			b.logger.Error("Batch flush failed, operations requeued",
				"error", err,
				"pending", b.Len())
		}
	}
}

// Process flushes up to one batch worth of operations. It is reentrant-
// safe: a concurrent call while a flush is in flight returns immediately.
// After a successful flush it immediately processes any remainder rather
// than waiting for the next threshold trigger.
func (b *BatchProcessor) Process(ctx context.Context) error {
	b.mu.Lock()
	if b.processing || len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.processing = true

	n := len(b.pending)
	if n > b.size {
		n = b.size
	}
	claimed := make([]*Operation, n)
	copy(claimed, b.pending[:n])
	b.pending = b.pending[n:]
	b.mu.Unlock()

	err := b.flush(ctx, claimed)

	b.mu.Lock()
	b.processing = false
	if err != nil {
		// Requeue the whole claimed batch at the front, preserving order.
		b.pending = append(claimed, b.pending...)
		b.mu.Unlock()
		return err
	}
	remainder := len(b.pending)
	b.mu.Unlock()

	if remainder > 0 {
		return b.Process(ctx)
	}
	return nil
}

// Len returns the number of operations waiting in the batch.
func (b *BatchProcessor) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
