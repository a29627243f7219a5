// Package bulk accumulates artifact writes of one ingest job so they reach
// the store in batches instead of one round-trip per file.
package bulk

import (
	"context"
	"sync"

	"centralrepo/internal/logger"
	"centralrepo/internal/metrics"
	"centralrepo/pkg/models"
)

// DefaultThreshold is the pending count that triggers an automatic flush.
const DefaultThreshold = 1000

// Sink receives flushed batches. Implementations must write a batch
// atomically: either every artifact is stored or none is.
type Sink interface {
	BulkInsertArtifacts(ctx context.Context, artifacts []*models.Artifact) error
}

// Buffer is an ordered, mutex-guarded list of pending artifacts.
type Buffer struct {
	mu      sync.Mutex
	pending []*models.Artifact

	// flushMu serializes flushes so a requeued batch keeps its position.
	flushMu sync.Mutex

	sink      Sink
	threshold int
	metrics   *metrics.Metrics
	written   int64
}

// NewBuffer creates a buffer writing to sink. threshold <= 0 uses DefaultThreshold.
func NewBuffer(sink Sink, threshold int, m *metrics.Metrics) *Buffer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Buffer{sink: sink, threshold: threshold, metrics: m}
}

// Prepare appends a for the next flush. Duplicates are kept: every call is a
// distinct occurrence. Reaching the threshold flushes synchronously; a failed
// automatic flush keeps the artifacts queued and is reported to the caller.
func (b *Buffer) Prepare(ctx context.Context, a *models.Artifact) error {
	if a == nil {
		return nil
	}
	b.mu.Lock()
	b.pending = append(b.pending, a)
	full := len(b.pending) >= b.threshold
	b.mu.Unlock()

	b.metrics.IncArtifactsBuffered()
	if !full {
		return nil
	}
	_, err := b.Flush(ctx)
	return err
}

// Flush writes everything prepared so far as one batch and returns how many
// artifacts were written. On failure the batch goes back to the front of the
// queue, ahead of anything appended meanwhile.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	if err := b.sink.BulkInsertArtifacts(ctx, batch); err != nil {
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.mu.Unlock()
		b.metrics.ObserveFlush(len(batch), err)
		logger.Warnf("Bulk flush of %d artifacts failed, kept for retry: %v", len(batch), err)
		return 0, err
	}

	b.mu.Lock()
	b.written += int64(len(batch))
	b.mu.Unlock()
	b.metrics.ObserveFlush(len(batch), nil)
	logger.Debugf("Bulk flushed %d artifacts", len(batch))
	return len(batch), nil
}

// Len returns the number of pending artifacts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Written returns how many artifacts this buffer has flushed successfully.
func (b *Buffer) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}
