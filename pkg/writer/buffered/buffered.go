// Package buffered provides a batching base for transaction writers.
package buffered

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spendsense/spendsense/pkg/api"
)

// DefaultBatchSize is the default number of transactions to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// Flusher persists one batch. A nil error acknowledges every message in it.
type Flusher func(ctx context.Context, transactions []*api.Transaction) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Writer buffers transactions and flushes them in batches.
type Writer struct {
	buffer  []*api.Transaction
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

// New creates a buffered writer around flusher.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.Transaction, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write consumes transactions until in is closed or ctx is done. Message IDs
// of flushed transactions are sent on ackChan, which may be nil.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("buffered writer stopping, flushing remaining buffer")
			// The caller's context is gone; give the final flush a fresh one.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := w.flush(flushCtx, nil); err != nil {
				w.logger.Error("failed to flush on shutdown", "error", err)
			}
			cancel()
			return ctx.Err()

		case <-ticker.C:
			if err := w.flush(ctx, ackChan); err != nil {
				w.logger.Error("failed to flush on interval", "error", err)
			}

		case txn, ok := <-in:
			if !ok {
				w.logger.Info("input channel closed, flushing remaining buffer")
				return w.flush(ctx, ackChan)
			}
			if w.add(txn) {
				if err := w.flush(ctx, ackChan); err != nil {
					w.logger.Error("failed to flush on batch size", "error", err)
				}
			}
		}
	}
}

// add buffers txn and reports whether the batch is full.
func (w *Writer) add(txn *api.Transaction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, txn)
	return len(w.buffer) >= w.config.BatchSize
}

// flush writes all buffered transactions. On failure the batch is dropped
// unacknowledged so the reader can redeliver it.
func (w *Writer) flush(ctx context.Context, ackChan chan<- string) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	toFlush := make([]*api.Transaction, len(w.buffer))
	copy(toFlush, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	w.logger.Debug("flushing buffer", "count", len(toFlush))
	if err := w.flusher(ctx, toFlush); err != nil {
		return err
	}
	w.logger.Info("flushed transactions", "count", len(toFlush))

	if ackChan == nil {
		return nil
	}
	for _, txn := range toFlush {
		if txn.MessageID == "" {
			continue
		}
		select {
		case ackChan <- txn.MessageID:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// BufferLen returns the current number of buffered transactions.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
