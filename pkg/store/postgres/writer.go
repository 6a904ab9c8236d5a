package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
)

// WriterConfig configures a batching Writer.
type WriterConfig struct {
	// Phone owns every expense the writer stores.
	Phone string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration
}

// Writer stores ingested transactions as expenses with one round trip per batch.
type Writer struct {
	store         *Store
	phone         string
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
}

// Writer returns an api.Writer that inserts into this store.
func (s *Store) Writer(cfg WriterConfig) (*Writer, error) {
	if cfg.Phone == "" {
		return nil, &ledger.ValidationError{Field: "phone", Reason: "postgres writer needs an owner phone"}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Writer{
		store:         s,
		phone:         cfg.Phone,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		now:           time.Now,
	}, nil
}

func (w *Writer) logger() *slog.Logger {
	return w.store.logger
}

// Write consumes transactions from the channel and writes them in batches.
// Message IDs are acknowledged once their batch commits.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	batch := make([]*api.Transaction, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.writeBatch(ctx, batch); err != nil {
			return err
		}
		for _, txn := range batch {
			if txn.MessageID == "" {
				continue
			}
			select {
			case ackChan <- txn.MessageID:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		w.logger().Info("wrote transaction batch", "count", len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				// Nobody is left to receive acks once the pipeline is cancelled.
				if err := w.writeBatch(flushCtx, batch); err != nil {
					w.logger().Error("failed to flush final batch", "error", err)
				}
				cancel()
			}
			return ctx.Err()

		case txn, ok := <-in:
			if !ok {
				return flush(ctx)
			}
			batch = append(batch, txn)
			if len(batch) >= w.batchSize {
				if err := flush(ctx); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(ctx); err != nil {
				return err
			}
		}
	}
}

// writeBatch inserts a batch inside one database transaction. Rows with an
// already stored message ID are skipped.
func (w *Writer) writeBatch(ctx context.Context, txns []*api.Transaction) error {
	tx, err := w.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, txn := range txns {
		e, ok := w.toExpense(txn)
		if !ok {
			continue
		}
		batch.Queue(insertExpenseSQL, insertArgs(e)...)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (w *Writer) toExpense(txn *api.Transaction) (ledger.Expense, bool) {
	if _, err := time.Parse(api.DateLayout, txn.Date); err != nil {
		w.logger().Warn("skipping transaction with invalid date", "message_id", txn.MessageID, "date", txn.Date)
		return ledger.Expense{}, false
	}
	if txn.Amount.IsNegative() {
		w.logger().Warn("skipping transaction with negative amount", "message_id", txn.MessageID)
		return ledger.Expense{}, false
	}

	category := txn.SuggestedCategory
	if !category.Valid() {
		category = api.CategoryOther
	}
	return ledger.Expense{
		ID:        uuid.NewString(),
		Phone:     w.phone,
		Date:      txn.Date,
		Amount:    txn.Amount,
		Category:  category,
		Note:      txn.Note,
		MessageID: txn.MessageID,
		CreatedAt: w.now().UTC(),
	}, true
}
