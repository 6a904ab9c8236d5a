package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/writer/buffered"
)

// Writer records ingested transactions as expenses owned by one phone.
type Writer struct {
	svc      *Service
	phone    string
	buffered *buffered.Writer
	logger   *slog.Logger
}

// NewWriter returns an api.Writer that stores transactions through svc.
func NewWriter(svc *Service, phone string, cfg buffered.Config, logger *slog.Logger) (*Writer, error) {
	if phone == "" {
		return nil, invalid("phone", "ledger writer needs an owner phone")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{svc: svc, phone: phone, logger: logger}
	w.buffered = buffered.New(w.flushBatch, cfg, logger.With("component", "ledger_buffer"))
	return w, nil
}

// Write consumes transactions from the input channel and stores them.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) flushBatch(ctx context.Context, txns []*api.Transaction) error {
	for _, txn := range txns {
		_, err := w.svc.AddExpense(ctx, NewExpense{
			Phone:     w.phone,
			Date:      txn.Date,
			Amount:    txn.Amount,
			Category:  txn.SuggestedCategory,
			Note:      txn.Note,
			MessageID: txn.MessageID,
		})
		var verr *ValidationError
		if errors.As(err, &verr) {
			// Retrying will not fix it; drop and let the ack go through.
			w.logger.Warn("skipping invalid transaction", "message_id", txn.MessageID, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("storing transaction %s: %w", txn.MessageID, err)
		}
	}
	return nil
}
