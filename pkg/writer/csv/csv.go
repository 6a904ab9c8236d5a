// Package csv implements a Writer that appends transactions to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/writer/buffered"
)

// Record is one CSV row.
type Record struct {
	Date       string       `csv:"date"`
	Amount     string       `csv:"amount"`
	Merchant   string       `csv:"merchant"`
	Category   api.Category `csv:"category"`
	IsBank     bool         `csv:"is_bank"`
	Confidence float64      `csv:"confidence"`
	Rule       string       `csv:"rule"`
	Sender     string       `csv:"sender"`
	Source     string       `csv:"source"`
	ReceivedAt string       `csv:"received_at"`
	MessageID  string       `csv:"message_id"`
	Note       string       `csv:"note"`
}

// NewRecord flattens a transaction into a row.
func NewRecord(t *api.Transaction) Record {
	r := Record{
		Date:       t.Date,
		Amount:     t.Amount.String(),
		Merchant:   t.Merchant,
		Category:   t.SuggestedCategory,
		IsBank:     t.IsBank,
		Confidence: t.Confidence,
		Rule:       t.Rule,
		Sender:     t.Sender,
		Source:     t.Source,
		MessageID:  t.MessageID,
		Note:       t.Note,
	}
	if !t.ReceivedAt.IsZero() {
		r.ReceivedAt = t.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return r
}

// Writer writes transactions to a CSV file with buffered batching.
type Writer struct {
	filePath  string
	file      *os.File
	hasHeader bool
	mu        sync.Mutex
	buffered  *buffered.Writer
	logger    *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New opens (or creates) the CSV file for appending.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	w := &Writer{
		filePath:  cfg.FilePath,
		file:      file,
		hasHeader: stat.Size() > 0,
		logger:    logger,
	}
	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "csv_buffer"))

	logger.Info("csv writer initialized", "file", cfg.FilePath, "append", w.hasHeader)
	return w, nil
}

// Write consumes transactions from the input channel and appends them to the file.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	records := make([]Record, len(transactions))
	for i, t := range transactions {
		records[i] = NewRecord(t)
	}

	cw := gocsv.NewSafeCSVWriter(csv.NewWriter(w.file))
	marshal := gocsv.MarshalCSVWithoutHeaders
	if !w.hasHeader {
		marshal = gocsv.MarshalCSV
	}
	if err := marshal(records, cw); err != nil {
		return fmt.Errorf("writing csv records: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	w.hasHeader = true

	w.logger.Debug("wrote transactions to csv", "count", len(transactions))
	return nil
}

// Close closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}
	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
