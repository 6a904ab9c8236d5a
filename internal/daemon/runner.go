// Package daemon runs the reader to writer ingestion pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/config"
)

// channelSize bounds the transaction and acknowledgment queues.
const channelSize = 100

// Runner manages the ingestion pipeline lifecycle.
type Runner struct {
	registry *plugins.Registry
	env      plugins.Env
	logger   *slog.Logger
}

// New creates a new daemon runner.
func New(registry *plugins.Registry, env plugins.Env, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry: registry,
		env:      env,
		logger:   logger,
	}
}

// Run wires the configured reader to the configured writer and blocks until
// the reader is exhausted and the writer has flushed, or ctx is canceled.
// Cancellation is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	if cfg.ReaderPlugin == "" {
		return errors.New("SPENDSENSE_READER environment variable is required")
	}
	if cfg.WriterPlugin == "" {
		return errors.New("SPENDSENSE_WRITER environment variable is required")
	}
	readerConfig, writerConfig, err := cfg.PluginConfig()
	if err != nil {
		return err
	}

	r.logger.Info("starting ingestion pipeline",
		"reader", cfg.ReaderPlugin,
		"writer", cfg.WriterPlugin,
	)

	reader, err := r.registry.CreateReader(ctx,
		cfg.ReaderPlugin,
		r.env,
		readerConfig,
		r.logger.With("component", "reader", "plugin", cfg.ReaderPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating reader: %w", err)
	}

	writer, err := r.registry.CreateWriter(ctx,
		cfg.WriterPlugin,
		r.env,
		writerConfig,
		r.logger.With("component", "writer", "plugin", cfg.WriterPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	if c, ok := writer.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				r.logger.Warn("closing writer", "error", err)
			}
		}()
	}

	transactions := make(chan *api.Transaction, channelSize)
	ackChan := make(chan string, channelSize)

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writer.Write(ctx, transactions, ackChan)
	}()

	r.logger.Info("pipeline started")
	readErr := reader.Read(ctx, transactions, ackChan)

	// The reader no longer consumes acks; keep the writer from blocking on them.
	var writeErr error
wait:
	for {
		select {
		case writeErr = <-writerDone:
			break wait
		case id := <-ackChan:
			r.logger.Debug("acknowledged after reader stopped", "message_id", id)
		}
	}

	var errs []error
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		r.logger.Error("reader error", "error", readErr)
		errs = append(errs, fmt.Errorf("reader: %w", readErr))
	}
	if writeErr != nil && !errors.Is(writeErr, context.Canceled) {
		r.logger.Error("writer error", "error", writeErr)
		errs = append(errs, fmt.Errorf("writer: %w", writeErr))
	}

	r.logger.Info("pipeline stopped")
	return errors.Join(errs...)
}
