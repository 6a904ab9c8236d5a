// Package server exposes the parser and the expense ledger over HTTP/JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/logging"
	"github.com/spendsense/spendsense/pkg/parser"
)

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the server dependencies and limits.
type Config struct {
	Parser *parser.Parser
	Ledger *ledger.Service
	// Health is checked by /healthz when set.
	Health Pinger
	// ParseTimeout bounds each parse or categorize call. Defaults to 2s.
	ParseTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	parser          *parser.Parser
	ledger          *ledger.Service
	health          Pinger
	parseTimeout    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New creates a Server. Parser and Ledger are required.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.Parser == nil || cfg.Ledger == nil {
		return nil, errors.New("server: parser and ledger are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = 2 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		parser:          cfg.Parser,
		ledger:          cfg.Ledger,
		health:          cfg.Health,
		parseTimeout:    cfg.ParseTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger.With("component", "server"),
	}, nil
}

// Handler returns the routed handler wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/categories", s.handleCategories)

	mux.HandleFunc("POST /v1/transactions/parse", s.handleParse)
	mux.HandleFunc("POST /v1/transactions/categorize", s.handleCategorize)
	mux.HandleFunc("POST /v1/transactions/record", s.handleRecord)

	mux.HandleFunc("POST /v1/users/register", s.handleRegister)
	mux.HandleFunc("POST /v1/users/login", s.handleLogin)

	mux.HandleFunc("POST /v1/expenses", s.handleAddExpense)
	mux.HandleFunc("GET /v1/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /v1/expenses/summary", s.handleSummary)
	mux.HandleFunc("PATCH /v1/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /v1/expenses/{id}", s.handleDeleteExpense)

	return logging.Middleware(s.logger)(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
