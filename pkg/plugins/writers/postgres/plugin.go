// Package postgres provides a plugin wrapper for the PostgreSQL writer.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	pgstore "github.com/spendsense/spendsense/pkg/store/postgres"
)

// Plugin implements the WriterPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store parsed transactions as expenses in a PostgreSQL database"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// PostgreSQL writer doesn't require OAuth scopes.
func (p *Plugin) RequiredScopes() []string {
	return []string{}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host": map[string]any{
				"type":        "string",
				"description": "PostgreSQL host address",
				"default":     "localhost",
			},
			"port": map[string]any{
				"type":        "integer",
				"description": "PostgreSQL port",
				"default":     5432,
			},
			"database": map[string]any{
				"type":        "string",
				"description": "Database name",
				"default":     "spendsense",
			},
			"user":     map[string]any{"type": "string", "description": "Database user"},
			"password": map[string]any{"type": "string", "description": "Database password"},
			"sslmode": map[string]any{
				"type":        "string",
				"description": "SSL mode (disable, require, verify-ca, verify-full)",
				"default":     "disable",
				"enum":        []string{"disable", "require", "verify-ca", "verify-full"},
			},
			"phone": map[string]any{
				"type":        "string",
				"description": "Phone number that owns the stored expenses",
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of transactions to buffer before writing (default: 10)",
				"default":     10,
			},
			"flushInterval": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds between automatic flushes (default: 30)",
				"default":     30,
			},
			"maxPoolSize": map[string]any{
				"type":        "integer",
				"description": "Maximum number of connections in the pool (default: 10)",
				"default":     10,
			},
		},
		"required": []string{"host", "database", "user", "password", "phone"},
	}
}

// Config represents the PostgreSQL writer configuration.
type Config struct {
	Host          string `json:"host"`
	Port          int    `json:"port,omitempty"`
	Database      string `json:"database"`
	User          string `json:"user"`
	Password      string `json:"password"`
	SSLMode       string `json:"sslmode,omitempty"`
	Phone         string `json:"phone"`
	BatchSize     int    `json:"batchSize,omitempty"`
	FlushInterval int    `json:"flushInterval,omitempty"` // in seconds
	MaxPoolSize   int    `json:"maxPoolSize,omitempty"`
}

// Writer is a batching writer that owns its connection pool.
type Writer struct {
	*pgstore.Writer
	store *pgstore.Store
}

// Close releases the connection pool.
func (w *Writer) Close() error {
	return w.store.Close()
}

// NewWriter connects to the database and creates a new PostgreSQL writer instance.
func (p *Plugin) NewWriter(ctx context.Context, _ plugins.Env, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}

	switch {
	case cfg.Host == "":
		return nil, errors.New("host is required")
	case cfg.Database == "":
		return nil, errors.New("database is required")
	case cfg.User == "":
		return nil, errors.New("user is required")
	case cfg.Password == "":
		return nil, errors.New("password is required")
	case cfg.Phone == "":
		return nil, errors.New("phone is required")
	}

	store, err := pgstore.Open(ctx, pgstore.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		SSLMode:     cfg.SSLMode,
		MaxPoolSize: cfg.MaxPoolSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	w, err := store.Writer(pgstore.WriterConfig{
		Phone:         cfg.Phone,
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Writer{Writer: w, store: store}, nil
}
