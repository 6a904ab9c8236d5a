// Package ledger provides a plugin wrapper that records transactions in the
// configured expense store.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/writer/buffered"
)

// Plugin implements the WriterPlugin interface for the expense ledger.
type Plugin struct{}

func (p *Plugin) Name() string { return "ledger" }

func (p *Plugin) Description() string {
	return "Record parsed transactions as expenses in the configured store (SPENDSENSE_STORE)"
}

func (p *Plugin) RequiredScopes() []string { return nil }

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone":         map[string]any{"type": "string", "description": "Phone number that owns the recorded expenses"},
			"batchSize":     map[string]any{"type": "integer", "default": 10},
			"flushInterval": map[string]any{"type": "integer", "description": "Seconds between automatic flushes", "default": 30},
		},
		"required": []string{"phone"},
	}
}

// Config represents the ledger writer configuration.
type Config struct {
	Phone         string `json:"phone"`
	BatchSize     int    `json:"batchSize,omitempty"`
	FlushInterval int    `json:"flushInterval,omitempty"` // in seconds
}

// NewWriter creates a writer over the shared ledger service.
func (p *Plugin) NewWriter(_ context.Context, env plugins.Env, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling ledger config: %w", err)
	}
	if env.Ledger == nil {
		return nil, errors.New("ledger writer needs an open expense store")
	}

	return ledger.NewWriter(env.Ledger, cfg.Phone, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
	}, logger)
}
