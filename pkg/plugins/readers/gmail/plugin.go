// Package gmail provides a plugin wrapper for the Gmail reader.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	gmailreader "github.com/spendsense/spendsense/pkg/reader/gmail"
)

// Plugin implements the ReaderPlugin interface for Gmail.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "gmail"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read bank alert e-mails from Gmail and parse them into transactions"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		gmailapi.GmailReadonlyScope,
		gmailapi.GmailModifyScope,
	}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queries": map[string]any{
				"type":        "array",
				"description": "Mailbox searches whose results are parsed",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":    map[string]any{"type": "string", "description": "Query name for identification"},
						"query":   map[string]any{"type": "string", "description": "Gmail search query to match messages"},
						"source":  map[string]any{"type": "string", "description": "Transaction source identifier"},
						"enabled": map[string]any{"type": "boolean", "description": "Whether this query is enabled"},
					},
					"required": []string{"query", "enabled"},
				},
			},
			"interval": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds between mailbox polls (default: 10)",
				"default":     10,
			},
		},
		"required": []string{"queries"},
	}
}

// Config represents the Gmail reader configuration.
type Config struct {
	Queries  []gmailreader.Query `json:"queries"`
	Interval int                 `json:"interval,omitempty"` // in seconds
}

// NewReader creates a new Gmail reader instance.
func (p *Plugin) NewReader(ctx context.Context, env plugins.Env, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling gmail config: %w", err)
	}
	if len(cfg.Queries) == 0 {
		return nil, errors.New("at least one query is required")
	}
	for i, q := range cfg.Queries {
		if q.Query == "" {
			return nil, fmt.Errorf("query %d (%s): query is required", i, q.Name)
		}
	}
	if env.HTTPClient == nil {
		return nil, errors.New("gmail reader needs an authorized http client")
	}

	return gmailreader.New(ctx, env.HTTPClient, env.Parser, gmailreader.Config{
		Queries:  cfg.Queries,
		Interval: time.Duration(cfg.Interval) * time.Second,
	}, logger)
}
