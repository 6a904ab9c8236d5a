// Package mbox provides a plugin wrapper for the mbox archive reader.
package mbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	mboxreader "github.com/spendsense/spendsense/pkg/reader/mbox"
)

// Plugin implements the ReaderPlugin interface for mbox files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "mbox"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Replay bank alert e-mails from an mbox archive"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	// Local files need no OAuth scopes
	return nil
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the mbox file",
			},
			"source": map[string]any{
				"type":        "string",
				"description": "Transaction source identifier (default: the file path)",
			},
		},
		"required": []string{"filePath"},
	}
}

// Config represents the mbox reader configuration.
type Config struct {
	FilePath string `json:"filePath"`
	Source   string `json:"source,omitempty"`
}

// NewReader creates a new mbox reader instance.
func (p *Plugin) NewReader(_ context.Context, env plugins.Env, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mbox config: %w", err)
	}
	if cfg.FilePath == "" {
		return nil, errors.New("filePath is required")
	}

	return mboxreader.New(env.Parser, mboxreader.Config{Path: cfg.FilePath, Source: cfg.Source}, logger)
}
