// Package sheets provides a plugin wrapper for the Google Sheets writer.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	sheetswriter "github.com/spendsense/spendsense/pkg/writer/sheets"
)

// Plugin implements the WriterPlugin interface for Google Sheets.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sheets"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Append parsed transactions to a Google Sheet, one row per message"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		sheetsapi.SpreadsheetsScope,
	}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sheetTitle": map[string]any{
				"type":        "string",
				"description": "Title for a new spreadsheet (used if sheetId is not provided)",
			},
			"sheetId": map[string]any{
				"type":        "string",
				"description": "ID of an existing spreadsheet to use",
			},
			"sheetName": map[string]any{
				"type":        "string",
				"description": "Name of the sheet/tab within the spreadsheet",
			},
			"columns": map[string]any{
				"type":        "array",
				"description": "Row layout, left to right (default: every column except received_at)",
				"items": map[string]any{
					"type": "string",
					"enum": sheetswriter.ColumnNames(),
				},
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
		},
		"required": []string{"sheetName"},
	}
}

// Config represents the Sheets writer configuration.
type Config struct {
	SheetTitle    string   `json:"sheetTitle,omitempty"`
	SheetID       string   `json:"sheetId,omitempty"`
	SheetName     string   `json:"sheetName"`
	Columns       []string `json:"columns,omitempty"`
	BatchSize     int      `json:"batchSize,omitempty"`
	FlushInterval int      `json:"flushInterval,omitempty"` // in seconds
}

// NewWriter creates a new Sheets writer instance.
func (p *Plugin) NewWriter(ctx context.Context, env plugins.Env, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling sheets config: %w", err)
	}
	if cfg.SheetName == "" {
		return nil, errors.New("sheetName is required")
	}
	if cfg.SheetID == "" && cfg.SheetTitle == "" {
		return nil, errors.New("either sheetId or sheetTitle is required")
	}
	if env.HTTPClient == nil {
		return nil, errors.New("sheets writer needs an authorized http client")
	}

	columns := make([]sheetswriter.Column, len(cfg.Columns))
	for i, name := range cfg.Columns {
		columns[i] = sheetswriter.Column(name)
	}

	return sheetswriter.New(ctx, env.HTTPClient, sheetswriter.Config{
		SheetTitle:    cfg.SheetTitle,
		SheetID:       cfg.SheetID,
		SheetName:     cfg.SheetName,
		Columns:       columns,
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
	}, logger)
}
