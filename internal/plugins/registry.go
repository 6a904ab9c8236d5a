// Package plugins provides a plugin registry for transaction readers and writers.
package plugins

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/parser"
)

// Env carries the shared dependencies a plugin may build on.
type Env struct {
	// HTTPClient is an OAuth-authorized client. It is nil when no plugin in
	// the pipeline requested scopes.
	HTTPClient *http.Client
	// Parser interprets message text. Readers must use it.
	Parser *parser.Parser
	// Ledger is the configured expense store, if one was opened.
	Ledger *ledger.Service
}

// ReaderPlugin defines the interface for transaction reader plugins.
type ReaderPlugin interface {
	// Name returns the plugin name (e.g., "gmail", "mbox").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewReader creates a new reader instance with the given config.
	NewReader(ctx context.Context, env Env, config json.RawMessage, logger *slog.Logger) (api.Reader, error)
}

// WriterPlugin defines the interface for transaction writer plugins.
// A writer that also implements io.Closer is closed once the pipeline stops.
type WriterPlugin interface {
	Name() string
	Description() string
	RequiredScopes() []string
	ConfigSchema() map[string]any
	NewWriter(ctx context.Context, env Env, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available reader and writer plugins.
type Registry struct {
	readers map[string]ReaderPlugin
	writers map[string]WriterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[string]ReaderPlugin),
		writers: make(map[string]WriterPlugin),
	}
}

// RegisterReader registers a reader plugin.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error {
	name := plugin.Name()
	if _, exists := r.readers[name]; exists {
		return fmt.Errorf("reader plugin %q already registered", name)
	}
	r.readers[name] = plugin
	return nil
}

// RegisterWriter registers a writer plugin.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	name := plugin.Name()
	if _, exists := r.writers[name]; exists {
		return fmt.Errorf("writer plugin %q already registered", name)
	}
	r.writers[name] = plugin
	return nil
}

// GetReader returns a reader plugin by name.
func (r *Registry) GetReader(name string) (ReaderPlugin, error) {
	plugin, exists := r.readers[name]
	if !exists {
		return nil, fmt.Errorf("reader plugin %q not found", name)
	}
	return plugin, nil
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	plugin, exists := r.writers[name]
	if !exists {
		return nil, fmt.Errorf("writer plugin %q not found", name)
	}
	return plugin, nil
}

// ListReaders returns all registered reader plugins sorted by name.
func (r *Registry) ListReaders() []ReaderPlugin {
	plugins := make([]ReaderPlugin, 0, len(r.readers))
	for _, plugin := range r.readers {
		plugins = append(plugins, plugin)
	}
	slices.SortFunc(plugins, func(a, b ReaderPlugin) int { return cmp.Compare(a.Name(), b.Name()) })
	return plugins
}

// ListWriters returns all registered writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	plugins := make([]WriterPlugin, 0, len(r.writers))
	for _, plugin := range r.writers {
		plugins = append(plugins, plugin)
	}
	slices.SortFunc(plugins, func(a, b WriterPlugin) int { return cmp.Compare(a.Name(), b.Name()) })
	return plugins
}

// GetAllScopes returns the sorted, deduplicated OAuth scopes required by the
// given reader and writer.
func (r *Registry) GetAllScopes(readerName, writerName string) ([]string, error) {
	reader, err := r.GetReader(readerName)
	if err != nil {
		return nil, err
	}

	writer, err := r.GetWriter(writerName)
	if err != nil {
		return nil, err
	}

	scopes := append(slices.Clone(reader.RequiredScopes()), writer.RequiredScopes()...)
	slices.Sort(scopes)
	return slices.Compact(scopes), nil
}

// CreateReader creates a reader instance from a plugin.
func (r *Registry) CreateReader(ctx context.Context, name string, env Env, config json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	plugin, err := r.GetReader(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewReader(ctx, env, config, logger)
}

// CreateWriter creates a writer instance from a plugin.
func (r *Registry) CreateWriter(ctx context.Context, name string, env Env, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewWriter(ctx, env, config, logger)
}
