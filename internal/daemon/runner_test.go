package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/config"
	"github.com/spendsense/spendsense/pkg/logging"
)

// sliceReader emits a fixed number of transactions and stops.
type sliceReader struct {
	count int
	err   error
}

func (s *sliceReader) Read(ctx context.Context, out chan<- *api.Transaction, _ <-chan string) error {
	defer close(out)
	for i := range s.count {
		select {
		case out <- &api.Transaction{MessageID: fmt.Sprintf("m%d", i)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

// blockingReader emits nothing until canceled.
type blockingReader struct{}

func (blockingReader) Read(ctx context.Context, out chan<- *api.Transaction, _ <-chan string) error {
	defer close(out)
	<-ctx.Done()
	return ctx.Err()
}

// ackingWriter records every transaction and acknowledges it.
type ackingWriter struct {
	mu     sync.Mutex
	got    []string
	closed bool
}

func (w *ackingWriter) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	for txn := range in {
		w.mu.Lock()
		w.got = append(w.got, txn.MessageID)
		w.mu.Unlock()
		select {
		case ackChan <- txn.MessageID:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *ackingWriter) Close() error {
	w.closed = true
	return nil
}

type readerPlugin struct{ reader api.Reader }

func (p readerPlugin) Name() string                 { return "test" }
func (p readerPlugin) Description() string          { return "" }
func (p readerPlugin) RequiredScopes() []string     { return nil }
func (p readerPlugin) ConfigSchema() map[string]any { return nil }
func (p readerPlugin) NewReader(context.Context, plugins.Env, json.RawMessage, *slog.Logger) (api.Reader, error) {
	return p.reader, nil
}

type writerPlugin struct {
	writer api.Writer
	err    error
}

func (p writerPlugin) Name() string                 { return "test" }
func (p writerPlugin) Description() string          { return "" }
func (p writerPlugin) RequiredScopes() []string     { return nil }
func (p writerPlugin) ConfigSchema() map[string]any { return nil }
func (p writerPlugin) NewWriter(context.Context, plugins.Env, json.RawMessage, *slog.Logger) (api.Writer, error) {
	return p.writer, p.err
}

func newRunner(t *testing.T, reader api.Reader, writer writerPlugin) *Runner {
	t.Helper()
	registry := plugins.NewRegistry()
	require.NoError(t, registry.RegisterReader(readerPlugin{reader: reader}))
	require.NoError(t, registry.RegisterWriter(writer))
	return New(registry, plugins.Env{}, logging.Discard())
}

func pipelineConfig() config.Config {
	cfg := config.Default()
	cfg.ReaderPlugin = "test"
	cfg.WriterPlugin = "test"
	return cfg
}

func TestRun_RequiresPlugins(t *testing.T) {
	r := New(plugins.NewRegistry(), plugins.Env{}, logging.Discard())

	err := r.Run(context.Background(), config.Default())
	assert.ErrorContains(t, err, "SPENDSENSE_READER")

	cfg := config.Default()
	cfg.ReaderPlugin = "gmail"
	assert.ErrorContains(t, r.Run(context.Background(), cfg), "SPENDSENSE_WRITER")

	cfg.WriterPlugin = "csv"
	assert.ErrorContains(t, r.Run(context.Background(), cfg), "creating reader")
}

func TestRun_InvalidPluginConfig(t *testing.T) {
	r := newRunner(t, &sliceReader{}, writerPlugin{writer: &ackingWriter{}})
	cfg := pipelineConfig()
	cfg.WriterConfig = "{"
	assert.ErrorContains(t, r.Run(context.Background(), cfg), "SPENDSENSE_WRITER_CONFIG")
}

func TestRun_WriterCreationFails(t *testing.T) {
	r := newRunner(t, &sliceReader{}, writerPlugin{err: errors.New("boom")})
	assert.ErrorContains(t, r.Run(context.Background(), pipelineConfig()), "creating writer: boom")
}

func TestRun_DrainsAcksAfterReaderStops(t *testing.T) {
	// More acks than the channel holds, with nobody but the runner reading them.
	const n = 3 * channelSize
	writer := &ackingWriter{}
	r := newRunner(t, &sliceReader{count: n}, writerPlugin{writer: writer})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), pipelineConfig()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}
	assert.Len(t, writer.got, n)
	assert.True(t, writer.closed)
}

func TestRun_ReaderError(t *testing.T) {
	r := newRunner(t, &sliceReader{count: 1, err: errors.New("mailbox truncated")}, writerPlugin{writer: &ackingWriter{}})
	err := r.Run(context.Background(), pipelineConfig())
	assert.ErrorContains(t, err, "reader: mailbox truncated")
}

func TestRun_CancelIsCleanStop(t *testing.T) {
	r := newRunner(t, blockingReader{}, writerPlugin{writer: &ackingWriter{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, pipelineConfig()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}
