package plugins

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/pkg/api"
)

type stubReader struct {
	name   string
	scopes []string
	got    json.RawMessage
}

func (s *stubReader) Name() string                 { return s.name }
func (s *stubReader) Description() string          { return "stub reader" }
func (s *stubReader) RequiredScopes() []string     { return s.scopes }
func (s *stubReader) ConfigSchema() map[string]any { return map[string]any{"type": "object"} }
func (s *stubReader) NewReader(_ context.Context, _ Env, cfg json.RawMessage, _ *slog.Logger) (api.Reader, error) {
	s.got = cfg
	return nil, nil
}

type stubWriter struct {
	name   string
	scopes []string
}

func (s *stubWriter) Name() string                 { return s.name }
func (s *stubWriter) Description() string          { return "stub writer" }
func (s *stubWriter) RequiredScopes() []string     { return s.scopes }
func (s *stubWriter) ConfigSchema() map[string]any { return nil }
func (s *stubWriter) NewWriter(context.Context, Env, json.RawMessage, *slog.Logger) (api.Writer, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterReader(&stubReader{name: "mbox"}))
	require.NoError(t, r.RegisterReader(&stubReader{name: "gmail"}))
	assert.ErrorContains(t, r.RegisterReader(&stubReader{name: "gmail"}), "already registered")

	require.NoError(t, r.RegisterWriter(&stubWriter{name: "csv"}))
	assert.ErrorContains(t, r.RegisterWriter(&stubWriter{name: "csv"}), "already registered")

	var names []string
	for _, p := range r.ListReaders() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"gmail", "mbox"}, names)
	assert.Len(t, r.ListWriters(), 1)

	_, err := r.GetReader("imap")
	assert.ErrorContains(t, err, `reader plugin "imap" not found`)
	_, err = r.GetWriter("sheets")
	assert.ErrorContains(t, err, `writer plugin "sheets" not found`)
}

func TestRegistry_GetAllScopes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterReader(&stubReader{name: "gmail", scopes: []string{"gmail.modify", "gmail.readonly"}}))
	require.NoError(t, r.RegisterWriter(&stubWriter{name: "sheets", scopes: []string{"spreadsheets", "gmail.readonly"}}))
	require.NoError(t, r.RegisterWriter(&stubWriter{name: "csv"}))

	scopes, err := r.GetAllScopes("gmail", "sheets")
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail.modify", "gmail.readonly", "spreadsheets"}, scopes)

	scopes, err = r.GetAllScopes("gmail", "csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail.modify", "gmail.readonly"}, scopes)

	_, err = r.GetAllScopes("gmail", "missing")
	assert.Error(t, err)
}

func TestRegistry_CreateReader(t *testing.T) {
	r := NewRegistry()
	stub := &stubReader{name: "mbox"}
	require.NoError(t, r.RegisterReader(stub))

	_, err := r.CreateReader(context.Background(), "mbox", Env{}, json.RawMessage(`{"path":"x"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"x"}`, string(stub.got))

	_, err = r.CreateWriter(context.Background(), "nope", Env{}, nil, nil)
	assert.Error(t, err)
}
