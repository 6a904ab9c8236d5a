package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{"LOG_LEVEL": "warn", "LOG_FORMAT": "JSON"}
	cfg := configFromEnv(func(k string) string { return env[k] })

	assert.Equal(t, slog.LevelWarn, cfg.Level)
	assert.True(t, cfg.JSON)
	assert.NotNil(t, cfg.Output)

	cfg = configFromEnv(func(string) string { return "" })
	assert.Equal(t, slog.LevelInfo, cfg.Level)
	assert.False(t, cfg.JSON)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, JSON: true, Output: &buf})

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))

	var buf bytes.Buffer
	l := New(Config{JSON: true, Output: &buf})
	ctx = WithLogger(ctx, l)
	assert.Same(t, l, FromContext(ctx))
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{JSON: true, Output: &buf})

	var seenID string
	h := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "WARN", line["level"])
		assert.Equal(t, float64(http.StatusTeapot), line["status"])
		assert.Equal(t, seenID, line["request_id"])
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, "from-client")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "from-client", seenID)
		assert.Equal(t, "from-client", rec.Header().Get(RequestIDHeader))
	})
}
