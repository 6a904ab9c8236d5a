package csv

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/logging"
)

func TestPlugin_NewWriter(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, "csv", p.Name())
	assert.Empty(t, p.RequiredScopes())
	assert.Contains(t, p.ConfigSchema()["required"], "filePath")

	_, err := p.NewWriter(context.Background(), plugins.Env{}, json.RawMessage(`{}`), logging.Discard())
	assert.ErrorContains(t, err, "filePath is required")

	_, err = p.NewWriter(context.Background(), plugins.Env{}, json.RawMessage(`[`), logging.Discard())
	assert.ErrorContains(t, err, "unmarshaling csv config")

	cfg := json.RawMessage(`{"filePath":"` + filepath.ToSlash(filepath.Join(t.TempDir(), "out.csv")) + `","batchSize":5,"flushInterval":1}`)
	w, err := p.NewWriter(context.Background(), plugins.Env{}, cfg, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, w)
}
