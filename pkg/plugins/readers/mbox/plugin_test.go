package mbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/logging"
	"github.com/spendsense/spendsense/pkg/parser"
)

func TestPlugin_NewReader(t *testing.T) {
	p := &Plugin{}
	env := plugins.Env{Parser: parser.Default()}

	_, err := p.NewReader(context.Background(), env, json.RawMessage(`{}`), logging.Discard())
	assert.ErrorContains(t, err, "filePath is required")

	_, err = p.NewReader(context.Background(), plugins.Env{}, json.RawMessage(`{"filePath":"a.mbox"}`), logging.Discard())
	assert.ErrorContains(t, err, "parser is required")

	r, err := p.NewReader(context.Background(), env, json.RawMessage(`{"filePath":"a.mbox","source":"export"}`), logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, r)
}
