package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/logging"
	"github.com/spendsense/spendsense/pkg/store/sqlite"
)

func TestPlugin_NewWriter(t *testing.T) {
	p := &Plugin{}
	ctx := context.Background()

	_, err := p.NewWriter(ctx, plugins.Env{}, json.RawMessage(`{"phone":"9876543210"}`), logging.Discard())
	assert.ErrorContains(t, err, "open expense store")

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "expenses.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env := plugins.Env{Ledger: ledger.NewService(store, logging.Discard())}

	_, err = p.NewWriter(ctx, env, json.RawMessage(`{}`), logging.Discard())
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	w, err := p.NewWriter(ctx, env, json.RawMessage(`{"phone":"9876543210","batchSize":1}`), logging.Discard())
	require.NoError(t, err)

	in := make(chan *api.Transaction, 1)
	in <- &api.Transaction{
		ParseResult: api.ParseResult{
			Amount: decimal.NewFromInt(75), Date: "2026-01-09", SuggestedCategory: api.CategoryTransportation,
		},
		MessageID: "m1",
	}
	close(in)
	require.NoError(t, w.Write(ctx, in, nil))

	list, err := env.Ledger.ListExpenses(ctx, "9876543210", "", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, api.CategoryTransportation, list[0].Category)
}
