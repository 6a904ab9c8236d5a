package json

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/logging"
)

func txn(id string, amount int64) *api.Transaction {
	return &api.Transaction{
		ParseResult: api.ParseResult{
			Status:            api.StatusSuccess,
			Amount:            decimal.NewFromInt(amount),
			Date:              "2026-02-21",
			Merchant:          "Uber India",
			SuggestedCategory: api.CategoryTransportation,
		},
		Source:    "sms",
		MessageID: id,
	}
}

func run(t *testing.T, w *Writer, txns ...*api.Transaction) {
	t.Helper()
	in := make(chan *api.Transaction, len(txns))
	for _, x := range txns {
		in <- x
	}
	close(in)
	require.NoError(t, w.Write(context.Background(), in, nil))
}

func TestWriter_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	w, err := New(Config{FilePath: path, FlushInterval: time.Hour}, logging.Discard())
	require.NoError(t, err)
	run(t, w, txn("a", 10), txn("b", 20))
	assert.Equal(t, 2, w.TransactionCount())

	w, err = New(Config{FilePath: path}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, w.TransactionCount())
	run(t, w, txn("c", 30))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []api.Transaction
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].MessageID)
	assert.True(t, decimal.NewFromInt(30).Equal(got[2].Amount))
	assert.Equal(t, api.CategoryTransportation, got[0].SuggestedCategory)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestNew_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(Config{FilePath: path}, logging.Discard())
	assert.Error(t, err)
}
