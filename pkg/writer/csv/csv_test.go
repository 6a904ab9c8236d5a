package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/logging"
)

func txn(id, amount, merchant string) *api.Transaction {
	return &api.Transaction{
		ParseResult: api.ParseResult{
			Status:            api.StatusSuccess,
			Amount:            decimal.RequireFromString(amount),
			Date:              "2026-01-12",
			Merchant:          merchant,
			Note:              "paid, with a comma",
			IsBank:            true,
			Confidence:        0.95,
			SuggestedCategory: api.CategoryShopping,
			Rule:              "bank_debit_sms",
		},
		Sender:     "HDFCBK",
		Source:     "sms",
		ReceivedAt: time.Date(2026, 1, 12, 8, 30, 0, 0, time.UTC),
		MessageID:  id,
	}
}

func writeAll(t *testing.T, path string, txns ...*api.Transaction) []string {
	t.Helper()
	w, err := New(Config{FilePath: path, BatchSize: 2, FlushInterval: time.Hour}, logging.Discard())
	require.NoError(t, err)

	in := make(chan *api.Transaction, len(txns))
	ack := make(chan string, len(txns))
	for _, x := range txns {
		in <- x
	}
	close(in)

	require.NoError(t, w.Write(context.Background(), in, ack))
	require.NoError(t, w.Close())
	close(ack)

	var acked []string
	for id := range ack {
		acked = append(acked, id)
	}
	return acked
}

func TestWriter_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	acked := writeAll(t, path, txn("a", "500", "John Store"), txn("b", "1234.50", "Amazon"), txn("c", "1", "Metro"))
	assert.Equal(t, []string{"a", "b", "c"}, acked)

	writeAll(t, path, txn("d", "20", "Cafe"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "date,amount,merchant"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	require.NoError(t, gocsv.UnmarshalFile(f, &records))
	require.Len(t, records, 4)

	assert.Equal(t, "a", records[0].MessageID)
	assert.Equal(t, "500", records[0].Amount)
	assert.Equal(t, "John Store", records[0].Merchant)
	assert.Equal(t, api.CategoryShopping, records[0].Category)
	assert.Equal(t, "paid, with a comma", records[0].Note)
	assert.Equal(t, "2026-01-12T08:30:00Z", records[0].ReceivedAt)
	assert.True(t, records[0].IsBank)
	assert.Equal(t, "1234.5", records[1].Amount)
	assert.Equal(t, "d", records[3].MessageID)
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(Config{FilePath: filepath.Join(t.TempDir(), "missing", "out.csv")}, logging.Discard())
	assert.ErrorContains(t, err, "opening csv file")
}

func TestNewRecord_ZeroReceivedAt(t *testing.T) {
	x := txn("a", "1", "m")
	x.ReceivedAt = time.Time{}
	assert.Empty(t, NewRecord(x).ReceivedAt)
}
