package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/logging"
)

// startPostgres runs a throwaway PostgreSQL container and opens a Store on it.
func startPostgres(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("spendsense"),
		tcpostgres.WithUsername("spendsense"),
		tcpostgres.WithPassword("spendsense"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, Config{DSN: dsn}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Open(ctx, Config{
		Host:            "127.0.0.1",
		Port:            1,
		Database:        "spendsense",
		User:            "spendsense",
		ConnectAttempts: 2,
		ConnectDelay:    10 * time.Millisecond,
	}, logging.Discard())
	assert.ErrorContains(t, err, "pinging database")
}

func TestConnString(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=require", cfg.connString())

	cfg.DSN = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", cfg.connString())
}

func TestStore(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	t.Run("users", func(t *testing.T) {
		u := ledger.User{ID: "u1", Phone: "9876543210", PasswordHash: []byte("hash"), CreatedAt: now}
		require.NoError(t, s.CreateUser(ctx, u))
		assert.ErrorIs(t, s.CreateUser(ctx, u), ledger.ErrAlreadyRegistered)

		got, err := s.GetUser(ctx, u.Phone)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
		assert.True(t, now.Equal(got.CreatedAt))

		_, err = s.GetUser(ctx, "nobody")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("expenses", func(t *testing.T) {
		insert := func(id, date, amount string, category api.Category) {
			require.NoError(t, s.InsertExpense(ctx, ledger.Expense{
				ID: id, Phone: "p1", Date: date, Amount: decimal.RequireFromString(amount),
				Category: category, CreatedAt: now,
			}))
		}
		insert("a", "2026-01-05", "0.10", api.CategoryShopping)
		insert("b", "2026-01-06", "0.20", api.CategoryShopping)
		insert("c", "2026-01-07", "50.125", api.CategoryTravel)

		e, err := s.GetExpense(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "2026-01-07", e.Date)
		assert.Equal(t, "50.125", e.Amount.String())

		list, err := s.ListExpenses(ctx, "p1", ledger.DateRange{Start: "2026-01-06", End: "2026-01-07"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c", list[0].ID)

		totals, err := s.Summarize(ctx, ledger.SummaryFilter{
			Phone: "p1",
			Range: ledger.DateRange{Start: "2026-01-01", End: "2026-01-31"},
		})
		require.NoError(t, err)
		require.Len(t, totals, 2)
		assert.Equal(t, api.CategoryTravel, totals[0].Category)
		assert.Equal(t, "0.3", totals[1].TotalAmount.String())
		assert.Equal(t, 2, totals[1].Count)

		require.NoError(t, s.UpdateExpense(ctx, "a", ledger.ExpenseUpdate{Category: api.CategoryOther, Note: "x"}))
		require.NoError(t, s.DeleteExpense(ctx, "b"))
		assert.ErrorIs(t, s.DeleteExpense(ctx, "b"), ledger.ErrNotFound)
		_, err = s.GetExpense(ctx, "b")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("writer", func(t *testing.T) {
		w, err := s.Writer(WriterConfig{Phone: "p2", BatchSize: 2, FlushInterval: time.Second})
		require.NoError(t, err)

		in := make(chan *api.Transaction, 4)
		ack := make(chan string, 4)
		mk := func(id, date string) *api.Transaction {
			return &api.Transaction{
				ParseResult: api.ParseResult{
					Amount: decimal.NewFromInt(10), Date: date, SuggestedCategory: api.CategoryFoodDining,
				},
				MessageID: id,
			}
		}
		in <- mk("m1", "2026-02-01")
		in <- mk("m1", "2026-02-01")
		in <- mk("m2", "garbage")
		in <- mk("m3", "2026-02-02")
		close(in)

		require.NoError(t, w.Write(ctx, in, ack))
		close(ack)

		var acked []string
		for id := range ack {
			acked = append(acked, id)
		}
		assert.Equal(t, []string{"m1", "m1", "m2", "m3"}, acked)

		list, err := s.ListExpenses(ctx, "p2", ledger.DateRange{})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
