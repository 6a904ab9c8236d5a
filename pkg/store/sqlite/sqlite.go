// Package sqlite implements ledger.Store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a ledger.Store backed by SQLite in WAL mode.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}

	logger.Info("opened sqlite store", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u ledger.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Phone, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ledger.ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, phone string) (ledger.User, error) {
	var (
		u       ledger.User
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, password_hash, created_at FROM users WHERE phone = ?`, phone,
	).Scan(&u.ID, &u.Phone, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return ledger.User{}, fmt.Errorf("parse user created_at: %w", err)
	}
	return u, nil
}

func (s *Store) InsertExpense(ctx context.Context, e ledger.Expense) error {
	var messageID any
	if e.MessageID != "" {
		messageID = e.MessageID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, phone, date, amount, category, subcategory, note, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
	`, e.ID, e.Phone, e.Date, e.Amount.String(), string(e.Category), e.Subcategory, e.Note, messageID,
		e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, phone, date, amount, category, subcategory, note, COALESCE(message_id, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (ledger.Expense, error) {
	var (
		e                ledger.Expense
		amount, category string
		created          string
	)
	if err := row.Scan(&e.ID, &e.Phone, &e.Date, &amount, &category, &e.Subcategory, &e.Note, &e.MessageID, &created); err != nil {
		return ledger.Expense{}, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Expense{}, fmt.Errorf("parse amount of %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return ledger.Expense{}, fmt.Errorf("parse created_at of %s: %w", e.ID, err)
	}
	e.Category = api.Category(category)
	return e, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (ledger.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Expense{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("query expense: %w", err)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, phone string, r ledger.DateRange) ([]ledger.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE phone = ?`
	args := []any{phone}
	query, args = appendRange(query, args, r)
	query += ` ORDER BY date DESC, created_at DESC`

	return s.queryExpenses(ctx, query, args...)
}

func appendRange(query string, args []any, r ledger.DateRange) (string, []any) {
	if r.Start != "" {
		query += ` AND date >= ?`
		args = append(args, r.Start)
	}
	if r.End != "" {
		query += ` AND date <= ?`
		args = append(args, r.End)
	}
	return query, args
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]ledger.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, id string, u ledger.ExpenseUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET category = ?, subcategory = ?, note = ? WHERE id = ?`,
		string(u.Category), u.Subcategory, u.Note, id,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// Summarize aggregates in Go: amounts are stored as decimal text, which
// SQLite's SUM would round through float64.
func (s *Store) Summarize(ctx context.Context, f ledger.SummaryFilter) ([]ledger.CategoryTotal, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE phone = ?`
	args := []any{f.Phone}
	query, args = appendRange(query, args, f.Range)
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}

	expenses, err := s.queryExpenses(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	index := map[api.Category]int{}
	var totals []ledger.CategoryTotal
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(totals)
			index[e.Category] = i
			totals = append(totals, ledger.CategoryTotal{Category: e.Category})
		}
		totals[i].TotalAmount = totals[i].TotalAmount.Add(e.Amount)
		totals[i].Count++
	}

	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].TotalAmount.GreaterThan(totals[j].TotalAmount)
	})
	return totals, nil
}
