// Package postgres implements ledger.Store on PostgreSQL and provides a
// batching transaction writer on the same pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/ledger"
)

//go:embed 001_create_expenses.sql
var migrationSQL string

const uniqueViolation = "23505"

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DSN, when set, is used instead of the individual fields.
	DSN string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
	// ConnectAttempts bounds the initial connection retries.
	ConnectAttempts uint
	// ConnectDelay is the base delay between connection attempts.
	ConnectDelay time.Duration
}

func (c Config) connString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is a ledger.Store backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open connects to PostgreSQL, retrying while the server comes up, and runs
// the embedded migration.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.ConnectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("postgres not ready, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	s.logger.Info("running database migrations")
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Info("migrations completed successfully")
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	s.logger.Info("closed PostgreSQL connection pool")
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u ledger.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, phone, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Phone, u.PasswordHash, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ledger.ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, phone string) (ledger.User, error) {
	var u ledger.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, phone, password_hash, created_at FROM users WHERE phone = $1`, phone,
	).Scan(&u.ID, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

const insertExpenseSQL = `
	INSERT INTO expenses (id, phone, date, amount, category, subcategory, note, message_id, created_at)
	VALUES ($1, $2, $3::date, $4::numeric, $5, $6, $7, NULLIF($8, ''), $9)
	ON CONFLICT (message_id) DO NOTHING`

func insertArgs(e ledger.Expense) []any {
	return []any{
		e.ID, e.Phone, e.Date, e.Amount.String(), string(e.Category),
		e.Subcategory, e.Note, e.MessageID, e.CreatedAt,
	}
}

func (s *Store) InsertExpense(ctx context.Context, e ledger.Expense) error {
	if _, err := s.pool.Exec(ctx, insertExpenseSQL, insertArgs(e)...); err != nil {
		return fmt.Errorf("inserting expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, phone, date::text, amount::text, category, subcategory, note, COALESCE(message_id, ''), created_at`

func scanExpense(row pgx.Row) (ledger.Expense, error) {
	var (
		e                ledger.Expense
		amount, category string
	)
	if err := row.Scan(&e.ID, &e.Phone, &e.Date, &amount, &category, &e.Subcategory, &e.Note, &e.MessageID, &e.CreatedAt); err != nil {
		return ledger.Expense{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Expense{}, fmt.Errorf("parsing amount of %s: %w", e.ID, err)
	}
	e.Category = api.Category(category)
	return e, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (ledger.Expense, error) {
	e, err := scanExpense(s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Expense{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("querying expense: %w", err)
	}
	return e, nil
}

// whereClause builds the shared phone/date filter starting at $1.
func whereClause(phone string, r ledger.DateRange) (string, []any) {
	clause := ` WHERE phone = $1`
	args := []any{phone}
	if r.Start != "" {
		args = append(args, r.Start)
		clause += fmt.Sprintf(` AND date >= $%d::date`, len(args))
	}
	if r.End != "" {
		args = append(args, r.End)
		clause += fmt.Sprintf(` AND date <= $%d::date`, len(args))
	}
	return clause, args
}

func (s *Store) ListExpenses(ctx context.Context, phone string, r ledger.DateRange) ([]ledger.Expense, error) {
	where, args := whereClause(phone, r)
	rows, err := s.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses`+where+` ORDER BY date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, id string, u ledger.ExpenseUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE expenses SET category = $1, subcategory = $2, note = $3 WHERE id = $4`,
		string(u.Category), u.Subcategory, u.Note, id,
	)
	if err != nil {
		return fmt.Errorf("updating expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) Summarize(ctx context.Context, f ledger.SummaryFilter) ([]ledger.CategoryTotal, error) {
	where, args := whereClause(f.Phone, f.Range)
	if f.Category != "" {
		args = append(args, string(f.Category))
		where += fmt.Sprintf(` AND category = $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT category, SUM(amount)::text, COUNT(*)
		FROM expenses`+where+`
		GROUP BY category
		ORDER BY SUM(amount) DESC, category`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing expenses: %w", err)
	}
	defer rows.Close()

	var totals []ledger.CategoryTotal
	for rows.Next() {
		var (
			ct              ledger.CategoryTotal
			category, total string
		)
		if err := rows.Scan(&category, &total, &ct.Count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		if ct.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parsing total for %s: %w", category, err)
		}
		ct.Category = api.Category(category)
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}
