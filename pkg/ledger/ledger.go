// Package ledger holds per-user expense records: registration and login,
// expense bookkeeping with ownership checks, and category summaries.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/pkg/api"
)

// User is a registered account, identified by phone number.
type User struct {
	ID           string
	Phone        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Expense is one recorded spend.
type Expense struct {
	ID          string          `json:"id"`
	Phone       string          `json:"phone"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    api.Category    `json:"category"`
	Subcategory string          `json:"subcategory"`
	Note        string          `json:"note"`
	// MessageID is the upstream message an ingested expense came from.
	MessageID string    `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpenseUpdate holds the editable fields of an expense.
type ExpenseUpdate struct {
	Category    api.Category `json:"category"`
	Subcategory string       `json:"subcategory"`
	Note        string       `json:"note"`
}

// DateRange is an inclusive range of ISO dates. A zero DateRange is unbounded.
type DateRange struct {
	Start string
	End   string
}

// IsZero reports whether the range applies no bound.
func (r DateRange) IsZero() bool {
	return r.Start == "" && r.End == ""
}

// SummaryFilter selects the expenses aggregated by Summarize.
type SummaryFilter struct {
	Phone    string
	Range    DateRange
	Category api.Category
}

// CategoryTotal is one row of a category summary.
type CategoryTotal struct {
	Category    api.Category    `json:"category"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int             `json:"count"`
}

// Store persists users and expenses. Implementations must be safe for
// concurrent use.
type Store interface {
	// CreateUser returns ErrAlreadyRegistered when the phone is taken.
	CreateUser(ctx context.Context, u User) error
	// GetUser returns ErrNotFound for an unknown phone.
	GetUser(ctx context.Context, phone string) (User, error)

	// InsertExpense is a no-op when an expense with the same non-empty
	// MessageID already exists.
	InsertExpense(ctx context.Context, e Expense) error
	// GetExpense returns ErrNotFound for an unknown ID.
	GetExpense(ctx context.Context, id string) (Expense, error)
	// ListExpenses returns the phone's expenses within r, newest date first.
	ListExpenses(ctx context.Context, phone string, r DateRange) ([]Expense, error)
	UpdateExpense(ctx context.Context, id string, u ExpenseUpdate) error
	DeleteExpense(ctx context.Context, id string) error
	// Summarize groups matching expenses by category, largest total first.
	Summarize(ctx context.Context, f SummaryFilter) ([]CategoryTotal, error)

	Close() error
}
