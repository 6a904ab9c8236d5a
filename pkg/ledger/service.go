package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/logging"
)

const (
	minPhoneLength    = 10
	minPasswordLength = 4
)

// Service applies the ledger's business rules on top of a Store.
type Service struct {
	store      Store
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
	categories []api.Category
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithCategories sets the categories advertised by Categories. They do not
// change which categories an expense may carry.
func WithCategories(categories []api.Category) Option {
	return func(s *Service) { s.categories = append([]api.Category(nil), categories...) }
}

// NewService creates a Service backed by store.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      store,
		logger:     logger.With("component", "ledger"),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. Phone and password are trimmed first.
func (s *Service) Register(ctx context.Context, phone, password string) (User, error) {
	phone = strings.TrimSpace(phone)
	password = strings.TrimSpace(password)

	if len(phone) < minPhoneLength {
		return User{}, invalid("phone", fmt.Sprintf("must have at least %d digits", minPhoneLength))
	}
	if len(password) < minPasswordLength {
		return User{}, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, fmt.Errorf("registering user: %w", err)
	}

	logging.FromContext(ctx).Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the password for phone. A wrong password yields
// ErrInvalidCredentials, an unknown phone ErrUnknownPhone.
func (s *Service) Login(ctx context.Context, phone, password string) (User, error) {
	phone = strings.TrimSpace(phone)
	password = strings.TrimSpace(password)
	if phone == "" || password == "" {
		return User{}, invalid("credentials", "phone number and password are required")
	}

	u, err := s.store.GetUser(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnknownPhone
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logging.FromContext(ctx).Warn("login failed", "reason", "invalid_password")
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("checking password: %w", err)
	}
	return u, nil
}

// NewExpense is the input to AddExpense.
type NewExpense struct {
	Phone       string          `json:"phone"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    api.Category    `json:"category"`
	Subcategory string          `json:"subcategory"`
	Note        string          `json:"note"`
	MessageID   string          `json:"-"`
}

// AddExpense validates and stores a new expense for its phone.
func (s *Service) AddExpense(ctx context.Context, in NewExpense) (Expense, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return Expense{}, invalid("phone", "phone number is required")
	}
	if err := validateDate("date", in.Date); err != nil {
		return Expense{}, err
	}
	if in.Amount.IsNegative() {
		return Expense{}, invalid("amount", "must not be negative")
	}
	if !in.Category.Valid() {
		return Expense{}, invalid("category", fmt.Sprintf("unknown category %q", in.Category))
	}

	e := Expense{
		ID:          uuid.NewString(),
		Phone:       phone,
		Date:        in.Date,
		Amount:      in.Amount,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Note:        in.Note,
		MessageID:   in.MessageID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertExpense(ctx, e); err != nil {
		return Expense{}, fmt.Errorf("adding expense: %w", err)
	}

	logging.FromContext(ctx).Debug("expense added", "id", e.ID, "category", e.Category)
	return e, nil
}

// AddParsed records a parse result as an expense: the suggested category
// becomes the category and the original text the note.
func (s *Service) AddParsed(ctx context.Context, phone string, res api.ParseResult) (Expense, error) {
	return s.AddExpense(ctx, NewExpense{
		Phone:    phone,
		Date:     res.Date,
		Amount:   res.Amount,
		Category: res.SuggestedCategory,
		Note:     res.Note,
	})
}

// ListExpenses returns the phone's expenses, newest first. The date range
// applies only when both bounds are given. An empty phone lists nothing.
func (s *Service) ListExpenses(ctx context.Context, phone, start, end string) ([]Expense, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return []Expense{}, nil
	}

	var r DateRange
	if start != "" && end != "" {
		r = DateRange{Start: start, End: end}
	}

	expenses, err := s.store.ListExpenses(ctx, phone, r)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	if expenses == nil {
		expenses = []Expense{}
	}
	return expenses, nil
}

// UpdateExpense changes an owned expense's category, subcategory and note.
// It reports false when the stored values already match.
func (s *Service) UpdateExpense(ctx context.Context, id, phone string, u ExpenseUpdate) (bool, error) {
	e, err := s.owned(ctx, id, phone)
	if err != nil {
		return false, err
	}
	if !u.Category.Valid() {
		return false, invalid("category", fmt.Sprintf("unknown category %q", u.Category))
	}

	if e.Category == u.Category && e.Subcategory == u.Subcategory && e.Note == u.Note {
		return false, nil
	}
	if err := s.store.UpdateExpense(ctx, e.ID, u); err != nil {
		return false, fmt.Errorf("updating expense: %w", err)
	}
	return true, nil
}

// DeleteExpense removes an owned expense.
func (s *Service) DeleteExpense(ctx context.Context, id, phone string) error {
	e, err := s.owned(ctx, id, phone)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, e.ID); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	return nil
}

// owned fetches an expense and checks it belongs to phone.
func (s *Service) owned(ctx context.Context, id, phone string) (Expense, error) {
	id = strings.TrimSpace(id)
	phone = strings.TrimSpace(phone)
	if id == "" || phone == "" {
		return Expense{}, invalid("id", "expense ID and phone are required")
	}

	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return Expense{}, fmt.Errorf("fetching expense %s: %w", id, err)
	}
	if e.Phone != phone {
		return Expense{}, ErrForbidden
	}
	return e, nil
}

// Summarize totals the phone's expenses per category within the inclusive
// range, optionally restricted to one category, largest total first.
func (s *Service) Summarize(ctx context.Context, phone, start, end string, category api.Category) ([]CategoryTotal, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, invalid("phone", "phone number is required")
	}
	if err := validateDate("start_date", start); err != nil {
		return nil, err
	}
	if err := validateDate("end_date", end); err != nil {
		return nil, err
	}

	totals, err := s.store.Summarize(ctx, SummaryFilter{
		Phone:    phone,
		Range:    DateRange{Start: start, End: end},
		Category: category,
	})
	if err != nil {
		return nil, fmt.Errorf("summarizing expenses: %w", err)
	}
	if totals == nil {
		totals = []CategoryTotal{}
	}
	return totals, nil
}

// Categories returns the categories offered to clients, the closed set unless
// WithCategories narrowed it.
func (s *Service) Categories() []api.Category {
	if len(s.categories) == 0 {
		return api.Categories()
	}
	return append([]api.Category(nil), s.categories...)
}

func validateDate(field, value string) error {
	if _, err := time.Parse(api.DateLayout, value); err != nil {
		return invalid(field, fmt.Sprintf("%q is not a YYYY-MM-DD date", value))
	}
	return nil
}
