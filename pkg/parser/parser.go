// Package parser interprets free-form bank SMS, e-mail and push-notification
// text. A fixed cascade of surface patterns extracts the amount, date and
// merchant; the sender token is classified as bank or not; the merchant is
// mapped to an expense category.
//
// A Parser is immutable once built and safe for concurrent use.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spendsense/spendsense/pkg/api"
)

var (
	// ErrNoPatternMatch is returned when no cascade rule fires on the text.
	ErrNoPatternMatch = errors.New("could not parse transaction")
	// ErrCategorize wraps the parse failure behind a failed categorization.
	ErrCategorize = errors.New("could not categorize")
)

// Parser runs the pattern cascade, sender classifier and category suggester.
type Parser struct {
	rules          []Rule
	bankKeywords   []string
	categoryGroups []KeywordGroup
	clock          func() time.Time
	logger         *slog.Logger
}

// New builds a Parser from cfg.
func New(cfg Config, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parser config: %w", err)
	}
	cfg = cfg.clone()

	rules, err := buildCascade(cfg)
	if err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}

	upper := cases.Upper(language.Und)
	bankKeywords := make([]string, len(cfg.BankKeywords))
	for i, kw := range cfg.BankKeywords {
		bankKeywords[i] = upper.String(kw)
	}

	lower := cases.Lower(language.Und)
	groups := make([]KeywordGroup, len(cfg.CategoryGroups))
	for i, g := range cfg.CategoryGroups {
		keywords := make([]string, len(g.Keywords))
		for j, kw := range g.Keywords {
			keywords[j] = lower.String(kw)
		}
		groups[i] = KeywordGroup{Category: g.Category, Keywords: keywords}
	}

	return &Parser{
		rules:          rules,
		bankKeywords:   bankKeywords,
		categoryGroups: groups,
		clock:          cfg.Clock,
		logger:         logger,
	}, nil
}

var defaultParser = sync.OnceValue(func() *Parser {
	p, err := New(DefaultConfig(), nil)
	if err != nil {
		panic(fmt.Sprintf("parser: default config rejected: %v", err))
	}
	return p
})

// Default returns a Parser built from DefaultConfig.
func Default() *Parser {
	return defaultParser()
}

// Rules returns the cascade rule names in evaluation order.
func (p *Parser) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name()
	}
	return names
}

// Parse interprets text received from sender. sender may be empty.
func (p *Parser) Parse(text, sender string) (api.ParseResult, error) {
	return p.ParseContext(context.Background(), text, sender)
}

// ParseContext is Parse with a computation budget: it stops between rules
// once ctx is done and returns the context error.
func (p *Parser) ParseContext(ctx context.Context, text, sender string) (api.ParseResult, error) {
	return p.ParseAt(ctx, text, sender, p.clock())
}

// ParseAt is ParseContext with ref standing in for the current time when the
// text carries no usable date. Readers pass the message receive time.
func (p *Parser) ParseAt(ctx context.Context, text, sender string, ref time.Time) (api.ParseResult, error) {
	today := ref.UTC().Format(api.DateLayout)

	for _, rule := range p.rules {
		if err := ctx.Err(); err != nil {
			return api.ParseResult{}, fmt.Errorf("parsing transaction: %w", err)
		}

		m, ok := rule.Match(text)
		if !ok {
			continue
		}
		return p.resolve(rule.Name(), m, text, sender, today), nil
	}

	return api.ParseResult{}, ErrNoPatternMatch
}

// Categorize runs Parse and keeps only the category and confidence.
func (p *Parser) Categorize(text, sender string) (api.Categorization, error) {
	return p.CategorizeContext(context.Background(), text, sender)
}

// CategorizeContext is Categorize with a computation budget.
func (p *Parser) CategorizeContext(ctx context.Context, text, sender string) (api.Categorization, error) {
	res, err := p.ParseContext(ctx, text, sender)
	if err != nil {
		return api.Categorization{}, fmt.Errorf("%w: %w", ErrCategorize, err)
	}
	return api.Categorization{
		Status:            api.StatusSuccess,
		SuggestedCategory: res.SuggestedCategory,
		Confidence:        res.Confidence,
	}, nil
}

// resolve merges a rule match with sender classification and category lookup.
func (p *Parser) resolve(rule string, m Match, text, sender, today string) api.ParseResult {
	date := today
	if m.RawDate != "" {
		date = p.parseDate(rule, m.RawDate, m.DateLayouts, today)
	}

	verdict := p.classify(sender)
	if m.Verdict != nil {
		verdict = *m.Verdict
	}

	category := m.Category
	if category == "" {
		category = p.SuggestCategory(m.Merchant)
	}

	return api.ParseResult{
		Status:            api.StatusSuccess,
		Amount:            m.Amount,
		Date:              date,
		Merchant:          m.Merchant,
		Note:              text,
		IsBank:            verdict.IsBank,
		Confidence:        verdict.Confidence,
		SuggestedCategory: category,
		Rule:              rule,
	}
}

// parseDate tries each layout in order and falls back to today.
func (p *Parser) parseDate(rule, raw string, layouts []string, today string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(api.DateLayout)
		}
	}
	p.logger.Debug("date fallback", "rule", rule, "raw_date", raw, "date", today)
	return today
}
