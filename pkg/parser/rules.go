package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/pkg/api"
)

// Rule names, reported in api.ParseResult.Rule.
const (
	RulePaymentConfirmation = "payment_confirmation"
	RuleBankDebitSMS        = "bank_debit_sms"
	RuleDebitNotification   = "debit_notification"
	RuleBareAmount          = "bare_amount"
)

// Placeholder merchants for rules that cannot recover a payee.
const (
	MerchantBank    = "Bank"
	MerchantUnknown = "Unknown"
)

// merchantClass matches a payee name: letters, digits, underscore, space, '&', '.', '-'.
const merchantClass = `[\p{L}\p{N}_ &.\-]`

// Rule is one entry of the pattern cascade.
type Rule interface {
	// Name identifies the rule in results and logs.
	Name() string
	// Match reports whether the rule fires on text and what it captured.
	Match(text string) (Match, bool)
}

// Verdict is a sender classification.
type Verdict struct {
	IsBank     bool
	Confidence float64
}

// Match is the structured capture of a rule that fired.
type Match struct {
	Amount decimal.Decimal
	// RawDate is the literal date text, tried against DateLayouts in order.
	// Empty means the message carries no date.
	RawDate     string
	DateLayouts []string
	Merchant    string
	// Verdict overrides sender classification when set.
	Verdict *Verdict
	// Category is used as-is when set; otherwise it is suggested from Merchant.
	Category api.Category
}

// amountParser converts a captured amount token to a decimal.
type amountParser struct {
	separator string
}

// parse strips thousands separators and rejects anything that is not a
// non-negative decimal number.
func (a amountParser) parse(token string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(token, a.separator, "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || amount.IsNegative() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// patterns holds the regex fragments shared by every rule.
type patterns struct {
	currency string
	amount   string
}

func newPatterns(cfg Config) patterns {
	return patterns{
		currency: "[" + quoteClass(cfg.CurrencyMarkers) + "]*",
		amount:   "([0-9][0-9" + quoteClass(cfg.ThousandsSeparator) + "]*(?:\\.[0-9]+)?)",
	}
}

// quoteClass escapes s for use inside a bracketed character class.
func quoteClass(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\]^-[.`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// paymentConfirmation matches UPI app receipts such as
// "paid ₹123.45 to ABC Store on 10 Jan 2026".
type paymentConfirmation struct {
	re      *regexp.Regexp
	amounts amountParser
}

func newPaymentConfirmation(p patterns, a amountParser) (*paymentConfirmation, error) {
	re, err := regexp.Compile(`(?i)paid ` + p.currency + p.amount + ` to (` + merchantClass + `+) on ([0-9]{1,2} [A-Za-z]{3,} [0-9]{4})`)
	if err != nil {
		return nil, err
	}
	return &paymentConfirmation{re: re, amounts: a}, nil
}

func (r *paymentConfirmation) Name() string { return RulePaymentConfirmation }

func (r *paymentConfirmation) Match(text string) (Match, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return Match{}, false
	}
	amount, ok := r.amounts.parse(m[1])
	if !ok {
		return Match{}, false
	}
	return Match{
		Amount:      amount,
		RawDate:     m[3],
		DateLayouts: []string{"2 Jan 2006", "2 January 2006"},
		Merchant:    strings.TrimSpace(m[2]),
		Verdict:     &Verdict{IsBank: true, Confidence: confidencePaymentApp},
	}, true
}

// bankDebitSMS matches account debit alerts such as
// "debited for Rs.1.00 on 11-01-26 trf to SANDEEP GUPTA".
type bankDebitSMS struct {
	re      *regexp.Regexp
	amounts amountParser
}

func newBankDebitSMS(p patterns, a amountParser) (*bankDebitSMS, error) {
	re, err := regexp.Compile(`(?i)debited for ` + p.currency + p.amount + ` on ([0-9]{2}-[0-9]{2}-[0-9]{2,4})(?: .*to (` + merchantClass + `+))?`)
	if err != nil {
		return nil, err
	}
	return &bankDebitSMS{re: re, amounts: a}, nil
}

func (r *bankDebitSMS) Name() string { return RuleBankDebitSMS }

func (r *bankDebitSMS) Match(text string) (Match, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return Match{}, false
	}
	amount, ok := r.amounts.parse(m[1])
	if !ok {
		return Match{}, false
	}
	match := Match{
		Amount:      amount,
		RawDate:     m[2],
		DateLayouts: []string{"02-01-2006", "02-01-06"},
		Merchant:    strings.TrimSpace(m[3]),
	}
	if match.Merchant == "" {
		match.Merchant = MerchantBank
		match.Category = api.CategoryBillsUtilities
	}
	return match, true
}

// debitNotification matches e-mail style alerts such as
// "Account XX123 has been DEBITED for Rs.1.00".
type debitNotification struct {
	re      *regexp.Regexp
	amounts amountParser
}

func newDebitNotification(p patterns, a amountParser) (*debitNotification, error) {
	re, err := regexp.Compile(`(?i)DEBITED for ` + p.currency + p.amount)
	if err != nil {
		return nil, err
	}
	return &debitNotification{re: re, amounts: a}, nil
}

func (r *debitNotification) Name() string { return RuleDebitNotification }

func (r *debitNotification) Match(text string) (Match, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return Match{}, false
	}
	amount, ok := r.amounts.parse(m[1])
	if !ok {
		return Match{}, false
	}
	return Match{
		Amount:   amount,
		Merchant: MerchantBank,
		Category: api.CategoryBillsUtilities,
	}, true
}

// bareAmount takes the first number in the text when nothing better matched.
type bareAmount struct {
	re      *regexp.Regexp
	amounts amountParser
}

func newBareAmount(p patterns, a amountParser) (*bareAmount, error) {
	re, err := regexp.Compile(p.currency + p.amount)
	if err != nil {
		return nil, err
	}
	return &bareAmount{re: re, amounts: a}, nil
}

func (r *bareAmount) Name() string { return RuleBareAmount }

func (r *bareAmount) Match(text string) (Match, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return Match{}, false
	}
	amount, ok := r.amounts.parse(m[1])
	if !ok {
		return Match{}, false
	}
	return Match{
		Amount:   amount,
		Merchant: MerchantUnknown,
		Category: api.CategoryOther,
	}, true
}

// buildCascade compiles the rules in priority order.
func buildCascade(cfg Config) ([]Rule, error) {
	p := newPatterns(cfg)
	a := amountParser{separator: cfg.ThousandsSeparator}

	payment, err := newPaymentConfirmation(p, a)
	if err != nil {
		return nil, err
	}
	debitSMS, err := newBankDebitSMS(p, a)
	if err != nil {
		return nil, err
	}
	debitMail, err := newDebitNotification(p, a)
	if err != nil {
		return nil, err
	}
	bare, err := newBareAmount(p, a)
	if err != nil {
		return nil, err
	}

	return []Rule{payment, debitSMS, debitMail, bare}, nil
}
