package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/pkg/api"
)

// KeywordGroup maps a set of merchant substrings to a category.
type KeywordGroup struct {
	Category api.Category `json:"category" koanf:"category"`
	Keywords []string     `json:"keywords" koanf:"keywords"`
}

// Config holds the tables the parser is built from. A Config is copied into
// the Parser on construction; later changes to the caller's value have no effect.
type Config struct {
	// CurrencyMarkers lists the characters accepted in front of an amount.
	CurrencyMarkers string `json:"currencyMarkers" koanf:"currencyMarkers"`
	// ThousandsSeparator is stripped from amounts before conversion.
	ThousandsSeparator string `json:"thousandsSeparator" koanf:"thousandsSeparator"`
	// BankKeywords name banks and payment apps; matched against the upper-cased sender.
	BankKeywords []string `json:"bankKeywords" koanf:"bankKeywords"`
	// CategoryGroups are tested in order against the lower-cased merchant.
	CategoryGroups []KeywordGroup `json:"categoryGroups" koanf:"categoryGroups"`

	// Clock returns the evaluation time. Defaults to time.Now.
	Clock func() time.Time `json:"-" koanf:"-"`
}

// DefaultConfig returns the built-in currency, bank and category tables.
func DefaultConfig() Config {
	return Config{
		CurrencyMarkers:    "₹Rs.",
		ThousandsSeparator: ",",
		BankKeywords: []string{
			"KBL", "KARNATAKA", "SBI", "HDFC", "ICICI", "AXIS", "PNB", "YESBANK", "IDFC",
			"KOTAK", "CANARA", "BANK", "BNK", "PAYTM", "PHONEPE", "GOOGLEPAY", "GPAISA", "NBUPAISA",
		},
		CategoryGroups: []KeywordGroup{
			{
				Category: api.CategoryTransportation,
				Keywords: []string{"uber", "ola", "taxi", "cab", "fuel", "petrol", "metro", "bus"},
			},
			{
				Category: api.CategoryFoodDining,
				Keywords: []string{"restaurant", "cafe", "dine", "bar", "hotel", "food", "zomato", "swiggy"},
			},
			{
				Category: api.CategoryShopping,
				Keywords: []string{"flipkart", "amazon", "myntra", "shop", "store", "super", "grocery", "grocer", "mall"},
			},
			{
				Category: api.CategoryEntertainment,
				Keywords: []string{"netflix", "spotify", "movie", "cinema", "pvr", "inox"},
			},
			{
				Category: api.CategoryHealthcare,
				Keywords: []string{"hospital", "pharmacy", "doctor", "clinic", "medical", "health"},
			},
			{
				Category: api.CategoryBillsUtilities,
				Keywords: []string{"electricity", "water", "gas", "internet", "mobile", "recharge"},
			},
		},
		Clock: time.Now,
	}
}

// Validate reports the first problem that would prevent building a Parser.
func (c Config) Validate() error {
	if c.CurrencyMarkers == "" {
		return errors.New("currencyMarkers must not be empty")
	}
	if len([]rune(c.ThousandsSeparator)) != 1 {
		return fmt.Errorf("thousandsSeparator must be a single character, got %q", c.ThousandsSeparator)
	}
	if c.ThousandsSeparator == "." {
		return errors.New("thousandsSeparator must differ from the decimal point")
	}
	for i, kw := range c.BankKeywords {
		if kw == "" {
			return fmt.Errorf("bankKeywords[%d] is empty", i)
		}
	}
	for i, group := range c.CategoryGroups {
		if !group.Category.Valid() {
			return fmt.Errorf("categoryGroups[%d]: unknown category %q", i, group.Category)
		}
		for j, kw := range group.Keywords {
			if kw == "" {
				return fmt.Errorf("categoryGroups[%d].keywords[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// clone returns a deep copy so a Parser never shares slices with its caller.
func (c Config) clone() Config {
	out := c
	out.BankKeywords = append([]string(nil), c.BankKeywords...)
	out.CategoryGroups = make([]KeywordGroup, len(c.CategoryGroups))
	for i, g := range c.CategoryGroups {
		out.CategoryGroups[i] = KeywordGroup{
			Category: g.Category,
			Keywords: append([]string(nil), g.Keywords...),
		}
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}
