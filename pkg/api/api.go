// Package api defines the core interfaces and data structures for spendsense.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Category is an expense category label.
type Category string

// The closed set of expense categories.
const (
	CategoryFoodDining     Category = "Food & Dining"
	CategoryTransportation Category = "Transportation"
	CategoryShopping       Category = "Shopping"
	CategoryEntertainment  Category = "Entertainment"
	CategoryBillsUtilities Category = "Bills & Utilities"
	CategoryHealthcare     Category = "Healthcare"
	CategoryTravel         Category = "Travel"
	CategoryEducation      Category = "Education"
	CategoryBusiness       Category = "Business"
	CategoryOther          Category = "Other"
)

var categories = []Category{
	CategoryFoodDining,
	CategoryTransportation,
	CategoryShopping,
	CategoryEntertainment,
	CategoryBillsUtilities,
	CategoryHealthcare,
	CategoryTravel,
	CategoryEducation,
	CategoryBusiness,
	CategoryOther,
}

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the outcome of a parse or categorize call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DateLayout is the ISO 8601 calendar date layout used for every date field.
const DateLayout = time.DateOnly

// ParseResult holds the structured interpretation of one notification text.
type ParseResult struct {
	Status            Status          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Date              string          `json:"date"`
	Merchant          string          `json:"merchant"`
	Note              string          `json:"note"`
	IsBank            bool            `json:"is_bank"`
	Confidence        float64         `json:"confidence"`
	SuggestedCategory Category        `json:"suggested_category"`
	// Rule names the cascade rule that produced the result.
	Rule string `json:"rule,omitempty"`
}

// Categorization is the reduced view of a ParseResult returned by categorize.
type Categorization struct {
	Status            Status   `json:"status"`
	SuggestedCategory Category `json:"suggested_category"`
	Confidence        float64  `json:"confidence"`
}

// Transaction is a parsed notification travelling from a Reader to a Writer.
type Transaction struct {
	ParseResult

	// Sender is the raw sender token the message arrived with.
	Sender string `json:"sender,omitempty"`
	// Source identifies the reader query or mailbox the message came from.
	Source string `json:"source"`
	// ReceivedAt is when the source channel received the message.
	ReceivedAt time.Time `json:"received_at"`
	// MessageID is the upstream message ID (used for acknowledgment after a successful write).
	MessageID string `json:"message_id,omitempty"`
}

// Reader reads transactions from a source and sends them to the provided channel.
// Implementations should close the channel when done or on error.
// The ackChan is used to receive acknowledgments of successfully written transactions.
type Reader interface {
	Read(ctx context.Context, out chan<- *Transaction, ackChan <-chan string) error
}

// Writer consumes transactions from a channel and writes them to a destination.
// Successfully written transaction message IDs are sent to the ackChan.
type Writer interface {
	Write(ctx context.Context, in <-chan *Transaction, ackChan chan<- string) error
}
