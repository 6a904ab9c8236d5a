package sheets

import (
	"fmt"
	"time"

	"github.com/spendsense/spendsense/pkg/api"
)

// Column names a transaction field written as one sheet column.
type Column string

// Available columns.
const (
	ColumnDate       Column = "date"
	ColumnMerchant   Column = "merchant"
	ColumnAmount     Column = "amount"
	ColumnCategory   Column = "category"
	ColumnRule       Column = "rule"
	ColumnBank       Column = "bank"
	ColumnConfidence Column = "confidence"
	ColumnSender     Column = "sender"
	ColumnSource     Column = "source"
	ColumnMessageID  Column = "message_id"
	ColumnReceivedAt Column = "received_at"
	ColumnNote       Column = "note"
)

// DefaultColumns is the row layout used when Config.Columns is empty.
var DefaultColumns = []Column{
	ColumnDate, ColumnMerchant, ColumnAmount, ColumnCategory, ColumnRule,
	ColumnBank, ColumnConfidence, ColumnSender, ColumnSource, ColumnMessageID, ColumnNote,
}

var columnTitles = map[Column]string{
	ColumnDate:       "Date",
	ColumnMerchant:   "Merchant",
	ColumnAmount:     "Amount",
	ColumnCategory:   "Category",
	ColumnRule:       "Rule",
	ColumnBank:       "Bank",
	ColumnConfidence: "Confidence",
	ColumnSender:     "Sender",
	ColumnSource:     "Source",
	ColumnMessageID:  "Message ID",
	ColumnReceivedAt: "Received At",
	ColumnNote:       "Note",
}

// ColumnNames lists every column a layout may use.
func ColumnNames() []string {
	names := make([]string, 0, len(columnTitles))
	for _, c := range DefaultColumns {
		names = append(names, string(c))
	}
	return append(names, string(ColumnReceivedAt))
}

func (c Column) value(t *api.Transaction) any {
	switch c {
	case ColumnDate:
		return t.Date
	case ColumnMerchant:
		return t.Merchant
	case ColumnAmount:
		return t.Amount.String()
	case ColumnCategory:
		return string(t.SuggestedCategory)
	case ColumnRule:
		return t.Rule
	case ColumnBank:
		return t.IsBank
	case ColumnConfidence:
		return t.Confidence
	case ColumnSender:
		return t.Sender
	case ColumnSource:
		return t.Source
	case ColumnMessageID:
		return t.MessageID
	case ColumnReceivedAt:
		if t.ReceivedAt.IsZero() {
			return ""
		}
		return t.ReceivedAt.UTC().Format(time.RFC3339)
	case ColumnNote:
		return t.Note
	}
	return ""
}

type layout []Column

func newLayout(cols []Column) (layout, error) {
	if len(cols) == 0 {
		return layout(DefaultColumns), nil
	}
	seen := make(map[Column]bool, len(cols))
	for _, c := range cols {
		if _, ok := columnTitles[c]; !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	return layout(cols), nil
}

func (l layout) header() []any {
	out := make([]any, len(l))
	for i, c := range l {
		out[i] = columnTitles[c]
	}
	return out
}

func (l layout) row(t *api.Transaction) []any {
	out := make([]any, len(l))
	for i, c := range l {
		out[i] = c.value(t)
	}
	return out
}

// span returns the A1 range of row n across the layout, e.g. "A2:K2".
func (l layout) span(n int) string {
	last := rune('A' + len(l) - 1)
	return fmt.Sprintf("A%d:%c%d", n, last, n)
}
