// Package gmail implements a Reader that turns bank alert e-mails in a Gmail
// mailbox into transactions.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/parser"
	"github.com/spendsense/spendsense/pkg/reader/mailtext"
)

// DefaultInterval is the time between mailbox polls.
const DefaultInterval = 10 * time.Second

// Query selects the messages one polling pass looks at.
type Query struct {
	// Name identifies the query in logs.
	Name string `json:"name"`
	// Query is a Gmail search expression, e.g. "from:alerts@hdfcbank.net is:unread".
	Query string `json:"query"`
	// Source is copied onto every transaction the query yields.
	Source  string `json:"source"`
	Enabled bool   `json:"enabled"`
}

// Config holds configuration for the Gmail reader.
type Config struct {
	Queries []Query
	// Interval between polls. Defaults to DefaultInterval.
	Interval time.Duration
}

// Reader reads transactions from Gmail messages.
type Reader struct {
	client   *gmail.Service
	parser   *parser.Parser
	queries  []Query
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	// seen holds message IDs already emitted or skipped so later polls do
	// not resend them while their acknowledgment is in flight.
	seen map[string]struct{}
}

// New creates a new Gmail reader. opts are passed to the Gmail client.
func New(ctx context.Context, httpClient *http.Client, p *parser.Parser, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Reader, error) {
	if p == nil {
		return nil, errors.New("gmail reader: parser is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	client, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reader{
		client:   client,
		parser:   p,
		queries:  cfg.Queries,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}, nil
}

// Read polls the mailbox and sends extracted transactions to out until ctx is
// canceled. Messages are marked read only after their ID arrives on ackChan.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Transaction, ackChan <-chan string) error {
	defer close(out)

	go r.handleAcknowledgments(ctx, ackChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			r.markAsRead(ctx, msgID)
		}
	}
}

func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
		return
	}
	r.logger.Debug("marked message as read", "message_id", msgID)
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.Transaction) {
	r.logger.Info("polling mailbox", "query_count", len(r.queries))

	var wg sync.WaitGroup
	for _, q := range r.queries {
		if !q.Enabled {
			r.logger.Debug("skipping disabled query", "query", q.Name)
			continue
		}
		wg.Go(func() { r.runQuery(ctx, q, out) })
	}
	wg.Wait()
}

func (r *Reader) runQuery(ctx context.Context, q Query, out chan<- *api.Transaction) {
	logger := r.logger.With("query", q.Name, "source", q.Source)

	var ids []string
	err := r.client.Users.Messages.List("me").Q(q.Query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to list messages", "error", err)
		return
	}
	logger.Debug("found messages", "count", len(ids))

	for _, id := range ids {
		if !r.claim(id) {
			continue
		}
		if err := r.processMessage(ctx, id, q.Source, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.release(id)
			logger.Error("failed to process message", "message_id", id, "error", err)
		}
	}
}

// claim marks id as seen and reports whether it was new.
func (r *Reader) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	return true
}

func (r *Reader) release(id string) {
	r.mu.Lock()
	delete(r.seen, id)
	r.mu.Unlock()
}

func (r *Reader) processMessage(ctx context.Context, msgID, source string, out chan<- *api.Transaction) error {
	msg, err := r.client.Users.Messages.Get("me", msgID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	txn, err := r.toTransaction(ctx, msg, source)
	if errors.Is(err, parser.ErrNoPatternMatch) {
		r.logger.Warn("no transaction in message", "message_id", msgID, "subject", header(msg, "Subject"))
		return nil
	}
	if err != nil {
		return err
	}

	r.logger.Debug("extracted transaction",
		"message_id", msgID,
		"amount", txn.Amount,
		"merchant", txn.Merchant,
		"category", txn.SuggestedCategory,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- txn:
	}
	return nil
}

// toTransaction parses one message. The sender is the From address and the
// receive time stands in for a missing date.
func (r *Reader) toTransaction(ctx context.Context, msg *gmail.Message, source string) (*api.Transaction, error) {
	text := extractText(msg)
	if text == "" {
		return nil, fmt.Errorf("message %s: %w", msg.Id, parser.ErrNoPatternMatch)
	}

	sender := header(msg, "From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}
	received := time.UnixMilli(msg.InternalDate).UTC()

	res, err := r.parser.ParseAt(ctx, text, sender, received)
	if err != nil {
		return nil, err
	}
	return &api.Transaction{
		ParseResult: res,
		Sender:      sender,
		Source:      source,
		ReceivedAt:  received,
		MessageID:   msg.Id,
	}, nil
}

func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractText returns the message text with markup removed and whitespace
// collapsed. Plain text parts win over HTML; the snippet is the last resort.
func extractText(msg *gmail.Message) string {
	if msg.Payload != nil {
		if body := findPart(msg.Payload, "text/plain"); body != "" {
			return mailtext.Plain(body)
		}
		if body := findPart(msg.Payload, "text/html"); body != "" {
			return mailtext.FromHTML(body)
		}
	}
	return mailtext.FromHTML(msg.Snippet)
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if b, err := decodeBody(part.Body.Data); err == nil {
			return toUTF8(b, partCharset(part))
		}
	}
	for _, p := range part.Parts {
		if body := findPart(p, mimeType); body != "" {
			return body
		}
	}
	return ""
}

// partCharset returns the charset parameter of the part's Content-Type.
func partCharset(part *gmail.MessagePart) string {
	var h message.Header
	for _, ph := range part.Headers {
		if strings.EqualFold(ph.Name, "Content-Type") {
			h.Set("Content-Type", ph.Value)
		}
	}
	_, params, err := h.ContentType()
	if err != nil {
		return ""
	}
	return params["charset"]
}

// toUTF8 converts a body in the named charset. Unknown charsets are passed
// through unchanged.
func toUTF8(b []byte, name string) string {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8", "us-ascii":
		return string(b)
	}
	r, err := charset.Reader(name, bytes.NewReader(b))
	if err != nil {
		return string(b)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
