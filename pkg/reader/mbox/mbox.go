// Package mbox implements a Reader that replays an mbox archive of bank alert
// e-mails, for example one exported from Thunderbird or written by the dump
// command.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/parser"
	"github.com/spendsense/spendsense/pkg/reader/mailtext"
)

// Config holds configuration for the mbox reader.
type Config struct {
	// Path is the mbox file to read.
	Path string
	// Source is copied onto every transaction. Defaults to the file name.
	Source string
}

// Reader reads transactions from an mbox file once, then stops.
type Reader struct {
	path   string
	source string
	parser *parser.Parser
	logger *slog.Logger
}

// New creates an mbox reader. The file is opened when Read starts.
func New(p *parser.Parser, cfg Config, logger *slog.Logger) (*Reader, error) {
	if p == nil {
		return nil, errors.New("mbox reader: parser is required")
	}
	if cfg.Path == "" {
		return nil, errors.New("mbox reader: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	source := cfg.Source
	if source == "" {
		source = cfg.Path
	}
	return &Reader{path: cfg.Path, source: source, parser: p, logger: logger}, nil
}

// Read parses every message in the archive and sends the transactions to out.
// Messages without a recognizable transaction are skipped. Acknowledgments
// are consumed while reading since an archive cannot be marked.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Transaction, ackChan <-chan string) error {
	defer close(out)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go r.drainAcks(drainCtx, ackChan)

	var sent, skipped int
	mr := gombox.NewReader(f)
	for i := 0; ; i++ {
		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading message %d: %w", i, err)
		}

		txn, err := r.toTransaction(ctx, raw, i)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			skipped++
			r.logger.Warn("skipping message", "index", i, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- txn:
			sent++
		}
	}

	r.logger.Info("mbox read complete", "path", r.path, "transactions", sent, "skipped", skipped)
	return nil
}

func (r *Reader) drainAcks(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ackChan:
			if !ok {
				return
			}
			r.logger.Debug("message stored", "message_id", id)
		}
	}
}

func (r *Reader) toTransaction(ctx context.Context, raw io.Reader, index int) (*api.Transaction, error) {
	mr, err := mail.CreateReader(raw)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	text, err := bodyText(mr)
	if err != nil {
		return nil, err
	}
	if text == "" {
		subject, _ := mr.Header.Subject()
		text = mailtext.Plain(subject)
	}

	sender := mr.Header.Get("From")
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		sender = addrs[0].Address
	}

	id, err := mr.Header.MessageID()
	if err != nil || id == "" {
		id = strings.Trim(mr.Header.Get("Message-Id"), "<> ")
	}
	if id == "" {
		id = fmt.Sprintf("%s#%d", r.source, index)
	}

	var res api.ParseResult
	received, dateErr := mr.Header.Date()
	if dateErr == nil && !received.IsZero() {
		received = received.UTC()
		res, err = r.parser.ParseAt(ctx, text, sender, received)
	} else {
		received = time.Time{}
		res, err = r.parser.ParseContext(ctx, text, sender)
	}
	if err != nil {
		return nil, err
	}

	return &api.Transaction{
		ParseResult: res,
		Sender:      sender,
		Source:      r.source,
		ReceivedAt:  received,
		MessageID:   id,
	}, nil
}

// bodyText returns the readable text of a message as UTF-8. Plain text parts
// win over HTML ones and attachments are ignored.
func bodyText(mr *mail.Reader) (string, error) {
	var htmlText string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return "", fmt.Errorf("reading body: %w", err)
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, err := h.ContentType()
		if err != nil || mediaType == "" {
			mediaType = "text/plain"
		}
		if !strings.HasPrefix(mediaType, "text/") {
			continue
		}

		b, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("decoding body: %w", err)
		}
		if mediaType == "text/html" {
			if htmlText == "" {
				htmlText = mailtext.FromHTML(string(b))
			}
			continue
		}
		if text := mailtext.Plain(string(b)); text != "" {
			return text, nil
		}
	}
	return htmlText, nil
}
