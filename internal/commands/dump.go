package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gombox "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/spf13/cobra"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/spendsense/spendsense/pkg/client"
)

func newDumpCommand(a *app) *cobra.Command {
	var (
		queries []string
		outPath string
		limit   int64
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Copy matching Gmail messages into an mbox file",
		Long: `Dump saves raw copies of the Gmail messages matching each --query into an
mbox file. The file can be replayed offline with the mbox reader plugin.`,
		Example: `  spendsense dump --query "from:alerts@hdfcbank.net" --out data/hdfc.mbox --max 50`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			httpClient, err := client.New(ctx, client.Config{
				SecretFile: cfg.SecretFile,
				TokenFile:  cfg.TokenFile,
			}, gmailapi.GmailReadonlyScope)
			if err != nil {
				return fmt.Errorf("creating http client: %w", err)
			}

			svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
			if err != nil {
				return fmt.Errorf("creating gmail service: %w", err)
			}

			n, err := dumpMailbox(ctx, svc, queries, limit, outPath, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages to %s\n", n, outPath)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&queries, "query", nil, "Gmail search query (repeatable)")
	cmd.Flags().StringVar(&outPath, "out", "data/dump.mbox", "mbox file to write")
	cmd.Flags().Int64Var(&limit, "max", 10, "maximum messages per query (0 for all)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

// dumpMailbox writes the messages matching queries to a new mbox file at
// path. A message matched by several queries is written once.
func dumpMailbox(ctx context.Context, svc *gmailapi.Service, queries []string, limit int64, path string, logger *slog.Logger) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := gombox.NewWriter(f)
	seen := make(map[string]struct{})
	count := 0

	for _, q := range queries {
		ids, err := listMessageIDs(ctx, svc, q, limit)
		if err != nil {
			return count, fmt.Errorf("listing %q: %w", q, err)
		}
		logger.Info("dumping messages", "query", q, "count", len(ids))

		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			if err := dumpMessage(ctx, svc, w, id); err != nil {
				if ctx.Err() != nil {
					return count, ctx.Err()
				}
				logger.Warn("failed to dump message", "message_id", id, "error", err)
				continue
			}
			count++
		}
	}

	if err := w.Close(); err != nil {
		return count, fmt.Errorf("finishing mbox: %w", err)
	}
	return count, f.Close()
}

func listMessageIDs(ctx context.Context, svc *gmailapi.Service, query string, limit int64) ([]string, error) {
	call := svc.Users.Messages.List("me").Q(query)

	var ids []string
	if limit > 0 {
		resp, err := call.MaxResults(limit).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return ids, nil
	}

	err := call.Pages(ctx, func(resp *gmailapi.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	return ids, err
}

func dumpMessage(ctx context.Context, svc *gmailapi.Service, w *gombox.Writer, id string) error {
	msg, err := svc.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(msg.Raw); err != nil {
			return fmt.Errorf("decoding raw message: %w", err)
		}
	}
	if len(raw) == 0 {
		return errors.New("empty message")
	}

	mw, err := w.CreateMessage(senderAddress(raw), time.UnixMilli(msg.InternalDate))
	if err != nil {
		return err
	}
	_, err = mw.Write(raw)
	return err
}

// senderAddress returns the bare From address of a raw message, used for the
// mbox separator line.
func senderAddress(raw []byte) string {
	const unknown = "MAILER-DAEMON"

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return unknown
	}
	defer mr.Close()

	addrs, err := mr.Header.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return unknown
	}
	return addrs[0].Address
}
