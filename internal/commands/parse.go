package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/parser"
)

func newParseCommand(a *app) *cobra.Command {
	var (
		sender     string
		categorize bool
		refDate    string
	)

	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Parse one notification and print the result as JSON",
		Long: `Parse extracts the amount, date, merchant and suggested category from a
transaction notification. The text is taken from the arguments, or from
standard input when none are given.`,
		Example: `  spendsense parse --sender VM-HDFCBK "Rs.500 debited from a/c **1234 on 12-01-26 to VPA swiggy@upi"
  echo "paid ₹250.00 to Swiggy" | spendsense parse --categorize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(b)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			p, err := newParser(cfg, a.logger)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			ctx := cmd.Context()

			var res any
			switch {
			case categorize:
				res, err = p.CategorizeContext(ctx, text, sender)
			case refDate != "":
				ref, perr := time.Parse(api.DateLayout, refDate)
				if perr != nil {
					return fmt.Errorf("--date: %w", perr)
				}
				res, err = p.ParseAt(ctx, text, sender, ref)
			default:
				res, err = p.ParseContext(ctx, text, sender)
			}
			if err != nil {
				if encErr := enc.Encode(failure(err)); encErr != nil {
					return errors.Join(err, encErr)
				}
				return err
			}
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "sender ID the message arrived from, e.g. VM-HDFCBK")
	cmd.Flags().BoolVar(&categorize, "categorize", false, "print only the suggested category and confidence")
	cmd.Flags().StringVar(&refDate, "date", "", "date (YYYY-MM-DD) used when the text carries none")
	return cmd
}

type failureBody struct {
	Status  api.Status `json:"status"`
	Message string     `json:"message"`
}

func failure(err error) failureBody {
	msg := err.Error()
	switch {
	case errors.Is(err, parser.ErrCategorize):
		msg = "Could not categorize"
	case errors.Is(err, parser.ErrNoPatternMatch):
		msg = "Could not parse transaction"
	}
	return failureBody{Status: api.StatusError, Message: msg}
}
