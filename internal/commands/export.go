package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/pkg/ledger"
)

// expenseRecord is one row of an expense export.
type expenseRecord struct {
	ID          string `csv:"id"`
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Category    string `csv:"category"`
	Subcategory string `csv:"subcategory"`
	Note        string `csv:"note"`
	MessageID   string `csv:"message_id"`
	CreatedAt   string `csv:"created_at"`
}

func newExportCommand(a *app) *cobra.Command {
	var phone, start, end, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's expenses as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := ledger.NewService(store, a.logger.With("component", "ledger"))
			expenses, err := svc.ListExpenses(ctx, phone, start, end)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}

			if err := writeExpensesCSV(out, expenses); err != nil {
				return err
			}
			a.logger.Info("expenses exported", "count", len(expenses), "out", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "phone number of the account to export")
	cmd.Flags().StringVar(&start, "start-date", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end-date", "", "last date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func writeExpensesCSV(w io.Writer, expenses []ledger.Expense) error {
	records := make([]expenseRecord, 0, len(expenses))
	for _, e := range expenses {
		records = append(records, expenseRecord{
			ID:          e.ID,
			Date:        e.Date,
			Amount:      e.Amount.String(),
			Category:    string(e.Category),
			Subcategory: e.Subcategory,
			Note:        e.Note,
			MessageID:   e.MessageID,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
