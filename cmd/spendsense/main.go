// Command spendsense parses bank transaction notifications into categorized
// expenses.
package main

import (
	"context"
	"os"

	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/internal/commands"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
