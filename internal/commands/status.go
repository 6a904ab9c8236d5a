package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/client"
	"github.com/spendsense/spendsense/pkg/config"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, credentials and available plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== spendsense status ===")
			fmt.Fprintln(out)

			registry, err := newRegistry()
			if err != nil {
				return err
			}

			cfg, err := a.config()
			if err != nil {
				fmt.Fprintf(out, "Configuration: ✗ %v\n", err)
				printPlugins(out, registry)
				return err
			}

			ok := checkConfig(out, registry, cfg)
			if needsGoogle(registry, cfg) {
				ok = checkCredentials(out, cfg) && ok
			}
			printPlugins(out, registry)

			fmt.Fprintln(out)
			if !ok {
				fmt.Fprintln(out, "Status: ✗ Configuration issues detected")
				return errors.New("configuration issues detected")
			}
			fmt.Fprintln(out, "Status: ✓ Ready")
			return nil
		},
	}
}

func checkConfig(out io.Writer, registry *plugins.Registry, cfg config.Config) bool {
	ok := true

	switch cfg.Store {
	case config.StorePostgres:
		fmt.Fprintf(out, "Store: postgres (%s:%d/%s)\n", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)
	default:
		fmt.Fprintf(out, "Store: sqlite (%s)\n", cfg.SQLitePath)
	}

	if _, err := config.LoadParserConfig(cfg.ParserConfigFile); err != nil {
		fmt.Fprintf(out, "Parser tables: ✗ %v\n", err)
		ok = false
	} else if cfg.ParserConfigFile != "" {
		fmt.Fprintf(out, "Parser tables: ✓ %s\n", cfg.ParserConfigFile)
	} else {
		fmt.Fprintln(out, "Parser tables: ✓ built-in")
	}

	fmt.Fprint(out, "Reader plugin: ")
	if cfg.ReaderPlugin == "" {
		fmt.Fprintln(out, "- not set (SPENDSENSE_READER)")
	} else if _, err := registry.GetReader(cfg.ReaderPlugin); err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ %s\n", cfg.ReaderPlugin)
	}

	fmt.Fprint(out, "Writer plugin: ")
	if cfg.WriterPlugin == "" {
		fmt.Fprintln(out, "- not set (SPENDSENSE_WRITER)")
	} else if _, err := registry.GetWriter(cfg.WriterPlugin); err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ %s\n", cfg.WriterPlugin)
	}

	if _, _, err := cfg.PluginConfig(); err != nil {
		fmt.Fprintf(out, "Plugin config: ✗ %v\n", err)
		ok = false
	}
	return ok
}

// needsGoogle reports whether the configured pipeline calls Google APIs.
func needsGoogle(registry *plugins.Registry, cfg config.Config) bool {
	scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
	return err == nil && len(scopes) > 0
}

func checkCredentials(out io.Writer, cfg config.Config) bool {
	ok := true

	fmt.Fprintf(out, "Credentials file (%s): ", cfg.SecretFile)
	if _, err := os.Stat(cfg.SecretFile); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(out, "✗ Not found")
		ok = false
	} else {
		fmt.Fprintln(out, "✓ Found")
	}

	fmt.Fprintf(out, "OAuth token (%s): ", cfg.TokenFile)
	tok, err := client.LoadToken(cfg.TokenFile)
	switch {
	case err != nil:
		fmt.Fprintln(out, "✗ Not found (run 'spendsense setup')")
		ok = false
	case !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now()):
		fmt.Fprintln(out, "⚠ Expired (will refresh on next run)")
	default:
		fmt.Fprintf(out, "✓ Valid (expires: %s)\n", tok.Expiry.Format(time.RFC3339))
	}
	return ok
}

func printPlugins(out io.Writer, registry *plugins.Registry) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Readers:")
	for _, r := range registry.ListReaders() {
		fmt.Fprintf(out, "  %-10s %s\n", r.Name(), r.Description())
	}
	fmt.Fprintln(out, "Writers:")
	for _, w := range registry.ListWriters() {
		fmt.Fprintf(out, "  %-10s %s\n", w.Name(), w.Description())
	}
}
