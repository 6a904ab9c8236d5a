package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/internal/daemon"
	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/client"
	"github.com/spendsense/spendsense/pkg/ledger"
)

const ledgerWriter = "ledger"

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline from the configured reader to the configured writer",
		Long: `Run reads notifications with SPENDSENSE_READER, parses them and hands the
transactions to SPENDSENSE_WRITER. Plugin settings are JSON objects in
SPENDSENSE_READER_CONFIG and SPENDSENSE_WRITER_CONFIG.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.ReaderPlugin == "" || cfg.WriterPlugin == "" {
				return errors.New("SPENDSENSE_READER and SPENDSENSE_WRITER must both be set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			a.logger.Info("plugins registered",
				"readers", len(registry.ListReaders()),
				"writers", len(registry.ListWriters()),
			)

			p, err := newParser(cfg, a.logger)
			if err != nil {
				return err
			}
			env := plugins.Env{Parser: p}

			if cfg.WriterPlugin == ledgerWriter {
				store, err := openStore(ctx, cfg, a.logger)
				if err != nil {
					return err
				}
				defer store.Close()
				env.Ledger = ledger.NewService(store, a.logger.With("component", "ledger"))
			}

			scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
			if err != nil {
				return err
			}
			if len(scopes) > 0 {
				a.logger.Info("OAuth scopes required", "scopes", scopes)
				env.HTTPClient, err = client.New(ctx, client.Config{
					SecretFile: cfg.SecretFile,
					TokenFile:  cfg.TokenFile,
				}, scopes...)
				if err != nil {
					return fmt.Errorf("creating http client: %w", err)
				}
			}

			return daemon.New(registry, env, a.logger).Run(ctx, cfg)
		},
	}
}
