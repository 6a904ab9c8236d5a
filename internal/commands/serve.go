package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/pkg/config"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parsing and expense API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newParser(cfg, a.logger)
			if err != nil {
				return err
			}

			categories, err := config.LoadCategories(cfg.CategoriesFile)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			srv, err := server.New(server.Config{
				Parser:       p,
				Ledger:       ledger.NewService(store, a.logger, ledger.WithCategories(categories)),
				Health:       store,
				ParseTimeout: cfg.ParseTimeout,
			}, a.logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, cfg.HTTPAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SPENDSENSE_HTTP_ADDR)")
	return cmd
}
