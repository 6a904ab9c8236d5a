package commands

import (
	"context"
	"log/slog"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/config"
	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/parser"
	gmailplugin "github.com/spendsense/spendsense/pkg/plugins/readers/gmail"
	mboxplugin "github.com/spendsense/spendsense/pkg/plugins/readers/mbox"
	csvplugin "github.com/spendsense/spendsense/pkg/plugins/writers/csv"
	jsonplugin "github.com/spendsense/spendsense/pkg/plugins/writers/json"
	ledgerplugin "github.com/spendsense/spendsense/pkg/plugins/writers/ledger"
	postgresplugin "github.com/spendsense/spendsense/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/spendsense/spendsense/pkg/plugins/writers/sheets"
	pgstore "github.com/spendsense/spendsense/pkg/store/postgres"
	"github.com/spendsense/spendsense/pkg/store/sqlite"
)

// expenseStore is a ledger store that can report its health.
type expenseStore interface {
	ledger.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (expenseStore, error) {
	if cfg.Store == config.StorePostgres {
		s, err := pgstore.Open(ctx, pgstore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger.With("component", "postgres"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := sqlite.Open(cfg.SQLitePath, logger.With("component", "sqlite"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newParser(cfg config.Config, logger *slog.Logger) (*parser.Parser, error) {
	pcfg, err := config.LoadParserConfig(cfg.ParserConfigFile)
	if err != nil {
		return nil, err
	}
	return parser.New(pcfg, logger.With("component", "parser"))
}

// newRegistry returns a registry holding every built-in plugin.
func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	for _, p := range []plugins.ReaderPlugin{
		&gmailplugin.Plugin{},
		&mboxplugin.Plugin{},
	} {
		if err := registry.RegisterReader(p); err != nil {
			return nil, err
		}
	}

	for _, p := range []plugins.WriterPlugin{
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&postgresplugin.Plugin{},
		&ledgerplugin.Plugin{},
	} {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
