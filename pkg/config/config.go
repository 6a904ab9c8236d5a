// Package config loads spendsense settings from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Default paths of the Google OAuth credentials and cached token.
const (
	ClientSecretFile = "data/client_secret.json"
	TokenFile        = "data/token.json"
	CategoriesFile   = "data/categories.json"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server.
	// Environment variable: SPENDSENSE_HTTP_ADDR
	HTTPAddr string `koanf:"SPENDSENSE_HTTP_ADDR"`

	// ParseTimeout bounds a single parse or categorize request.
	// Environment variable: SPENDSENSE_PARSE_TIMEOUT (Go duration, e.g. "2s")
	ParseTimeout time.Duration `koanf:"SPENDSENSE_PARSE_TIMEOUT"`

	// ParserConfigFile optionally points to a JSON file overriding the
	// parser's currency, bank and category tables.
	// Environment variable: SPENDSENSE_PARSER_CONFIG
	ParserConfigFile string `koanf:"SPENDSENSE_PARSER_CONFIG"`

	// Store selects the expense store backend: "sqlite" or "postgres".
	// Environment variable: SPENDSENSE_STORE
	Store string `koanf:"SPENDSENSE_STORE"`

	// SQLitePath is the database file used by the sqlite store.
	// Environment variable: SPENDSENSE_SQLITE_PATH
	SQLitePath string `koanf:"SPENDSENSE_SQLITE_PATH"`

	// ReaderPlugin is the name of the reader plugin used by the daemon.
	// Environment variable: SPENDSENSE_READER
	ReaderPlugin string `koanf:"SPENDSENSE_READER"`

	// WriterPlugin is the name of the writer plugin used by the daemon.
	// Environment variable: SPENDSENSE_WRITER
	WriterPlugin string `koanf:"SPENDSENSE_WRITER"`

	// ReaderConfig is the JSON configuration for the reader plugin.
	// Environment variable: SPENDSENSE_READER_CONFIG
	ReaderConfig string `koanf:"SPENDSENSE_READER_CONFIG"`

	// WriterConfig is the JSON configuration for the writer plugin.
	// Environment variable: SPENDSENSE_WRITER_CONFIG
	WriterConfig string `koanf:"SPENDSENSE_WRITER_CONFIG"`

	// SecretFile is the Google OAuth client secret JSON.
	// Environment variable: SPENDSENSE_CLIENT_SECRET
	SecretFile string `koanf:"SPENDSENSE_CLIENT_SECRET"`

	// TokenFile caches the Google OAuth token.
	// Environment variable: SPENDSENSE_TOKEN_FILE
	TokenFile string `koanf:"SPENDSENSE_TOKEN_FILE"`

	// CategoriesFile optionally narrows or reorders the categories served
	// to clients.
	// Environment variable: SPENDSENSE_CATEGORIES_FILE
	CategoriesFile string `koanf:"SPENDSENSE_CATEGORIES_FILE"`

	Postgres PostgresConfig `koanf:",squash"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		HTTPAddr:       ":8000",
		ParseTimeout:   2 * time.Second,
		Store:          StoreSQLite,
		SQLitePath:     "data/expenses.db",
		SecretFile:     ClientSecretFile,
		TokenFile:      TokenFile,
		CategoriesFile: CategoriesFile,
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
	}
}

// Load reads envFile into the process environment when it exists, then
// overlays every recognised variable on Default.
func Load(envFile string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
			}
			logger.Debug("environment loaded", "file", envFile)
		}
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SPENDSENSE_SQLITE_PATH must not be empty")
		}
	case StorePostgres:
		if c.Postgres.Database == "" {
			return errors.New("POSTGRES_DB is required for the postgres store")
		}
	default:
		return fmt.Errorf("SPENDSENSE_STORE: unknown store %q", c.Store)
	}
	if c.ParseTimeout <= 0 {
		return fmt.Errorf("SPENDSENSE_PARSE_TIMEOUT must be positive, got %s", c.ParseTimeout)
	}
	return nil
}

// PluginConfig returns the reader and writer plugin settings as raw JSON.
// An unset value becomes an empty object.
func (c Config) PluginConfig() (reader, writer json.RawMessage, err error) {
	raw := func(name, v string) (json.RawMessage, error) {
		if v == "" {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%s is not valid JSON", name)
		}
		return json.RawMessage(v), nil
	}
	if reader, err = raw("SPENDSENSE_READER_CONFIG", c.ReaderConfig); err != nil {
		return nil, nil, err
	}
	if writer, err = raw("SPENDSENSE_WRITER_CONFIG", c.WriterConfig); err != nil {
		return nil, nil, err
	}
	return reader, writer, nil
}
