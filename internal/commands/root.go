// Package commands implements the spendsense command line.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/internal/buildinfo"
	"github.com/spendsense/spendsense/pkg/config"
	"github.com/spendsense/spendsense/pkg/logging"
)

// app holds state shared by every subcommand.
type app struct {
	envFile   string
	logLevel  string
	logFormat string

	logger *slog.Logger
}

func (a *app) config() (config.Config, error) {
	return config.Load(a.envFile, a.logger)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "spendsense",
		Short:   "Turn bank SMS and e-mail alerts into categorized expenses",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg := logging.DefaultConfig()
			if cmd.Flags().Changed("log-level") {
				cfg.Level = logging.ParseLevel(a.logLevel)
			}
			if cmd.Flags().Changed("log-format") {
				cfg.JSON = a.logFormat == "json"
			}
			cfg.Output = cmd.ErrOrStderr()
			a.logger = logging.Setup(cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newSetupCommand(a),
		newStatusCommand(a),
		newParseCommand(a),
		newDumpCommand(a),
		newExportCommand(a),
	)

	return rootCmd
}
