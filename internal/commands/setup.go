package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/spendsense/spendsense/internal/plugins"
	"github.com/spendsense/spendsense/pkg/client"
	"github.com/spendsense/spendsense/pkg/config"
)

func newSetupCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize spendsense against your Google account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			registry, err := newRegistry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== spendsense setup ===")
			fmt.Fprintln(out)

			if _, err := os.Stat(cfg.SecretFile); errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
					"1. Go to https://console.cloud.google.com/apis/credentials\n"+
					"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
					"3. Download the JSON file and save it as '%s'", cfg.SecretFile, cfg.SecretFile)
			}

			if client.HasToken(cfg.TokenFile) {
				if !force {
					fmt.Fprintf(out, "Already authenticated! Token file exists: %s\n\n", cfg.TokenFile)
					fmt.Fprintln(out, "To re-authenticate, run: spendsense setup --force")
					return nil
				}
				if err := os.Remove(cfg.TokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					a.logger.Warn("failed to remove existing token", "error", err)
				}
				fmt.Fprintln(out, "Forcing re-authentication...")
			}

			scopes, err := setupScopes(registry, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Requested permissions:")
			for _, s := range scopes {
				fmt.Fprintf(out, "  - %s\n", s)
			}

			_, err = client.New(cmd.Context(), client.Config{
				SecretFile:  cfg.SecretFile,
				TokenFile:   cfg.TokenFile,
				Interactive: true,
				Prompt:      out,
			}, scopes...)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Token saved to: %s\n", cfg.TokenFile)
			fmt.Fprintln(out, "Run 'spendsense run' to start ingesting transactions.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard the cached token and authenticate again")
	return cmd
}

// setupScopes returns the scopes of the configured plugins, or of every
// registered plugin when the pipeline is not configured yet.
func setupScopes(registry *plugins.Registry, cfg config.Config) ([]string, error) {
	if cfg.ReaderPlugin != "" && cfg.WriterPlugin != "" {
		return registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
	}

	var scopes []string
	for _, r := range registry.ListReaders() {
		scopes = append(scopes, r.RequiredScopes()...)
	}
	for _, w := range registry.ListWriters() {
		scopes = append(scopes, w.RequiredScopes()...)
	}
	slices.Sort(scopes)
	return slices.Compact(scopes), nil
}
