package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qsdk"
)

type contextKey string

const configContextKey contextKey = "toolsiteconfig"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "toolsite",
		Short: "Serve local automation scripts over HTTP and run them remotely",
		Long: `toolsite exposes a directory of automation scripts (Python, shell,
JavaScript) as an HTTP API. "toolsite serve" starts the server; the other
subcommands are a client for a running server: list scripts, run them with
raw arguments or guided inputs, and download their artifacts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := qsdk.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("base-url"); f != nil && f.Changed {
				cfg.BaseURL = f.Value.String()
			}
			if f := cmd.Flags().Lookup("api-key"); f != nil && f.Changed {
				cfg.APIKey = f.Value.String()
			}

			ctx := context.WithValue(cmd.Context(), configContextKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}
)

// GetConfig retrieves the Config from the command context
func GetConfig(cmd *cobra.Command) (*qsdk.Config, error) {
	cfg, ok := cmd.Context().Value(configContextKey).(*qsdk.Config)
	if !ok {
		return nil, errors.New("no config in context")
	}
	return cfg, nil
}

func Execute() {
	err := rootCmd.Execute()
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML). Searches: toolsite.yaml, .toolsite/config.yaml")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL of the toolsite server (overrides config)")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides config and keyring)")
}
