package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qsdk"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the server API key in the OS keyring",
	Long: `Stores the API key for the configured base URL in the OS keyring so later
commands send it automatically.

Examples:
	# prompt for the key
	toolsite login

	# non-interactive
	toolsite login --api-key <KEY>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}

		key := cfg.APIKey
		if key == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "API key for %s: ", cfg.BaseURL)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading api key: %w", err)
			}
			key = strings.TrimSpace(line)
		}
		if key == "" {
			return fmt.Errorf("no api key given")
		}

		// Check the key before saving it.
		client := qsdk.NewClient(cfg)
		client.APIKey = key
		if _, err := client.Scripts(cmd.Context()); err != nil {
			return sdkError(err)
		}

		if err := qsdk.SaveAPIKey(cfg.BaseURL, key); err != nil {
			return fmt.Errorf("saving api key to keyring: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key saved for %s\n", cfg.BaseURL)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}
		if err := qsdk.DeleteAPIKey(cfg.BaseURL); err != nil {
			return fmt.Errorf("removing api key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", cfg.BaseURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
