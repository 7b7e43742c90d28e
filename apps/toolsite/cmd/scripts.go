package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qsdk"
)

var scriptsJSON bool

var scriptsCmd = &cobra.Command{
	Use:     "scripts",
	Aliases: []string{"ls"},
	Short:   "List the scripts a server can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}
		list, err := qsdk.NewClient(cfg).Scripts(cmd.Context())
		if err != nil {
			return sdkError(err)
		}

		if scriptsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Root: %s\n\n", list.Root)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SCRIPT\tMODE\tNAME\tDESCRIPTION")
		for _, s := range list.Scripts {
			mode := "advanced"
			if s.Guided() {
				mode = "guided"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.RelPath, mode, s.DisplayName, s.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(scriptsCmd)
	scriptsCmd.Flags().BoolVar(&scriptsJSON, "json", false, "Print the raw JSON listing")
}
