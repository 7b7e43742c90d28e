package cmd

import (
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qsdk"
)

var (
	runTimeout int
	runOutDir  string
)

var runCmd = &cobra.Command{
	Use:   "run <script> [-- args...]",
	Short: "Run a script with raw arguments",
	Long: `Runs a script on the server in advanced mode. Arguments after "--" are
quoted and sent as one string, which the server splits like a POSIX shell.

Examples:
	toolsite run hello/hello.py -- --name "big world"
	toolsite run tools/clean.sh --timeout 60 --out ./results`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}

		quoted := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			quoted = append(quoted, shellescape.Quote(a))
		}

		res, err := qsdk.NewClient(cfg).Run(cmd.Context(), args[0], strings.Join(quoted, " "), runTimeout)
		if err != nil {
			return sdkError(err)
		}
		return printResult(cmd.ErrOrStderr(), res, runOutDir)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Deadline in seconds (server default when 0)")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "Directory to save artifacts into")
}
