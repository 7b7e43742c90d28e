package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qsdk"
)

var (
	toolInputs  []string
	toolFiles   []string
	toolTimeout int
	toolOutDir  string
)

var toolCmd = &cobra.Command{
	Use:   "tool <script>",
	Short: "Run a guided tool with named inputs and files",
	Long: `Runs a tool through its declared input schema. Values are sent as text and
coerced by the server to the field type; files are read locally and uploaded.

Examples:
	toolsite tool XLXS_JSON/convert.py --file xlsx=./book.xlsx --input outputName=book
	toolsite tool WEBP/convert.py --file images=a.png --file images=b.png --input quality=80 -o out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}

		req := qsdk.ToolRequest{
			ToolRelPath: args[0],
			Inputs:      map[string]any{},
			Files:       map[string][]qinput.Upload{},
		}
		for _, kv := range toolInputs {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("--input %q: expected key=value", kv)
			}
			req.Inputs[key] = value
		}
		for _, kv := range toolFiles {
			key, path, ok := strings.Cut(kv, "=")
			if !ok || key == "" || path == "" {
				return fmt.Errorf("--file %q: expected key=path", kv)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			req.Files[key] = append(req.Files[key], qinput.Upload{Name: filepath.Base(path), Data: data})
		}

		res, err := qsdk.NewClient(cfg).RunTool(cmd.Context(), req, toolTimeout)
		if err != nil {
			return sdkError(err)
		}
		return printResult(cmd.ErrOrStderr(), res, toolOutDir)
	},
}

func init() {
	rootCmd.AddCommand(toolCmd)
	toolCmd.Flags().StringArrayVarP(&toolInputs, "input", "i", nil, "Input value as key=value (repeatable)")
	toolCmd.Flags().StringArrayVarP(&toolFiles, "file", "f", nil, "Upload as key=path (repeatable)")
	toolCmd.Flags().IntVar(&toolTimeout, "timeout", 0, "Deadline in seconds (server default when 0)")
	toolCmd.Flags().StringVarP(&toolOutDir, "out", "o", "", "Directory to save artifacts into")
}
