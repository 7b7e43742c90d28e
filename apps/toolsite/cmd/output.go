package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/quatton/toolsite/pkg/qresult"
)

// exitError carries a script's exit status out of RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("script exited with status %d", e.code)
}

// printResult writes stdout/stderr through, summarizes the run on w and
// saves artifacts into outDir when set. The returned error reflects how
// the script ended.
func printResult(w io.Writer, res *qresult.RunResult, outDir string) error {
	fmt.Fprint(os.Stdout, res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)

	took := time.Duration(res.DurationMs) * time.Millisecond
	fmt.Fprintf(w, "\n── run %s finished in %s", res.RunID, took.Round(time.Millisecond))
	if res.ReturnCode != nil {
		fmt.Fprintf(w, " (exit %d)", *res.ReturnCode)
	}
	fmt.Fprintln(w)
	if res.Truncated {
		fmt.Fprintln(w, "⚠ output was truncated")
	}
	if res.Hint != "" {
		fmt.Fprintf(w, "💡 %s\n", res.Hint)
	}

	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "📦 %s (%s, %s)", a.Filename, a.Mime, humanize.Bytes(uint64(len(a.Data))))
		if outDir != "" && filepath.IsLocal(filepath.FromSlash(a.Filename)) {
			dest := filepath.Join(outDir, filepath.FromSlash(a.Filename))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(dest, a.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(w, " → %s", dest)
		}
		fmt.Fprintln(w)
	}

	if res.Error != "" {
		return fmt.Errorf("%s", res.Error)
	}
	if res.ReturnCode != nil && *res.ReturnCode != 0 {
		return &exitError{code: *res.ReturnCode}
	}
	return nil
}
