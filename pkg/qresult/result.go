// Package qresult turns a run outcome and its artifacts into the response
// shown to the client.
package qresult

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qrunner"
)

// RunResult is the single response for one run request.
type RunResult struct {
	RunID string   `json:"runId,omitempty"`
	Cmd   []string `json:"cmd"`
	Cwd   string   `json:"cwd"`

	// Stdout and Stderr are display text. When the captured bytes are not
	// valid UTF-8 the exact bytes are also sent as base64.
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	StdoutBase64 string `json:"stdoutBase64,omitempty"`
	StderrBase64 string `json:"stderrBase64,omitempty"`

	ReturnCode *int   `json:"returnCode"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`

	Artifacts []qart.Artifact `json:"artifacts"`
}

// Format builds the result. It has no side effects.
func Format(out *qrunner.Outcome, artifacts []qart.Artifact) RunResult {
	if artifacts == nil {
		artifacts = []qart.Artifact{}
	}
	res := RunResult{
		Cmd:        out.Argv,
		Cwd:        out.Dir,
		ReturnCode: out.ExitCode,
		DurationMs: out.Duration.Milliseconds(),
		Error:      out.Error,
		Truncated:  out.Truncated,
		Artifacts:  artifacts,
	}
	if res.Cmd == nil {
		res.Cmd = []string{}
	}
	res.Stdout, res.StdoutBase64 = text(out.Stdout)
	res.Stderr, res.StderrBase64 = text(out.Stderr)
	if out.ExitCode != nil && *out.ExitCode != 0 {
		res.Hint = Hint(out.Stderr)
	}
	return res
}

// Bytes recovers the exact captured bytes of one stream.
func Bytes(display, b64 string) ([]byte, error) {
	if b64 == "" {
		return []byte(display), nil
	}
	return base64.StdEncoding.DecodeString(b64)
}

func text(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), ""
	}
	return strings.ToValidUTF8(string(b), "�"), base64.StdEncoding.EncodeToString(b)
}
