package qrunner

import (
	"context"
	"time"

	"github.com/quatton/toolsite/pkg/qscratch"
)

// Terminal error markers. A run that ends on its own never carries one.
const (
	ErrTimedOut  = "timed out"
	ErrCancelled = "cancelled"
)

// Invocation is a ready-to-execute command plus everything staged for it.
type Invocation struct {
	RunID   string            // Run identifier, also the scratch area id
	Command string            // Executable (interpreter or the script itself)
	Args    []string          // Arguments after Command
	Dir     string            // Working directory
	Env     map[string]string // Added on top of the server environment
	Stdin   []byte            // Fed to the child; nil means /dev/null

	Scratch *qscratch.Area      // Private per-run area, may be nil in advanced mode
	Staged  map[string][]string // Input key -> staged upload paths

	// OutputName is the sanitized artifact filename resolved from the
	// submission, empty when the schema does not name one.
	OutputName string
}

// Argv returns Command followed by Args.
func (inv *Invocation) Argv() []string {
	return append([]string{inv.Command}, inv.Args...)
}

// OutputDir returns the directory the tool should write into.
func (inv *Invocation) OutputDir() string {
	if inv.Scratch == nil {
		return ""
	}
	return inv.Scratch.OutputDir
}

// Outcome is the terminal state of exactly one run.
type Outcome struct {
	Argv     []string      `json:"cmd"`
	Dir      string        `json:"cwd"`
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode *int          `json:"exit_code"` // nil when the process never produced one
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`

	TimedOut    bool `json:"timed_out,omitempty"`
	Cancelled   bool `json:"cancelled,omitempty"`
	StartFailed bool `json:"start_failed,omitempty"`
	Truncated   bool `json:"truncated,omitempty"`
}

// Completed reports whether the process ran to its own exit.
func (o *Outcome) Completed() bool {
	return o.ExitCode != nil && !o.TimedOut && !o.Cancelled
}

// Runner executes one invocation under a deadline. Run never returns nil
// and never leaves the child (or its descendants) running.
type Runner interface {
	Run(ctx context.Context, inv *Invocation, timeout time.Duration) *Outcome
}
