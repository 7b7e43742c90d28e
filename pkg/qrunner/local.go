package qrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/sync/errgroup"

	"github.com/quatton/toolsite/pkg/qlog"
)

const DefaultKillGrace = 2 * time.Second

// LocalRunner runs invocations as child processes of the server, each in
// its own process group.
type LocalRunner struct {
	killGrace time.Duration
	maxOutput int64
	logger    *qlog.Logger
}

// LocalRunnerOption configures a LocalRunner
type LocalRunnerOption func(*LocalRunner)

// WithKillGrace sets how long a terminated group gets before SIGKILL.
func WithKillGrace(d time.Duration) LocalRunnerOption {
	return func(r *LocalRunner) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// WithMaxOutputBytes caps each captured stream. Zero keeps everything.
func WithMaxOutputBytes(n int64) LocalRunnerOption {
	return func(r *LocalRunner) {
		r.maxOutput = n
	}
}

// WithLogger sets the runner logger
func WithLogger(l *qlog.Logger) LocalRunnerOption {
	return func(r *LocalRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewLocalRunner(opts ...LocalRunnerOption) *LocalRunner {
	r := &LocalRunner{
		killGrace: DefaultKillGrace,
		logger:    qlog.NewDefault(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run spawns inv and blocks until the process group is gone and both
// streams are drained.
func (r *LocalRunner) Run(ctx context.Context, inv *Invocation, timeout time.Duration) *Outcome {
	out := &Outcome{Argv: inv.Argv(), Dir: inv.Dir}
	log := r.logger.With("run_id", inv.RunID)

	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	if len(inv.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	// Bounds how long Wait blocks on the stdin copier once the child is gone.
	cmd.WaitDelay = r.killGrace
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return startFailed(out, fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return startFailed(out, fmt.Errorf("failed to create stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	log.Debug("starting process", "cmd", shellescape.QuoteCommand(out.Argv), "cwd", inv.Dir, "timeout", timeout)

	start := time.Now()
	err = cmd.Start()
	// The child holds its own copies; ours must go so readers see EOF.
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		out.Duration = time.Since(start)
		log.Warn("process failed to start", "error", err)
		return startFailed(out, fmt.Errorf("failed to start: %w", err))
	}

	stdout := newCapture(r.maxOutput)
	stderr := newCapture(r.maxOutput)

	var (
		waitErr error
		reason  string
		exited  = make(chan struct{})
	)

	g := new(errgroup.Group)
	g.Go(func() error { return drain(stdout, stdoutR, "stdout") })
	g.Go(func() error { return drain(stderr, stderrR, "stderr") })
	g.Go(func() error {
		waitErr = cmd.Wait()
		close(exited)
		// Reap whatever the child left behind in its group, then stop
		// waiting on pipes held open by anything that escaped it.
		_ = killGroup(cmd)
		deadline := time.Now().Add(r.killGrace)
		_ = stdoutR.SetReadDeadline(deadline)
		_ = stderrR.SetReadDeadline(deadline)
		return nil
	})
	g.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-exited:
			return nil
		case <-timer.C:
			reason = ErrTimedOut
		case <-ctx.Done():
			reason = ErrCancelled
		}

		log.Info("terminating process group", "reason", reason, "grace", r.killGrace)
		_ = terminateGroup(cmd)
		grace := time.NewTimer(r.killGrace)
		defer grace.Stop()
		select {
		case <-exited:
		case <-grace.C:
			log.Warn("process group ignored SIGTERM, killing")
			_ = killGroup(cmd)
		}
		return nil
	})
	captureErr := g.Wait()

	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	out.Truncated = stdout.Truncated() || stderr.Truncated()

	switch reason {
	case ErrTimedOut:
		out.TimedOut = true
		out.Error = ErrTimedOut
	case ErrCancelled:
		out.Cancelled = true
		out.Error = ErrCancelled
	default:
		code := exitCode(cmd.ProcessState)
		out.ExitCode = &code
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			out.Error = fmt.Sprintf("wait failed: %v", waitErr)
		}
	}
	if captureErr != nil {
		log.Warn("output capture incomplete", "error", captureErr)
		if out.Error == "" {
			out.Error = captureErr.Error()
		}
	}

	log.Info("process finished",
		"exit_code", exitCodeString(out.ExitCode),
		"duration", out.Duration.Round(time.Millisecond),
		"stdout_bytes", len(out.Stdout),
		"stderr_bytes", len(out.Stderr),
	)
	return out
}

// drain copies a pipe into its capture until EOF. A read deadline that
// fires after the child exited means a detached descendant still holds the
// pipe; what was read so far is kept.
func drain(dst *capture, src *os.File, name string) error {
	defer src.Close()
	_, err := io.Copy(dst, src)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s left open by a detached process", name)
	}
	return fmt.Errorf("failed to read %s: %w", name, err)
}

func startFailed(out *Outcome, err error) *Outcome {
	out.StartFailed = true
	out.Stdout = []byte{}
	out.Stderr = []byte{}
	out.Error = err.Error()
	return out
}

// mergeEnv overlays extra onto base, replacing existing keys in place.
func mergeEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := extra[key]; ok {
			env = append(env, key+"="+v)
			seen[key] = true
			continue
		}
		env = append(env, kv)
	}
	for k, v := range extra {
		if !seen[k] {
			env = append(env, k+"="+v)
		}
	}
	return env
}

func exitCodeString(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprint(*code)
}

// Ensure LocalRunner implements Runner.
var _ Runner = (*LocalRunner)(nil)
