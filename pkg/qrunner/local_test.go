//go:build !windows

package qrunner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/quatton/toolsite/pkg/qlog"
)

func newTestRunner(opts ...LocalRunnerOption) *LocalRunner {
	opts = append([]LocalRunnerOption{WithLogger(qlog.Discard()), WithKillGrace(200 * time.Millisecond)}, opts...)
	return NewLocalRunner(opts...)
}

func shInvocation(script string) *Invocation {
	return &Invocation{RunID: "test", Command: "sh", Args: []string{"-c", script}}
}

func TestLocalRunner_Hello(t *testing.T) {
	runner := newTestRunner()

	out := runner.Run(context.Background(), shInvocation("printf hello"), 5*time.Second)

	if string(out.Stdout) != "hello" {
		t.Errorf("Expected stdout hello, got %q", out.Stdout)
	}
	if len(out.Stderr) != 0 {
		t.Errorf("Expected empty stderr, got %q", out.Stderr)
	}
	if out.ExitCode == nil || *out.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %v", out.ExitCode)
	}
	if out.Error != "" {
		t.Errorf("Expected no error, got %q", out.Error)
	}
	if !out.Completed() {
		t.Error("Expected Completed to be true")
	}
}

func TestLocalRunner_NonZeroExit(t *testing.T) {
	runner := newTestRunner()

	out := runner.Run(context.Background(), shInvocation("echo oops >&2; exit 3"), 5*time.Second)

	if out.ExitCode == nil || *out.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %v", out.ExitCode)
	}
	if out.Error != "" {
		t.Errorf("Non-zero exit must not set error, got %q", out.Error)
	}
	if string(out.Stderr) != "oops\n" {
		t.Errorf("Expected stderr oops, got %q", out.Stderr)
	}
}

func TestLocalRunner_SignalExit(t *testing.T) {
	runner := newTestRunner()

	out := runner.Run(context.Background(), shInvocation("kill -9 $$"), 5*time.Second)

	if out.ExitCode == nil || *out.ExitCode != 137 {
		t.Errorf("Expected exit code 137, got %v", out.ExitCode)
	}
}

func TestLocalRunner_Timeout(t *testing.T) {
	runner := newTestRunner()
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	// The background sleep is a grandchild; it must die with the group.
	inv := shInvocation("sleep 30 & echo $! > " + pidFile + "; echo started; wait")
	start := time.Now()
	out := runner.Run(context.Background(), inv, 500*time.Millisecond)
	elapsed := time.Since(start)

	if out.ExitCode != nil {
		t.Errorf("Expected nil exit code, got %d", *out.ExitCode)
	}
	if out.Error != ErrTimedOut {
		t.Errorf("Expected error %q, got %q", ErrTimedOut, out.Error)
	}
	if !out.TimedOut {
		t.Error("Expected TimedOut flag")
	}
	if string(out.Stdout) != "started\n" {
		t.Errorf("Expected output captured before the deadline, got %q", out.Stdout)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run took too long after timeout: %v", elapsed)
	}
	if out.Duration < 500*time.Millisecond {
		t.Errorf("Duration should include the wait up to the deadline, got %v", out.Duration)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("Failed to read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("Bad pid %q", data)
	}
	if !waitGone(pid, 3*time.Second) {
		t.Errorf("Grandchild %d survived the run", pid)
	}
}

func TestLocalRunner_IgnoresSIGTERM(t *testing.T) {
	runner := newTestRunner()

	out := runner.Run(context.Background(), shInvocation("trap '' TERM; sleep 30"), 300*time.Millisecond)

	if out.Error != ErrTimedOut {
		t.Errorf("Expected error %q, got %q", ErrTimedOut, out.Error)
	}
	if out.Duration < 500*time.Millisecond {
		t.Errorf("Duration should include the grace period, got %v", out.Duration)
	}
}

func TestLocalRunner_Cancel(t *testing.T) {
	runner := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	out := runner.Run(ctx, shInvocation("sleep 10"), 30*time.Second)

	if out.Error != ErrCancelled {
		t.Errorf("Expected error %q, got %q", ErrCancelled, out.Error)
	}
	if !out.Cancelled || out.ExitCode != nil {
		t.Errorf("Expected cancelled outcome without exit code, got %+v", out)
	}
}

func TestLocalRunner_LargeConcurrentStreams(t *testing.T) {
	runner := newTestRunner()
	const size = 10 << 20

	inv := shInvocation("head -c 10485760 /dev/zero & head -c 10485760 /dev/zero >&2; wait")
	out := runner.Run(context.Background(), inv, 60*time.Second)

	if out.ExitCode == nil || *out.ExitCode != 0 {
		t.Fatalf("Expected exit code 0, got %v (error: %s)", out.ExitCode, out.Error)
	}
	if len(out.Stdout) != size {
		t.Errorf("Expected %d stdout bytes, got %d", size, len(out.Stdout))
	}
	if len(out.Stderr) != size {
		t.Errorf("Expected %d stderr bytes, got %d", size, len(out.Stderr))
	}
	if out.Truncated {
		t.Error("Output should not be truncated without a cap")
	}
}

func TestLocalRunner_OutputCap(t *testing.T) {
	runner := newTestRunner(WithMaxOutputBytes(16))

	out := runner.Run(context.Background(), shInvocation("head -c 100000 /dev/zero"), 10*time.Second)

	if out.ExitCode == nil || *out.ExitCode != 0 {
		t.Fatalf("Writer past the cap must still exit cleanly, got %v", out.ExitCode)
	}
	if len(out.Stdout) != 16 {
		t.Errorf("Expected 16 bytes kept, got %d", len(out.Stdout))
	}
	if !out.Truncated {
		t.Error("Expected Truncated flag")
	}
}

func TestLocalRunner_BinaryOutputPreserved(t *testing.T) {
	runner := newTestRunner()

	out := runner.Run(context.Background(), shInvocation(`printf '\377\000\376'`), 5*time.Second)

	if !bytes.Equal(out.Stdout, []byte{0xff, 0x00, 0xfe}) {
		t.Errorf("Expected raw bytes preserved, got %v", out.Stdout)
	}
}

func TestLocalRunner_SpawnFailure(t *testing.T) {
	runner := newTestRunner()

	inv := &Invocation{RunID: "test", Command: "/nonexistent/interpreter", Args: []string{"script.py"}}
	out := runner.Run(context.Background(), inv, 5*time.Second)

	if out.ExitCode != nil {
		t.Errorf("Expected nil exit code, got %d", *out.ExitCode)
	}
	if !out.StartFailed {
		t.Error("Expected StartFailed flag")
	}
	if out.Error == "" || out.Error == ErrTimedOut {
		t.Errorf("Expected descriptive spawn error, got %q", out.Error)
	}
	if len(out.Stdout) != 0 || len(out.Stderr) != 0 {
		t.Error("Expected empty output on spawn failure")
	}
}

func TestLocalRunner_StdinEnvDir(t *testing.T) {
	runner := newTestRunner()
	dir := t.TempDir()

	inv := &Invocation{
		RunID:   "test",
		Command: "sh",
		Args:    []string{"-c", `cat; printf ' %s %s' "$TOOLSITE_RUN_ID" "$(pwd -P)"`},
		Dir:     dir,
		Env:     map[string]string{"TOOLSITE_RUN_ID": "run-42"},
		Stdin:   []byte(`{"a":1}`),
	}
	out := runner.Run(context.Background(), inv, 5*time.Second)

	resolved, _ := filepath.EvalSymlinks(dir)
	want := `{"a":1} run-42 ` + resolved
	if string(out.Stdout) != want {
		t.Errorf("Expected %q, got %q", want, out.Stdout)
	}
}

func TestLocalRunner_ConcurrentRuns(t *testing.T) {
	runner := newTestRunner()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := runner.Run(context.Background(), shInvocation("printf "+strconv.Itoa(i)), 5*time.Second)
			results[i] = string(out.Stdout)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if got != strconv.Itoa(i) {
			t.Errorf("run %d: expected %d, got %q", i, i, got)
		}
	}
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "C": "4"})
	joined := strings.Join(env, ",")
	if joined != "A=1,B=3,C=4" {
		t.Errorf("Unexpected env %s", joined)
	}
}

// waitGone polls until pid no longer exists or is a zombie awaiting reaping
// by init.
func waitGone(pid int, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func processAlive(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		if _, statErr := os.Stat("/proc/self"); statErr == nil {
			return false
		}
		p, err := os.FindProcess(pid)
		return err == nil && p.Signal(syscall.Signal(0)) == nil
	}
	// Field 3 is the state; Z means dead but not yet reaped.
	fields := strings.Fields(string(data[bytes.LastIndexByte(data, ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}
