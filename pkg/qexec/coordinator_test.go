//go:build !windows

package qexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quatton/toolsite/pkg/kv"
	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qauth"
	"github.com/quatton/toolsite/pkg/qcatalog"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qlog"
	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qscratch"
	"github.com/quatton/toolsite/pkg/qtool"
)

const manifest = `
tools:
  copy.sh:
    displayName: Copy
    ui:
      mode: guided
      binding: template
      args: ["{doc}", "{@out:outputName}"]
      inputs:
        - {key: doc, type: file, required: true}
        - {key: outputName, type: text, value: copy.txt}
      artifact: {filenameFromInputKey: outputName}
`

type fixture struct {
	coord   *Coordinator
	scratch string
}

func newFixture(t *testing.T, publisher *Publisher) *fixture {
	t.Helper()
	root := t.TempDir()
	scripts := map[string]string{
		"hello.sh":    "echo \"hello $1\"\necho warn >&2\n",
		"fail.sh":     "echo \"No module named 'openpyxl'\" >&2\nexit 3\n",
		"sleep.sh":    "sleep 30\n",
		"copy.sh":     "cat \"$1\" > \"$2\"\n",
		"outputs.sh":  "echo a > \"$TOOLSITE_OUTPUT_DIR/a.txt\"\n",
		"slowout.sh":  "sleep 0.3\necho done > \"$TOOLSITE_OUTPUT_DIR/r.txt\"\n",
		"tools.yaml":  manifest,
		"nested/x.sh": "echo nested\n",
	}
	for name, content := range scripts {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	logger := qlog.Discard()
	catalog, err := qcatalog.New(qcatalog.Options{Root: root, Logger: logger})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	scratch := t.TempDir()
	coord, err := New(Options{
		Resolver:    catalog,
		Runner:      qrunner.NewLocalRunner(qrunner.WithLogger(logger), qrunner.WithKillGrace(200*time.Millisecond)),
		Publisher:   publisher,
		ScratchRoot: scratch,
		Logger:      logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{coord: coord, scratch: scratch}
}

func (f *fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected scratch areas to be removed, found %d", len(entries))
	}
}

func TestRunAdvancedHello(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "hello.sh", Args: "'big world'"})
	if err != nil {
		t.Fatalf("RunAdvanced failed: %v", err)
	}
	if res.Stdout != "hello big world\n" || res.Stderr != "warn\n" {
		t.Errorf("Unexpected output %q / %q", res.Stdout, res.Stderr)
	}
	if res.ReturnCode == nil || *res.ReturnCode != 0 || res.Error != "" {
		t.Errorf("Expected clean exit, got %v %q", res.ReturnCode, res.Error)
	}
	if res.RunID == "" || len(res.Cmd) != 3 {
		t.Errorf("Unexpected run id or cmd: %s %v", res.RunID, res.Cmd)
	}
	f.assertScratchEmpty(t)
}

func TestRunAdvancedRejectsBeforeSpawn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, id := range []string{"missing.sh", "../hello.sh", "/etc/passwd"} {
		if _, err := f.coord.RunAdvanced(ctx, AdvancedRequest{ScriptID: id}); !errors.Is(err, qtool.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", id, err)
		}
	}
	if _, err := f.coord.RunAdvanced(ctx, AdvancedRequest{ScriptID: "hello.sh", Args: `"unterminated`}); !qtool.IsValidation(err) {
		t.Errorf("Expected ValidationError for bad quoting, got %v", err)
	}
	if _, err := f.coord.RunGuided(ctx, GuidedRequest{ScriptID: "hello.sh"}); !qtool.IsValidation(err) {
		t.Errorf("Expected ValidationError for non-guided tool, got %v", err)
	}
	f.assertScratchEmpty(t)
}

func TestRunNonZeroExitHint(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "fail.sh"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ReturnCode == nil || *res.ReturnCode != 3 {
		t.Errorf("Expected exit 3, got %v", res.ReturnCode)
	}
	if res.Error != "" {
		t.Errorf("Expected no error for a non-zero exit, got %q", res.Error)
	}
	if !strings.Contains(res.Hint, "openpyxl") {
		t.Errorf("Expected dependency hint, got %q", res.Hint)
	}
}

func TestRunTimeout(t *testing.T) {
	f := newFixture(t, nil)
	start := time.Now()
	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "sleep.sh", Timeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.ReturnCode != nil || res.Error != qrunner.ErrTimedOut {
		t.Errorf("Expected timed out with no return code, got %v %q", res.ReturnCode, res.Error)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
	if len(res.Artifacts) != 0 {
		t.Errorf("Expected no artifacts after timeout, got %d", len(res.Artifacts))
	}
	f.assertScratchEmpty(t)
}

func TestRunAdvancedCollectsOutputs(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "outputs.sh"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Filename != "a.txt" || string(res.Artifacts[0].Data) != "a\n" {
		t.Errorf("Expected a.txt artifact, got %+v", res.Artifacts)
	}
}

func TestJanitorLeavesRunningAreaAlone(t *testing.T) {
	f := newFixture(t, nil)
	janitor := qscratch.NewJanitor(f.scratch, time.Nanosecond, qlog.Discard())
	janitor.Protect(f.coord.Live())

	swept := make(chan int, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		swept <- janitor.Sweep(time.Now().Add(time.Hour))
	}()

	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "slowout.sh"})
	if err != nil {
		t.Fatal(err)
	}
	if n := <-swept; n != 0 {
		t.Errorf("Expected janitor to skip the live area, removed %d", n)
	}
	if res.ReturnCode == nil || *res.ReturnCode != 0 {
		t.Fatalf("Expected clean exit, got %v (stderr %q)", res.ReturnCode, res.Stderr)
	}
	if len(res.Artifacts) != 1 || string(res.Artifacts[0].Data) != "done\n" {
		t.Errorf("Expected r.txt artifact, got %+v", res.Artifacts)
	}
	if f.coord.Live().Len() != 0 {
		t.Errorf("Expected no live runs after return, got %d", f.coord.Live().Len())
	}
	f.assertScratchEmpty(t)
}

func TestRunGuidedArtifact(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.coord.RunGuided(context.Background(), GuidedRequest{
		ScriptID: "copy.sh",
		Inputs:   map[string]any{"outputName": "result"},
		Files:    map[string][]qinput.Upload{"doc": {{Name: "in.txt", Data: []byte("payload")}}},
	})
	if err != nil {
		t.Fatalf("RunGuided failed: %v", err)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("Expected one artifact, got %+v (stderr %q)", res.Artifacts, res.Stderr)
	}
	a := res.Artifacts[0]
	if a.Filename != "result.txt" || string(a.Data) != "payload" {
		t.Errorf("Unexpected artifact %s %q", a.Filename, a.Data)
	}
	f.assertScratchEmpty(t)

	_, err = f.coord.RunGuided(context.Background(), GuidedRequest{ScriptID: "copy.sh"})
	if !qtool.IsValidation(err) {
		t.Errorf("Expected ValidationError for missing required file, got %v", err)
	}
	f.assertScratchEmpty(t)
}

func TestRunGuidedConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	const n = 6
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := strings.Repeat(string(rune('a'+i)), 100)
			res, err := f.coord.RunGuided(context.Background(), GuidedRequest{
				ScriptID: "copy.sh",
				Files:    map[string][]qinput.Upload{"doc": {{Name: "same.txt", Data: []byte(payload)}}},
			})
			if err != nil || len(res.Artifacts) != 1 {
				return
			}
			results[i] = string(res.Artifacts[0].Data)
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		want := strings.Repeat(string(rune('a'+i)), 100)
		if got != want {
			t.Errorf("Run %d: expected its own payload, got %q", i, got)
		}
	}
	f.assertScratchEmpty(t)
}

func TestPublisher(t *testing.T) {
	signer, err := qauth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	archive := qart.NewMemoryArchive()
	pub := NewPublisher(kv.NewMemoryStore(), signer, archive, qlog.Discard())
	f := newFixture(t, pub)

	res, err := f.coord.RunAdvanced(context.Background(), AdvancedRequest{ScriptID: "outputs.sh"})
	if err != nil || len(res.Artifacts) != 1 {
		t.Fatalf("Unexpected result %+v (%v)", res, err)
	}
	a := res.Artifacts[0]
	if a.Download == "" || !strings.HasPrefix(a.URL, "memory://") {
		t.Fatalf("Expected download token and archive URL, got %+v", a)
	}

	got, err := pub.Fetch(context.Background(), a.Download)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Filename != "a.txt" || string(got.Data) != "a\n" {
		t.Errorf("Unexpected fetched artifact %+v", got)
	}
	if _, err := pub.Fetch(context.Background(), "garbage"); !errors.Is(err, qauth.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}
