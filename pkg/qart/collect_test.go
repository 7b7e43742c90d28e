package qart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qscratch"
	"github.com/quatton/toolsite/pkg/qtool"
)

func newRun(t *testing.T, outputs map[string][]byte) *qrunner.Invocation {
	t.Helper()
	area, err := qscratch.New(t.TempDir(), "run")
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range outputs {
		p := filepath.Join(area.OutputDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &qrunner.Invocation{RunID: "run", Scratch: area}
}

func TestCollectAllSorted(t *testing.T) {
	inv := newRun(t, map[string][]byte{
		"b.txt":        []byte("b"),
		"a/nested.csv": []byte("x,y"),
		"A.json":       []byte("{}"),
	})
	if err := os.Symlink("/etc/passwd", filepath.Join(inv.OutputDir(), "link")); err != nil {
		t.Fatal(err)
	}

	got, err := NewCollector().Collect(inv, &qtool.Descriptor{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	want := []string{"A.json", "a/nested.csv", "b.txt"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d artifacts, got %d", len(want), len(got))
	}
	for i, a := range got {
		if a.Filename != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, a.Filename)
		}
	}
	if got[0].Mime != "application/json" {
		t.Errorf("Expected mime by extension, got %s", got[0].Mime)
	}
}

func TestCollectEmpty(t *testing.T) {
	inv := newRun(t, nil)
	for _, desc := range []*qtool.Descriptor{
		{},
		{UI: &qtool.Schema{Artifact: &qtool.ArtifactSpec{Bundle: qtool.BundleZip}}},
		{UI: &qtool.Schema{Artifact: &qtool.ArtifactSpec{Filename: "out.json"}}},
	} {
		got, err := NewCollector().Collect(inv, desc)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("Expected empty non-nil list, got %v (%v)", got, err)
		}
	}

	got, err := NewCollector().Collect(&qrunner.Invocation{}, &qtool.Descriptor{})
	if err != nil || len(got) != 0 {
		t.Errorf("Expected nothing without a scratch area, got %v (%v)", got, err)
	}
}

func TestCollectNamed(t *testing.T) {
	inv := newRun(t, map[string][]byte{"report.md": []byte("# hi"), "other.txt": []byte("x")})
	inv.OutputName = "report.md"
	desc := &qtool.Descriptor{UI: &qtool.Schema{Artifact: &qtool.ArtifactSpec{FilenameFromInputKey: "outputName", Mime: "text/markdown"}}}

	got, err := NewCollector().Collect(inv, desc)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 1 || got[0].Filename != "report.md" || got[0].Mime != "text/markdown" {
		t.Fatalf("Expected only the named artifact, got %+v", got)
	}

	inv.OutputName = "missing.md"
	got, _ = NewCollector().Collect(inv, desc)
	if len(got) != 0 {
		t.Errorf("Expected nothing for an absent named file, got %+v", got)
	}
}

func TestCollectBundle(t *testing.T) {
	inv := newRun(t, map[string][]byte{"one.webp": []byte("1"), "sub/two.webp": []byte("22")})
	desc := &qtool.Descriptor{Folder: "WEBP", Name: "convert", UI: &qtool.Schema{Artifact: &qtool.ArtifactSpec{Bundle: qtool.BundleZip}}}

	got, err := NewCollector().Collect(inv, desc)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 1 || got[0].Filename != "webp_output.zip" || got[0].Mime != "application/zip" {
		t.Fatalf("Unexpected bundle %+v", got)
	}

	zr, err := zip.NewReader(bytes.NewReader(got[0].Data), int64(len(got[0].Data)))
	if err != nil {
		t.Fatalf("Bundle is not a zip: %v", err)
	}
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[f.Name] = string(data)
	}
	if contents["one.webp"] != "1" || contents["sub/two.webp"] != "22" {
		t.Errorf("Unexpected zip contents %v", contents)
	}
}

func TestCollectSizeLimit(t *testing.T) {
	inv := newRun(t, map[string][]byte{"a": make([]byte, 6), "b": make([]byte, 6)})
	_, err := NewCollector(WithMaxBytes(10)).Collect(inv, &qtool.Descriptor{})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}

func TestArtifactBase64RoundTrip(t *testing.T) {
	payload := []byte{0x00, 0xff, 0xfe, 'P', 'K', 0x03, 0x04, 0x80}
	inv := newRun(t, map[string][]byte{"blob.bin": payload})

	got, err := NewCollector().Collect(inv, &qtool.Descriptor{})
	if err != nil || len(got) != 1 {
		t.Fatalf("Collect failed: %v %v", got, err)
	}
	encoded, err := json.Marshal(got[0])
	if err != nil {
		t.Fatal(err)
	}

	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatal(err)
	}
	if _, ok := wire["base64"].(string); !ok {
		t.Fatalf("Expected base64 string field, got %s", encoded)
	}

	var back Artifact
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Data, payload) {
		t.Errorf("Expected identical bytes after round trip, got %v", back.Data)
	}
}

func TestDetectMime(t *testing.T) {
	if got := DetectMime("x.bin", "text/markdown", nil); got != "text/markdown" {
		t.Errorf("Expected declared mime, got %s", got)
	}
	if got := DetectMime("noext", "", []byte("%PDF-1.4")); got != "application/pdf" {
		t.Errorf("Expected sniffed pdf, got %s", got)
	}
}

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive()
	key := RunArtifactKey("r1", "out.json")
	if key != "runs/r1/out.json" {
		t.Errorf("Unexpected key %s", key)
	}
	if err := a.Put(ctx, key, []byte("{}"), "application/json", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.PresignedURL(ctx, key, time.Minute); err != nil {
		t.Errorf("PresignedURL failed: %v", err)
	}
	if err := a.DeletePrefix(ctx, RunArtifactPrefix("r1")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
