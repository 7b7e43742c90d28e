package qart

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qtool"
)

// DefaultMaxBytes caps the total size of the artifacts of one run.
const DefaultMaxBytes int64 = 100 << 20

const zipMime = "application/zip"

// Collector turns a finished run's output directory into artifacts.
type Collector struct {
	maxBytes int64
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithMaxBytes caps the collected total. Zero or less keeps everything.
func WithMaxBytes(n int64) CollectorOption {
	return func(c *Collector) {
		c.maxBytes = n
	}
}

func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect reads the invocation's output directory. With an artifact spec it
// returns either the one named file or a zip of the whole directory;
// without one it returns every regular file sorted by relative path. An
// empty directory yields an empty list.
func (c *Collector) Collect(inv *qrunner.Invocation, desc *qtool.Descriptor) ([]Artifact, error) {
	dir := inv.OutputDir()
	if dir == "" {
		return []Artifact{}, nil
	}

	var spec *qtool.ArtifactSpec
	if desc.UI != nil {
		spec = desc.UI.Artifact
	}

	switch {
	case spec != nil && spec.Bundle == qtool.BundleZip:
		return c.bundle(dir, bundleName(inv, desc, spec))
	case spec != nil && (spec.Filename != "" || spec.FilenameFromInputKey != ""):
		name := inv.OutputName
		if name == "" && spec.Filename != "" {
			name = filepath.Base(spec.Filename)
		}
		// Advanced runs of a guided tool never resolve an output name.
		if name != "" {
			return c.named(dir, name, spec.Mime)
		}
	}
	return c.all(dir)
}

func (c *Collector) named(dir, name, declared string) ([]Artifact, error) {
	path := filepath.Join(dir, name)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return []Artifact{}, nil
	}
	if c.maxBytes > 0 && info.Size() > c.maxBytes {
		return nil, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return []Artifact{newArtifact(name, declared, data)}, nil
}

func (c *Collector) all(dir string) ([]Artifact, error) {
	files, err := regularFiles(dir)
	if err != nil {
		return nil, err
	}
	artifacts := make([]Artifact, 0, len(files))
	var total int64
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", rel, err)
		}
		total += int64(len(data))
		if c.maxBytes > 0 && total > c.maxBytes {
			return nil, ErrTooLarge
		}
		artifacts = append(artifacts, newArtifact(rel, "", data))
	}
	return artifacts, nil
}

func (c *Collector) bundle(dir, name string) ([]Artifact, error) {
	files, err := regularFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []Artifact{}, nil
	}
	data, err := zipFiles(dir, files)
	if err != nil {
		return nil, err
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, ErrTooLarge
	}
	return []Artifact{newArtifact(name, zipMime, data)}, nil
}

// regularFiles lists regular files under dir as slash separated relative
// paths in sorted order. Symlinks are never followed.
func regularFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func zipFiles(dir string, files []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, rel := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
		if err != nil {
			return nil, err
		}
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to zip %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bundleName(inv *qrunner.Invocation, desc *qtool.Descriptor, spec *qtool.ArtifactSpec) string {
	switch {
	case inv.OutputName != "":
		return inv.OutputName
	case spec.Filename != "":
		return filepath.Base(spec.Filename)
	}
	stem := desc.Folder
	if stem == "" {
		stem = desc.Name
	}
	return strings.ToLower(strings.ReplaceAll(stem, "/", "_")) + "_output.zip"
}

func newArtifact(name, declared string, data []byte) Artifact {
	return Artifact{
		Filename: name,
		Mime:     DetectMime(name, declared, data),
		Data:     data,
		Size:     int64(len(data)),
	}
}

// DetectMime picks the declared type, then the extension, then sniffs the
// content.
func DetectMime(filename, declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
