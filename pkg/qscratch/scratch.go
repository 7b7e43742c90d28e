// Package qscratch manages the private per-run directories used to stage
// uploads and collect outputs.
package qscratch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Area is one run's scratch directory.
//
//	<root>/<id>/in   staged uploads
//	<root>/<id>/out  files the tool produces
type Area struct {
	ID        string
	Dir       string
	InputDir  string
	OutputDir string
}

// New creates a fresh area for id under root. It fails if the area already
// exists so two runs can never share one.
func New(root, id string) (*Area, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid scratch id %q", id)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	dir := filepath.Join(root, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scratch area: %w", err)
	}
	a := &Area{
		ID:        id,
		Dir:       dir,
		InputDir:  filepath.Join(dir, "in"),
		OutputDir: filepath.Join(dir, "out"),
	}
	for _, d := range []string{a.InputDir, a.OutputDir} {
		if err := os.Mkdir(d, 0o700); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create scratch area: %w", err)
		}
	}
	return a, nil
}

// FieldDir returns (and creates) the staging directory for one input key.
func (a *Area) FieldDir(key string) (string, error) {
	if key == "" || filepath.Base(key) != key || key == "." || key == ".." {
		return "", fmt.Errorf("invalid input key %q", key)
	}
	dir := filepath.Join(a.InputDir, key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create input dir: %w", err)
	}
	return dir, nil
}

// Remove deletes the area and everything in it.
func (a *Area) Remove() error {
	if a == nil {
		return nil
	}
	return os.RemoveAll(a.Dir)
}
