package qcatalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quatton/toolsite/pkg/qtool"
)

// ManifestFile is looked up in the catalog root when no path is given.
const ManifestFile = "tools.yaml"

// Manifest attaches display metadata and guided schemas to scripts.
//
//	tools:
//	  XLXS_JSON/convert.py:
//	    displayName: Excel (.xlsx) to JSON
//	    ui:
//	      inputs:
//	        - {key: xlsx, type: file, required: true, accept: [.xlsx]}
type Manifest struct {
	Tools map[string]ToolMeta `yaml:"tools"`
}

// ToolMeta is one manifest entry, keyed by relative path.
type ToolMeta struct {
	DisplayName string        `yaml:"displayName"`
	Summary     string        `yaml:"summary"`
	UI          *qtool.Schema `yaml:"ui"`
}

// LoadManifest reads path. A missing file is an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML, rejecting unknown fields so typos in
// schemas surface instead of silently dropping inputs.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
