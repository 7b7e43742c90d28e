// Package qtool holds the tool data model shared by the catalog, the input
// marshaler, the runners and the API.
package qtool

import (
	"fmt"
	"strings"
)

// FieldType is the closed set of guided input kinds.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldURL     FieldType = "url"
	FieldFile    FieldType = "file"
	FieldFiles   FieldType = "files"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldBoolean, FieldURL, FieldFile, FieldFiles:
		return true
	}
	return false
}

// IsFile reports whether values for t arrive as uploads.
func (t FieldType) IsFile() bool {
	return t == FieldFile || t == FieldFiles
}

// ModeGuided marks a schema that renders a form.
const ModeGuided = "guided"

// Binding names how resolved inputs become argv.
type Binding string

const (
	BindingFlags      Binding = "flags"
	BindingPositional Binding = "positional"
	BindingTemplate   Binding = "template"
)

// FieldSpec describes one guided input.
type FieldSpec struct {
	Key      string    `json:"key" yaml:"key"`
	Label    string    `json:"label,omitempty" yaml:"label"`
	Type     FieldType `json:"type" yaml:"type"`
	Value    any       `json:"value,omitempty" yaml:"value"`
	Min      *float64  `json:"min,omitempty" yaml:"min"`
	Max      *float64  `json:"max,omitempty" yaml:"max"`
	Accept   []string  `json:"accept,omitempty" yaml:"accept"`
	Multiple bool      `json:"multiple,omitempty" yaml:"multiple"`
	Required bool      `json:"required,omitempty" yaml:"required"`
}

// Accepts reports whether filename passes the Accept extension filter.
// An empty filter accepts everything.
func (f FieldSpec) Accepts(filename string) bool {
	if len(f.Accept) == 0 {
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range f.Accept {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ArtifactSpec declares what a tool is expected to leave in its output
// directory.
type ArtifactSpec struct {
	Filename             string `json:"filename,omitempty" yaml:"filename"`
	FilenameFromInputKey string `json:"filenameFromInputKey,omitempty" yaml:"filenameFromInputKey"`
	Mime                 string `json:"mime,omitempty" yaml:"mime"`
	Bundle               string `json:"bundle,omitempty" yaml:"bundle"`
}

// BundleZip collects the whole output directory as one zip archive.
const BundleZip = "zip"

// Schema is the guided input contract of one tool.
type Schema struct {
	Mode     string        `json:"mode" yaml:"mode"`
	Inputs   []FieldSpec   `json:"inputs" yaml:"inputs"`
	Artifact *ArtifactSpec `json:"artifact,omitempty" yaml:"artifact"`
	Binding  Binding       `json:"binding,omitempty" yaml:"binding"`
	Args     []string      `json:"args,omitempty" yaml:"args"`
}

// Field returns the FieldSpec with the given key.
func (s *Schema) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Inputs {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks the schema itself, not a submission.
func (s *Schema) Validate() error {
	if s.Mode != "" && s.Mode != ModeGuided {
		return fmt.Errorf("unsupported mode %q", s.Mode)
	}
	seen := make(map[string]bool, len(s.Inputs))
	for i, f := range s.Inputs {
		if f.Key == "" {
			return fmt.Errorf("inputs[%d]: key is required", i)
		}
		if seen[f.Key] {
			return fmt.Errorf("inputs[%d]: duplicate key %q", i, f.Key)
		}
		seen[f.Key] = true
		if !f.Type.Valid() {
			return fmt.Errorf("inputs[%d]: unknown type %q", i, f.Type)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("inputs[%d]: min is greater than max", i)
		}
	}
	if a := s.Artifact; a != nil {
		if a.Bundle != "" && a.Bundle != BundleZip {
			return fmt.Errorf("artifact: unsupported bundle %q", a.Bundle)
		}
		if a.FilenameFromInputKey != "" && !seen[a.FilenameFromInputKey] {
			return fmt.Errorf("artifact: unknown input key %q", a.FilenameFromInputKey)
		}
	}
	switch s.Binding {
	case "", BindingFlags, BindingPositional:
	case BindingTemplate:
		tokens, err := ParseTemplate(s.Args)
		if err != nil {
			return err
		}
		for _, tok := range tokens {
			if tok.Key != "" && !seen[tok.Key] {
				return fmt.Errorf("args: unknown input key %q", tok.Key)
			}
		}
	}
	return nil
}

// Descriptor is one cataloged script.
type Descriptor struct {
	RelPath     string  `json:"relPath"`
	Name        string  `json:"name"`
	Folder      string  `json:"folder"`
	Description string  `json:"description,omitempty"`
	DisplayName string  `json:"displayName"`
	Summary     string  `json:"summary,omitempty"`
	UI          *Schema `json:"ui,omitempty"`

	// Path is the absolute, symlink-resolved location on disk.
	Path string `json:"-"`
}

// Guided reports whether the descriptor carries a guided schema.
func (d *Descriptor) Guided() bool {
	return d.UI != nil && (d.UI.Mode == "" || d.UI.Mode == ModeGuided)
}
