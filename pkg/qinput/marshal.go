// Package qinput turns a guided form submission into a ready-to-run
// invocation: it coerces values per field type, stages uploads into the
// run's scratch area and renders argv through a pluggable binding.
package qinput

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qscratch"
	"github.com/quatton/toolsite/pkg/qtool"
)

// Environment handed to every tool.
const (
	EnvRunID       = "TOOLSITE_RUN_ID"
	EnvInputDir    = "TOOLSITE_INPUT_DIR"
	EnvOutputDir   = "TOOLSITE_OUTPUT_DIR"
	EnvInputsFile  = "TOOLSITE_INPUTS_FILE"
	EnvOutputFile  = "TOOLSITE_OUTPUT_FILE"
	EnvInputPrefix = "TOOLSITE_INPUT_"
)

// InputsFile is the copy of the stdin document kept in the scratch area.
const InputsFile = "inputs.json"

// DefaultInterpreters maps script extensions to the program that runs them.
var DefaultInterpreters = map[string]string{
	".py": "python3",
	".sh": "sh",
	".js": "node",
}

// Options configures a Marshaler.
type Options struct {
	// Interpreters overrides DefaultInterpreters per extension.
	Interpreters map[string]string
	// Python replaces the .py interpreter for scripts without a .venv.
	Python string
	// MaxUploadBytes caps decoded uploads per request. Zero means the default.
	MaxUploadBytes int64
	// Registry supplies bindings. Nil means NewRegistry().
	Registry *Registry
}

// Marshaler is safe for concurrent use.
type Marshaler struct {
	interpreters map[string]string
	maxUpload    int64
	registry     *Registry
}

func New(opts Options) *Marshaler {
	m := &Marshaler{
		interpreters: make(map[string]string, len(DefaultInterpreters)),
		maxUpload:    opts.MaxUploadBytes,
		registry:     opts.Registry,
	}
	for ext, prog := range DefaultInterpreters {
		m.interpreters[ext] = prog
	}
	for ext, prog := range opts.Interpreters {
		m.interpreters[strings.ToLower(ext)] = prog
	}
	if opts.Python != "" {
		m.interpreters[".py"] = opts.Python
	}
	if m.maxUpload <= 0 {
		m.maxUpload = DefaultMaxUploadBytes
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	return m
}

// MaxUploadBytes is the per-request upload limit.
func (m *Marshaler) MaxUploadBytes() int64 {
	return m.maxUpload
}

// Registry exposes the binding registry so callers can add conventions.
func (m *Marshaler) Registry() *Registry {
	return m.registry
}

// Command returns the program and leading arguments that execute the script.
// Python scripts prefer the interpreter of a .venv next to them.
func (m *Marshaler) Command(desc *qtool.Descriptor) (string, []string) {
	ext := strings.ToLower(filepath.Ext(desc.Path))
	if ext == ".py" {
		if venv := venvPython(filepath.Dir(desc.Path)); venv != "" {
			return venv, []string{desc.Path}
		}
	}
	if prog, ok := m.interpreters[ext]; ok && prog != "" {
		return prog, []string{desc.Path}
	}
	return desc.Path, nil
}

func venvPython(dir string) string {
	candidate := filepath.Join(dir, ".venv", "bin", "python")
	if runtime.GOOS == "windows" {
		candidate = filepath.Join(dir, ".venv", "Scripts", "python.exe")
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return ""
}

// Advanced builds the invocation for a raw argument list.
func (m *Marshaler) Advanced(runID string, desc *qtool.Descriptor, args []string, area *qscratch.Area) *qrunner.Invocation {
	command, lead := m.Command(desc)
	inv := &qrunner.Invocation{
		RunID:   runID,
		Command: command,
		Args:    append(lead, args...),
		Dir:     filepath.Dir(desc.Path),
		Env:     map[string]string{EnvRunID: runID},
		Scratch: area,
	}
	if area != nil {
		inv.Env[EnvInputDir] = area.InputDir
		inv.Env[EnvOutputDir] = area.OutputDir
	}
	return inv
}

// Marshal resolves a guided submission against desc's schema and stages its
// uploads into area, whose id doubles as the run id. Missing or unusable scalars fall back to the declared
// default; only structurally malformed submissions fail, always with a
// *qtool.ValidationError.
func (m *Marshaler) Marshal(desc *qtool.Descriptor, inputs map[string]any, files map[string][]Upload, area *qscratch.Area) (*qrunner.Invocation, error) {
	if !desc.Guided() {
		return nil, qtool.Invalid("toolRelPath", "%s has no guided inputs", desc.RelPath)
	}
	if area == nil {
		return nil, fmt.Errorf("guided run of %s needs a scratch area", desc.RelPath)
	}
	schema := desc.UI
	runID := area.ID

	var total int64
	for _, ups := range files {
		for _, u := range ups {
			total += int64(len(u.Data))
		}
	}
	if total > m.maxUpload {
		return nil, qtool.Invalid("files", "upload too large (limit %d bytes)", m.maxUpload)
	}

	r := &Resolved{
		InputDir:  area.InputDir,
		OutputDir: area.OutputDir,
		byKey:     make(map[string]*Value, len(schema.Inputs)),
	}
	staged := map[string][]string{}
	for _, field := range schema.Inputs {
		v, err := m.resolve(field, inputs, files, area)
		if err != nil {
			return nil, err
		}
		if len(v.Files) > 0 {
			staged[field.Key] = v.Files
		}
		r.Values = append(r.Values, v)
		r.byKey[field.Key] = v
	}
	r.OutputName = outputName(schema, r)

	binder, ok := m.registry.Lookup(schema.Binding)
	if !ok {
		return nil, qtool.Invalid("binding", "unknown binding %q", schema.Binding)
	}
	args, err := binder(schema, r)
	if err != nil {
		return nil, qtool.Invalid("args", "%v", err)
	}

	stdin, err := stdinDocument(r)
	if err != nil {
		return nil, err
	}
	inputsPath := filepath.Join(area.Dir, InputsFile)
	if err := os.WriteFile(inputsPath, stdin, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write inputs file: %w", err)
	}

	command, lead := m.Command(desc)
	inv := &qrunner.Invocation{
		RunID:      runID,
		Command:    command,
		Args:       append(lead, args...),
		Dir:        filepath.Dir(desc.Path),
		Stdin:      stdin,
		Scratch:    area,
		Staged:     staged,
		OutputName: r.OutputName,
		Env: map[string]string{
			EnvRunID:      runID,
			EnvInputDir:   area.InputDir,
			EnvOutputDir:  area.OutputDir,
			EnvInputsFile: inputsPath,
		},
	}
	if f := r.OutputFile(); f != "" {
		inv.Env[EnvOutputFile] = f
	}
	for _, v := range r.Values {
		name := EnvInputPrefix + EnvName(v.Field.Key)
		switch {
		case v.Field.Type == qtool.FieldBoolean:
			inv.Env[name] = strconv.FormatBool(v.Bool)
		case v.Field.Type == qtool.FieldFile && len(v.Files) > 0:
			inv.Env[name] = v.Files[0]
		case v.Field.Type == qtool.FieldFiles && v.Dir != "":
			inv.Env[name] = v.Dir
		case v.Present && !v.Field.Type.IsFile():
			inv.Env[name] = v.Text
		}
	}
	return inv, nil
}

func (m *Marshaler) resolve(field qtool.FieldSpec, inputs map[string]any, files map[string][]Upload, area *qscratch.Area) (*Value, error) {
	v := &Value{Field: field}
	raw, supplied := inputs[field.Key]

	switch field.Type {
	case qtool.FieldNumber:
		f, ok := parseNumber(raw)
		if !ok {
			f, ok = parseNumber(field.Value)
		}
		if ok {
			v.Present = true
			v.Number = clamp(f, field.Min, field.Max)
			v.Text = formatNumber(v.Number)
		}

	case qtool.FieldBoolean:
		b, ok := parseBool(raw)
		if !ok {
			b, _ = parseBool(field.Value)
		}
		v.Present = true
		v.Bool = b
		v.Text = strconv.FormatBool(b)

	case qtool.FieldText, qtool.FieldURL:
		s, ok := parseText(raw)
		if !ok || strings.TrimSpace(s) == "" {
			s, _ = parseText(field.Value)
		}
		s = strings.TrimSpace(s)
		if s == "" && field.Required {
			return nil, qtool.Invalid(field.Key, "is required")
		}
		v.Present = s != ""
		v.Text = s

	case qtool.FieldFile, qtool.FieldFiles:
		if supplied && raw != nil {
			if s, isString := raw.(string); !isString || s != "" {
				return nil, qtool.Invalid(field.Key, "file inputs must be uploaded under files")
			}
		}
		uploads := files[field.Key]
		if field.Type == qtool.FieldFile && len(uploads) > 1 {
			uploads = uploads[:1]
		}
		if len(uploads) == 0 {
			if field.Required {
				return nil, qtool.Invalid(field.Key, "at least one file is required")
			}
			return v, nil
		}
		dir, err := area.FieldDir(field.Key)
		if err != nil {
			return nil, err
		}
		used := map[string]bool{}
		for i, u := range uploads {
			name := safeName(u.Name, i)
			if !field.Accepts(name) {
				return nil, qtool.Invalid(field.Key, "%s: extension not accepted (want %s)", name, strings.Join(field.Accept, ", "))
			}
			name = uniqueName(name, used)
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, u.Data, 0o600); err != nil {
				return nil, fmt.Errorf("failed to stage %s: %w", name, err)
			}
			v.Files = append(v.Files, path)
		}
		v.Present = true
		v.Dir = dir
		v.Text = v.Files[0]
	}
	return v, nil
}

// baseName keeps only the final element of a client supplied path.
func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}

func safeName(name string, i int) string {
	if base := baseName(name); base != "" {
		return base
	}
	return fmt.Sprintf("upload-%d", i+1)
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

// ArtifactName sanitizes a requested output filename: only its base name
// is kept, blank falls back to def, and def's extension is appended when
// missing.
func ArtifactName(requested, def string) string {
	name := baseName(requested)
	if name == "" {
		name = baseName(def)
	}
	if name == "" {
		return ""
	}
	if ext := filepath.Ext(def); ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	return name
}

func outputName(schema *qtool.Schema, r *Resolved) string {
	a := schema.Artifact
	if a == nil {
		return ""
	}
	if a.FilenameFromInputKey != "" {
		def := a.Filename
		if f, ok := schema.Field(a.FilenameFromInputKey); ok {
			if s, ok := parseText(f.Value); ok && s != "" {
				def = s
			}
		}
		requested := ""
		if v, ok := r.Get(a.FilenameFromInputKey); ok && v.Present {
			requested = v.Text
		}
		return ArtifactName(requested, def)
	}
	if a.Filename != "" {
		return ArtifactName(a.Filename, a.Filename)
	}
	return ""
}

// stdinDocument is the JSON handed to the tool on stdin:
//
//	{"inputs": {...}, "files": {"key": [paths]}, "inputDir": "...", "outputDir": "...", "outputFile": "..."}
func stdinDocument(r *Resolved) ([]byte, error) {
	doc := struct {
		Inputs     map[string]any      `json:"inputs"`
		Files      map[string][]string `json:"files"`
		InputDir   string              `json:"inputDir"`
		OutputDir  string              `json:"outputDir"`
		OutputFile string              `json:"outputFile,omitempty"`
	}{
		Inputs:     make(map[string]any, len(r.Values)),
		Files:      map[string][]string{},
		InputDir:   r.InputDir,
		OutputDir:  r.OutputDir,
		OutputFile: r.OutputFile(),
	}
	for _, v := range r.Values {
		doc.Inputs[v.Field.Key] = v.JSON()
		if v.Field.Type.IsFile() {
			doc.Files[v.Field.Key] = append([]string{}, v.Files...)
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}
	return data, nil
}
