package qinput

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/quatton/toolsite/pkg/qtool"
)

// Value is one schema field after coercion and staging.
type Value struct {
	Field   qtool.FieldSpec
	Present bool     // false when the argument should be omitted
	Text    string   // scalar rendering ("80", "true", "https://...")
	Bool    bool     // booleans only
	Number  float64  // numbers only
	Files   []string // staged paths, file fields only
	Dir     string   // staging directory, file fields with uploads only
}

// JSON returns the typed value written to the stdin document.
func (v *Value) JSON() any {
	switch v.Field.Type {
	case qtool.FieldBoolean:
		return v.Bool
	case qtool.FieldNumber:
		if !v.Present {
			return nil
		}
		return v.Number
	case qtool.FieldFile:
		if len(v.Files) == 0 {
			return nil
		}
		return v.Files[0]
	case qtool.FieldFiles:
		return append([]string{}, v.Files...)
	}
	if !v.Present {
		return nil
	}
	return v.Text
}

// Resolved is everything a Binder may turn into argv.
type Resolved struct {
	Values     []*Value // schema order
	InputDir   string
	OutputDir  string
	OutputName string // sanitized artifact name, empty if none
	byKey      map[string]*Value
}

// Get returns the value for key.
func (r *Resolved) Get(key string) (*Value, bool) {
	v, ok := r.byKey[key]
	return v, ok
}

// OutputFile is the absolute path of the expected artifact, if named.
func (r *Resolved) OutputFile() string {
	if r.OutputName == "" || r.OutputDir == "" {
		return ""
	}
	return filepath.Join(r.OutputDir, r.OutputName)
}

// Binder turns resolved inputs into script arguments.
type Binder func(schema *qtool.Schema, r *Resolved) ([]string, error)

// Registry maps binding names to binders.
type Registry struct {
	mu      sync.RWMutex
	binders map[qtool.Binding]Binder
}

// NewRegistry returns a registry with the built-in bindings.
func NewRegistry() *Registry {
	r := &Registry{binders: map[qtool.Binding]Binder{}}
	r.Register(qtool.BindingFlags, FlagsBinder)
	r.Register(qtool.BindingPositional, PositionalBinder)
	r.Register(qtool.BindingTemplate, TemplateBinder)
	return r
}

// Register adds or replaces a binding.
func (r *Registry) Register(name qtool.Binding, b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binders[name] = b
}

// Lookup returns the binder for name; the empty name means flags.
func (r *Registry) Lookup(name qtool.Binding) (Binder, bool) {
	if name == "" {
		name = qtool.BindingFlags
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.binders[name]
	return b, ok
}

// FlagsBinder renders "--key value" per present field in schema order.
// Keys become kebab-case flags; true booleans are bare flags; each staged
// file repeats the flag.
func FlagsBinder(_ *qtool.Schema, r *Resolved) ([]string, error) {
	var args []string
	for _, v := range r.Values {
		flag := "--" + KebabCase(v.Field.Key)
		switch {
		case v.Field.Type == qtool.FieldBoolean:
			if v.Bool {
				args = append(args, flag)
			}
		case v.Field.Type.IsFile():
			for _, f := range v.Files {
				args = append(args, flag, f)
			}
		case v.Present:
			args = append(args, flag, v.Text)
		}
	}
	return args, nil
}

// PositionalBinder renders one argument per field in schema order so
// positions never shift: absent scalars are "", booleans "true"/"false",
// a file field its path (or ""), a files field its staging directory.
func PositionalBinder(_ *qtool.Schema, r *Resolved) ([]string, error) {
	args := make([]string, 0, len(r.Values))
	for _, v := range r.Values {
		switch v.Field.Type {
		case qtool.FieldBoolean:
			args = append(args, fmt.Sprint(v.Bool))
		case qtool.FieldFile:
			if len(v.Files) > 0 {
				args = append(args, v.Files[0])
			} else {
				args = append(args, "")
			}
		case qtool.FieldFiles:
			args = append(args, v.Dir)
		default:
			args = append(args, v.Text)
		}
	}
	return args, nil
}

// TemplateBinder expands the schema's args template. A value placeholder
// with nothing to emit is dropped together with a directly preceding "-"
// literal, so "--url {url}" disappears as a pair.
func TemplateBinder(schema *qtool.Schema, r *Resolved) ([]string, error) {
	tokens, err := qtool.ParseTemplate(schema.Args)
	if err != nil {
		return nil, err
	}

	var args []string
	pendingFlag := -1 // index in args of a literal flag awaiting a value
	for _, tok := range tokens {
		var expanded []string
		switch tok.Kind {
		case qtool.TokenLiteral:
			args = append(args, tok.Text)
			pendingFlag = -1
			if strings.HasPrefix(tok.Text, "-") {
				pendingFlag = len(args) - 1
			}
			continue
		case qtool.TokenOutDir:
			expanded = []string{r.OutputDir}
		case qtool.TokenInDir:
			expanded = []string{r.InputDir}
		case qtool.TokenOutFile:
			if f := r.OutputFile(); f != "" {
				expanded = []string{f}
			}
		default:
			v, ok := r.Get(tok.Key)
			if !ok {
				return nil, fmt.Errorf("args: unknown input key %q", tok.Key)
			}
			expanded = expandValue(tok, v)
		}

		if len(expanded) == 0 {
			// {key|--flag} carries its own flag and never owns the literal before it.
			if tok.Kind != qtool.TokenFlag && pendingFlag >= 0 && pendingFlag == len(args)-1 {
				args = args[:pendingFlag]
			}
		} else {
			args = append(args, expanded...)
		}
		pendingFlag = -1
	}
	return args, nil
}

func expandValue(tok qtool.Token, v *Value) []string {
	switch tok.Kind {
	case qtool.TokenDir:
		if v.Dir == "" {
			return nil
		}
		return []string{v.Dir}
	case qtool.TokenFlag:
		switch {
		case v.Field.Type == qtool.FieldBoolean:
			if v.Bool {
				return []string{tok.Text}
			}
			return nil
		case v.Field.Type.IsFile():
			var out []string
			for _, f := range v.Files {
				out = append(out, tok.Text, f)
			}
			return out
		case v.Present:
			return []string{tok.Text, v.Text}
		}
		return nil
	}
	// {key}
	switch {
	case v.Field.Type == qtool.FieldBoolean:
		return []string{fmt.Sprint(v.Bool)}
	case v.Field.Type.IsFile():
		return append([]string{}, v.Files...)
	case v.Present:
		return []string{v.Text}
	}
	return nil
}

// KebabCase turns outputName or output_name into output-name.
func KebabCase(key string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range key {
		switch {
		case r == '_' || r == ' ' || r == '.':
			b.WriteByte('-')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

// EnvName turns outputName into OUTPUT_NAME.
func EnvName(key string) string {
	k := strings.ToUpper(strings.ReplaceAll(KebabCase(key), "-", "_"))
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, k)
}
