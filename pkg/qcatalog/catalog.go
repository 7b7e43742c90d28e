// Package qcatalog scans the scripts root into tool descriptors and
// resolves run requests against that snapshot.
package qcatalog

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/quatton/toolsite/pkg/qlog"
	"github.com/quatton/toolsite/pkg/qtool"
)

// DefaultExcludes are directory names never descended into.
var DefaultExcludes = []string{".venv", "venv", "__pycache__", "site-packages", "node_modules", ".git", ".toolsite"}

// DefaultExtensions are the script kinds the catalog lists.
var DefaultExtensions = []string{".py", ".sh", ".js"}

// Options configures a Catalog.
type Options struct {
	Root       string
	Manifest   string   // defaults to <Root>/tools.yaml
	Excludes   []string // directory names to skip, defaults to DefaultExcludes
	Extensions []string // defaults to DefaultExtensions
	Logger     *qlog.Logger
}

// Catalog holds an immutable snapshot that Refresh swaps atomically.
type Catalog struct {
	root       string
	manifest   string
	excludes   map[string]bool
	extensions map[string]bool
	logger     *qlog.Logger

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	list []*qtool.Descriptor
	byID map[string]*qtool.Descriptor
}

// New resolves the root and performs the first scan.
func New(opts Options) (*Catalog, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("catalog root is required")
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog root: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog root %s is not a directory", root)
	}

	c := &Catalog{
		root:       root,
		manifest:   opts.Manifest,
		excludes:   toSet(opts.Excludes, DefaultExcludes, false),
		extensions: toSet(opts.Extensions, DefaultExtensions, true),
		logger:     opts.Logger,
	}
	if c.manifest == "" {
		c.manifest = filepath.Join(root, ManifestFile)
	}
	if c.logger == nil {
		c.logger = qlog.NewDefault()
	}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the resolved catalog root.
func (c *Catalog) Root() string {
	return c.root
}

// List returns the descriptors sorted by relative path (case-insensitive).
func (c *Catalog) List() []qtool.Descriptor {
	s := c.snap.Load()
	out := make([]qtool.Descriptor, 0, len(s.list))
	for _, d := range s.list {
		out = append(out, *d)
	}
	return out
}

// Refresh rescans the root and the manifest and swaps the snapshot in.
// A broken manifest entry is logged and listed without its guided schema.
func (c *Catalog) Refresh() error {
	manifest, err := LoadManifest(c.manifest)
	if err != nil {
		c.logger.Warn("ignoring tool manifest", "path", c.manifest, "error", err)
		manifest = &Manifest{}
	}

	var list []*qtool.Descriptor
	err = filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == c.root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != c.root && c.excludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.extensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return nil
		}
		list = append(list, c.describe(p, filepath.ToSlash(rel), manifest))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", c.root, err)
	}

	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].RelPath) < strings.ToLower(list[j].RelPath)
	})
	byID := make(map[string]*qtool.Descriptor, len(list))
	for _, d := range list {
		byID[d.RelPath] = d
	}
	c.snap.Store(&snapshot{list: list, byID: byID})
	c.logger.Debug("catalog refreshed", "root", c.root, "scripts", len(list))
	return nil
}

func (c *Catalog) describe(abs, rel string, manifest *Manifest) *qtool.Descriptor {
	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	folder := path.Dir(rel)
	if folder == "." {
		folder = ""
	}
	d := &qtool.Descriptor{
		RelPath:     rel,
		Name:        name,
		Folder:      folder,
		Description: ReadDescription(abs),
		DisplayName: TitleFromStem(name),
		Path:        abs,
	}
	if meta, ok := manifest.Tools[rel]; ok {
		if meta.DisplayName != "" {
			d.DisplayName = meta.DisplayName
		}
		d.Summary = meta.Summary
		if meta.UI != nil {
			if err := meta.UI.Validate(); err != nil {
				c.logger.Warn("invalid tool schema, listing without form", "tool", rel, "error", err)
			} else {
				d.UI = meta.UI
			}
		}
	}
	return d
}

// Resolve returns the descriptor for scriptID. Anything that is not an
// exact, canonical catalog entry inside the root is ErrNotFound.
func (c *Catalog) Resolve(scriptID string) (*qtool.Descriptor, error) {
	if !canonical(scriptID) {
		return nil, qtool.ErrNotFound
	}
	d, ok := c.snap.Load().byID[scriptID]
	if !ok {
		return nil, qtool.ErrNotFound
	}

	// The file may have changed since the scan; never follow it out of root.
	real, err := filepath.EvalSymlinks(filepath.Join(c.root, filepath.FromSlash(scriptID)))
	if err != nil || !within(c.root, real) {
		return nil, qtool.ErrNotFound
	}
	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return nil, qtool.ErrNotFound
	}

	out := *d
	out.Path = real
	return &out, nil
}

func canonical(id string) bool {
	if id == "" || strings.ContainsAny(id, "\\\x00") || strings.HasPrefix(id, "/") || filepath.IsAbs(id) {
		return false
	}
	if path.Clean(id) != id {
		return false
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == ".." || seg == "." {
			return false
		}
	}
	return true
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// TitleFromStem turns "xlsx_to-json" into "Xlsx To Json".
func TitleFromStem(stem string) string {
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	words := strings.Fields(stem)
	if len(words) == 0 {
		return "Script"
	}
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func toSet(values, defaults []string, lower bool) map[string]bool {
	if len(values) == 0 {
		values = defaults
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if lower {
			v = strings.ToLower(v)
		}
		set[v] = true
	}
	return set
}
