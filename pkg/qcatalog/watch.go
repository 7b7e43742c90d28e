package qcatalog

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const refreshDebounce = 250 * time.Millisecond

// Watch refreshes the catalog whenever a script, directory or the manifest
// changes under the root, until ctx is done. Bursts of events collapse into
// one refresh.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := c.addTree(watcher, c.root); err != nil {
		_ = watcher.Close()
		return err
	}
	if dir := filepath.Dir(c.manifest); !within(c.root, dir) {
		if err := watcher.Add(dir); err != nil {
			c.logger.Warn("cannot watch manifest directory", "path", dir, "error", err)
		}
	}

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(refreshDebounce)
		timer.Stop()

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					// New directories need their own watch.
					_ = c.addTree(watcher, event.Name)
				}
				if !c.relevant(event.Name) {
					continue
				}
				timer.Reset(refreshDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("catalog watcher error", "error", err)
			case <-timer.C:
				if err := c.Refresh(); err != nil {
					c.logger.Warn("catalog refresh failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (c *Catalog) relevant(name string) bool {
	if filepath.Clean(name) == filepath.Clean(c.manifest) {
		return true
	}
	rel, err := filepath.Rel(c.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if c.excludes[seg] {
			return false
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	// Directory events (no extension) can add or drop whole folders.
	return ext == "" || c.extensions[ext]
}

func (c *Catalog) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != c.root && c.excludes[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
