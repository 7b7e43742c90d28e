package qscratch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/quatton/toolsite/pkg/qlog"
)

// Janitor removes scratch areas left behind by a crashed process. Live
// runs always remove their own area; this only catches leftovers.
type Janitor struct {
	root   string
	ttl    time.Duration
	logger *qlog.Logger
	live   *Live

	mu     sync.Mutex
	cron   *rcron.Cron
	extras []extraSweep
}

type extraSweep struct {
	name string
	fn   func() int
}

func NewJanitor(root string, ttl time.Duration, logger *qlog.Logger) *Janitor {
	if logger == nil {
		logger = qlog.NewDefault()
	}
	return &Janitor{root: root, ttl: ttl, logger: logger}
}

// Protect makes Sweep skip the areas of runs tracked by live.
func (j *Janitor) Protect(live *Live) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.live = live
}

// Sweep removes every area whose modification time is older than the TTL,
// except live ones, returning how many were removed.
func (j *Janitor) Sweep(now time.Time) int {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("scratch sweep failed", "root", j.root, "error", err)
		}
		return 0
	}

	j.mu.Lock()
	live := j.live
	j.mu.Unlock()

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || live.Has(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.ttl {
			continue
		}
		path := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("failed to remove stale scratch area", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("removed stale scratch areas", "count", removed)
	}
	return removed
}

// Start schedules Sweep with a standard cron expression (or descriptor
// such as "@every 10m").
func (j *Janitor) Start(spec string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	c := rcron.New()
	if _, err := c.AddFunc(spec, j.tick); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.logger.Debug("scratch janitor started", "schedule", spec, "ttl", j.ttl)
	return nil
}

// Also runs fn on every scheduled tick after the scratch sweep. fn reports
// how many entries it removed.
func (j *Janitor) Also(name string, fn func() int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.extras = append(j.extras, extraSweep{name: name, fn: fn})
}

func (j *Janitor) tick() {
	j.Sweep(time.Now())

	j.mu.Lock()
	extras := append([]extraSweep(nil), j.extras...)
	j.mu.Unlock()
	for _, e := range extras {
		if n := e.fn(); n > 0 {
			j.logger.Debug("janitor sweep", "task", e.name, "removed", n)
		}
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
