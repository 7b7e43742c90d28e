// Package qexec orchestrates one run request end to end: resolve the
// script, marshal inputs, run it under a deadline, collect artifacts and
// format the result.
package qexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qlog"
	"github.com/quatton/toolsite/pkg/qresult"
	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qscratch"
	"github.com/quatton/toolsite/pkg/qtool"
)

// Resolver maps a script id to its descriptor.
type Resolver interface {
	Resolve(scriptID string) (*qtool.Descriptor, error)
}

// AdvancedRequest runs a script with a raw argument string.
type AdvancedRequest struct {
	ScriptID string
	Args     string
	Timeout  int // seconds, 0 means the default
}

// GuidedRequest runs a script through its declared input schema.
type GuidedRequest struct {
	ScriptID string
	Inputs   map[string]any
	Files    map[string][]qinput.Upload
	Timeout  int // seconds, 0 means the default
}

type Options struct {
	Resolver  Resolver
	Marshaler *qinput.Marshaler
	Runner    qrunner.Runner
	Collector *qart.Collector
	// Publisher is optional; without it artifacts are only returned inline.
	Publisher *Publisher

	ScratchRoot    string
	// Live tracks in-flight runs so the janitor leaves their areas alone.
	Live           *qscratch.Live
	DefaultTimeout time.Duration
	Logger         *qlog.Logger
}

// Coordinator is safe for concurrent use; runs share nothing but the
// read-only catalog.
type Coordinator struct {
	resolver       Resolver
	marshaler      *qinput.Marshaler
	runner         qrunner.Runner
	collector      *qart.Collector
	publisher      *Publisher
	scratchRoot    string
	live           *qscratch.Live
	defaultTimeout time.Duration
	logger         *qlog.Logger
}

func New(opts Options) (*Coordinator, error) {
	if opts.Resolver == nil || opts.Runner == nil {
		return nil, fmt.Errorf("qexec: resolver and runner are required")
	}
	c := &Coordinator{
		resolver:       opts.Resolver,
		marshaler:      opts.Marshaler,
		runner:         opts.Runner,
		collector:      opts.Collector,
		publisher:      opts.Publisher,
		scratchRoot:    opts.ScratchRoot,
		live:           opts.Live,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
	if c.marshaler == nil {
		c.marshaler = qinput.New(qinput.Options{})
	}
	if c.collector == nil {
		c.collector = qart.NewCollector()
	}
	if c.scratchRoot == "" {
		c.scratchRoot = filepath.Join(os.TempDir(), "toolsite")
	}
	if c.live == nil {
		c.live = qscratch.NewLive()
	}
	if c.defaultTimeout <= 0 {
		c.defaultTimeout = qtool.DefaultTimeoutSeconds * time.Second
	}
	if c.logger == nil {
		c.logger = qlog.NewDefault()
	}
	return c, nil
}

// ScratchRoot is where run areas live; the janitor sweeps it.
func (c *Coordinator) ScratchRoot() string {
	return c.scratchRoot
}

// Live is the set of runs currently holding a scratch area.
func (c *Coordinator) Live() *qscratch.Live {
	return c.live
}

// RunAdvanced splits req.Args like a POSIX shell and runs the script with
// them. Unknown scripts fail with qtool.ErrNotFound and unbalanced quoting
// with a *qtool.ValidationError, both before anything is spawned.
func (c *Coordinator) RunAdvanced(ctx context.Context, req AdvancedRequest) (*qresult.RunResult, error) {
	desc, err := c.resolver.Resolve(req.ScriptID)
	if err != nil {
		return nil, err
	}
	args, err := shlex.Split(req.Args)
	if err != nil {
		return nil, qtool.Invalid("args", "%v", err)
	}

	runID := newRunID()
	area, err := c.newArea(runID)
	if err != nil {
		return c.internalFault(runID, desc, err), nil
	}
	defer c.cleanup(area)

	inv := c.marshaler.Advanced(runID, desc, args, area)
	return c.execute(ctx, desc, inv, req.Timeout), nil
}

// RunGuided marshals req against the script's schema and runs it.
func (c *Coordinator) RunGuided(ctx context.Context, req GuidedRequest) (*qresult.RunResult, error) {
	desc, err := c.resolver.Resolve(req.ScriptID)
	if err != nil {
		return nil, err
	}
	if !desc.Guided() {
		return nil, qtool.Invalid("toolRelPath", "%s has no guided inputs", desc.RelPath)
	}

	runID := newRunID()
	area, err := c.newArea(runID)
	if err != nil {
		return c.internalFault(runID, desc, err), nil
	}
	defer c.cleanup(area)

	inv, err := c.marshaler.Marshal(desc, req.Inputs, req.Files, area)
	if err != nil {
		if qtool.IsValidation(err) {
			return nil, err
		}
		return c.internalFault(runID, desc, err), nil
	}
	return c.execute(ctx, desc, inv, req.Timeout), nil
}

func (c *Coordinator) execute(ctx context.Context, desc *qtool.Descriptor, inv *qrunner.Invocation, timeoutSeconds int) *qresult.RunResult {
	log := c.logger.With("run_id", inv.RunID, "script", desc.RelPath)
	timeout := qtool.ClampTimeout(timeoutSeconds, c.defaultTimeout)

	out := c.runner.Run(ctx, inv, timeout)

	artifacts := []qart.Artifact{}
	var collectErr error
	if out.Completed() {
		artifacts, collectErr = c.collector.Collect(inv, desc)
		if collectErr != nil {
			log.Warn("artifact collection failed", "error", collectErr)
			artifacts = []qart.Artifact{}
		}
	}
	if c.publisher != nil && len(artifacts) > 0 {
		published, err := c.publisher.Publish(ctx, inv.RunID, artifacts)
		if err != nil {
			log.Warn("artifact publishing failed", "error", err)
		} else {
			artifacts = published
		}
	}

	res := qresult.Format(out, artifacts)
	res.RunID = inv.RunID
	if collectErr != nil && res.Error == "" {
		res.Error = "artifact collection failed: " + collectErr.Error()
	}

	log.Info("run finished",
		"exit_code", exitCodeAttr(out.ExitCode),
		"duration_ms", res.DurationMs,
		"artifacts", len(res.Artifacts),
		"error", res.Error,
	)
	return &res
}

// internalFault reports a server-side failure as a result so the client
// still gets exactly one response.
func (c *Coordinator) internalFault(runID string, desc *qtool.Descriptor, err error) *qresult.RunResult {
	c.logger.Error("run setup failed", "run_id", runID, "script", desc.RelPath, "error", err)
	res := qresult.Format(&qrunner.Outcome{
		Dir:   filepath.Dir(desc.Path),
		Error: "internal error: " + err.Error(),
	}, nil)
	res.RunID = runID
	return &res
}

// newArea registers runID as live before creating its area.
func (c *Coordinator) newArea(runID string) (*qscratch.Area, error) {
	c.live.Add(runID)
	area, err := qscratch.New(c.scratchRoot, runID)
	if err != nil {
		c.live.Done(runID)
		return nil, err
	}
	return area, nil
}

func (c *Coordinator) cleanup(area *qscratch.Area) {
	defer c.live.Done(area.ID)
	if err := area.Remove(); err != nil {
		c.logger.Warn("failed to remove scratch area", "path", area.Dir, "error", err)
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func exitCodeAttr(code *int) any {
	if code == nil {
		return "none"
	}
	return *code
}
