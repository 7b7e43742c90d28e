package qrunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/quatton/toolsite/pkg/qlog"
)

// DockerRunner executes invocations inside throwaway containers. The
// script directory and the scratch area are bind-mounted at their host
// paths so the argv built by the marshaler works unchanged.
//
// Containers get no stdin; tools read the same JSON document from the file
// named by TOOLSITE_INPUTS_FILE.
type DockerRunner struct {
	client    dockerAPI
	config    ContainerConfig
	killGrace time.Duration
	maxOutput int64
	logger    *qlog.Logger
}

// dockerAPI is the part of the docker client the runner uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// NewDockerRunner connects to the daemon configured in the environment
// (DOCKER_HOST and friends).
func NewDockerRunner(config ContainerConfig, opts ...LocalRunnerOption) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	// Reuse the local options for grace, output cap and logger.
	local := NewLocalRunner(opts...)
	return &DockerRunner{
		client:    cli,
		config:    config,
		killGrace: local.killGrace,
		maxOutput: local.maxOutput,
		logger:    local.logger,
	}, nil
}

// Close releases the docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// Ping checks the daemon is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

func (r *DockerRunner) Run(ctx context.Context, inv *Invocation, timeout time.Duration) *Outcome {
	out := &Outcome{Argv: inv.Argv(), Dir: inv.Dir}
	log := r.logger.With("run_id", inv.RunID, "backend", "docker")

	// Docker calls must outlive a cancelled request so the container is
	// always stopped and removed.
	opCtx := context.WithoutCancel(ctx)

	cfg, hostCfg, err := r.buildContainerConfig(inv)
	if err != nil {
		return startFailed(out, err)
	}

	log.Debug("creating container", "image", cfg.Image, "cmd", shellescape.QuoteCommand(cfg.Cmd))

	start := time.Now()
	created, err := r.client.ContainerCreate(opCtx, cfg, hostCfg, nil, nil, "toolsite-"+inv.RunID)
	if err != nil {
		out.Duration = time.Since(start)
		return startFailed(out, fmt.Errorf("failed to create container: %w", err))
	}
	id := created.ID
	defer func() {
		rmCtx, cancel := context.WithTimeout(opCtx, 30*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			log.Warn("failed to remove container", "container_id", id, "error", err)
		}
	}()

	if err := r.client.ContainerStart(opCtx, id, container.StartOptions{}); err != nil {
		out.Duration = time.Since(start)
		return startFailed(out, fmt.Errorf("failed to start container: %w", err))
	}

	logs, err := r.client.ContainerLogs(opCtx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		_ = r.client.ContainerKill(opCtx, id, "SIGKILL")
		out.Duration = time.Since(start)
		return startFailed(out, fmt.Errorf("failed to attach to container logs: %w", err))
	}

	stdout := newCapture(r.maxOutput)
	stderr := newCapture(r.maxOutput)

	var (
		status  container.WaitResponse
		waitErr error
		reason  string
		exited  = make(chan struct{})
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		defer logs.Close()
		if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
			return fmt.Errorf("failed to read container output: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		statusCh, errCh := r.client.ContainerWait(opCtx, id, container.WaitConditionNotRunning)
		select {
		case status = <-statusCh:
		case waitErr = <-errCh:
			// The log stream only ends with the container.
			log.Warn("waiting for container failed, killing it", "container_id", id, "error", waitErr)
			_ = r.client.ContainerKill(opCtx, id, "SIGKILL")
		}
		close(exited)
		return nil
	})
	g.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-exited:
			return nil
		case <-timer.C:
			reason = ErrTimedOut
		case <-ctx.Done():
			reason = ErrCancelled
		}

		log.Info("stopping container", "reason", reason, "container_id", id)
		_ = r.client.ContainerKill(opCtx, id, "SIGTERM")
		grace := time.NewTimer(r.killGrace)
		defer grace.Stop()
		select {
		case <-exited:
		case <-grace.C:
			_ = r.client.ContainerKill(opCtx, id, "SIGKILL")
		}
		return nil
	})
	captureErr := g.Wait()

	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	out.Truncated = stdout.Truncated() || stderr.Truncated()

	switch {
	case reason == ErrTimedOut:
		out.TimedOut = true
		out.Error = ErrTimedOut
	case reason == ErrCancelled:
		out.Cancelled = true
		out.Error = ErrCancelled
	case waitErr != nil:
		out.Error = fmt.Sprintf("wait failed: %v", waitErr)
	default:
		code := int(status.StatusCode)
		out.ExitCode = &code
		if status.Error != nil && status.Error.Message != "" {
			out.Error = status.Error.Message
		}
	}
	if captureErr != nil && out.Error == "" {
		out.Error = captureErr.Error()
	}

	log.Info("container finished", "exit_code", exitCodeString(out.ExitCode), "duration", out.Duration.Round(time.Millisecond))
	return out
}

// buildContainerConfig translates an invocation into Docker API config.
func (r *DockerRunner) buildContainerConfig(inv *Invocation) (*container.Config, *container.HostConfig, error) {
	if r.config.Image == "" {
		return nil, nil, fmt.Errorf("no container image configured")
	}

	mounts := []Mount{}
	if inv.Dir != "" {
		mounts = append(mounts, Mount{Type: "bind", Source: inv.Dir, Destination: inv.Dir, ReadOnly: true})
	}
	if inv.Scratch != nil {
		mounts = append(mounts, Mount{Type: "bind", Source: inv.Scratch.Dir, Destination: inv.Scratch.Dir})
	}
	mounts = append(mounts, r.config.Mounts...)

	hostMounts := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		typ := mount.TypeBind
		if m.Type == "volume" {
			typ = mount.TypeVolume
		}
		hostMounts = append(hostMounts, mount.Mount{
			Type:     typ,
			Source:   m.Source,
			Target:   m.Destination,
			ReadOnly: m.ReadOnly,
		})
	}

	nano, err := r.config.Resources.NanoCPUs()
	if err != nil {
		return nil, nil, err
	}
	mem, err := r.config.Resources.MemoryBytes()
	if err != nil {
		return nil, nil, err
	}

	env := make([]string, 0, len(inv.Env))
	for k, v := range inv.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image:      r.config.Image,
		Cmd:        append([]string{containerCommand(inv, mounts)}, inv.Args...),
		Env:        env,
		WorkingDir: inv.Dir,
		Labels:     map[string]string{"toolsite.run-id": inv.RunID},
	}
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
		cfg.User = fmt.Sprintf("%d:%d", uid, gid)
	}

	hostCfg := &container.HostConfig{
		Mounts:      hostMounts,
		NetworkMode: container.NetworkMode(r.config.NetworkMode),
		Resources: container.Resources{
			NanoCPUs: nano,
			Memory:   mem,
		},
	}
	return cfg, hostCfg, nil
}

// containerCommand keeps the command when it lives in a mounted directory
// and otherwise looks it up on the image PATH by base name, since host
// interpreters do not exist inside the image.
func containerCommand(inv *Invocation, mounts []Mount) string {
	if !filepath.IsAbs(inv.Command) {
		return inv.Command
	}
	// A virtualenv interpreter links to the host python.
	if strings.Contains(filepath.ToSlash(inv.Command), "/.venv/") {
		return filepath.Base(inv.Command)
	}
	for _, m := range mounts {
		if m.Type == "bind" && strings.HasPrefix(inv.Command, m.Destination+string(filepath.Separator)) {
			return inv.Command
		}
	}
	return filepath.Base(inv.Command)
}

// Ensure DockerRunner implements Runner.
var _ Runner = (*DockerRunner)(nil)

var _ dockerAPI = (*client.Client)(nil)
