package qrunner

import (
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// ContainerConfig represents configuration for running invocations inside
// a container instead of directly on the host.
type ContainerConfig struct {
	// Image must carry the interpreters the catalog needs (python3, sh, node)
	Image string

	// Resources defines CPU and memory limits
	Resources ResourceRequirements

	// Mounts are added to the scratch and script mounts the runner makes itself
	Mounts []Mount

	// NetworkMode defines the network configuration (e.g., "none", "bridge")
	NetworkMode string
}

// ResourceRequirements defines CPU and memory limits in Kubernetes-style
// notation ("500m", "2", "512Mi") so the same values read naturally in env.
type ResourceRequirements struct {
	CPULimit    string
	MemoryLimit string
}

// Mount represents a volume mount for containers
type Mount struct {
	// Type is the mount type: "bind" for host paths, "volume" for named volumes
	Type string

	// Source is the source path (host) or volume name
	Source string

	// Destination is the target path inside the container
	Destination string

	// ReadOnly indicates if the mount should be read-only
	ReadOnly bool
}

// DefaultContainerConfig returns sensible defaults for container configuration
func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		Image: "python:3.12-slim",
		Resources: ResourceRequirements{
			CPULimit:    "1",
			MemoryLimit: "512Mi",
		},
		NetworkMode: "bridge",
	}
}

// NanoCPUs converts CPULimit to Docker's unit. Empty means no limit.
func (r ResourceRequirements) NanoCPUs() (int64, error) {
	s := strings.TrimSpace(r.CPULimit)
	if s == "" {
		return 0, nil
	}
	scale := 1e9
	if strings.HasSuffix(s, "m") {
		s = strings.TrimSuffix(s, "m")
		scale = 1e6
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid cpu limit %q", r.CPULimit)
	}
	return int64(v * scale), nil
}

// MemoryBytes converts MemoryLimit to bytes. Empty means no limit.
func (r ResourceRequirements) MemoryBytes() (int64, error) {
	s := strings.TrimSpace(r.MemoryLimit)
	if s == "" {
		return 0, nil
	}
	// go-units wants "MiB"; accept the Kubernetes "Mi" spelling too.
	if last := s[len(s)-1]; last == 'i' || last == 'I' {
		s += "B"
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", r.MemoryLimit, err)
	}
	return n, nil
}
