// Package qart collects the files a tool run leaves behind and, optionally,
// archives them in S3-compatible storage.
package qart

import (
	"context"
	"io"
	"time"
)

// Artifact is one file returned to the client. Data travels as base64.
type Artifact struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	Data     []byte `json:"base64"`
	Size     int64  `json:"size"`

	// URL is a presigned archive link, set when an archive is configured.
	URL string `json:"url,omitempty"`
	// Download is the signed token for GET /api/artifacts/{token}.
	Download string `json:"download,omitempty"`
}

// Archive keeps artifacts beyond the lifetime of a run.
type Archive interface {
	// Put stores data under key.
	// key should be in format "runs/{runID}/{filename}"
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error

	// Get retrieves an object by key. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignedURL generates a time-limited download URL for key.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// EnsureBucket ensures the bucket exists, creating it if necessary.
	EnsureBucket(ctx context.Context) error
}

// RunArtifactPrefix returns the archive prefix for a run's artifacts.
func RunArtifactPrefix(runID string) string {
	return "runs/" + runID + "/"
}

// RunArtifactKey returns the full archive key for an artifact.
func RunArtifactKey(runID, filename string) string {
	return RunArtifactPrefix(runID) + filename
}
