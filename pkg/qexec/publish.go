package qexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quatton/toolsite/pkg/kv"
	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qauth"
	"github.com/quatton/toolsite/pkg/qlog"
)

// Publisher caches artifacts for a limited time behind signed download
// tokens and, when an archive is configured, copies them there with a
// presigned link.
type Publisher struct {
	store   kv.Store
	signer  *qauth.Signer
	archive qart.Archive
	logger  *qlog.Logger
}

// NewPublisher wires the cache and signer. archive may be nil.
func NewPublisher(store kv.Store, signer *qauth.Signer, archive qart.Archive, logger *qlog.Logger) *Publisher {
	if logger == nil {
		logger = qlog.NewDefault()
	}
	return &Publisher{store: store, signer: signer, archive: archive, logger: logger}
}

func cacheKey(runID string, i int) string {
	return fmt.Sprintf("artifact:%s:%d", runID, i)
}

// runIDFromKey inverts cacheKey.
func runIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "artifact:")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// Publish returns copies of artifacts with Download (and URL) filled in.
// On failure nothing archived for the run is kept.
func (p *Publisher) Publish(ctx context.Context, runID string, artifacts []qart.Artifact) ([]qart.Artifact, error) {
	out, err := p.publish(ctx, runID, artifacts)
	if err != nil && p.archive != nil {
		if derr := p.archive.DeletePrefix(context.WithoutCancel(ctx), qart.RunArtifactPrefix(runID)); derr != nil {
			p.logger.Warn("discarding archived artifacts failed", "run_id", runID, "error", derr)
		}
	}
	return out, err
}

func (p *Publisher) publish(ctx context.Context, runID string, artifacts []qart.Artifact) ([]qart.Artifact, error) {
	out := make([]qart.Artifact, len(artifacts))
	copy(out, artifacts)

	for i := range out {
		a := &out[i]
		key := cacheKey(runID, i)
		if err := kv.SetJSON(ctx, p.store, key, a, p.signer.TTL()); err != nil {
			return nil, fmt.Errorf("caching %s: %w", a.Filename, err)
		}
		token, _, err := p.signer.Sign(key, a.Filename)
		if err != nil {
			return nil, fmt.Errorf("signing %s: %w", a.Filename, err)
		}
		a.Download = token

		if p.archive == nil {
			continue
		}
		objKey := qart.RunArtifactKey(runID, a.Filename)
		meta := map[string]string{"run-id": runID}
		if err := p.archive.Put(ctx, objKey, a.Data, a.Mime, meta); err != nil {
			// The inline copy and the cached download still work.
			p.logger.Warn("archiving artifact failed", "run_id", runID, "key", objKey, "error", err)
			continue
		}
		url, err := p.archive.PresignedURL(ctx, objKey, p.signer.TTL())
		if err != nil {
			p.logger.Warn("presigning artifact failed", "run_id", runID, "key", objKey, "error", err)
			continue
		}
		a.URL = url
	}
	return out, nil
}

// Fetch returns the cached artifact a download token points at, reading
// it back from the archive when the cache entry was evicted. Bad or
// expired tokens yield qauth.ErrInvalidToken, artifacts found nowhere
// qart.ErrNotFound.
func (p *Publisher) Fetch(ctx context.Context, token string) (*qart.Artifact, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	var a qart.Artifact
	err = kv.GetJSON(ctx, p.store, claims.Key, &a)
	switch {
	case err == nil:
		return &a, nil
	case errors.Is(err, kv.ErrNotFound):
		return p.fetchArchived(ctx, claims)
	default:
		return nil, err
	}
}

func (p *Publisher) fetchArchived(ctx context.Context, claims *qauth.DownloadClaims) (*qart.Artifact, error) {
	runID, ok := runIDFromKey(claims.Key)
	if p.archive == nil || !ok {
		return nil, qart.ErrNotFound
	}
	rc, err := p.archive.Get(ctx, qart.RunArtifactKey(runID, claims.Filename))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading archived %s: %w", claims.Filename, err)
	}
	p.logger.Debug("served artifact from archive", "run_id", runID, "filename", claims.Filename)
	return &qart.Artifact{
		Filename: claims.Filename,
		Mime:     qart.DetectMime(claims.Filename, "", data),
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}
