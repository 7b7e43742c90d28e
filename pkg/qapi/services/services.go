package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quatton/toolsite/pkg/kv"
	"github.com/quatton/toolsite/pkg/qapi/config"
	"github.com/quatton/toolsite/pkg/qapi/services/iam"
	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qauth"
	"github.com/quatton/toolsite/pkg/qcatalog"
	"github.com/quatton/toolsite/pkg/qexec"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qlog"
	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qscratch"
)

type Services struct {
	Catalog     *qcatalog.Catalog
	Coordinator *qexec.Coordinator
	Publisher   *qexec.Publisher
	Gate        *iam.APIKeyService
	Janitor     *qscratch.Janitor

	// UploadLimit is the decoded upload budget of one guided request.
	UploadLimit int64

	closers []func() error
}

// NewServices builds everything the API needs from cfg. Optional backends
// (Valkey, S3, Docker) are only contacted when configured.
func NewServices(ctx context.Context, cfg *config.EnvConfig, logger *qlog.Logger) (*Services, error) {
	if logger == nil {
		logger = qlog.NewDefault()
	}
	s := &Services{Gate: iam.NewAPIKeyService(cfg.APIKey, logger)}

	catalog, err := qcatalog.New(qcatalog.Options{
		Root:     cfg.ScriptsRoot,
		Manifest: cfg.CatalogFile,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	s.Catalog = catalog

	outputLimit, err := cfg.OutputLimit()
	if err != nil {
		return nil, fmt.Errorf("MAX_OUTPUT_BYTES: %w", err)
	}
	uploadLimit, err := cfg.UploadLimit()
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	s.UploadLimit = uploadLimit

	runner, err := s.newRunner(ctx, cfg, outputLimit, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	publisher, memory, err := s.newPublisher(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Publisher = publisher

	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "toolsite")
	}
	coord, err := qexec.New(qexec.Options{
		Resolver: catalog,
		Marshaler: qinput.New(qinput.Options{
			Python:         cfg.Python,
			MaxUploadBytes: uploadLimit,
		}),
		Runner:         runner,
		Collector:      qart.NewCollector(),
		Publisher:      publisher,
		ScratchRoot:    scratch,
		DefaultTimeout: time.Duration(cfg.DefaultTimeout) * time.Second,
		Logger:         logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Coordinator = coord
	s.Janitor = qscratch.NewJanitor(scratch, cfg.ScratchTTL, logger)
	s.Janitor.Protect(coord.Live())
	if memory != nil {
		s.Janitor.Also("download-cache", memory.Sweep)
	}
	return s, nil
}

func (s *Services) newRunner(ctx context.Context, cfg *config.EnvConfig, outputLimit int64, logger *qlog.Logger) (qrunner.Runner, error) {
	opts := []qrunner.LocalRunnerOption{
		qrunner.WithKillGrace(cfg.KillGrace),
		qrunner.WithMaxOutputBytes(outputLimit),
		qrunner.WithLogger(logger),
	}
	if cfg.RunnerBackend != "docker" {
		return qrunner.NewLocalRunner(opts...), nil
	}

	container := qrunner.DefaultContainerConfig()
	container.Image = cfg.DockerImage
	container.Resources = cfg.DockerResources()
	container.NetworkMode = cfg.DockerNetwork

	docker, err := qrunner.NewDockerRunner(container, opts...)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, docker.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := docker.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return docker, nil
}

// newPublisher also returns the in-memory cache when one is used, so the
// janitor can evict expired entries.
func (s *Services) newPublisher(ctx context.Context, cfg *config.EnvConfig, logger *qlog.Logger) (*qexec.Publisher, *kv.MemoryStore, error) {
	var (
		store  kv.Store
		memory *kv.MemoryStore
	)
	if cfg.ValkeyAddr != "" {
		valkey, err := kv.NewValkeyStore(kv.ValkeyConfig{
			Addr:      cfg.ValkeyAddr,
			Password:  cfg.ValkeyPassword,
			KeyPrefix: "toolsite:",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to valkey: %w", err)
		}
		store = valkey
	} else {
		memory = kv.NewMemoryStore()
		store = memory
	}
	s.closers = append(s.closers, store.Close)

	secret := []byte(cfg.DownloadSecret)
	if len(secret) == 0 {
		// Links do not survive a restart, which matches the in-memory cache.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, fmt.Errorf("generating download secret: %w", err)
		}
	}
	signer, err := qauth.NewSigner(secret, cfg.DownloadTTL)
	if err != nil {
		return nil, nil, err
	}

	var archive qart.Archive
	if cfg.S3Endpoint != "" {
		s3, err := qart.NewS3Archive(qart.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,

			RetentionDays: cfg.S3RetentionDays,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating S3 client: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensuring bucket %s: %w", cfg.S3Bucket, err)
		}
		archive = s3
	}
	return qexec.NewPublisher(store, signer, archive, logger), memory, nil
}

// Close releases backend connections in reverse order.
func (s *Services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
