package qart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// RetentionDays expires archived runs through a bucket lifecycle rule.
	// Zero leaves the bucket's lifecycle alone.
	RetentionDays int
}

// S3Archive keeps artifacts in a MinIO/S3 bucket under runs/<runID>/.
type S3Archive struct {
	client    *minio.Client
	bucket    string
	region    string
	retention int
}

func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Archive{client: client, bucket: cfg.Bucket, region: cfg.Region, retention: cfg.RetentionDays}, nil
}

// EnsureBucket creates the bucket when missing and installs the retention
// rule for run artifacts.
func (a *S3Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return err
		}
	}
	if a.retention <= 0 {
		return nil
	}

	rules := lifecycle.NewConfiguration()
	rules.Rules = []lifecycle.Rule{{
		ID:         "expire-run-artifacts",
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: "runs/"},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(a.retention)},
	}}
	if err := a.client.SetBucketLifecycle(ctx, a.bucket, rules); err != nil {
		return fmt.Errorf("setting lifecycle: %w", err)
	}
	return nil
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: attachment(key),
		UserMetadata:       metadata,
	})
	return err
}

func (a *S3Archive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// PresignedURL links straight to the object and asks S3 to serve it as a
// download named after the artifact.
func (a *S3Archive) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	params := url.Values{"response-content-disposition": {attachment(key)}}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (a *S3Archive) DeletePrefix(ctx context.Context, prefix string) error {
	objects := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for res := range a.client.RemoveObjects(ctx, a.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

func attachment(key string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})
}

var _ Archive = (*S3Archive)(nil)
