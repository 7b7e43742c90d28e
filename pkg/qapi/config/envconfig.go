package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/quatton/toolsite/pkg/qapi/utils"
	"github.com/quatton/toolsite/pkg/qlog"
	"github.com/quatton/toolsite/pkg/qrunner"
	"github.com/quatton/toolsite/pkg/qtool"
)

type EnvConfig struct {
	Host         string `envconfig:"HOST" default:"127.0.0.1"`
	Port         string `envconfig:"PORT" default:"8000"`
	ScriptsRoot  string `envconfig:"SCRIPTS_ROOT" default:"."`
	CatalogFile  string `envconfig:"CATALOG_FILE"` // defaults to <SCRIPTS_ROOT>/tools.yaml
	WatchCatalog bool   `envconfig:"WATCH_CATALOG" default:"true"`
	WebDir       string `envconfig:"WEB_DIR"`
	APIKey       string `envconfig:"API_KEY"`

	DefaultTimeout int           `envconfig:"DEFAULT_TIMEOUT" default:"300"` // seconds
	KillGrace      time.Duration `envconfig:"KILL_GRACE" default:"2s"`
	MaxOutputBytes string        `envconfig:"MAX_OUTPUT_BYTES" default:"64MiB"` // per stream, "0" keeps everything
	MaxUploadBytes string        `envconfig:"MAX_UPLOAD_BYTES" default:"25MiB"`
	Python         string        `envconfig:"PYTHON"`
	ScratchDir     string        `envconfig:"SCRATCH_DIR"`
	ScratchTTL     time.Duration `envconfig:"SCRATCH_TTL" default:"2h"`

	RunnerBackend string `envconfig:"RUNNER_BACKEND" default:"local"`
	DockerImage   string `envconfig:"DOCKER_IMAGE" default:"python:3.12-slim"`
	DockerCPUs    string `envconfig:"DOCKER_CPUS" default:"1"`
	DockerMemory  string `envconfig:"DOCKER_MEMORY" default:"512Mi"`
	DockerNetwork string `envconfig:"DOCKER_NETWORK" default:"bridge"`

	ValkeyAddr     string        `envconfig:"VALKEY_ADDR"`
	ValkeyPassword string        `envconfig:"VALKEY_PASSWORD"`
	DownloadSecret string        `envconfig:"DOWNLOAD_SECRET"`
	DownloadTTL    time.Duration `envconfig:"DOWNLOAD_TTL" default:"15m"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"toolsite-artifacts"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	// S3RetentionDays expires archived runs via a bucket lifecycle rule; 0 disables it.
	S3RetentionDays int `envconfig:"S3_RETENTION_DAYS" default:"7"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func ValidateEnv() (*EnvConfig, error) {
	if utils.IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return &cfg, nil
}

// Validate returns every problem at once, one line each.
func (c *EnvConfig) Validate() []string {
	var errors []string

	if info, err := os.Stat(c.ScriptsRoot); err != nil || !info.IsDir() {
		errors = append(errors, fmt.Sprintf("  ❌ SCRIPTS_ROOT %q must be an existing directory", c.ScriptsRoot))
	}
	if c.WebDir != "" {
		if info, err := os.Stat(c.WebDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("  ❌ WEB_DIR %q must be an existing directory", c.WebDir))
		}
	}

	if c.DefaultTimeout < qtool.MinTimeoutSeconds || c.DefaultTimeout > qtool.MaxTimeoutSeconds {
		errors = append(errors, fmt.Sprintf("  ❌ DEFAULT_TIMEOUT must be between %d and %d seconds", qtool.MinTimeoutSeconds, qtool.MaxTimeoutSeconds))
	}
	if c.KillGrace <= 0 {
		errors = append(errors, "  ❌ KILL_GRACE must be positive")
	}
	if floor := c.MinScratchTTL(); c.ScratchTTL <= floor {
		errors = append(errors, fmt.Sprintf("  ❌ SCRATCH_TTL must be longer than %s (longest run plus KILL_GRACE)", floor))
	}
	if _, err := c.OutputLimit(); err != nil {
		errors = append(errors, "  ❌ MAX_OUTPUT_BYTES must be a size like 64MiB")
	}
	if n, err := c.UploadLimit(); err != nil || n <= 0 {
		errors = append(errors, "  ❌ MAX_UPLOAD_BYTES must be a positive size like 25MiB")
	}

	switch c.RunnerBackend {
	case "local":
	case "docker":
		limits := c.DockerResources()
		if _, err := limits.NanoCPUs(); err != nil {
			errors = append(errors, "  ❌ DOCKER_CPUS must be a cpu count like 1, 0.5 or 500m")
		}
		if _, err := limits.MemoryBytes(); err != nil {
			errors = append(errors, "  ❌ DOCKER_MEMORY must be a size like 512Mi or 1GiB")
		}
	default:
		errors = append(errors, "  ❌ RUNNER_BACKEND must be local or docker")
	}

	if c.DownloadSecret != "" && len(c.DownloadSecret) < 32 {
		errors = append(errors, "  ❌ DOWNLOAD_SECRET must be at least 32 characters")
	}
	if c.DownloadTTL <= 0 {
		errors = append(errors, "  ❌ DOWNLOAD_TTL must be positive")
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		errors = append(errors, "  ❌ S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	if c.S3RetentionDays < 0 {
		errors = append(errors, "  ❌ S3_RETENTION_DAYS must not be negative")
	}

	if _, err := qlog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, "  ❌ LOG_LEVEL must be debug, info, warn or error")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, "  ❌ LOG_FORMAT must be text or json")
	}
	if utils.IsProd() && c.APIKey == "" {
		errors = append(errors, "  ❌ API_KEY is required in production")
	}
	return errors
}

// OutputLimit is MAX_OUTPUT_BYTES in bytes.
func (c *EnvConfig) OutputLimit() (int64, error) {
	return parseSize(c.MaxOutputBytes)
}

// UploadLimit is MAX_UPLOAD_BYTES in bytes.
func (c *EnvConfig) UploadLimit() (int64, error) {
	return parseSize(c.MaxUploadBytes)
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return units.RAMInBytes(s)
}

// DockerResources is the container limit pair from DOCKER_CPUS and DOCKER_MEMORY.
func (c *EnvConfig) DockerResources() qrunner.ResourceRequirements {
	return qrunner.ResourceRequirements{CPULimit: c.DockerCPUs, MemoryLimit: c.DockerMemory}
}

// MinScratchTTL is the longest a live run can hold its scratch area.
func (c *EnvConfig) MinScratchTTL() time.Duration {
	return qtool.MaxTimeoutSeconds*time.Second + c.KillGrace
}

// Addr is the listen address.
func (c *EnvConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *EnvConfig) Logger() *qlog.Logger {
	level, err := qlog.ParseLevel(c.LogLevel)
	if err != nil {
		return qlog.NewDefault()
	}
	return qlog.New(level, c.LogFormat, os.Stderr)
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Listen: %s\n", c.Addr())
	fmtr("  Scripts root: %s\n", c.ScriptsRoot)
	fmtr("  API key: %s\n", MaskSecret(c.APIKey))
	fmtr("  Default timeout: %ds (kill grace %s)\n", c.DefaultTimeout, c.KillGrace)
	fmtr("  Output cap: %s per stream, upload cap: %s\n", c.MaxOutputBytes, c.MaxUploadBytes)
	fmtr("  Scratch: %s (ttl %s)\n", orDefault(c.ScratchDir, "<temp dir>"), c.ScratchTTL)

	if c.RunnerBackend == "docker" {
		fmtr("  Runner: docker (%s, cpus=%s, memory=%s, network=%s)\n", c.DockerImage, c.DockerCPUs, c.DockerMemory, c.DockerNetwork)
	} else {
		fmtr("  Runner: local\n")
	}

	if c.WebDir != "" {
		fmtr("  Web UI: ✓ %s\n", c.WebDir)
	} else {
		fmtr("  Web UI: ✗ Disabled\n")
	}

	if c.ValkeyAddr != "" {
		fmtr("  Download cache: valkey %s\n", c.ValkeyAddr)
	} else {
		fmtr("  Download cache: in-memory\n")
	}
	fmtr("  Download secret: %s (ttl %s)\n", MaskSecret(c.DownloadSecret), c.DownloadTTL)

	if c.S3Endpoint != "" {
		fmtr("  Artifact archive: ✓ %s/%s (retention %d days)\n", c.S3Endpoint, c.S3Bucket, c.S3RetentionDays)
		fmtr("    Access key: %s\n", MaskSecret(c.S3AccessKey))
	} else {
		fmtr("  Artifact archive: ✗ Disabled\n")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
