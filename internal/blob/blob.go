// Package blob selects the artifact store backend. Packages outside the
// blob tree depend on the Store interface re-exported here rather than on a
// concrete backend.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"procurecore/internal/blob/core"
	fsstore "procurecore/internal/infra/blob/fs"
	memstore "procurecore/internal/infra/blob/memory"
	s3store "procurecore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes a stored artifact.
	Info = core.Info
	// Store is the interface every backend implements.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Environment variables consulted by ApplyEnv.
const (
	EnvDriver      = "PROCURECORE_BLOB_DRIVER"
	EnvFSRoot      = "PROCURECORE_BLOB_FS_ROOT"
	EnvS3Bucket    = "PROCURECORE_BLOB_S3_BUCKET"
	EnvS3Region    = "PROCURECORE_BLOB_S3_REGION"
	EnvS3Prefix    = "PROCURECORE_BLOB_S3_PREFIX"
	EnvS3Endpoint  = "PROCURECORE_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "PROCURECORE_BLOB_S3_PATH_STYLE"
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `yaml:"driver"`
	Root   string   `yaml:"root"`
	S3     S3Config `yaml:"s3"`
}

// ApplyEnv overlays any PROCURECORE_BLOB_* variables that are set.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv(EnvDriver); v != "" {
		c.Driver = Driver(v)
	}
	if v := os.Getenv(EnvFSRoot); v != "" {
		c.Root = v
	}
	if v := os.Getenv(EnvS3Bucket); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv(EnvS3Region); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv(EnvS3Prefix); v != "" {
		c.S3.Prefix = v
	}
	if v := os.Getenv(EnvS3Endpoint); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv(EnvS3PathStyle); v != "" {
		c.S3.PathStyle = strings.EqualFold(v, "true")
	}
	return c
}

// Open builds the configured store. The filesystem driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fsstore.New(cfg.Root)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-process store, mainly for tests.
func NewMemory(now func() time.Time) Store { return memstore.New(now) }
