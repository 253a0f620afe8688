package blob

import (
	"context"
	"fmt"

	"clinicflow/internal/infra/blob/fs"
	"clinicflow/internal/infra/blob/memory"
	"clinicflow/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = s3.Config

// Config selects and configures a Store.
type Config struct {
	Driver Driver
	FSRoot string // fs driver root (default ./cleanExcel)
	S3     S3Config
}

// Open returns the Store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store { return memory.New() }
