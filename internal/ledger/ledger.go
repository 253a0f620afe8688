// Package ledger re-exports the processed-file ledger abstraction and opens
// a concrete driver from configuration.
package ledger

import (
	"context"
	"fmt"

	"clinicflow/internal/infra/ledger/memory"
	"clinicflow/internal/infra/ledger/sqlstore"
	"clinicflow/internal/infra/ledger/textfile"
	"clinicflow/internal/ledger/core"
)

type (
	// Ledger is the durable processed-file set.
	Ledger = core.Ledger
	// Entry is one recorded source file.
	Entry = core.Entry
	// Driver identifies a ledger backend.
	Driver = core.Driver
)

const (
	// DriverText is the line-delimited text file ledger.
	DriverText = core.DriverText
	// DriverSQLite is the sqlite ledger.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the postgres ledger.
	DriverPostgres = core.DriverPostgres
	// DriverMemory is the in-memory test ledger.
	DriverMemory = core.DriverMemory
)

// ErrInvalidName is returned for names the ledger cannot store.
var ErrInvalidName = core.ErrInvalidName

// Config selects and parameterizes a ledger driver.
type Config struct {
	Driver string
	// Path is the text file or sqlite database path.
	Path string
	// DSN is the postgres connection string.
	DSN string
}

// Open constructs the configured ledger. An empty driver selects the text
// file ledger.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverText)
	}
	switch Driver(driver) {
	case DriverText:
		return textfile.New(cfg.Path)
	case DriverSQLite:
		return sqlstore.NewSQLite(ctx, cfg.Path)
	case DriverPostgres:
		return sqlstore.NewPostgres(ctx, cfg.DSN)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %s", driver)
	}
}

// NewMemory returns an in-memory ledger suitable for tests.
func NewMemory() Ledger { return memory.New() }
