// Package core defines the processed-file ledger abstraction shared by the
// ingestion stage and the ledger drivers.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete ledger backend implementation.
type Driver string

const (
	// DriverText is the line-delimited text file ledger (default).
	DriverText Driver = "text"
	// DriverSQLite stores entries in an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores entries in a PostgreSQL server.
	DriverPostgres Driver = "postgres"
	// DriverMemory keeps entries in process memory (tests).
	DriverMemory Driver = "memory"
)

// Entry is one recorded source file.
type Entry struct {
	Name       string    `json:"name" db:"name"`
	RunID      string    `json:"run_id,omitempty" db:"run_id"`
	RecordedAt time.Time `json:"recorded_at,omitempty" db:"-"`
}

// Ledger is a durable, append-only set of processed source file names.
type Ledger interface {
	// Processed returns every recorded name.
	Processed(ctx context.Context) (map[string]struct{}, error)
	// Record appends names that are not yet present, in order.
	Record(ctx context.Context, runID string, names []string) error
	// Entries lists recorded entries in record order.
	Entries(ctx context.Context) ([]Entry, error)
	// Driver returns the backend driver.
	Driver() Driver
	// Close releases backend resources.
	Close() error
}

// ErrInvalidName is returned for names that cannot be stored, such as empty
// names or names containing line breaks.
var ErrInvalidName = errors.New("ledger: invalid file name")

// ValidateName rejects names the line-oriented formats cannot represent.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for _, r := range name {
		if r == '\n' || r == '\r' {
			return ErrInvalidName
		}
	}
	return nil
}
