// Package sqlstore persists the ledger in a SQL table through sqlx, with
// sqlite and postgres flavours sharing one implementation.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"clinicflow/internal/ledger/core"
)

const (
	sqliteDriver   = "sqlite"
	postgresDriver = "pgx"
	// Default DSN keeps parity with the sqlite default of a local database.
	defaultDSN = "postgres://localhost/clinicflow?sslmode=disable"
)

var (
	sqlOpen = sqlx.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS processed_files (
	name TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	position BIGINT NOT NULL
)`

// Store implements core.Ledger on a SQL table.
type Store struct {
	db     *sqlx.DB
	driver core.Driver
	now    func() time.Time
}

// NewSQLite opens (creating if needed) a sqlite ledger at path.
func NewSQLite(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "clinicflow.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	return open(ctx, sqliteDriver, path, core.DriverSQLite)
}

// NewPostgres opens a postgres ledger using dsn (falls back to defaultDSN).
func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	return open(ctx, postgresDriver, dsn, core.DriverPostgres)
}

func open(ctx context.Context, driverName, dsn string, driver core.Driver) (*Store, error) {
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	return &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Driver() core.Driver { return s.driver }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Processed(ctx context.Context) (map[string]struct{}, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM processed_files`); err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

type entryRow struct {
	Name       string `db:"name"`
	RunID      string `db:"run_id"`
	RecordedAt string `db:"recorded_at"`
}

func (s *Store) Entries(ctx context.Context) ([]core.Entry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, run_id, recorded_at FROM processed_files ORDER BY position`); err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	out := make([]core.Entry, 0, len(rows))
	for _, r := range rows {
		at, err := time.Parse(time.RFC3339Nano, r.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("decode recorded_at for %s: %w", r.Name, err)
		}
		out = append(out, core.Entry{Name: r.Name, RunID: r.RunID, RecordedAt: at})
	}
	return out, nil
}

// Record inserts the names in one transaction; names already present are
// left untouched.
func (s *Store) Record(ctx context.Context, runID string, names []string) error {
	for _, n := range names {
		if err := core.ValidateName(n); err != nil {
			return fmt.Errorf("%w: %q", err, n)
		}
	}
	if len(names) == 0 {
		return nil
	}
	at := s.now().Format(time.RFC3339Nano)
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var next int64
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) FROM processed_files`); err != nil {
			return fmt.Errorf("ledger position: %w", err)
		}
		insert := tx.Rebind(`INSERT INTO processed_files(name, run_id, recorded_at, position) VALUES(?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`)
		for _, n := range names {
			next++
			if _, err := tx.ExecContext(ctx, insert, n, runID, at, next); err != nil {
				return fmt.Errorf("insert %s: %w", n, err)
			}
		}
		return nil
	})
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// OverrideSQLOpen swaps the open function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sqlx.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
