// Package textfile implements the ledger as a line-delimited text file, one
// processed file name per line, appended to and never rewritten.
package textfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"clinicflow/internal/ledger/core"
)

// Store implements core.Ledger on a text file.
// Not safe for concurrent writers; callers serialize ingestion runs.
type Store struct {
	path string
}

// New returns a text ledger at path, creating parent directories. The file
// itself is created on the first Record.
func New(path string) (*Store, error) {
	if path == "" {
		path = "log.txt"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverText }

func (s *Store) Close() error { return nil }

func (s *Store) Processed(ctx context.Context) (map[string]struct{}, error) {
	names, err := s.read()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

func (s *Store) Entries(ctx context.Context) ([]core.Entry, error) {
	names, err := s.read()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(names))
	entries := make([]core.Entry, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		entries = append(entries, core.Entry{Name: n})
	}
	return entries, nil
}

func (s *Store) Record(ctx context.Context, runID string, names []string) error {
	existing, err := s.Processed(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, n := range names {
		if err := core.ValidateName(n); err != nil {
			return fmt.Errorf("%w: %q", err, n)
		}
		if _, ok := existing[n]; ok {
			continue
		}
		existing[n] = struct{}{}
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	return f.Close()
}

func (s *Store) read() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()
	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return names, nil
}
