// Package memory implements an in-memory ledger for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinicflow/internal/ledger/core"
)

// Store implements core.Ledger backed by process memory.
type Store struct {
	mu      sync.RWMutex
	entries []core.Entry
	index   map[string]struct{}
	now     func() time.Time
}

// New returns an empty in-memory ledger.
func New() *Store {
	return &Store{index: make(map[string]struct{}), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the ledger driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Processed returns a copy of the recorded name set.
func (s *Store) Processed(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.index))
	for k := range s.index {
		out[k] = struct{}{}
	}
	return out, nil
}

// Record appends names not already present.
func (s *Store) Record(_ context.Context, runID string, names []string) error {
	for _, n := range names {
		if err := core.ValidateName(n); err != nil {
			return fmt.Errorf("%w: %q", err, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	for _, n := range names {
		if _, ok := s.index[n]; ok {
			continue
		}
		s.index[n] = struct{}{}
		s.entries = append(s.entries, core.Entry{Name: n, RunID: runID, RecordedAt: at})
	}
	return nil
}

// Entries returns a copy of the entries in record order.
func (s *Store) Entries(_ context.Context) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
