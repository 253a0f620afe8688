// Package ingest folds newly arrived raw clinic spreadsheets into the master
// table and records them in the processed-file ledger.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinicflow/internal/blob"
	"clinicflow/internal/ledger"
	"clinicflow/internal/metrics"
	"clinicflow/internal/table"
)

// Policy decides what happens when one input file cannot be ingested.
type Policy string

const (
	// Abort fails the run on the first bad file; nothing is written.
	Abort Policy = "abort"
	// Skip leaves the bad file unrecorded and continues with the rest.
	Skip Policy = "skip"
)

const (
	// DefaultMasterKey is the artifact key of the master table.
	DefaultMasterKey = "cleanedBook.xlsx"
	masterSheet      = "Sheet1"
	operation        = "ingest"
)

// Options configures a Stage.
type Options struct {
	InputDir  string
	MasterKey string
	OnError   Policy
	Logger    *zap.Logger
	Metrics   metrics.Recorder
	NewRunID  func() string
}

// FileError reports one input file that could not be ingested.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string { return e.Name + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// Result summarizes one run.
type Result struct {
	RunID string
	// Files lists the files merged by this run, in discovery order.
	Files []string
	// Failed lists files left unrecorded under the Skip policy.
	Failed []FileError
	// Recovered lists names found in the stored master's provenance but
	// missing from the ledger, recorded before discovery.
	Recovered    []string
	RowsAppended int
	MasterRows   int
	NothingToDo  bool
}

// Stage runs ingestion against a ledger and an artifact store.
type Stage struct {
	store  blob.Store
	ledger ledger.Ledger
	opts   Options
}

// NewStage returns a Stage with defaults filled in.
func NewStage(store blob.Store, l ledger.Ledger, opts Options) *Stage {
	if opts.MasterKey == "" {
		opts.MasterKey = DefaultMasterKey
	}
	if opts.OnError == "" {
		opts.OnError = Abort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Stage{store: store, ledger: l, opts: opts}
}

type batch struct {
	name string
	rows []table.Row
}

// Run ingests every unrecorded .xlsx file in the input folder. Runs must be
// serialized by the caller.
func (s *Stage) Run(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() { s.opts.Metrics.Observe(ctx, operation, err == nil, time.Since(start)) }()

	res.RunID = s.opts.NewRunID()
	log := s.opts.Logger.With(zap.String("run_id", res.RunID))

	master, prov, err := LoadMaster(ctx, s.store, s.opts.MasterKey)
	if err != nil {
		return res, err
	}
	processed, err := s.ledger.Processed(ctx)
	if err != nil {
		return res, fmt.Errorf("read ledger: %w", err)
	}
	if res.Recovered, err = s.reconcile(ctx, prov, processed); err != nil {
		return res, err
	}
	if len(res.Recovered) > 0 {
		log.Warn("recovered ledger entries from master provenance",
			zap.Strings("files", res.Recovered), zap.String("master_run_id", prov.RunID))
	}

	names, err := Discover(s.opts.InputDir)
	if err != nil {
		return res, err
	}
	var batches []batch
	for _, name := range names {
		if _, done := processed[name]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rows, demerged, perr := prepare(filepath.Join(s.opts.InputDir, name))
		if perr != nil {
			fe := FileError{Name: name, Err: perr}
			s.opts.Metrics.Count(ctx, metrics.FilesFailed, 1)
			if s.opts.OnError != Skip {
				return res, &fe
			}
			log.Error("skipping file", zap.String("file", name), zap.Error(perr))
			res.Failed = append(res.Failed, fe)
			continue
		}
		log.Debug("prepared file", zap.String("file", name), zap.Int("rows", len(rows)), zap.Int("demerged", demerged))
		batches = append(batches, batch{name: name, rows: rows})
	}
	if len(batches) == 0 {
		res.NothingToDo = true
		res.MasterRows = len(master.Rows)
		log.Info("no new files to process")
		return res, nil
	}

	rows := make([][]table.Row, len(batches))
	for i, b := range batches {
		res.Files = append(res.Files, b.name)
		res.RowsAppended += len(b.rows)
		rows[i] = b.rows
	}
	merged, err := Merge(master, rows...)
	if err != nil {
		return res, err
	}
	if err := s.writeMaster(ctx, merged, table.Provenance{RunID: res.RunID, Sources: res.Files}); err != nil {
		return res, err
	}
	if err := s.ledger.Record(ctx, res.RunID, res.Files); err != nil {
		return res, fmt.Errorf("record ledger: %w", err)
	}
	res.MasterRows = len(merged.Rows)
	s.opts.Metrics.Count(ctx, metrics.FilesIngested, len(res.Files))
	s.opts.Metrics.Count(ctx, metrics.MasterRowsAppended, res.RowsAppended)
	log.Info("master table updated",
		zap.Int("files", len(res.Files)), zap.Int("rows", res.RowsAppended), zap.Int("master_rows", res.MasterRows))
	return res, nil
}

// reconcile records provenance sources the ledger is missing. This closes
// the window between a master write and the ledger update that follows it.
func (s *Stage) reconcile(ctx context.Context, prov table.Provenance, processed map[string]struct{}) ([]string, error) {
	var missing []string
	for _, name := range prov.Sources {
		if _, ok := processed[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := s.ledger.Record(ctx, prov.RunID, missing); err != nil {
		return nil, fmt.Errorf("reconcile ledger: %w", err)
	}
	for _, name := range missing {
		processed[name] = struct{}{}
	}
	return missing, nil
}

func (s *Stage) writeMaster(ctx context.Context, t table.Table, prov table.Provenance) error {
	var buf bytes.Buffer
	if err := table.WriteTable(&buf, masterSheet, t, prov); err != nil {
		return fmt.Errorf("encode master: %w", err)
	}
	_, err := s.store.Put(ctx, s.opts.MasterKey, bytes.NewReader(buf.Bytes()), blob.PutOptions{
		ContentType: table.ContentType,
		Metadata: map[string]string{
			"run-id":  prov.RunID,
			"sources": EncodeSources(prov.Sources),
		},
	})
	if err != nil {
		return fmt.Errorf("write master: %w", err)
	}
	return nil
}

// LoadMaster reads the master table at key. A missing artifact yields an
// empty table.
func LoadMaster(ctx context.Context, store blob.Store, key string) (table.Table, table.Provenance, error) {
	_, rc, err := store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return table.Table{}, table.Provenance{}, nil
	}
	if err != nil {
		return table.Table{}, table.Provenance{}, fmt.Errorf("read master: %w", err)
	}
	defer func() { _ = rc.Close() }()
	t, prov, err := table.ReadTable(rc)
	if err != nil {
		return table.Table{}, table.Provenance{}, fmt.Errorf("read master %s: %w", key, err)
	}
	return t, prov, nil
}

// Discover lists candidate input files in lexical order: regular .xlsx
// files, skipping Excel lock files.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list input folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, ".xlsx") || strings.HasPrefix(name, "~$") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// EncodeSources joins escaped names with commas.
func EncodeSources(names []string) string {
	escaped := make([]string, len(names))
	for i, n := range names {
		escaped[i] = url.QueryEscape(n)
	}
	return strings.Join(escaped, ",")
}

// DecodeSources reverses EncodeSources.
func DecodeSources(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		n, err := url.QueryUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("decode source %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}
