// Package reshape turns the wide master table into the long, integer coded
// numeric table. It never consults the processed-file ledger.
package reshape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clinicflow/internal/blob"
	"clinicflow/internal/metrics"
	"clinicflow/internal/table"
)

const (
	// DefaultNumericKey is the artifact key of the numeric table.
	DefaultNumericKey = "numericBook.xlsx"
	defaultMasterKey  = "cleanedBook.xlsx"
	numericSheet      = "Sheet1"
	operation         = "reshape"
)

// ErrNoMaster is returned when there is no master table to reshape.
var ErrNoMaster = errors.New("master table not found")

// Options configures a Stage.
type Options struct {
	MasterKey  string
	NumericKey string
	Logger     *zap.Logger
	Metrics    metrics.Recorder
}

// Result summarizes one run.
type Result struct {
	MasterRows        int
	Rows              int
	ConsultationTypes []LegendEntry
	Cases             []LegendEntry
	// CaseMap renders Cases as {value: code}.
	CaseMap string
}

// Stage reads the master table, transforms it and overwrites the numeric table.
type Stage struct {
	store blob.Store
	opts  Options
}

// NewStage returns a Stage with defaults filled in.
func NewStage(store blob.Store, opts Options) *Stage {
	if opts.MasterKey == "" {
		opts.MasterKey = defaultMasterKey
	}
	if opts.NumericKey == "" {
		opts.NumericKey = DefaultNumericKey
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Stage{store: store, opts: opts}
}

// Run recomputes the numeric table from scratch.
func (s *Stage) Run(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() { s.opts.Metrics.Observe(ctx, operation, err == nil, time.Since(start)) }()

	_, rc, err := s.store.Get(ctx, s.opts.MasterKey)
	if errors.Is(err, blob.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrNoMaster, s.opts.MasterKey)
	}
	if err != nil {
		return res, fmt.Errorf("read master: %w", err)
	}
	master, _, err := table.ReadTable(rc)
	_ = rc.Close()
	if err != nil {
		return res, fmt.Errorf("read master %s: %w", s.opts.MasterKey, err)
	}

	out, err := Transform(master)
	if err != nil {
		return res, err
	}
	var buf bytes.Buffer
	if err := table.WriteTable(&buf, numericSheet, out.Table(), table.Provenance{}); err != nil {
		return res, fmt.Errorf("encode numeric table: %w", err)
	}
	if _, err := s.store.Put(ctx, s.opts.NumericKey, bytes.NewReader(buf.Bytes()), blob.PutOptions{ContentType: table.ContentType}); err != nil {
		return res, fmt.Errorf("write numeric table: %w", err)
	}

	res = Result{
		MasterRows:        len(master.Rows),
		Rows:              len(out.Records),
		ConsultationTypes: out.ConsultationTypes.Legend(),
		Cases:             out.Cases.Legend(),
		CaseMap:           out.Cases.String(),
	}
	s.opts.Metrics.Count(ctx, metrics.NumericRows, res.Rows)
	s.opts.Logger.Info("numeric table written",
		zap.String("key", s.opts.NumericKey), zap.Int("rows", res.Rows), zap.String("cases", res.CaseMap))
	return res, nil
}
