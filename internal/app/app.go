// Package app wires configuration into the artifact store, the ledger, the
// metrics recorder and the two pipeline stages.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"clinicflow/internal/blob"
	"clinicflow/internal/config"
	"clinicflow/internal/ingest"
	"clinicflow/internal/ledger"
	"clinicflow/internal/metrics"
	"clinicflow/internal/reshape"
	"clinicflow/internal/watch"
)

// App owns the backends for one process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   blob.Store
	Ledger  ledger.Ledger
	Metrics *metrics.Prometheus

	// mu serializes stage runs within the process.
	mu sync.Mutex
}

// Open constructs the configured backends. The caller must Close the App.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          cfg.Blob.S3.Region,
			Bucket:          cfg.Blob.S3.Bucket,
			Prefix:          cfg.Blob.S3.Prefix,
			Endpoint:        cfg.Blob.S3.Endpoint,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			SessionToken:    cfg.Blob.S3.SessionToken,
			PathStyle:       cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	l, err := ledger.Open(ctx, ledger.Config{Driver: cfg.Ledger.Driver, Path: cfg.Ledger.Path, DSN: cfg.Ledger.DSN})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	log.Debug("backends ready",
		zap.String("blob_driver", string(store.Driver())), zap.String("ledger_driver", string(l.Driver())))
	return &App{Config: cfg, Logger: log, Store: store, Ledger: l, Metrics: metrics.NewPrometheus()}, nil
}

// Ingest runs the ingestion/merge stage once.
func (a *App) Ingest(ctx context.Context) (ingest.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ingest.NewStage(a.Store, a.Ledger, ingest.Options{
		InputDir:  a.Config.InputDir,
		MasterKey: a.Config.Ingest.MasterKey,
		OnError:   ingest.Policy(a.Config.Ingest.OnError),
		Logger:    a.Logger.Named("ingest"),
		Metrics:   a.Metrics,
	}).Run(ctx)
}

// Reshape runs the reshape/encode stage once.
func (a *App) Reshape(ctx context.Context) (reshape.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return reshape.NewStage(a.Store, reshape.Options{
		MasterKey:  a.Config.Ingest.MasterKey,
		NumericKey: a.Config.Reshape.NumericKey,
		Logger:     a.Logger.Named("reshape"),
		Metrics:    a.Metrics,
	}).Run(ctx)
}

// Watch ingests on every settled burst of new workbooks until ctx ends. With
// withReshape, a run that merged files also rebuilds the numeric table. The
// optional report callbacks see each result.
func (a *App) Watch(ctx context.Context, withReshape bool, onIngest func(ingest.Result), onReshape func(reshape.Result)) error {
	debounce, err := a.Config.WatchDebounce()
	if err != nil {
		return err
	}
	trigger := func(ctx context.Context) error {
		res, err := a.Ingest(ctx)
		if err != nil {
			return err
		}
		if onIngest != nil {
			onIngest(res)
		}
		if !withReshape || res.NothingToDo {
			return nil
		}
		rres, err := a.Reshape(ctx)
		if err != nil {
			return err
		}
		if onReshape != nil {
			onReshape(rres)
		}
		return nil
	}
	return watch.New(a.Config.InputDir, trigger, watch.Options{
		Debounce: debounce,
		Logger:   a.Logger.Named("watch"),
	}).Run(ctx)
}

// Close flushes the metrics textfile, when configured, and releases the
// ledger.
func (a *App) Close() error {
	var errs []error
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.Ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	return errors.Join(errs...)
}
