// Package watch reruns ingestion when workbooks land in the input folder.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when Options.Debounce is unset.
const DefaultDebounce = 2 * time.Second

// Trigger is invoked once per settled burst of events.
type Trigger func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the folder must stay quiet before Trigger runs.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher calls a Trigger whenever .xlsx files are created or written in a
// directory. Triggers run on the event loop, so they never overlap.
type Watcher struct {
	dir     string
	trigger Trigger
	opts    Options
}

// New returns a Watcher for dir.
func New(dir string, trigger Trigger, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{dir: dir, trigger: trigger, opts: opts}
}

// Run fires the trigger once to catch up on files that arrived while nothing
// was watching, then again after every burst of relevant events. It returns
// nil when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	log := w.opts.Logger.With(zap.String("dir", w.dir))
	log.Info("watching input folder", zap.Duration("debounce", w.opts.Debounce))
	w.fire(ctx, log)

	var (
		timer *time.Timer
		fireC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			log.Debug("workbook event", zap.String("file", filepath.Base(ev.Name)), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fireC = timer.C
		case <-fireC:
			fireC = nil
			w.fire(ctx, log)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) fire(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if err := w.trigger(ctx); err != nil {
		log.Error("triggered run failed", zap.Error(err))
	}
}

// relevant keeps creates and writes of workbooks. A file moved into the
// folder arrives as a create.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(ev.Name)
	return strings.HasSuffix(name, ".xlsx") && !strings.HasPrefix(name, "~$")
}
