package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const debounce = 100 * time.Millisecond

func start(t *testing.T, dir string, trigger Trigger) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(dir, trigger, Options{Debounce: debounce}).Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func expectCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger not called")
	}
}

func expectQuiet(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
		t.Fatal("unexpected trigger call")
	case <-time.After(4 * debounce):
	}
}

func TestWatcherTriggersOnStartAndOnNewWorkbooks(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan struct{}, 16)
	stop := start(t, dir, func(context.Context) error {
		calls <- struct{}{}
		return nil
	})
	defer stop()

	expectCall(t, calls)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$jan.xlsx"), []byte("x"), 0o644))
	expectQuiet(t, calls)

	path := filepath.Join(dir, "jan.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))
	expectCall(t, calls)
	expectQuiet(t, calls)
}

func TestWatcherKeepsRunningAfterTriggerError(t *testing.T) {
	dir := t.TempDir()
	var n atomic.Int32
	calls := make(chan struct{}, 16)
	stop := start(t, dir, func(context.Context) error {
		n.Add(1)
		calls <- struct{}{}
		return errors.New("drift")
	})
	defer stop()

	expectCall(t, calls)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feb.xlsx"), []byte("a"), 0o644))
	expectCall(t, calls)
	assert.EqualValues(t, 2, n.Load())
}

func TestWatcherMissingFolder(t *testing.T) {
	err := New(filepath.Join(t.TempDir(), "absent"), func(context.Context) error { return nil }, Options{}).
		Run(context.Background())
	require.Error(t, err)
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "/in/a.xlsx", Op: fsnotify.Create}))
	assert.True(t, relevant(fsnotify.Event{Name: "/in/a.xlsx", Op: fsnotify.Write}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/a.xlsx", Op: fsnotify.Remove}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/a.xlsx", Op: fsnotify.Chmod}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/a.xls", Op: fsnotify.Create}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/~$a.xlsx", Op: fsnotify.Write}))
}
