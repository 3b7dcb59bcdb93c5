package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

// RunsWatcher monitors the runs base directory and triggers a debounced
// callback when run artifacts change, so the registry catches up faster than
// the periodic sweep alone.
type RunsWatcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func()
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopChan chan struct{}
}

// NewRunsWatcher creates a watcher over the runs base directory.
func NewRunsWatcher(dir string, debounce time.Duration, onChange func()) (*RunsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "create file watcher")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		_ = watcher.Close()
		return nil, perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "resolve runs directory")
	}
	return &RunsWatcher{
		dir:      absDir,
		watcher:  watcher,
		onChange: onChange,
		debounce: debounce,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching. Existing run directories are added to the watch
// list so report writes inside them raise events; new run directories are
// picked up from create events as they appear.
func (w *RunsWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "watch runs directory").
			WithContext("dir", w.dir)
	}
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "run-") {
				w.addRunDir(filepath.Join(w.dir, entry.Name()))
			}
		}
	}

	slog.Info("Watching runs directory", logfields.Dir(w.dir))
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and cancels any pending debounce.
func (w *RunsWatcher) Stop() {
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing runs watcher", logfields.Error(err))
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *RunsWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Runs watcher error", logfields.Error(err))
		}
	}
}

func (w *RunsWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() &&
			strings.HasPrefix(filepath.Base(event.Name), "run-") {
			w.addRunDir(event.Name)
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.scheduleChange()
}

func (w *RunsWatcher) addRunDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		slog.Debug("Could not watch run directory", logfields.Dir(dir), logfields.Error(err))
	}
}

// scheduleChange coalesces bursts of file events into one callback.
func (w *RunsWatcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
