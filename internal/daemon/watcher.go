package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docmake/internal/logfields"
)

// Watcher monitors the documentation source tree and triggers rebuilds on
// changes, debouncing rapid edit bursts.
type Watcher struct {
	sourceDir    string
	buildDir     string
	onChange     func()
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a source tree watcher. Events under buildDir are ignored
// so builds never trigger themselves.
func NewWatcher(sourceDir, buildDir string, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}
	absBuild, err := filepath.Abs(buildDir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve build path: %w", err)
	}

	return &Watcher{
		sourceDir:    absSource,
		buildDir:     absBuild,
		onChange:     onChange,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		debounceTime: 2 * time.Second, // Debounce rapid file changes
	}, nil
}

// WithDebounce overrides the debounce interval (used in tests).
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounceTime = d
	return w
}

// Start begins monitoring the source tree.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.sourceDir); err != nil {
		return err
	}

	slog.Info("Starting source watcher", logfields.Source(w.sourceDir))
	go w.watchLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	slog.Info("Stopping source watcher")
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", logfields.Error(err))
	}
	return nil
}

// addRecursive watches a directory and all its subdirectories, skipping the
// build output tree.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether a path lies inside the build directory or a hidden
// directory.
func (w *Watcher) ignored(path string) bool {
	if path == w.buildDir || strings.HasPrefix(path, w.buildDir+string(filepath.Separator)) {
		return true
	}
	base := filepath.Base(path)
	return base != "." && strings.HasPrefix(base, ".")
}

// watchLoop processes file system events with debouncing.
func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

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
			if w.ignored(event.Name) {
				continue
			}

			// New directories need their own watch.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if err := w.addRecursive(event.Name); err != nil {
					slog.Debug("Could not watch new path", logfields.Path(event.Name), logfields.Error(err))
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Source change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounceTime, w.onChange)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Watcher error", logfields.Error(err))
		}
	}
}
