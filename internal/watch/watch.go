// Package watch refreshes the bean tree when files in the beans data
// directory change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/selfagency/beans-vscode-sub002/internal/throttle"
)

// Watcher debounces file events into refresh calls.
type Watcher struct {
	dir      string
	debounce time.Duration
	refresh  func(ctx context.Context) error
	errors   *throttle.Throttle
	log      *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a refresh.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithThrottle sets the deduplicator for refresh errors.
func WithThrottle(t *throttle.Throttle) Option { return func(w *Watcher) { w.errors = t } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a Watcher on dir. refresh runs after each burst of changes.
func New(dir string, refresh func(ctx context.Context) error, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		debounce: 300 * time.Millisecond,
		refresh:  refresh,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.errors == nil {
		w.errors = throttle.New(30*time.Second, nil)
	}
	return w
}

// Relevant reports whether an event should trigger a refresh.
func Relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".md") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw); err != nil {
		return err
	}

	deb := NewDebouncer(w.debounce, func() { w.doRefresh(ctx) })
	defer deb.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				w.maybeAddDir(fw, ev.Name)
			}
			if Relevant(ev) {
				deb.Trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WarnContext(ctx, "watcher error", "err", err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) maybeAddDir(fw *fsnotify.Watcher, path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}
	if err := fw.Add(path); err != nil {
		w.log.Warn("watch new directory failed", "dir", path, "err", err)
	}
}

func (w *Watcher) doRefresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.refresh(ctx); err != nil {
		if w.errors.Allow(err.Error()) {
			w.log.WarnContext(ctx, "refresh failed", "dir", w.dir, "err", err)
		}
		return
	}
	w.errors.Reset()
}
