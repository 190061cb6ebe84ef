package watch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/selfagency/beans-vscode-sub002/internal/throttle"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "a/beans-1.md", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "a/beans-1.MD", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "a/beans-1.md", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "a/beans-1.md", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "a/beans-1.md", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "a/.beans-1.md.swp", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "a/config.yml", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		if got := Relevant(tt.ev); got != tt.want {
			t.Errorf("Relevant(%v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	var n atomic.Int32
	done := make(chan struct{}, 10)
	d := NewDebouncer(20*time.Millisecond, func() {
		n.Add(1)
		done <- struct{}{}
	})
	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("action never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("expected one action, got %d", got)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { n.Add(1) })
	d.Trigger()
	d.Cancel()
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 0 {
		t.Error("cancelled action ran")
	}
}

func TestDoRefresh_ThrottlesRepeatedErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fail := true
	w := New(t.TempDir(), func(context.Context) error {
		if fail {
			return errors.New("beans list: exit status 1")
		}
		return nil
	}, WithLogger(logger), WithThrottle(throttle.New(time.Hour, nil)))

	ctx := context.Background()
	w.doRefresh(ctx)
	w.doRefresh(ctx)
	if got := strings.Count(buf.String(), "refresh failed"); got != 1 {
		t.Errorf("expected one warning, got %d", got)
	}

	fail = false
	w.doRefresh(ctx)
	fail = true
	w.doRefresh(ctx)
	if got := strings.Count(buf.String(), "refresh failed"); got != 2 {
		t.Errorf("success should reset throttle; got %d warnings", got)
	}
}

func TestRun_RefreshesOnMarkdownChange(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real file system events")
	}
	dir := t.TempDir()

	refreshed := make(chan struct{}, 10)
	w := New(dir, func(context.Context) error {
		refreshed <- struct{}{}
		return nil
	}, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "beans-1.md"), []byte("# one"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-refreshed:
	case <-time.After(3 * time.Second):
		t.Fatal("no refresh after markdown write")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil })
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}
