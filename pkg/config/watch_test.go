package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_FiresOnChange(t *testing.T) {
	dir := t.TempDir()
	script := writeSettings(t, dir, "main.star", "x = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	w := NewWatcher(zerolog.Nop(), 20*time.Millisecond)
	if err := w.Watch(ctx, []string{script}, func(_ context.Context, name string) {
		changed <- name
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	// Ignored extension.
	writeSettings(t, dir, "notes.txt", "hello\n")
	if err := os.WriteFile(script, []byte("x = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-changed:
		if filepath.Base(name) != "main.star" {
			t.Errorf("changed = %s, want main.star", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 16)
	w := NewWatcher(zerolog.Nop(), 200*time.Millisecond)
	if err := w.Watch(ctx, []string{dir}, func(_ context.Context, name string) {
		changed <- name
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeSettings(t, dir, "secret.age", "ciphertext")
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	select {
	case name := <-changed:
		t.Errorf("unexpected second notification for %s", name)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_SerializesCallbacks(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, overlaps atomic.Int32
	done := make(chan struct{}, 16)
	w := NewWatcher(zerolog.Nop(), 20*time.Millisecond)
	if err := w.Watch(ctx, []string{dir}, func(context.Context, string) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(300 * time.Millisecond)
		active.Add(-1)
		done <- struct{}{}
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	writeSettings(t, dir, "first.star", "x = 1\n")
	time.Sleep(100 * time.Millisecond)
	writeSettings(t, dir, "second.star", "x = 2\n")

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for callback %d", i+1)
		}
	}
	if n := overlaps.Load(); n != 0 {
		t.Errorf("callbacks overlapped %d times", n)
	}
}

func TestWatcher_NoPaths(t *testing.T) {
	w := NewWatcher(zerolog.Nop(), 0)
	err := w.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func(context.Context, string) {})
	if err == nil {
		t.Error("expected error when nothing can be watched")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
