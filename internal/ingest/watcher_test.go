package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w := NewWatcher(root, 50*time.Millisecond, NewNormalizer("proj-1"))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if w.IsRunning() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.Stop(ctx); err != nil {
				t.Errorf("Stop failed: %v", err)
			}
		}
	})
	return w
}

func waitForObservation(t *testing.T, ch <-chan *types.Observation, timeout time.Duration) *types.Observation {
	t.Helper()
	select {
	case obs := <-ch:
		return obs
	case <-time.After(timeout):
		t.Fatal("timed out waiting for observation")
		return nil
	}
}

func expectQuiet(t *testing.T, ch <-chan *types.Observation, window time.Duration) {
	t.Helper()
	select {
	case obs := <-ch:
		t.Fatalf("unexpected observation for %s", obs.FileChange.Path)
	case <-time.After(window):
	}
}

func TestWatcherReportsNewFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "pkg", "file.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	obs := waitForObservation(t, w.Observations(), 3*time.Second)
	if obs.Source != types.SourceFileChange {
		t.Errorf("Source = %s, want %s", obs.Source, types.SourceFileChange)
	}
	fc := obs.FileChange
	if fc.Path != "pkg/file.go" {
		t.Errorf("Path = %q, want pkg/file.go", fc.Path)
	}
	if fc.Op != types.FileCreated {
		t.Errorf("Op = %s, want %s", fc.Op, types.FileCreated)
	}
	if fc.Extension != ".go" {
		t.Errorf("Extension = %q, want .go", fc.Extension)
	}
	if fc.SizeBytes == 0 {
		t.Error("expected a file size")
	}
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root)

	if err := os.WriteFile(path, []byte("package main\n\n// a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("package main\n\n// b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	obs := waitForObservation(t, w.Observations(), 3*time.Second)
	if obs.FileChange.Op != types.FileModified {
		t.Errorf("Op = %s, want %s", obs.FileChange.Op, types.FileModified)
	}
	expectQuiet(t, w.Observations(), 400*time.Millisecond)
}

func TestWatcherReportsDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.go")
	if err := os.WriteFile(path, []byte("package gone\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	obs := waitForObservation(t, w.Observations(), 3*time.Second)
	if obs.FileChange.Op != types.FileDeleted {
		t.Errorf("Op = %s, want %s", obs.FileChange.Op, types.FileDeleted)
	}
	if obs.FileChange.SizeBytes != 0 {
		t.Errorf("SizeBytes = %d, want 0 for a deleted file", obs.FileChange.SizeBytes)
	}
}

func TestWatcherFiltersNonCode(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, w.Observations(), 400*time.Millisecond)
}

func TestWatcherIgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"node_modules", ".hidden", "sandboxes"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	w := startWatcher(t, root)

	for _, rel := range []string{"node_modules/dep.go", ".hidden/x.go", "sandboxes/run.go"} {
		if err := os.WriteFile(filepath.Join(root, rel), []byte("package x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	expectQuiet(t, w.Observations(), 400*time.Millisecond)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "newpkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the event loop a moment to register the new directory.
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "fresh.go"), []byte("package newpkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	obs := waitForObservation(t, w.Observations(), 3*time.Second)
	if obs.FileChange.Path != "newpkg/fresh.go" {
		t.Errorf("Path = %q, want newpkg/fresh.go", obs.FileChange.Path)
	}
}

func TestWatcherRestart(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	ctx := context.Background()
	if err := w.Start(ctx); err == nil {
		t.Error("expected error starting a running watcher")
	}

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Stop(ctx); err == nil {
		t.Error("expected error stopping a stopped watcher")
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "after.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	obs := waitForObservation(t, w.Observations(), 3*time.Second)
	if obs.FileChange.Path != "after.go" {
		t.Errorf("Path = %q, want after.go", obs.FileChange.Path)
	}
}
