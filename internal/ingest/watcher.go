package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/types"
)

// watchIgnoredDirs are directory names the watcher never descends
// into. Dot-prefixed directories (.git and friends) are skipped by
// rule; sandboxes is the engine's own run workspace, and watching it
// would feed the engine's output back into its input.
var watchIgnoredDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"out":          true,
	"sandboxes":    true,
}

// watcherBuffer is the delivery channel capacity. When the consumer
// falls this far behind, further observations are dropped with a
// warning rather than blocking the event loop.
const watcherBuffer = 64

type pendingChange struct {
	op   types.FileChangeOp
	seen time.Time
}

// Watcher emits file_change observations for code files under a
// project root. fsnotify does not watch recursively, so directories
// are added to the watch set as they are discovered. Rapid saves to
// the same file coalesce within the debounce window and only the
// settled state is reported.
type Watcher struct {
	root       string
	debounce   time.Duration
	normalizer *Normalizer
	out        chan *types.Observation

	mu      sync.RWMutex
	running bool
	fsw     *fsnotify.Watcher
	pending map[string]pendingChange
	stopCh  chan struct{}
	doneCh  chan struct{}
	dropped int
}

// NewWatcher creates a watcher for the project root. Nothing is
// watched until Start. The root is resolved through symlinks so event
// paths compare cleanly against it.
func NewWatcher(root string, debounce time.Duration, normalizer *Normalizer) *Watcher {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Watcher{
		root:       root,
		debounce:   debounce,
		normalizer: normalizer,
		out:        make(chan *types.Observation, watcherBuffer),
		pending:    make(map[string]pendingChange),
	}
}

// Observations returns the delivery channel. It stays open across
// Stop/Start cycles and is never closed; consumers select on it
// alongside their own shutdown signal.
func (w *Watcher) Observations() <-chan *types.Observation {
	return w.out
}

// Start walks the project tree, registers every watchable directory,
// and begins emitting observations.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := addTree(fsw, w.root); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.fsw = fsw
	w.pending = make(map[string]pendingChange)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.loop(ctx)
	return nil
}

// Stop halts the event loop, flushes whatever was still pending, and
// releases the underlying watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher not running")
	}
	w.running = false
	fsw := w.fsw
	close(w.stopCh)
	w.mu.Unlock()

	select {
	case <-w.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := fsw.Close(); err != nil {
		return fmt.Errorf("failed to close filesystem watcher: %w", err)
	}
	return nil
}

// IsRunning reports whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addTree registers root and every non-ignored directory below it.
// Unreadable subdirectories are skipped with a warning; only failing
// to watch the root itself is fatal.
func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: skipping unreadable path %s: %v\n", path, err)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || watchIgnoredDirs[name]) {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			if path == root {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: failed to watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	flushEvery := w.debounce / 2
	if flushEvery < 50*time.Millisecond {
		flushEvery = 50 * time.Millisecond
	}
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			w.flush(time.Now(), true)
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Warning: watcher error: %v\n", err)
		case now := <-ticker.C:
			w.flush(now, false)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	var op types.FileChangeOp
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = types.FileCreated
	case ev.Op&fsnotify.Write != 0:
		op = types.FileModified
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = types.FileDeleted
	default:
		return // chmod and friends
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if ignoredPath(rel) {
		return
	}

	// New directories join the watch set so changes beneath them keep
	// arriving.
	if op == types.FileCreated {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to watch %s: %v\n", ev.Name, err)
			}
			return
		}
	}

	if !confidence.IsCodeExtension(filepath.Ext(rel)) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	next := pendingChange{op: op, seen: time.Now()}
	if prev, exists := w.pending[rel]; exists {
		switch {
		case prev.op == types.FileCreated && op == types.FileModified:
			// Still a brand-new file, however many saves follow.
			next.op = types.FileCreated
		case prev.op == types.FileCreated && op == types.FileDeleted:
			// Created and deleted inside one window: nothing happened.
			delete(w.pending, rel)
			return
		case prev.op == types.FileDeleted && op == types.FileCreated:
			// Atomic-save editors delete and recreate on every write.
			next.op = types.FileModified
		}
	}
	w.pending[rel] = next
}

// flush emits every pending change that has settled past the debounce
// window, in path order. force emits everything regardless of age.
func (w *Watcher) flush(now time.Time, force bool) {
	w.mu.Lock()
	settled := make([]string, 0, len(w.pending))
	changes := make(map[string]types.FileChangeOp, len(w.pending))
	for rel, pc := range w.pending {
		if force || now.Sub(pc.seen) >= w.debounce {
			settled = append(settled, rel)
			changes[rel] = pc.op
			delete(w.pending, rel)
		}
	}
	w.mu.Unlock()

	sort.Strings(settled)
	for _, rel := range settled {
		w.emit(rel, changes[rel])
	}
}

func (w *Watcher) emit(rel string, op types.FileChangeOp) {
	payload := &types.FileChangePayload{
		Path:      filepath.ToSlash(rel),
		Op:        op,
		Extension: strings.ToLower(filepath.Ext(rel)),
	}
	if op != types.FileDeleted {
		if info, err := os.Stat(filepath.Join(w.root, rel)); err == nil {
			payload.SizeBytes = info.Size()
		}
	}

	obs, err := w.normalizer.Normalize(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: dropping file change %s: %v\n", rel, err)
		return
	}

	select {
	case w.out <- obs:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		fmt.Fprintf(os.Stderr, "Warning: observation buffer full, dropping %s\n", rel)
	}
}

// ignoredPath reports whether any segment of the project-relative
// path is dot-prefixed or on the ignore list.
func ignoredPath(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}
		if strings.HasPrefix(seg, ".") || watchIgnoredDirs[seg] {
			return true
		}
	}
	return false
}
