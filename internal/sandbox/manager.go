package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Manager handles creation, tracking, and cleanup of per-run sandbox
// directories. Every exploration run executes inside its own sandbox
// under <root>/sandboxes.
type Manager interface {
	// Create creates a new sandbox directory for the specified run.
	Create(ctx context.Context, runID string) (*Sandbox, error)

	// Get retrieves a sandbox by its ID.
	// Returns nil if the sandbox doesn't exist.
	Get(ctx context.Context, id string) (*Sandbox, error)

	// List retrieves all tracked sandboxes.
	List(ctx context.Context) ([]*Sandbox, error)

	// Destroy removes a sandbox directory and stops tracking it.
	// Failed sandboxes are preserved when the manager is configured to
	// keep them for inspection.
	Destroy(ctx context.Context, sandbox *Sandbox) error

	// DestroyAll removes all tracked sandboxes older than the
	// specified duration.
	DestroyAll(ctx context.Context, olderThan time.Duration) error

	// PruneOrphans removes untracked sandbox directories from disk,
	// keeping only the most recent retainCount of them. A retainCount
	// of 0 keeps everything.
	PruneOrphans(ctx context.Context, retainCount int) error

	// ActiveCount reports how many sandboxes are currently tracked.
	ActiveCount() int
}

// Config holds configuration for the sandbox manager
type Config struct {
	// Root is the engine workspace directory; sandboxes are created
	// under Root/sandboxes
	Root string

	// PreserveOnFailure determines if failed sandboxes should be kept
	// for debugging
	PreserveOnFailure bool

	// MaxAge is the maximum age for sandboxes before they're
	// considered stale
	MaxAge time.Duration
}

// manager is the concrete implementation of Manager
type manager struct {
	config      Config
	sandboxRoot string
	active      map[string]*Sandbox
	mu          sync.RWMutex
}

// NewManager creates a new sandbox manager with the provided configuration
func NewManager(cfg Config) (Manager, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("Root cannot be empty")
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}

	sandboxRoot := filepath.Join(cfg.Root, "sandboxes")
	if err := os.MkdirAll(sandboxRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}

	return &manager{
		config:      cfg,
		sandboxRoot: sandboxRoot,
		active:      make(map[string]*Sandbox),
	}, nil
}

// Create creates a new sandbox directory for the specified run
func (m *manager) Create(ctx context.Context, runID string) (*Sandbox, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	id := "run-" + runID
	path := filepath.Join(m.sandboxRoot, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[id]; exists {
		return nil, fmt.Errorf("sandbox %s already exists", id)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sandbox directory %s already exists", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	now := time.Now()
	sandbox := &Sandbox{
		ID:       id,
		RunID:    runID,
		Path:     path,
		Created:  now,
		LastUsed: now,
		Status:   SandboxStatusActive,
	}
	m.active[id] = sandbox

	return sandbox, nil
}

// Get retrieves a sandbox by its ID
func (m *manager) Get(ctx context.Context, id string) (*Sandbox, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sandbox, exists := m.active[id]
	if !exists {
		return nil, nil
	}
	return sandbox, nil
}

// List retrieves all tracked sandboxes
func (m *manager) List(ctx context.Context) ([]*Sandbox, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sandboxes := make([]*Sandbox, 0, len(m.active))
	for _, sandbox := range m.active {
		sandboxes = append(sandboxes, sandbox)
	}
	return sandboxes, nil
}

// Destroy removes a sandbox directory and stops tracking it
func (m *manager) Destroy(ctx context.Context, sandbox *Sandbox) error {
	if sandbox == nil {
		return fmt.Errorf("sandbox cannot be nil")
	}

	if sandbox.Status == SandboxStatusFailed && m.config.PreserveOnFailure {
		fmt.Fprintf(os.Stderr, "warning: preserving failed sandbox %s for inspection\n", sandbox.Path)
	} else {
		if err := os.RemoveAll(sandbox.Path); err != nil {
			return fmt.Errorf("failed to remove sandbox %s: %w", sandbox.ID, err)
		}
		sandbox.Status = SandboxStatusCleaned
	}

	m.mu.Lock()
	delete(m.active, sandbox.ID)
	m.mu.Unlock()

	return nil
}

// DestroyAll removes all tracked sandboxes older than the specified duration
func (m *manager) DestroyAll(ctx context.Context, olderThan time.Duration) error {
	m.mu.RLock()
	toDestroy := []*Sandbox{}
	cutoff := time.Now().Add(-olderThan)
	for _, sandbox := range m.active {
		if sandbox.LastUsed.Before(cutoff) {
			toDestroy = append(toDestroy, sandbox)
		}
	}
	m.mu.RUnlock()

	// Don't hold the lock during cleanup
	var lastErr error
	for _, sandbox := range toDestroy {
		if err := m.Destroy(ctx, sandbox); err != nil {
			lastErr = fmt.Errorf("failed to destroy sandbox %s: %w", sandbox.ID, err)
		}
	}
	return lastErr
}

// PruneOrphans removes untracked sandbox directories from disk,
// keeping only the most recent retainCount. Directories belonging to
// tracked sandboxes are never touched, so work in progress survives a
// prune that races a running session.
func (m *manager) PruneOrphans(ctx context.Context, retainCount int) error {
	if retainCount == 0 {
		return nil
	}

	entries, err := os.ReadDir(m.sandboxRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read sandbox root: %w", err)
	}

	m.mu.RLock()
	activePaths := make(map[string]bool)
	for _, sandbox := range m.active {
		activePaths[sandbox.Path] = true
	}
	m.mu.RUnlock()

	type orphanInfo struct {
		path    string
		modTime time.Time
	}
	var orphans []orphanInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.sandboxRoot, entry.Name())
		if activePaths[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to get info for %s: %v\n", path, err)
			continue
		}
		orphans = append(orphans, orphanInfo{path: path, modTime: info.ModTime()})
	}

	if len(orphans) <= retainCount {
		return nil
	}

	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].modTime.After(orphans[j].modTime)
	})

	var lastErr error
	for i := retainCount; i < len(orphans); i++ {
		if err := os.RemoveAll(orphans[i].path); err != nil {
			lastErr = fmt.Errorf("failed to remove sandbox %s: %w", orphans[i].path, err)
			fmt.Fprintf(os.Stderr, "warning: %v\n", lastErr)
		}
	}
	return lastErr
}

// ActiveCount reports how many sandboxes are currently tracked
func (m *manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
