// Package orchestrator drives accepted exploration sessions to
// completion. Each goal gets exactly one run, pushed through
// pending -> generating -> executing -> validating into a terminal
// state under per-stage timeouts, with a bounded number of runs in
// flight and a budget watchdog that cancels everything still live when
// the session's wall-clock budget expires. Every state change is
// persisted before the side effects it gates.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/generator"
	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
	"github.com/sparkengine/spark/internal/validator"
)

const actorName = "orchestrator"

// Orchestrator manages session execution and the run pool.
type Orchestrator struct {
	store      storage.Storage
	gen        generator.Generator
	sub        substrate.Substrate
	val        validator.Validator
	sandboxMgr sandbox.Manager
	curator    *curator.Curator
	config     *Config

	// sem bounds how many runs execute concurrently across the
	// orchestrator, not per session.
	sem *semaphore.Weighted

	// curateMu serializes curation; the curator is single-writer and
	// sessions can finish concurrently.
	curateMu sync.Mutex

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	// State
	mu       sync.RWMutex
	running  bool
	baseCtx  context.Context
	active   map[string]*sessionHandle
	sessions sync.WaitGroup
}

// Config holds orchestrator configuration
type Config struct {
	Store     storage.Storage
	Generator generator.Generator
	Substrate substrate.Substrate
	Validator validator.Validator
	Sandboxes sandbox.Manager
	Curator   *curator.Curator // Optional; sessions complete without curation when nil

	// Exploration carries the session budget, stage timeouts, and the
	// run parallelism bound.
	Exploration config.ExplorationConfig

	// ProjectID selects the project profile attached to generation
	// requests. Empty means no profile context.
	ProjectID string

	SweepInterval      time.Duration // How often stale sandboxes are swept (default: 10 minutes)
	SandboxMaxAge      time.Duration // Tracked sandboxes older than this are destroyed (default: 24h)
	SandboxRetainCount int           // Untracked sandbox directories the sweep keeps (default: 3)
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		Exploration:        config.DefaultConfig().Exploration,
		SweepInterval:      10 * time.Minute,
		SandboxMaxAge:      24 * time.Hour,
		SandboxRetainCount: 3,
	}
}

// New creates a new orchestrator instance
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Substrate == nil {
		return nil, fmt.Errorf("substrate is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Sandboxes == nil {
		return nil, fmt.Errorf("sandbox manager is required")
	}

	if cfg.Curator == nil {
		fmt.Fprintf(os.Stderr, "Warning: no curator configured (discovery curation disabled)\n")
	}

	defaults := config.DefaultConfig().Exploration
	if cfg.Exploration.MaxParallelRuns <= 0 {
		cfg.Exploration.MaxParallelRuns = defaults.MaxParallelRuns
	}
	if cfg.Exploration.DefaultBudget <= 0 {
		cfg.Exploration.DefaultBudget = defaults.DefaultBudget
	}
	if cfg.Exploration.GenerationTimeout <= 0 {
		cfg.Exploration.GenerationTimeout = defaults.GenerationTimeout
	}
	if cfg.Exploration.ExecutionTimeout <= 0 {
		cfg.Exploration.ExecutionTimeout = defaults.ExecutionTimeout
	}
	if cfg.Exploration.ValidationTimeout <= 0 {
		cfg.Exploration.ValidationTimeout = defaults.ValidationTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.SandboxMaxAge <= 0 {
		cfg.SandboxMaxAge = 24 * time.Hour
	}
	if cfg.SandboxRetainCount < 0 {
		cfg.SandboxRetainCount = 3
	}

	return &Orchestrator{
		store:      cfg.Store,
		gen:        cfg.Generator,
		sub:        cfg.Substrate,
		val:        cfg.Validator,
		sandboxMgr: cfg.Sandboxes,
		curator:    cfg.Curator,
		config:     cfg,
		sem:        semaphore.NewWeighted(int64(cfg.Exploration.MaxParallelRuns)),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		active:     make(map[string]*sessionHandle),
	}, nil
}

// Start begins the orchestrator's background sweep loop. Sessions
// started afterwards run on goroutines scoped to ctx; cancelling it
// cancels every run still in flight.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.baseCtx = ctx
	o.mu.Unlock()

	go o.sweepLoop(ctx)

	return nil
}

// Stop aborts in-flight sessions and waits for them to finalize. Runs
// cut down here land in cancelled, never failed; the wait respects
// ctx, so a stop deadline can expire before slow sessions finish
// persisting.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is not running")
	}
	// Flipping running here closes the window where a session could
	// register after the snapshot below and dodge the abort.
	o.running = false
	handles := make([]*sessionHandle, 0, len(o.active))
	for _, h := range o.active {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.cancelWith(types.ErrKindAborted)
	}

	close(o.stopCh)

	sessionsDone := make(chan struct{})
	go func() {
		o.sessions.Wait()
		close(sessionsDone)
	}()

	sweepStopped := false
	sessionsStopped := false
	for !sweepStopped || !sessionsStopped {
		select {
		case <-o.doneCh:
			sweepStopped = true
		case <-sessionsDone:
			sessionsStopped = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// IsRunning returns whether the orchestrator is currently running
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// ActiveSessionCount reports how many sessions are currently in flight.
func (o *Orchestrator) ActiveSessionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// sweepLoop periodically destroys stale sandboxes and prunes orphaned
// sandbox directories left behind by crashed runs.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if err := o.sandboxMgr.DestroyAll(ctx, o.config.SandboxMaxAge); err != nil {
				fmt.Fprintf(os.Stderr, "warning: sandbox sweep failed: %v\n", err)
			}
			if err := o.sandboxMgr.PruneOrphans(ctx, o.config.SandboxRetainCount); err != nil {
				fmt.Fprintf(os.Stderr, "warning: sandbox prune failed: %v\n", err)
			}
		}
	}
}
