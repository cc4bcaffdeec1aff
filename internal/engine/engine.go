// Package engine assembles the full pipeline behind one facade:
// observation sources feed the confidence store, the orchestrator
// drives exploration sessions, and the curator distills finished runs
// into discoveries. Background loops handle git polling, confidence
// decay, event cleanup, discovery retention, and the optional
// scheduler. Callers construct an Engine, Start it, and talk to the
// API surface in api.go.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/generator"
	"github.com/sparkengine/spark/internal/ingest"
	"github.com/sparkengine/spark/internal/orchestrator"
	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
	"github.com/sparkengine/spark/internal/validator"
)

const (
	// actorName is stamped on events the engine emits itself.
	actorName = "engine"

	// schedulerActor marks sessions and events that originate from the
	// schedule loop rather than an API call.
	schedulerActor = "scheduler"

	// observationBatchInterval is how often buffered ingest counts are
	// flushed into an observation_batch event.
	observationBatchInterval = time.Minute

	// discoveryRetentionInterval is how often expired discoveries are
	// purged. Retention is configured in days, so a daily pass
	// suffices.
	discoveryRetentionInterval = 24 * time.Hour
)

// Engine wires ingest, confidence, orchestration, and curation
// together and runs the background loops that keep them current.
type Engine struct {
	cfg      config.Config
	store    storage.Storage
	patterns *confidence.Store
	orch     *orchestrator.Orchestrator
	curator  *curator.Curator

	normalizer *ingest.Normalizer
	testRuns   *ingest.TestRunReporter
	watcher    *ingest.Watcher    // nil when file watching is disabled
	gitScan    *ingest.GitScanner // nil until Start, or when git scanning is disabled

	// costs is set only when the engine built its own Anthropic
	// generator; injected generators track their own spend.
	costs          *generator.CostTracker
	costLimitUSD   float64
	lastCostStatus generator.BudgetStatus

	projectRoot string
	projectID   string
	scanGit     bool

	// Control channels, re-created on each Start
	ingestStopCh       chan struct{}
	ingestDoneCh       chan struct{}
	decayStopCh        chan struct{}
	decayDoneCh        chan struct{}
	eventCleanupStopCh chan struct{}
	eventCleanupDoneCh chan struct{}
	retentionStopCh    chan struct{}
	retentionDoneCh    chan struct{}
	scheduleStopCh     chan struct{}
	scheduleDoneCh     chan struct{}

	// State
	mu           sync.RWMutex
	running      bool
	lastActivity time.Time
	windowSeen   time.Time // start of the last schedule window we emitted an event for
	windowUsed   time.Time // start of the last schedule window that launched a session

	batchMu sync.Mutex
	batch   batchTally
}

// Config holds engine configuration. Only Store and ProjectRoot are
// required; every other dependency is built with sensible defaults
// when left nil.
type Config struct {
	Store       storage.Storage
	ProjectRoot string

	// ProjectID labels observations and sessions. Defaults to the base
	// name of ProjectRoot.
	ProjectID string

	// Settings carries the full engine configuration. Nil means
	// config.DefaultConfig().
	Settings *config.Config

	// Generator overrides goal generation. When nil the engine uses
	// the Anthropic generator if ANTHROPIC_API_KEY is set and falls
	// back to the offline template generator otherwise.
	Generator generator.Generator

	Substrate substrate.Substrate // nil means local execution
	Validator validator.Validator // nil means the default code validator
	Sandboxes sandbox.Manager     // nil means sandboxes under ProjectRoot/.spark

	// WatchFiles enables the filesystem watcher observation source.
	WatchFiles bool

	// ScanGit enables commit polling against ProjectRoot.
	ScanGit bool

	// PreserveFailedSandboxes keeps sandbox directories of failed runs
	// around for inspection. Only applies to the default sandbox
	// manager.
	PreserveFailedSandboxes bool
}

// New creates an engine from cfg, building default components for
// every dependency not supplied.
func New(cfg *Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root is required")
	}
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	settings := cfg.Settings
	if settings == nil {
		def := config.DefaultConfig()
		settings = &def
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = filepath.Base(root)
	}

	e := &Engine{
		cfg:         *settings,
		store:       cfg.Store,
		projectRoot: root,
		projectID:   projectID,
		scanGit:     cfg.ScanGit,
	}

	gen := cfg.Generator
	if gen == nil {
		gen = e.defaultGenerator()
	}

	sub := cfg.Substrate
	if sub == nil {
		sub = substrate.NewLocalSubstrate()
	}

	val := cfg.Validator
	if val == nil {
		val, err = validator.New(validator.Config{})
		if err != nil {
			return nil, fmt.Errorf("configuring validator: %w", err)
		}
	}

	sandboxes := cfg.Sandboxes
	if sandboxes == nil {
		sandboxes, err = sandbox.NewManager(sandbox.Config{
			Root:              filepath.Join(root, ".spark"),
			PreserveOnFailure: cfg.PreserveFailedSandboxes,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring sandbox manager: %w", err)
		}
	}

	e.curator = curator.New(settings.Curation, cfg.Store)
	e.patterns = confidence.New(settings.Learning, cfg.Store)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Store = cfg.Store
	orchCfg.Generator = gen
	orchCfg.Substrate = sub
	orchCfg.Validator = val
	orchCfg.Sandboxes = sandboxes
	orchCfg.Curator = e.curator
	orchCfg.Exploration = settings.Exploration
	orchCfg.ProjectID = projectID
	e.orch, err = orchestrator.New(orchCfg)
	if err != nil {
		return nil, fmt.Errorf("configuring orchestrator: %w", err)
	}

	e.normalizer = ingest.NewNormalizer(projectID)
	e.testRuns = ingest.NewTestRunReporter(e.normalizer)
	if cfg.WatchFiles {
		e.watcher = ingest.NewWatcher(root, settings.Learning.WatchDebounce, e.normalizer)
	}

	return e, nil
}

// defaultGenerator picks the Anthropic generator when an API key is
// available and the offline template generator otherwise. The cost
// tracker is kept on the engine so the ingest loop can surface budget
// transitions as events.
func (e *Engine) defaultGenerator() generator.Generator {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Fprintf(os.Stderr, "Warning: ANTHROPIC_API_KEY not set (using offline template generator)\n")
		return generator.NewTemplateGenerator()
	}

	costCfg := generator.DefaultCostConfig()
	costs, err := generator.NewCostTracker(costCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to configure cost tracking: %v (continuing without it)\n", err)
		costs = nil
	}
	gen, err := generator.NewAnthropicGenerator(generator.Config{Costs: costs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to configure Anthropic generator: %v (using offline template generator)\n", err)
		return generator.NewTemplateGenerator()
	}
	e.costs = costs
	e.costLimitUSD = costCfg.MaxCostPerHour
	return gen
}

// Start hydrates the confidence store, starts the orchestrator and
// observation sources, and spawns the background loops. Loops run on
// goroutines scoped to ctx; cancelling it stops them, but Stop should
// still be called to shut down cleanly.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.running = true
	e.lastActivity = time.Now()
	e.ingestStopCh = make(chan struct{})
	e.ingestDoneCh = make(chan struct{})
	e.decayStopCh = make(chan struct{})
	e.decayDoneCh = make(chan struct{})
	e.eventCleanupStopCh = make(chan struct{})
	e.eventCleanupDoneCh = make(chan struct{})
	e.retentionStopCh = make(chan struct{})
	e.retentionDoneCh = make(chan struct{})
	e.scheduleStopCh = make(chan struct{})
	e.scheduleDoneCh = make(chan struct{})
	e.mu.Unlock()

	if err := e.patterns.Start(ctx); err != nil {
		e.setRunning(false)
		return fmt.Errorf("starting confidence store: %w", err)
	}
	if err := e.orch.Start(ctx); err != nil {
		if stopErr := e.patterns.Stop(ctx); stopErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop confidence store: %v\n", stopErr)
		}
		e.setRunning(false)
		return fmt.Errorf("starting orchestrator: %w", err)
	}

	if e.watcher != nil {
		if err := e.watcher.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start file watcher: %v (file observations disabled)\n", err)
			e.watcher = nil
		}
	}

	if e.scanGit && e.gitScan == nil {
		scanner, err := ingest.NewGitScanner(ctx, e.projectRoot, e.normalizer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (git scanning disabled)\n", err)
			e.scanGit = false
		} else {
			e.gitScan = scanner
			e.seedGitAnchor(ctx)
		}
	}

	go e.ingestLoop(ctx)
	go e.decayLoop(ctx)
	go e.eventCleanupLoop(ctx)
	go e.retentionLoop(ctx)
	go e.scheduleLoop(ctx)

	fmt.Printf("Engine: started (project=%s, watch=%v, git=%v)\n",
		e.projectID, e.watcher != nil, e.gitScan != nil)

	return nil
}

// Stop shuts the engine down: background loops first, then the
// observation sources, the orchestrator, and finally the confidence
// store. API calls fail as soon as Stop begins.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is not running")
	}
	e.running = false
	e.mu.Unlock()

	close(e.ingestStopCh)
	close(e.decayStopCh)
	close(e.eventCleanupStopCh)
	close(e.retentionStopCh)
	close(e.scheduleStopCh)

	// Wait for all loops concurrently so one slow loop does not stack
	// timeouts on the others. Disabled loops close their done channel
	// immediately, so no per-loop flags are needed here.
	ingestDone := false
	decayDone := false
	eventCleanupDone := false
	retentionDone := false
	scheduleDone := false

	for !ingestDone || !decayDone || !eventCleanupDone || !retentionDone || !scheduleDone {
		select {
		case <-e.ingestDoneCh:
			ingestDone = true
		case <-e.decayDoneCh:
			decayDone = true
		case <-e.eventCleanupDoneCh:
			eventCleanupDone = true
		case <-e.retentionDoneCh:
			retentionDone = true
		case <-e.scheduleDoneCh:
			scheduleDone = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if e.watcher != nil && e.watcher.IsRunning() {
		if err := e.watcher.Stop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop file watcher: %v\n", err)
		}
	}

	if err := e.orch.Stop(ctx); err != nil {
		return fmt.Errorf("stopping orchestrator: %w", err)
	}
	if err := e.patterns.Stop(ctx); err != nil {
		return fmt.Errorf("stopping confidence store: %w", err)
	}

	return nil
}

// IsRunning returns whether the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.running = v
	e.mu.Unlock()
}

// seedGitAnchor positions the git scanner after the newest commit
// observation already on record, so restarts do not re-ingest history.
func (e *Engine) seedGitAnchor(ctx context.Context) {
	source := types.SourceCommit
	obs, err := e.store.ListObservations(ctx, types.ObservationFilter{
		Source:    &source,
		ProjectID: e.projectID,
		Limit:     1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load last commit observation: %v\n", err)
		return
	}
	if len(obs) > 0 && obs[0].Commit != nil {
		e.gitScan.SetLastHash(obs[0].Commit.Hash)
	}
}
