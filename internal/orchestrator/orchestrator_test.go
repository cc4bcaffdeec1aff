package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/generator"
	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/storage/sqlite"
	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
	"github.com/sparkengine/spark/internal/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator returns a minimal runnable artifact unless a test
// installs its own behavior before the session starts.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	generate func(ctx context.Context, req generator.GenerationRequest) (*types.Artifact, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req generator.GenerationRequest) (*types.Artifact, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.generate != nil {
		return g.generate(ctx, req)
	}
	return probeArtifact(req.Goal.ID), nil
}

func (g *fakeGenerator) Available(ctx context.Context) error { return nil }

type fakeSubstrate struct {
	mu      sync.Mutex
	execs   int
	pingErr error
	execute func(ctx context.Context, sb *sandbox.Sandbox, artifact *types.Artifact, constraints substrate.Constraints) (*substrate.ExecResult, error)
}

func (s *fakeSubstrate) Execute(ctx context.Context, sb *sandbox.Sandbox, artifact *types.Artifact, constraints substrate.Constraints) (*substrate.ExecResult, error) {
	s.mu.Lock()
	s.execs++
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, sb, artifact, constraints)
	}
	return &substrate.ExecResult{ExitStatus: 0, Output: "ok\n", Duration: 5 * time.Millisecond}, nil
}

func (s *fakeSubstrate) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeSubstrate) Name() string { return "fake" }

func (s *fakeSubstrate) execCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

type fakeValidator struct {
	validate func(ctx context.Context, artifact *types.Artifact, exec *substrate.ExecResult) (*validator.Report, error)
}

func (v *fakeValidator) Validate(ctx context.Context, artifact *types.Artifact, exec *substrate.ExecResult) (*validator.Report, error) {
	if v.validate != nil {
		return v.validate(ctx, artifact, exec)
	}
	return &validator.Report{Score: 0.9, Passed: true, SafetyLevel: validator.SafetySafe}, nil
}

type harness struct {
	o         *Orchestrator
	backing   *sqlite.SQLiteStorage
	gen       *fakeGenerator
	sub       *fakeSubstrate
	val       *fakeValidator
	sandboxes sandbox.Manager
}

func newHarness(t *testing.T, mutate func(cfg *Config)) *harness {
	t.Helper()

	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	mgr, err := sandbox.NewManager(sandbox.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create sandbox manager: %v", err)
	}

	h := &harness{
		backing:   backing,
		gen:       &fakeGenerator{},
		sub:       &fakeSubstrate{},
		val:       &fakeValidator{},
		sandboxes: mgr,
	}

	cfg := DefaultConfig()
	cfg.Store = backing
	cfg.Generator = h.gen
	cfg.Substrate = h.sub
	cfg.Validator = h.val
	cfg.Sandboxes = mgr
	cfg.Curator = curator.New(config.DefaultConfig().Curation, backing)
	cfg.Exploration.GenerationTimeout = 2 * time.Second
	cfg.Exploration.ExecutionTimeout = 2 * time.Second
	cfg.Exploration.ValidationTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if o.IsRunning() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := o.Stop(ctx); err != nil {
				t.Errorf("Stop failed: %v", err)
			}
		}
	})

	h.o = o
	return h
}

func probeGoal(id string, category types.GoalCategory) types.Goal {
	return types.Goal{
		ID:            id,
		DerivedFrom:   []string{"lang:go"},
		Description:   "Probe goal " + id,
		Category:      category,
		Risk:          types.RiskBalanced,
		EstimatedCost: 30 * time.Minute,
		Status:        types.GoalAccepted,
		CreatedAt:     time.Now(),
	}
}

func probeArtifact(goalID string) *types.Artifact {
	return &types.Artifact{
		ID:         types.NewArtifactID(),
		GoalID:     goalID,
		Language:   "go",
		EntryPoint: "main.go",
		Files: []types.ArtifactFile{
			{Path: "main.go", Content: "package main\n\nfunc main() {}\n"},
		},
		Summary:   "Probe artifact for " + goalID,
		CreatedAt: time.Now(),
	}
}

func plannedSession(t *testing.T, h *harness, budget time.Duration, goals ...types.Goal) *types.Session {
	t.Helper()
	session := &types.Session{
		ID:        types.NewSessionID(),
		Goals:     goals,
		Budget:    budget,
		State:     types.SessionPlanning,
		Risk:      types.RiskBalanced,
		StartedAt: time.Now(),
	}
	if err := h.backing.CreateSession(context.Background(), session, "test"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func waitSession(t *testing.T, h *harness, sessionID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.o.Wait(ctx, sessionID); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func eventCounts(t *testing.T, h *harness) map[events.EventType]int {
	t.Helper()
	recent, err := h.backing.GetRecentEvents(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	counts := map[events.EventType]int{}
	for _, e := range recent {
		counts[e.Type]++
	}
	return counts
}

func TestNewValidation(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	mgr, err := sandbox.NewManager(sandbox.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create sandbox manager: %v", err)
	}

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Store = backing
		cfg.Generator = &fakeGenerator{}
		cfg.Substrate = &fakeSubstrate{}
		cfg.Validator = &fakeValidator{}
		cfg.Sandboxes = mgr
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing storage", func(c *Config) { c.Store = nil }, "storage"},
		{"missing generator", func(c *Config) { c.Generator = nil }, "generator"},
		{"missing substrate", func(c *Config) { c.Substrate = nil }, "substrate"},
		{"missing validator", func(c *Config) { c.Validator = nil }, "validator"},
		{"missing sandbox manager", func(c *Config) { c.Sandboxes = nil }, "sandbox"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	// Curator is optional; the orchestrator runs without curation.
	o, err := New(base())
	if err != nil {
		t.Fatalf("New without curator failed: %v", err)
	}
	if o.IsRunning() {
		t.Error("Expected fresh orchestrator not running")
	}
}

func TestNewDefaultsScalars(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	mgr, err := sandbox.NewManager(sandbox.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create sandbox manager: %v", err)
	}

	cfg := &Config{
		Store:     backing,
		Generator: &fakeGenerator{},
		Substrate: &fakeSubstrate{},
		Validator: &fakeValidator{},
		Sandboxes: mgr,
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	defaults := config.DefaultConfig().Exploration
	if o.config.Exploration.MaxParallelRuns != defaults.MaxParallelRuns {
		t.Errorf("Expected default parallelism %d, got %d",
			defaults.MaxParallelRuns, o.config.Exploration.MaxParallelRuns)
	}
	if o.config.Exploration.GenerationTimeout != defaults.GenerationTimeout {
		t.Errorf("Expected default generation timeout %s, got %s",
			defaults.GenerationTimeout, o.config.Exploration.GenerationTimeout)
	}
	if o.config.SweepInterval != 10*time.Minute {
		t.Errorf("Expected default sweep interval, got %s", o.config.SweepInterval)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)

	if !h.o.IsRunning() {
		t.Error("Expected orchestrator running after Start")
	}
	if err := h.o.Start(context.Background()); err == nil {
		t.Error("Expected second Start to fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.o.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.o.IsRunning() {
		t.Error("Expected orchestrator stopped")
	}
	if err := h.o.Stop(ctx); err == nil {
		t.Error("Expected second Stop to fail")
	}
}

func TestStartSessionGuards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.o.StartSession(ctx, nil); err == nil {
		t.Error("Expected error for nil session")
	}

	// Sessions must arrive in planning state.
	running := &types.Session{
		ID:        types.NewSessionID(),
		Goals:     []types.Goal{probeGoal("goal-1", types.GoalTooling)},
		Budget:    time.Hour,
		State:     types.SessionRunning,
		Risk:      types.RiskBalanced,
		StartedAt: time.Now(),
	}
	err := h.o.StartSession(ctx, running)
	if err == nil || !strings.Contains(err.Error(), string(types.SessionPlanning)) {
		t.Errorf("Expected planning-state requirement, got %v", err)
	}
}

func TestStartSessionRequiresRunning(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	mgr, err := sandbox.NewManager(sandbox.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create sandbox manager: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Store = backing
	cfg.Generator = &fakeGenerator{}
	cfg.Substrate = &fakeSubstrate{}
	cfg.Validator = &fakeValidator{}
	cfg.Sandboxes = mgr
	cfg.Curator = curator.New(config.DefaultConfig().Curation, backing)

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	session := &types.Session{
		ID:        types.NewSessionID(),
		Goals:     []types.Goal{probeGoal("goal-1", types.GoalTooling)},
		Budget:    time.Hour,
		State:     types.SessionPlanning,
		Risk:      types.RiskBalanced,
		StartedAt: time.Now(),
	}
	err = o.StartSession(context.Background(), session)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("Expected not-running error, got %v", err)
	}
}

func TestStartSessionPreflightFails(t *testing.T) {
	h := newHarness(t, nil)
	h.sub.pingErr = fmt.Errorf("%w: substrate root missing", types.ErrSubstrateUnreachable)
	ctx := context.Background()

	session := plannedSession(t, h, time.Hour, probeGoal("goal-1", types.GoalTooling))
	err := h.o.StartSession(ctx, session)
	if err == nil {
		t.Fatal("Expected pre-flight failure")
	}
	if !errors.Is(err, types.ErrSubstrateUnreachable) {
		t.Errorf("Expected ErrSubstrateUnreachable, got %v", err)
	}

	stored, err := h.backing.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored.State != types.SessionFailed {
		t.Errorf("Expected failed session, got %s", stored.State)
	}

	runs, err := h.backing.ListRunsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListRunsBySession failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no runs created, got %d", len(runs))
	}

	counts := eventCounts(t, h)
	if counts[events.EventTypeSubstrateCheckFailed] != 1 {
		t.Errorf("Expected 1 substrate check event, got %d", counts[events.EventTypeSubstrateCheckFailed])
	}
	if h.o.ActiveSessionCount() != 0 {
		t.Error("Expected no active sessions after failed pre-flight")
	}
}

func TestWaitUnknownSession(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.o.Wait(ctx, "sess-ghost"); err != nil {
		t.Errorf("Expected immediate nil for unknown session, got %v", err)
	}
}

func TestSweepDestroysStaleSandboxes(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.SweepInterval = 30 * time.Millisecond
		cfg.SandboxMaxAge = time.Millisecond
	})

	if _, err := h.sandboxes.Create(context.Background(), "stale-run"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.sandboxes.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.sandboxes.ActiveCount(); got != 0 {
		t.Errorf("Expected sweep to destroy the stale sandbox, %d still tracked", got)
	}
}
