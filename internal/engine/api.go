package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/goals"
	"github.com/sparkengine/spark/internal/ingest"
	"github.com/sparkengine/spark/internal/types"
)

// The API surface below is what the CLI and daemon call. Every method
// requires a running engine; cold reads against storage belong to the
// storage layer directly.

func (e *Engine) requireRunning() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		return fmt.Errorf("engine is not running")
	}
	return nil
}

// ListPatterns returns learned patterns matching filter, ordered by
// confidence descending.
func (e *Engine) ListPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.Pattern, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	return e.patterns.Patterns(filter), nil
}

// GetConfidenceSummary reports per-category readiness against the
// configured exploration threshold.
func (e *Engine) GetConfidenceSummary(ctx context.Context) (*confidence.Summary, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	return e.patterns.Summary(e.cfg.Exploration.ReadyThreshold), nil
}

// PlanSession proposes exploration goals for the given budget and risk
// preference without persisting anything. A zero budget means the
// configured default; an empty risk means balanced.
func (e *Engine) PlanSession(ctx context.Context, budget time.Duration, risk types.RiskLevel) ([]types.Goal, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = e.cfg.Exploration.DefaultBudget
	}
	if risk == "" {
		risk = types.RiskBalanced
	}
	if !risk.IsValid() {
		return nil, fmt.Errorf("invalid risk level %q", risk)
	}

	patterns := e.patterns.Patterns(types.PatternFilter{})

	// Both context inputs are optional; generation degrades gracefully
	// without them.
	profile, err := e.store.GetProjectProfile(ctx, e.projectID)
	if err != nil {
		profile = nil
	}
	history, err := e.store.GetCategoryDurations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load run history: %v\n", err)
		history = nil
	}

	return goals.Generate(e.cfg.Exploration, patterns, profile, history, budget, risk), nil
}

// StartSession accepts the proposed goals, persists the session, and
// hands it to the orchestrator. Returns the new session ID.
func (e *Engine) StartSession(ctx context.Context, proposed []types.Goal, budget time.Duration, risk types.RiskLevel) (string, error) {
	return e.startSession(ctx, proposed, budget, risk, actorName)
}

func (e *Engine) startSession(ctx context.Context, proposed []types.Goal, budget time.Duration, risk types.RiskLevel, actor string) (string, error) {
	if err := e.requireRunning(); err != nil {
		return "", err
	}
	if len(proposed) == 0 {
		return "", fmt.Errorf("at least one goal is required")
	}
	if budget <= 0 {
		budget = e.cfg.Exploration.DefaultBudget
	}
	if risk == "" {
		risk = types.RiskBalanced
	}
	if !risk.IsValid() {
		return "", fmt.Errorf("invalid risk level %q", risk)
	}

	now := time.Now()
	accepted := make([]types.Goal, len(proposed))
	for i, g := range proposed {
		if g.ID == "" {
			g.ID = types.NewGoalID()
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		g.Status = types.GoalAccepted
		accepted[i] = g
	}

	session := &types.Session{
		ID:        types.NewSessionID(),
		Goals:     accepted,
		Budget:    budget,
		State:     types.SessionPlanning,
		Risk:      risk,
		StartedAt: now,
	}
	if err := session.Validate(); err != nil {
		return "", fmt.Errorf("invalid session: %w", err)
	}

	// CreateSession emits the session_planned event in the same
	// transaction as the insert.
	if err := e.store.CreateSession(ctx, session, actor); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	if err := e.orch.StartSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to start session %s: %w", session.ID, err)
	}
	return session.ID, nil
}

// SessionStatus bundles a session with its runs and any discoveries
// curated from them.
type SessionStatus struct {
	Session     *types.Session     `json:"session"`
	Runs        []*types.Run       `json:"runs"`
	Discoveries []*types.Discovery `json:"discoveries,omitempty"`
}

// GetSessionStatus returns the current state of a session.
func (e *Engine) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	runs, err := e.store.ListRunsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	discoveries, err := e.store.ListDiscoveries(ctx, types.DiscoveryFilter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to load discoveries: %w", err)
	}
	return &SessionStatus{Session: session, Runs: runs, Discoveries: discoveries}, nil
}

// WaitSession blocks until the session reaches a terminal state or ctx
// expires.
func (e *Engine) WaitSession(ctx context.Context, sessionID string) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	return e.orch.Wait(ctx, sessionID)
}

// AbortSession cancels a session and every run still in flight.
func (e *Engine) AbortSession(sessionID string) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	return e.orch.AbortSession(sessionID)
}

// ListDiscoveries returns curated discoveries matching filter.
func (e *Engine) ListDiscoveries(ctx context.Context, filter types.DiscoveryFilter) ([]*types.Discovery, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	return e.store.ListDiscoveries(ctx, filter)
}

// RecordFeedback attaches a 1-5 rating to a discovery and folds it
// into the discovery's value score.
func (e *Engine) RecordFeedback(ctx context.Context, discoveryID string, rating int, note string) (*types.Feedback, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	return e.curator.RecordFeedback(ctx, discoveryID, rating, note)
}

// ObserveTestRun ingests a test run reported by an external harness.
func (e *Engine) ObserveTestRun(ctx context.Context, framework string, passed, failed, skipped int, duration time.Duration) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	obs, err := e.testRuns.Report(framework, passed, failed, skipped, duration)
	if err != nil {
		return fmt.Errorf("failed to normalize test run: %w", err)
	}
	return e.ingestNow(ctx, obs)
}

// ObserveTestOutput parses raw `go test` output and ingests the
// resulting test run observation.
func (e *Engine) ObserveTestOutput(ctx context.Context, output string) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	obs, err := e.testRuns.ReportOutput(output)
	if err != nil {
		return fmt.Errorf("failed to parse test output: %w", err)
	}
	return e.ingestNow(ctx, obs)
}

// ScanProject walks the project tree, refreshes the stored project
// profile, and returns it.
func (e *Engine) ScanProject(ctx context.Context) (*types.ProjectProfile, error) {
	if err := e.requireRunning(); err != nil {
		return nil, err
	}
	profile, err := ingest.NewProjectScanner(e.projectRoot, e.projectID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("project scan failed: %w", err)
	}
	if err := e.store.SaveProjectProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to persist project profile: %w", err)
	}
	return profile, nil
}

// ScanCommits runs one git poll immediately and returns how many
// commit observations it ingested.
func (e *Engine) ScanCommits(ctx context.Context) (int, error) {
	if err := e.requireRunning(); err != nil {
		return 0, err
	}
	if e.gitScan == nil {
		return 0, fmt.Errorf("git scanning is not available")
	}
	obs, err := e.gitScan.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("git scan failed: %w", err)
	}
	for _, o := range obs {
		e.processObservation(ctx, o)
	}
	return len(obs), nil
}
