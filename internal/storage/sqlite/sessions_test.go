package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/types"
)

// seedSession creates a planning session with two accepted goals
func seedSession(t *testing.T, store *SQLiteStorage, id string) *types.Session {
	t.Helper()
	now := time.Now()
	session := &types.Session{
		ID:     id,
		State:  types.SessionPlanning,
		Risk:   types.RiskBalanced,
		Budget: 2 * time.Hour,
		Goals: []types.Goal{
			{
				ID:            id + "-goal-1",
				DerivedFrom:   []string{"lang:go"},
				Description:   "Prototype a config hot-reload helper",
				Category:      types.GoalFeaturePrototype,
				Risk:          types.RiskBalanced,
				EstimatedCost: 45 * time.Minute,
				Priority:      0.9,
				Status:        types.GoalAccepted,
				CreatedAt:     now,
			},
			{
				ID:            id + "-goal-2",
				DerivedFrom:   []string{"workflow:tdd"},
				Description:   "Add table-driven tests for the parser",
				Category:      types.GoalTesting,
				Risk:          types.RiskConservative,
				EstimatedCost: 30 * time.Minute,
				Priority:      0.7,
				Status:        types.GoalAccepted,
				CreatedAt:     now,
			},
		},
		StartedAt: now,
	}
	if err := store.CreateSession(context.Background(), session, "test"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "sess-aaaa1111")

	got, err := store.GetSession(ctx, "sess-aaaa1111")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.State != types.SessionPlanning {
		t.Errorf("Expected planning state, got %s", got.State)
	}
	if got.Budget != 2*time.Hour {
		t.Errorf("Expected 2h budget, got %v", got.Budget)
	}
	if len(got.Goals) != 2 {
		t.Fatalf("Expected 2 goals, got %d", len(got.Goals))
	}
	// Goals ordered by priority descending
	if got.Goals[0].ID != "sess-aaaa1111-goal-1" {
		t.Errorf("Expected highest priority goal first, got %s", got.Goals[0].ID)
	}
	if got.Goals[0].EstimatedCost != 45*time.Minute {
		t.Errorf("Expected 45m estimated cost, got %v", got.Goals[0].EstimatedCost)
	}
	if len(got.Goals[0].DerivedFrom) != 1 || got.Goals[0].DerivedFrom[0] != "lang:go" {
		t.Errorf("Expected derived_from [lang:go], got %v", got.Goals[0].DerivedFrom)
	}

	missing, err := store.GetSession(ctx, "sess-nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown session")
	}
}

func TestSessionStateTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "sess-bbbb2222")

	if err := store.UpdateSessionState(ctx, "sess-bbbb2222", types.SessionRunning, "", "test"); err != nil {
		t.Fatalf("planning -> running failed: %v", err)
	}
	if err := store.UpdateSessionState(ctx, "sess-bbbb2222", types.SessionCompleted, "", "test"); err != nil {
		t.Fatalf("running -> completed failed: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-bbbb2222")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.State != types.SessionCompleted {
		t.Errorf("Expected completed, got %s", got.State)
	}
	if got.CompletedAt == nil {
		t.Error("Terminal session should have completed_at set")
	}

	// Terminal state absorbs: no further transitions
	err = store.UpdateSessionState(ctx, "sess-bbbb2222", types.SessionRunning, "", "test")
	if err == nil {
		t.Error("Expected error for completed -> running, got nil")
	}
}

func TestSessionFailureFromPlanningOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "sess-cccc3333")

	if err := store.UpdateSessionState(ctx, "sess-cccc3333", types.SessionFailed, "substrate unreachable", "test"); err != nil {
		t.Fatalf("planning -> failed should be legal: %v", err)
	}

	got, _ := store.GetSession(ctx, "sess-cccc3333")
	if got.Error != "substrate unreachable" {
		t.Errorf("Expected error message persisted, got %q", got.Error)
	}

	// A running session cannot fail, only complete or cancel
	seedSession(t, store, "sess-dddd4444")
	if err := store.UpdateSessionState(ctx, "sess-dddd4444", types.SessionRunning, "", "test"); err != nil {
		t.Fatalf("planning -> running failed: %v", err)
	}
	if err := store.UpdateSessionState(ctx, "sess-dddd4444", types.SessionFailed, "boom", "test"); err == nil {
		t.Error("Expected error for running -> failed, got nil")
	}
}

func TestUpdateSessionStateUnknownSession(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateSessionState(context.Background(), "sess-missing", types.SessionRunning, "", "test")
	if err != types.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-eeee5555")

	run := &types.Run{
		ID:        "run-11112222",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run, "test"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	// Walk the happy path
	for _, state := range []types.RunState{
		types.RunGenerating, types.RunExecuting, types.RunValidating, types.RunSucceeded,
	} {
		if err := store.UpdateRunState(ctx, run.ID, state, nil, "test"); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.State != types.RunSucceeded {
		t.Errorf("Expected succeeded, got %s", got.State)
	}
	if got.CompletedAt == nil {
		t.Error("Terminal run should have completed_at set")
	}

	// Terminal absorbs
	if err := store.UpdateRunState(ctx, run.ID, types.RunExecuting, nil, "test"); err == nil {
		t.Error("Expected error for succeeded -> executing, got nil")
	}
}

func TestRunStateSkipRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-ffff6666")
	run := &types.Run{
		ID:        "run-33334444",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run, "test"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	// pending cannot jump straight to executing
	if err := store.UpdateRunState(ctx, run.ID, types.RunExecuting, nil, "test"); err == nil {
		t.Error("Expected error for pending -> executing, got nil")
	}

	// pending cannot time out (nothing has started)
	if err := store.UpdateRunState(ctx, run.ID, types.RunTimedOut, nil, "test"); err == nil {
		t.Error("Expected error for pending -> timed_out, got nil")
	}
}

func TestRunErrorPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-1111aaaa")
	run := &types.Run{
		ID:        "run-55556666",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run, "test"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.UpdateRunState(ctx, run.ID, types.RunGenerating, nil, "test"); err != nil {
		t.Fatalf("pending -> generating failed: %v", err)
	}

	runErr := types.NewRunError(types.ErrKindGenerationTimeout, types.RunGenerating, "no response after 10m")
	if err := store.UpdateRunState(ctx, run.ID, types.RunTimedOut, runErr, "test"); err != nil {
		t.Fatalf("generating -> timed_out failed: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Error == nil {
		t.Fatal("Expected run error to be persisted")
	}
	if got.Error.Kind != types.ErrKindGenerationTimeout {
		t.Errorf("Expected generation_timeout kind, got %s", got.Error.Kind)
	}
	if got.Error.Detail != "no response after 10m" {
		t.Errorf("Expected detail preserved, got %q", got.Error.Detail)
	}
}

func TestRunMetricsAndArtifact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-2222bbbb")
	run := &types.Run{
		ID:        "run-77778888",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run, "test"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	metrics := types.RunMetrics{
		GenerationMs:    4200,
		ExecutionMs:     1800,
		ExitStatus:      0,
		OutputBytes:     512,
		ValidationScore: 0.85,
		TestsPassed:     3,
	}
	if err := store.UpdateRunMetrics(ctx, run.ID, metrics); err != nil {
		t.Fatalf("UpdateRunMetrics failed: %v", err)
	}
	if err := store.SetRunArtifact(ctx, run.ID, "art-abcd1234"); err != nil {
		t.Fatalf("SetRunArtifact failed: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Metrics.GenerationMs != 4200 {
		t.Errorf("Expected generation_ms 4200, got %d", got.Metrics.GenerationMs)
	}
	if got.Metrics.ValidationScore != 0.85 {
		t.Errorf("Expected validation score 0.85, got %f", got.Metrics.ValidationScore)
	}
	if got.ArtifactRef != "art-abcd1234" {
		t.Errorf("Expected artifact ref art-abcd1234, got %s", got.ArtifactRef)
	}

	if err := store.UpdateRunMetrics(ctx, "run-missing", metrics); err == nil {
		t.Error("Expected error for unknown run, got nil")
	}
}

func TestListRunsAndIncomplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-3333cccc")
	for i, goalID := range []string{session.Goals[0].ID, session.Goals[1].ID} {
		run := &types.Run{
			ID:        types.NewRunID(),
			SessionID: session.ID,
			GoalID:    goalID,
			State:     types.RunPending,
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateRun(ctx, run, "test"); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
		if i == 0 {
			// Drive the first run terminal
			for _, state := range []types.RunState{
				types.RunGenerating, types.RunExecuting, types.RunValidating, types.RunSucceeded,
			} {
				if err := store.UpdateRunState(ctx, run.ID, state, nil, "test"); err != nil {
					t.Fatalf("transition failed: %v", err)
				}
			}
		}
	}

	runs, err := store.ListRunsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListRunsBySession failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	incomplete, err := store.GetIncompleteRuns(ctx)
	if err != nil {
		t.Fatalf("GetIncompleteRuns failed: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("Expected 1 incomplete run, got %d", len(incomplete))
	}
	if incomplete[0].State != types.RunPending {
		t.Errorf("Expected the pending run, got %s", incomplete[0].State)
	}
}

func TestRunTransitionsEmitEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-4444dddd")
	run := &types.Run{
		ID:        "run-9999aaaa",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run, "orchestrator"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.UpdateRunState(ctx, run.ID, types.RunGenerating, nil, "orchestrator"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	evts, err := store.GetEvents(ctx, events.EventFilter{
		RunID: run.ID,
		Type:  events.EventTypeRunStateChange,
	})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	// Creation event plus one transition
	if len(evts) != 2 {
		t.Fatalf("Expected 2 run events, got %d", len(evts))
	}

	sessionEvents, err := store.GetEventsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetEventsBySession failed: %v", err)
	}
	// session_planned + run creation + transition
	if len(sessionEvents) != 3 {
		t.Errorf("Expected 3 session events, got %d", len(sessionEvents))
	}
}

func TestGetCategoryDurations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := seedSession(t, store, "sess-5555eeee")
	run := &types.Run{
		ID:        "run-bbbbcccc",
		SessionID: session.ID,
		GoalID:    session.Goals[0].ID,
		State:     types.RunPending,
		StartedAt: time.Now().Add(-time.Minute),
	}
	if err := store.CreateRun(ctx, run, "test"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	for _, state := range []types.RunState{
		types.RunGenerating, types.RunExecuting, types.RunValidating, types.RunSucceeded,
	} {
		if err := store.UpdateRunState(ctx, run.ID, state, nil, "test"); err != nil {
			t.Fatalf("transition failed: %v", err)
		}
	}

	durations, err := store.GetCategoryDurations(ctx)
	if err != nil {
		t.Fatalf("GetCategoryDurations failed: %v", err)
	}
	d, ok := durations[types.GoalFeaturePrototype]
	if !ok {
		t.Fatal("Expected a duration for feature_prototype")
	}
	if d < 30*time.Second || d > 5*time.Minute {
		t.Errorf("Expected duration around a minute, got %v", d)
	}
}

func TestGetActiveSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "sess-6666ffff")
	seedSession(t, store, "sess-77770000")
	if err := store.UpdateSessionState(ctx, "sess-77770000", types.SessionCancelled, "user abort", "test"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	active, err := store.GetActiveSessions(ctx)
	if err != nil {
		t.Fatalf("GetActiveSessions failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active session, got %d", len(active))
	}
	if active[0].ID != "sess-6666ffff" {
		t.Errorf("Expected sess-6666ffff active, got %s", active[0].ID)
	}
}
