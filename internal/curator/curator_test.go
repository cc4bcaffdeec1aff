package curator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/storage/sqlite"
	"github.com/sparkengine/spark/internal/types"
)

// curateBase is the frozen clock for curation tests. Runs complete
// minutes before it, so the recency component is always 1.0.
var curateBase = time.Date(2025, 7, 1, 22, 0, 0, 0, time.UTC)

func newTestCurator(t *testing.T) (*Curator, *sqlite.SQLiteStorage) {
	t.Helper()
	return newTestCuratorWith(t, config.DefaultConfig().Curation)
}

func newTestCuratorWith(t *testing.T, cfg config.CurationConfig) (*Curator, *sqlite.SQLiteStorage) {
	t.Helper()

	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	c := New(cfg, backing)
	c.now = func() time.Time { return curateBase }
	return c, backing
}

func seedPatterns(t *testing.T, backing *sqlite.SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	patterns := []*types.Pattern{
		{
			Key:         "lang:go",
			Category:    types.CategoryLanguage,
			Confidence:  0.9,
			SampleCount: 20,
			FirstSeen:   curateBase.Add(-30 * 24 * time.Hour),
			LastSeen:    curateBase.Add(-time.Hour),
		},
		{
			Key:         "style:fast-feedback",
			Category:    types.CategoryStyle,
			Confidence:  0.6,
			SampleCount: 8,
			FirstSeen:   curateBase.Add(-10 * 24 * time.Hour),
			LastSeen:    curateBase.Add(-2 * time.Hour),
		},
	}
	for _, p := range patterns {
		if err := backing.UpsertPattern(ctx, p); err != nil {
			t.Fatalf("UpsertPattern failed: %v", err)
		}
	}
}

func testGoal(id string, category types.GoalCategory, derived []string, description string) types.Goal {
	return types.Goal{
		ID:            id,
		DerivedFrom:   derived,
		Description:   description,
		Category:      category,
		Risk:          types.RiskBalanced,
		EstimatedCost: 30 * time.Minute,
		Status:        types.GoalAccepted,
		CreatedAt:     curateBase.Add(-2 * time.Hour),
	}
}

func testSession(id string, goals ...types.Goal) *types.Session {
	return &types.Session{
		ID:        id,
		Goals:     goals,
		Budget:    2 * time.Hour,
		State:     types.SessionCompleted,
		Risk:      types.RiskBalanced,
		StartedAt: curateBase.Add(-time.Hour),
	}
}

func seedArtifact(t *testing.T, backing *sqlite.SQLiteStorage, id, goalID string, size int) {
	t.Helper()
	artifact := &types.Artifact{
		ID:         id,
		GoalID:     goalID,
		Language:   "go",
		EntryPoint: "main.go",
		Files: []types.ArtifactFile{
			{Path: "main.go", Content: strings.Repeat("x", size)},
		},
		Summary: "Small focused prototype",
	}
	if err := backing.SaveArtifact(context.Background(), artifact); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
}

func succeededRun(id, sessionID, goalID, artifactID string, score float64, passed, failed int, completed time.Time) *types.Run {
	done := completed
	return &types.Run{
		ID:          id,
		SessionID:   sessionID,
		GoalID:      goalID,
		State:       types.RunSucceeded,
		ArtifactRef: artifactID,
		Metrics: types.RunMetrics{
			ValidationScore: score,
			TestsPassed:     passed,
			TestsFailed:     failed,
		},
		StartedAt:   completed.Add(-5 * time.Minute),
		CompletedAt: &done,
	}
}

func TestCurateOrdersAndFeatures(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()
	seedPatterns(t, backing)

	goalA := testGoal("goal-a", types.GoalTooling, []string{"lang:go", "style:fast-feedback"},
		"Build a file-watcher helper that batches change events for the test runner")
	goalB := testGoal("goal-b", types.GoalTooling, []string{"lang:go"},
		"Prototype a second watcher helper variant")
	goalC := testGoal("goal-c", types.GoalDocumentation, []string{"style:fast-feedback"},
		"Draft usage notes for the watcher helper")
	session := testSession("sess-cur-1", goalA, goalB, goalC)

	seedArtifact(t, backing, "art-a", "goal-a", 600)
	seedArtifact(t, backing, "art-b", "goal-b", 650)
	seedArtifact(t, backing, "art-c", "goal-c", 700)

	failed := &types.Run{
		ID:        "run-x",
		SessionID: session.ID,
		GoalID:    "goal-b",
		State:     types.RunFailed,
		StartedAt: curateBase.Add(-time.Hour),
	}
	runs := []*types.Run{
		succeededRun("run-a", session.ID, "goal-a", "art-a", 1.0, 3, 0, curateBase.Add(-30*time.Minute)),
		succeededRun("run-b", session.ID, "goal-b", "art-b", 0.7, 0, 0, curateBase.Add(-20*time.Minute)),
		succeededRun("run-c", session.ID, "goal-c", "art-c", 0.8, 0, 0, curateBase.Add(-10*time.Minute)),
		failed,
	}

	discoveries, err := c.Curate(ctx, session, runs)
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(discoveries) != 3 {
		t.Fatalf("Expected 3 discoveries, got %d", len(discoveries))
	}

	// Value order: the strong tooling run first, then documentation,
	// then the deduplicated tooling variant.
	wantRuns := []string{"run-a", "run-c", "run-b"}
	for i, want := range wantRuns {
		if discoveries[i].RunID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, discoveries[i].RunID)
		}
	}
	for i := 1; i < len(discoveries); i++ {
		if discoveries[i].ValueScore > discoveries[i-1].ValueScore {
			t.Errorf("Discoveries out of value order at %d", i)
		}
	}

	first := discoveries[0]
	if !first.Featured {
		t.Error("Expected group opener featured")
	}
	if first.Title != goalA.Description {
		t.Errorf("Expected title %q, got %q", goalA.Description, first.Title)
	}
	if first.Description != "Small focused prototype" {
		t.Errorf("Unexpected description %q", first.Description)
	}
	if first.Category != types.GoalTooling {
		t.Errorf("Expected tooling category, got %s", first.Category)
	}
	if first.Difficulty != types.DifficultyTrivial {
		t.Errorf("Expected trivial difficulty, got %s", first.Difficulty)
	}
	if len(first.DerivedFrom) != 2 {
		t.Errorf("Expected 2 derived patterns, got %d", len(first.DerivedFrom))
	}
	if math.Abs(first.NoveltyScore-1.0) > 1e-9 {
		t.Errorf("Expected fresh novelty 1.0, got %f", first.NoveltyScore)
	}

	dup := discoveries[2]
	if dup.Featured {
		t.Error("Expected deduplicated variant subordinate")
	}
	if dup.DedupGroupID != first.DedupGroupID {
		t.Errorf("Expected shared dedup group, got %s vs %s", dup.DedupGroupID, first.DedupGroupID)
	}
	// Joined group (0.4) minus one earlier tooling discovery (0.15).
	if math.Abs(dup.NoveltyScore-0.25) > 1e-9 {
		t.Errorf("Expected novelty 0.25 for duplicate, got %f", dup.NoveltyScore)
	}

	doc := discoveries[1]
	if !doc.Featured {
		t.Error("Expected documentation discovery featured in its own group")
	}
	if doc.DedupGroupID == first.DedupGroupID {
		t.Error("Expected documentation discovery in a separate group")
	}

	stored, err := backing.ListDiscoveries(ctx, types.DiscoveryFilter{})
	if err != nil {
		t.Fatalf("ListDiscoveries failed: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("Expected 3 persisted discoveries, got %d", len(stored))
	}

	recent, err := backing.GetRecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	counts := map[events.EventType]int{}
	for _, e := range recent {
		counts[e.Type]++
	}
	if counts[events.EventTypeDiscoveryCurated] != 3 {
		t.Errorf("Expected 3 curated events, got %d", counts[events.EventTypeDiscoveryCurated])
	}
	if counts[events.EventTypeDiscoveryDeduplicated] != 1 {
		t.Errorf("Expected 1 dedup event, got %d", counts[events.EventTypeDiscoveryDeduplicated])
	}
}

func TestCurateSkipsNonSucceeded(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()

	goal := testGoal("goal-a", types.GoalTesting, []string{"lang:go"}, "Add a regression test for the parser")
	session := testSession("sess-cur-2", goal)

	done := curateBase.Add(-10 * time.Minute)
	runs := []*types.Run{
		{ID: "run-1", SessionID: session.ID, GoalID: "goal-a", State: types.RunFailed, CompletedAt: &done},
		{ID: "run-2", SessionID: session.ID, GoalID: "goal-a", State: types.RunTimedOut, CompletedAt: &done},
		{ID: "run-3", SessionID: session.ID, GoalID: "goal-a", State: types.RunCancelled, CompletedAt: &done},
	}

	discoveries, err := c.Curate(ctx, session, runs)
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(discoveries) != 0 {
		t.Errorf("Expected no discoveries, got %d", len(discoveries))
	}

	stored, err := backing.ListDiscoveries(ctx, types.DiscoveryFilter{})
	if err != nil {
		t.Fatalf("ListDiscoveries failed: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("Expected nothing persisted, got %d", len(stored))
	}
}

func TestCurateSkipsRunsWithoutArtifact(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()
	seedPatterns(t, backing)

	goalA := testGoal("goal-a", types.GoalTooling, []string{"lang:go"}, "Watcher helper")
	goalB := testGoal("goal-b", types.GoalTesting, []string{"lang:go"}, "Parser test harness")
	session := testSession("sess-cur-3", goalA, goalB)
	seedArtifact(t, backing, "art-a", "goal-a", 600)

	runs := []*types.Run{
		succeededRun("run-a", session.ID, "goal-a", "art-a", 0.9, 0, 0, curateBase.Add(-15*time.Minute)),
		succeededRun("run-b", session.ID, "goal-b", "", 0.9, 0, 0, curateBase.Add(-10*time.Minute)),
		succeededRun("run-c", session.ID, "goal-b", "art-ghost", 0.9, 0, 0, curateBase.Add(-5*time.Minute)),
	}

	discoveries, err := c.Curate(ctx, session, runs)
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(discoveries) != 1 {
		t.Fatalf("Expected 1 discovery, got %d", len(discoveries))
	}
	if discoveries[0].RunID != "run-a" {
		t.Errorf("Expected run-a curated, got %s", discoveries[0].RunID)
	}
}

func TestCurateUnknownGoal(t *testing.T) {
	c, _ := newTestCurator(t)

	goal := testGoal("goal-a", types.GoalTooling, []string{"lang:go"}, "Watcher helper")
	session := testSession("sess-cur-4", goal)
	run := succeededRun("run-a", session.ID, "goal-ghost", "art-a", 0.9, 0, 0, curateBase.Add(-5*time.Minute))

	_, err := c.Curate(context.Background(), session, []*types.Run{run})
	if err == nil {
		t.Fatal("Expected error for run referencing an unknown goal")
	}
	if !strings.Contains(err.Error(), "goal-ghost") {
		t.Errorf("Expected goal ID in error, got %v", err)
	}
}

func TestCurateRequiresSession(t *testing.T) {
	c, _ := newTestCurator(t)
	if _, err := c.Curate(context.Background(), nil, nil); err == nil {
		t.Fatal("Expected error for nil session")
	}
}

func TestCurateHonorsMaxPerSession(t *testing.T) {
	cfg := config.DefaultConfig().Curation
	cfg.MaxPerSession = 1
	c, backing := newTestCuratorWith(t, cfg)
	ctx := context.Background()
	seedPatterns(t, backing)

	goalA := testGoal("goal-a", types.GoalTooling, []string{"lang:go"}, "Watcher helper")
	goalB := testGoal("goal-b", types.GoalTesting, []string{"style:fast-feedback"}, "Parser test harness")
	session := testSession("sess-cur-5", goalA, goalB)
	seedArtifact(t, backing, "art-a", "goal-a", 600)
	seedArtifact(t, backing, "art-b", "goal-b", 600)

	runs := []*types.Run{
		succeededRun("run-a", session.ID, "goal-a", "art-a", 1.0, 2, 0, curateBase.Add(-10*time.Minute)),
		succeededRun("run-b", session.ID, "goal-b", "art-b", 0.6, 0, 0, curateBase.Add(-5*time.Minute)),
	}

	discoveries, err := c.Curate(ctx, session, runs)
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(discoveries) != 1 {
		t.Fatalf("Expected 1 discovery under the cap, got %d", len(discoveries))
	}
	if discoveries[0].RunID != "run-a" {
		t.Errorf("Expected the stronger run to survive the cap, got %s", discoveries[0].RunID)
	}

	stored, err := backing.ListDiscoveries(ctx, types.DiscoveryFilter{})
	if err != nil {
		t.Fatalf("ListDiscoveries failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Expected only the capped discovery persisted, got %d", len(stored))
	}
}

func TestCurateMinValueScore(t *testing.T) {
	cfg := config.DefaultConfig().Curation
	cfg.MinValueScore = 0.99
	c, backing := newTestCuratorWith(t, cfg)
	ctx := context.Background()
	seedPatterns(t, backing)

	goal := testGoal("goal-a", types.GoalTooling, []string{"lang:go"}, "Watcher helper")
	session := testSession("sess-cur-6", goal)
	seedArtifact(t, backing, "art-a", "goal-a", 600)

	runs := []*types.Run{
		succeededRun("run-a", session.ID, "goal-a", "art-a", 1.0, 3, 0, curateBase.Add(-10*time.Minute)),
	}

	discoveries, err := c.Curate(ctx, session, runs)
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(discoveries) != 0 {
		t.Errorf("Expected value floor to drop everything, got %d", len(discoveries))
	}
}

func TestCurateDemotesAcrossSessions(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()
	seedPatterns(t, backing)

	goal1 := testGoal("goal-1", types.GoalTooling, []string{"lang:go"}, "Watcher helper")
	session1 := testSession("sess-cur-7a", goal1)
	seedArtifact(t, backing, "art-1", "goal-1", 600)
	first, err := c.Curate(ctx, session1, []*types.Run{
		succeededRun("run-1", session1.ID, "goal-1", "art-1", 0.5, 0, 0, curateBase.Add(-40*time.Minute)),
	})
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(first) != 1 || !first[0].Featured {
		t.Fatalf("Expected one featured discovery from the first session")
	}

	goal2 := testGoal("goal-2", types.GoalTooling, []string{"lang:go"}, "Watcher helper, second pass")
	session2 := testSession("sess-cur-7b", goal2)
	seedArtifact(t, backing, "art-2", "goal-2", 650)
	second, err := c.Curate(ctx, session2, []*types.Run{
		succeededRun("run-2", session2.ID, "goal-2", "art-2", 1.0, 3, 0, curateBase.Add(-5*time.Minute)),
	})
	if err != nil {
		t.Fatalf("Curate failed: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("Expected one discovery from the second session, got %d", len(second))
	}

	if second[0].DedupGroupID != first[0].DedupGroupID {
		t.Errorf("Expected cross-session grouping, got %s vs %s",
			second[0].DedupGroupID, first[0].DedupGroupID)
	}
	if !second[0].Featured {
		t.Error("Expected the stronger newcomer featured")
	}

	demoted, err := backing.GetDiscovery(ctx, first[0].ID)
	if err != nil {
		t.Fatalf("GetDiscovery failed: %v", err)
	}
	if demoted == nil {
		t.Fatal("Expected demoted discovery still present")
	}
	if demoted.Featured {
		t.Error("Expected previous best demoted to subordinate")
	}
}

func TestRecordFeedback(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()

	discovery := &types.Discovery{
		ID:           "disc-feed1",
		RunID:        "run-feed1",
		SessionID:    "sess-feed1",
		Title:        "Watcher helper",
		Category:     types.GoalTooling,
		DerivedFrom:  []string{"lang:go"},
		ValueScore:   0.7,
		NoveltyScore: 0.8,
		Difficulty:   types.DifficultyTrivial,
		DedupGroupID: "group-feed1",
		Featured:     true,
		CreatedAt:    curateBase,
	}
	if err := backing.SaveDiscovery(ctx, discovery); err != nil {
		t.Fatalf("SaveDiscovery failed: %v", err)
	}

	feedback, err := c.RecordFeedback(ctx, "disc-feed1", 4, "kept it")
	if err != nil {
		t.Fatalf("RecordFeedback failed: %v", err)
	}
	if feedback.Rating != 4 {
		t.Errorf("Expected rating 4, got %d", feedback.Rating)
	}
	if !feedback.RecordedAt.Equal(curateBase) {
		t.Errorf("Expected curator clock on feedback, got %v", feedback.RecordedAt)
	}

	got, err := backing.GetDiscovery(ctx, "disc-feed1")
	if err != nil {
		t.Fatalf("GetDiscovery failed: %v", err)
	}
	if got.UserFeedback == nil || got.UserFeedback.Rating != 4 {
		t.Errorf("Expected persisted rating 4, got %+v", got.UserFeedback)
	}

	recent, err := backing.GetRecentEvents(ctx, 5)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	found := false
	for _, e := range recent {
		if e.Type == events.EventTypeFeedbackRecorded {
			found = true
		}
	}
	if !found {
		t.Error("Expected a feedback event recorded")
	}

	if _, err := c.RecordFeedback(ctx, "disc-ghost", 3, ""); !errors.Is(err, types.ErrDiscoveryNotFound) {
		t.Errorf("Expected ErrDiscoveryNotFound, got %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	cfg := config.DefaultConfig().Curation
	cfg.DiscoveryRetentionDays = 30
	c, backing := newTestCuratorWith(t, cfg)
	ctx := context.Background()

	aged := curateBase.Add(-40 * 24 * time.Hour)
	stale := &types.Discovery{
		ID:           "disc-old1",
		RunID:        "run-old1",
		SessionID:    "sess-old1",
		Title:        "Stale subordinate",
		Category:     types.GoalTooling,
		ValueScore:   0.4,
		NoveltyScore: 0.4,
		Difficulty:   types.DifficultyTrivial,
		DedupGroupID: "group-old",
		CreatedAt:    aged,
	}
	keeper := &types.Discovery{
		ID:           "disc-old2",
		RunID:        "run-old2",
		SessionID:    "sess-old1",
		Title:        "Featured survivor",
		Category:     types.GoalTooling,
		ValueScore:   0.8,
		NoveltyScore: 0.7,
		Difficulty:   types.DifficultyTrivial,
		DedupGroupID: "group-old",
		Featured:     true,
		CreatedAt:    aged,
	}
	for _, d := range []*types.Discovery{stale, keeper} {
		if err := backing.SaveDiscovery(ctx, d); err != nil {
			t.Fatalf("SaveDiscovery failed: %v", err)
		}
	}

	deleted, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}
	if gone, _ := backing.GetDiscovery(ctx, "disc-old1"); gone != nil {
		t.Error("Expected stale subordinate removed")
	}
	if kept, _ := backing.GetDiscovery(ctx, "disc-old2"); kept == nil {
		t.Error("Expected featured discovery retained")
	}
}

func TestCleanupExpiredDisabled(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()

	aged := &types.Discovery{
		ID:           "disc-old3",
		RunID:        "run-old3",
		SessionID:    "sess-old2",
		Title:        "Ancient but retained",
		Category:     types.GoalTooling,
		ValueScore:   0.4,
		NoveltyScore: 0.4,
		Difficulty:   types.DifficultyTrivial,
		DedupGroupID: "group-old2",
		CreatedAt:    curateBase.Add(-365 * 24 * time.Hour),
	}
	if err := backing.SaveDiscovery(ctx, aged); err != nil {
		t.Fatalf("SaveDiscovery failed: %v", err)
	}

	deleted, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected retention disabled by default, deleted %d", deleted)
	}
	if kept, _ := backing.GetDiscovery(ctx, "disc-old3"); kept == nil {
		t.Error("Expected discovery retained with retention disabled")
	}
}

func TestPatternRelevance(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()
	seedPatterns(t, backing)

	got, err := c.patternRelevance(ctx, []string{"lang:go", "style:fast-feedback"})
	if err != nil {
		t.Fatalf("patternRelevance failed: %v", err)
	}
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected mean confidence 0.75, got %f", got)
	}

	// Unknown keys drag the mean down instead of erroring.
	got, err = c.patternRelevance(ctx, []string{"lang:go", "lang:zig"})
	if err != nil {
		t.Fatalf("patternRelevance failed: %v", err)
	}
	if math.Abs(got-0.45) > 1e-9 {
		t.Errorf("Expected mean 0.45 with unknown key, got %f", got)
	}

	got, err = c.patternRelevance(ctx, nil)
	if err != nil {
		t.Fatalf("patternRelevance failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected 0 for no keys, got %f", got)
	}
}

func TestCategoryAlignment(t *testing.T) {
	c, backing := newTestCurator(t)
	ctx := context.Background()

	cur := &curation{alignments: make(map[types.GoalCategory]float64)}
	got, err := c.categoryAlignment(ctx, cur, types.GoalTooling)
	if err != nil {
		t.Fatalf("categoryAlignment failed: %v", err)
	}
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected neutral alignment with no history, got %f", got)
	}

	for i, rating := range []int{5, 2} {
		d := &types.Discovery{
			ID:           fmt.Sprintf("disc-al%d", i),
			RunID:        "run-al",
			SessionID:    "sess-al",
			Title:        "Rated tooling discovery",
			Category:     types.GoalTooling,
			ValueScore:   0.6,
			NoveltyScore: 0.6,
			Difficulty:   types.DifficultyTrivial,
			DedupGroupID: "group-al",
			CreatedAt:    curateBase,
		}
		if err := backing.SaveDiscovery(ctx, d); err != nil {
			t.Fatalf("SaveDiscovery failed: %v", err)
		}
		if err := backing.RecordFeedback(ctx, &types.Feedback{DiscoveryID: d.ID, Rating: rating, RecordedAt: curateBase}); err != nil {
			t.Fatalf("RecordFeedback failed: %v", err)
		}
	}

	fresh := &curation{alignments: make(map[types.GoalCategory]float64)}
	got, err = c.categoryAlignment(ctx, fresh, types.GoalTooling)
	if err != nil {
		t.Fatalf("categoryAlignment failed: %v", err)
	}
	// Ratings 5 and 2 normalize to 1.0 and 0.25.
	if math.Abs(got-0.625) > 1e-9 {
		t.Errorf("Expected alignment 0.625, got %f", got)
	}

	// The per-call cache answers repeat lookups without another query.
	cached, err := c.categoryAlignment(ctx, fresh, types.GoalTooling)
	if err != nil {
		t.Fatalf("categoryAlignment failed: %v", err)
	}
	if cached != got {
		t.Errorf("Expected cached alignment %f, got %f", got, cached)
	}
}
