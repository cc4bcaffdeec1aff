package confidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/storage/sqlite"
	"github.com/sparkengine/spark/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) (*Store, *sqlite.SQLiteStorage) {
	t.Helper()

	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	store := New(config.DefaultConfig().Learning, backing)
	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start confidence store: %v", err)
	}
	t.Cleanup(func() {
		if store.IsRunning() {
			store.Stop(context.Background())
		}
	})

	return store, backing
}

// goCommit builds an all-Go commit observation that supports every
// commit-derived pattern with full weight.
func goCommit(id string, ts time.Time) *types.Observation {
	return &types.Observation{
		ID:        id,
		Source:    types.SourceCommit,
		Timestamp: ts,
		ProjectID: "proj-1",
		Commit: &types.CommitPayload{
			Hash:    "hash-" + id,
			Message: "feat: change for " + id,
			Branch:  "feature/" + id,
			Files: []types.FileStat{
				{Path: "internal/engine/engine.go", Insertions: 10},
				{Path: "internal/engine/engine_test.go", Insertions: 5},
			},
			Insertions: 15,
		},
	}
}

func TestIngestCreatesPatterns(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	keys, err := store.Ingest(ctx, goCommit("obs-1", ts))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	want := []string{
		"interest:internal",
		"lang:go",
		"style:small-commits",
		"style:test-driven",
		"workflow:conventional-commits",
		"workflow:feature-branches",
	}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d updated keys, got %d: %v", len(want), len(keys), keys)
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Expected key %s at position %d, got %s", key, i, keys[i])
		}
	}

	score, err := store.Score("lang:go")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score <= 0 || score >= 0.1 {
		t.Errorf("Expected provisional score in (0, 0.1), got %f", score)
	}

	pattern, err := store.Get("lang:go")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pattern.SampleCount != 1 {
		t.Errorf("Expected sample count 1, got %d", pattern.SampleCount)
	}
	if pattern.Category != types.CategoryLanguage {
		t.Errorf("Expected language category, got %s", pattern.Category)
	}
	if !pattern.FirstSeen.Equal(ts) {
		t.Errorf("Expected first seen %v, got %v", ts, pattern.FirstSeen)
	}
	if len(pattern.EvidenceWindow) != 1 || pattern.EvidenceWindow[0].ObservationID != "obs-1" {
		t.Errorf("Expected one evidence entry for obs-1, got %+v", pattern.EvidenceWindow)
	}

	// The update must land in storage, not just memory.
	persisted, err := backing.GetPattern(ctx, "lang:go")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if persisted == nil {
		t.Fatal("Expected lang:go to be persisted")
	}
	if persisted.SampleCount != 1 {
		t.Errorf("Expected persisted sample count 1, got %d", persisted.SampleCount)
	}
}

func TestIngestConfidenceGrows(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		obs := goCommit(fmt.Sprintf("obs-%d", i), base.Add(time.Duration(i)*time.Hour))
		if _, err := store.Ingest(ctx, obs); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}

	score, err := store.Score("lang:go")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	almostEqual(t, score, 0.952574127, 1e-6, "score after 20 consistent samples")

	pattern, err := store.Get("lang:go")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pattern.SampleCount != 20 {
		t.Errorf("Expected sample count 20, got %d", pattern.SampleCount)
	}
	if want := base.Add(19 * time.Hour); !pattern.LastSeen.Equal(want) {
		t.Errorf("Expected last seen %v, got %v", want, pattern.LastSeen)
	}
	if len(pattern.EvidenceWindow) != 20 {
		t.Errorf("Expected 20 evidence entries, got %d", len(pattern.EvidenceWindow))
	}
}

func TestEvidenceWindowBounded(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	cfg := config.DefaultConfig().Learning
	cfg.EvidenceWindowSize = 5

	store := New(cfg, backing)
	ctx := context.Background()
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Failed to start confidence store: %v", err)
	}
	t.Cleanup(func() {
		if store.IsRunning() {
			store.Stop(context.Background())
		}
	})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		obs := goCommit(fmt.Sprintf("obs-%d", i), base.Add(time.Duration(i)*time.Minute))
		if _, err := store.Ingest(ctx, obs); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}

	pattern, err := store.Get("lang:go")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(pattern.EvidenceWindow) != 5 {
		t.Fatalf("Expected evidence window of 5, got %d", len(pattern.EvidenceWindow))
	}
	if pattern.EvidenceWindow[0].ObservationID != "obs-3" {
		t.Errorf("Expected oldest retained evidence obs-3, got %s", pattern.EvidenceWindow[0].ObservationID)
	}
	if pattern.EvidenceWindow[4].ObservationID != "obs-7" {
		t.Errorf("Expected newest evidence obs-7, got %s", pattern.EvidenceWindow[4].ObservationID)
	}
	if pattern.SampleCount != 8 {
		t.Errorf("Expected sample count 8 despite bounded window, got %d", pattern.SampleCount)
	}
}

func TestIngestEmitsThresholdEvents(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		obs := goCommit(fmt.Sprintf("obs-%d", i), base.Add(time.Duration(i)*time.Hour))
		if _, err := store.Ingest(ctx, obs); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}

	got, err := backing.GetEvents(ctx, events.EventFilter{Type: events.EventTypePatternThreshold})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Expected threshold events after 12 consistent samples")
	}

	// Collect lang:go crossings by the sample count they fired at; the
	// events are written close enough together that timestamp order is
	// not a reliable sequence.
	crossings := map[int][2]string{}
	for _, event := range got {
		data, err := event.GetPatternThresholdData()
		if err != nil {
			t.Fatalf("GetPatternThresholdData failed: %v", err)
		}
		if data.PatternKey != "lang:go" {
			continue
		}
		crossings[data.SampleCount] = [2]string{data.PreviousLevel, data.NewLevel}
	}

	want := map[int][2]string{
		7:  {string(types.ConfidenceVeryLow), string(types.ConfidenceLow)},
		8:  {string(types.ConfidenceLow), string(types.ConfidenceModerate)},
		9:  {string(types.ConfidenceModerate), string(types.ConfidenceVeryHigh)},
		10: {string(types.ConfidenceVeryHigh), string(types.ConfidenceExceptional)},
	}
	if len(crossings) != len(want) {
		t.Errorf("Expected %d crossings for lang:go, got %d (%v)", len(want), len(crossings), crossings)
	}
	for sample, levels := range want {
		got, ok := crossings[sample]
		if !ok {
			t.Errorf("Expected a crossing at sample %d", sample)
			continue
		}
		if got != levels {
			t.Errorf("Crossing at sample %d = %s -> %s, want %s -> %s",
				sample, got[0], got[1], levels[0], levels[1])
		}
	}
}

func TestIngestUnrecognizedSource(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	obs := &types.Observation{
		ID:        "obs-weird",
		Source:    types.ObservationSource("telemetry"),
		Timestamp: time.Now(),
		ProjectID: "proj-1",
	}

	if _, err := store.Ingest(ctx, obs); !errors.Is(err, types.ErrUnrecognizedObservation) {
		t.Errorf("Expected ErrUnrecognizedObservation, got %v", err)
	}

	// The store keeps working after dropping an unrecognized observation.
	keys, err := store.Ingest(ctx, goCommit("obs-ok", time.Now()))
	if err != nil {
		t.Fatalf("Ingest after unrecognized observation failed: %v", err)
	}
	if len(keys) == 0 {
		t.Error("Expected updated keys from a valid observation")
	}
}

func TestIngestRejectsInvalidObservation(t *testing.T) {
	store, _ := newTestStore(t)

	obs := &types.Observation{
		ID:        "obs-bad",
		Source:    types.SourceCommit,
		Timestamp: time.Now(),
		ProjectID: "proj-1",
		// No commit payload.
	}

	_, err := store.Ingest(context.Background(), obs)
	if err == nil {
		t.Fatal("Expected error for observation without payload")
	}
	if errors.Is(err, types.ErrUnrecognizedObservation) {
		t.Error("Expected a validation error, not ErrUnrecognizedObservation")
	}
}

func TestScoreUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Score("lang:fortran"); !errors.Is(err, types.ErrPatternNotFound) {
		t.Errorf("Expected ErrPatternNotFound from Score, got %v", err)
	}
	if _, err := store.Get("lang:fortran"); !errors.Is(err, types.ErrPatternNotFound) {
		t.Errorf("Expected ErrPatternNotFound from Get, got %v", err)
	}
}

func TestPatternsSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		obs := goCommit(fmt.Sprintf("obs-%d", i), base.Add(time.Duration(i)*time.Hour))
		if _, err := store.Ingest(ctx, obs); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}

	all := store.Patterns(types.PatternFilter{})
	if len(all) != 6 {
		t.Fatalf("Expected 6 patterns, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Confidence > all[i-1].Confidence {
			t.Errorf("Expected confidence-descending order, got %f after %f",
				all[i].Confidence, all[i-1].Confidence)
		}
	}

	lang := types.CategoryLanguage
	languages := store.Patterns(types.PatternFilter{Category: &lang})
	if len(languages) != 1 || languages[0].Key != "lang:go" {
		t.Errorf("Expected only lang:go in the language category, got %v", languages)
	}

	high := 0.99
	if got := store.Patterns(types.PatternFilter{MinConfidence: &high}); len(got) != 0 {
		t.Errorf("Expected no patterns above 0.99, got %d", len(got))
	}

	limited := store.Patterns(types.PatternFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("Expected limit of 2, got %d", len(limited))
	}

	// Snapshots are copies; mutating one must not touch the store.
	all[0].SampleCount = 999
	fresh, err := store.Get(all[0].Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fresh.SampleCount == 999 {
		t.Error("Expected snapshot mutation to leave the store untouched")
	}
}

func TestStartHydratesFromStorage(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	ctx := context.Background()
	cfg := config.DefaultConfig().Learning
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := New(cfg, backing)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Failed to start first store: %v", err)
	}
	for i := 0; i < 6; i++ {
		obs := goCommit(fmt.Sprintf("obs-%d", i), base.Add(time.Duration(i)*time.Hour))
		if _, err := first.Ingest(ctx, obs); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}
	want, err := first.Score("lang:go")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second := New(cfg, backing)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Failed to start second store: %v", err)
	}
	t.Cleanup(func() {
		if second.IsRunning() {
			second.Stop(context.Background())
		}
	})

	got, err := second.Score("lang:go")
	if err != nil {
		t.Fatalf("Score after restart failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected hydrated score %f, got %f", want, got)
	}

	pattern, err := second.Get("lang:go")
	if err != nil {
		t.Fatalf("Get after restart failed: %v", err)
	}
	if pattern.SampleCount != 6 {
		t.Errorf("Expected hydrated sample count 6, got %d", pattern.SampleCount)
	}
}

func TestDecayReducesStalePatterns(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	stale := &types.Pattern{
		Key:         "lang:go",
		Category:    types.CategoryLanguage,
		Confidence:  0.8,
		SampleCount: 15,
		FirstSeen:   now.Add(-60 * 24 * time.Hour),
		LastSeen:    now.Add(-30 * 24 * time.Hour),
	}
	fresh := &types.Pattern{
		Key:         "style:test-driven",
		Category:    types.CategoryStyle,
		Confidence:  0.6,
		SampleCount: 10,
		FirstSeen:   now.Add(-10 * 24 * time.Hour),
		LastSeen:    now.Add(-24 * time.Hour),
	}
	if err := backing.UpsertPattern(ctx, stale); err != nil {
		t.Fatalf("UpsertPattern failed: %v", err)
	}
	if err := backing.UpsertPattern(ctx, fresh); err != nil {
		t.Fatalf("UpsertPattern failed: %v", err)
	}

	store := New(config.DefaultConfig().Learning, backing)
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Failed to start confidence store: %v", err)
	}
	t.Cleanup(func() {
		if store.IsRunning() {
			store.Stop(context.Background())
		}
	})

	decayed, err := store.Decay(ctx, now)
	if err != nil {
		t.Fatalf("Decay failed: %v", err)
	}
	if decayed != 1 {
		t.Fatalf("Expected 1 decayed pattern, got %d", decayed)
	}

	score, err := store.Score("lang:go")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	almostEqual(t, score, 0.8*0.98, 1e-9, "decayed confidence")

	untouched, err := store.Score("style:test-driven")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if untouched != 0.6 {
		t.Errorf("Expected fresh pattern untouched at 0.6, got %f", untouched)
	}

	persisted, err := backing.GetPattern(ctx, "lang:go")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	almostEqual(t, persisted.Confidence, 0.8*0.98, 1e-9, "persisted decayed confidence")

	got, err := backing.GetEvents(ctx, events.EventFilter{Type: events.EventTypeDecayApplied})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 decay event, got %d", len(got))
	}
	data, err := got[0].GetDecayAppliedData()
	if err != nil {
		t.Fatalf("GetDecayAppliedData failed: %v", err)
	}
	if data.PatternsDecayed != 1 {
		t.Errorf("Expected 1 pattern decayed in event data, got %d", data.PatternsDecayed)
	}
	if data.PatternsSkipped != 1 {
		t.Errorf("Expected 1 pattern skipped in event data, got %d", data.PatternsSkipped)
	}

	// Decay compounds on successive passes and never removes the pattern.
	if _, err := store.Decay(ctx, now); err != nil {
		t.Fatalf("Second decay failed: %v", err)
	}
	score, err = store.Score("lang:go")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	almostEqual(t, score, 0.8*0.98*0.98, 1e-9, "twice-decayed confidence")
}

func TestDecayLevelCrossingEmitsEvent(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	pattern := &types.Pattern{
		Key:         "workflow:feature-branches",
		Category:    types.CategoryWorkflow,
		Confidence:  0.302,
		SampleCount: 8,
		FirstSeen:   now.Add(-90 * 24 * time.Hour),
		LastSeen:    now.Add(-20 * 24 * time.Hour),
	}
	if err := backing.UpsertPattern(ctx, pattern); err != nil {
		t.Fatalf("UpsertPattern failed: %v", err)
	}

	store := New(config.DefaultConfig().Learning, backing)
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Failed to start confidence store: %v", err)
	}
	t.Cleanup(func() {
		if store.IsRunning() {
			store.Stop(context.Background())
		}
	})

	if _, err := store.Decay(ctx, now); err != nil {
		t.Fatalf("Decay failed: %v", err)
	}

	got, err := backing.GetEvents(ctx, events.EventFilter{Type: events.EventTypePatternThreshold})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 threshold event from decay, got %d", len(got))
	}
	data, err := got[0].GetPatternThresholdData()
	if err != nil {
		t.Fatalf("GetPatternThresholdData failed: %v", err)
	}
	if data.PreviousLevel != string(types.ConfidenceLow) || data.NewLevel != string(types.ConfidenceVeryLow) {
		t.Errorf("Expected low to very_low crossing, got %s to %s", data.PreviousLevel, data.NewLevel)
	}
}

func TestDecayNothingStale(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Ingest(ctx, goCommit("obs-1", time.Now())); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	decayed, err := store.Decay(ctx, time.Now())
	if err != nil {
		t.Fatalf("Decay failed: %v", err)
	}
	if decayed != 0 {
		t.Errorf("Expected no decay for fresh patterns, got %d", decayed)
	}

	got, err := backing.GetEvents(ctx, events.EventFilter{Type: events.EventTypeDecayApplied})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no decay event when nothing decayed, got %d", len(got))
	}
}

func TestStartStopLifecycle(t *testing.T) {
	backing, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	ctx := context.Background()
	store := New(config.DefaultConfig().Learning, backing)

	if _, err := store.Ingest(ctx, goCommit("obs-0", time.Now())); err == nil {
		t.Error("Expected Ingest to fail before Start")
	}

	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := store.Start(ctx); err == nil {
		t.Error("Expected second Start to fail")
	}

	if err := store.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := store.Stop(ctx); err == nil {
		t.Error("Expected second Stop to fail")
	}

	if _, err := store.Ingest(ctx, goCommit("obs-1", time.Now())); err == nil {
		t.Error("Expected Ingest to fail after Stop")
	}

	// The store restarts cleanly on the same storage.
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if _, err := store.Ingest(ctx, goCommit("obs-2", time.Now())); err != nil {
		t.Errorf("Ingest after restart failed: %v", err)
	}
	if err := store.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart failed: %v", err)
	}
}

func TestConcurrentIngestSerializes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	const workers = 4
	const perWorker = 5

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				obs := goCommit(fmt.Sprintf("obs-%d-%d", w, i), base.Add(time.Duration(w*perWorker+i)*time.Minute))
				if _, err := store.Ingest(ctx, obs); err != nil {
					errCh <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("Concurrent ingest failed: %v", err)
	}

	pattern, err := store.Get("lang:go")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pattern.SampleCount != workers*perWorker {
		t.Errorf("Expected sample count %d, got %d", workers*perWorker, pattern.SampleCount)
	}
}
