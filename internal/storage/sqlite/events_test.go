package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sparkengine/spark/internal/events"
)

// storeEventAt inserts an event with a controlled timestamp and severity
func storeEventAt(t *testing.T, store *SQLiteStorage, eventType events.EventType,
	sessionID string, severity events.EventSeverity, ts time.Time) *events.Event {
	t.Helper()
	event := &events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: ts,
		SessionID: sessionID,
		Actor:     "test",
		Severity:  severity,
		Message:   fmt.Sprintf("%s at %s", eventType, ts.Format(time.RFC3339)),
		Data:      map[string]interface{}{"marker": string(eventType)},
	}
	if err := store.StoreEvent(context.Background(), event); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}
	return event
}

func TestStoreAndFilterEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo, now.Add(-3*time.Hour))
	storeEventAt(t, store, events.EventTypeSessionPlanned, "sess-1", events.SeverityInfo, now.Add(-2*time.Hour))
	storeEventAt(t, store, events.EventTypeBudgetExhausted, "sess-1", events.SeverityWarning, now.Add(-time.Hour))
	storeEventAt(t, store, events.EventTypeSessionPlanned, "sess-2", events.SeverityInfo, now)

	bySession, err := store.GetEvents(ctx, events.EventFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("Expected 2 events for sess-1, got %d", len(bySession))
	}

	byType, err := store.GetEvents(ctx, events.EventFilter{Type: events.EventTypeSessionPlanned})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("Expected 2 session_planned events, got %d", len(byType))
	}

	bySeverity, err := store.GetEvents(ctx, events.EventFilter{Severity: events.SeverityWarning})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(bySeverity) != 1 {
		t.Errorf("Expected 1 warning event, got %d", len(bySeverity))
	}
	if bySeverity[0].Type != events.EventTypeBudgetExhausted {
		t.Errorf("Expected budget_exhausted, got %s", bySeverity[0].Type)
	}

	after := now.Add(-90 * time.Minute)
	recent, err := store.GetEvents(ctx, events.EventFilter{AfterTime: after})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 events after cutoff, got %d", len(recent))
	}

	limited, err := store.GetEvents(ctx, events.EventFilter{Limit: 1})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 event with limit, got %d", len(limited))
	}
}

func TestEventDataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := events.NewSimpleEvent(events.EventTypeDecayApplied, "", "", "engine", events.SeverityInfo, "decay pass complete")
	if err := event.SetDecayAppliedData(events.DecayAppliedData{
		PatternsDecayed: 7,
		PatternsSkipped: 3,
	}); err != nil {
		t.Fatalf("SetDecayAppliedData failed: %v", err)
	}
	if err := store.StoreEvent(ctx, event); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}

	got, err := store.GetRecentEvents(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	data, err := got[0].GetDecayAppliedData()
	if err != nil {
		t.Fatalf("GetDecayAppliedData failed: %v", err)
	}
	if data.PatternsDecayed != 7 {
		t.Errorf("Expected 7 patterns decayed, got %d", data.PatternsDecayed)
	}
}

func TestGetRecentEventsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo, now.Add(-2*time.Minute))
	storeEventAt(t, store, events.EventTypeDecayApplied, "", events.SeverityInfo, now.Add(-time.Minute))
	storeEventAt(t, store, events.EventTypePatternThreshold, "", events.SeverityInfo, now)

	got, err := store.GetRecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Type != events.EventTypePatternThreshold {
		t.Errorf("Expected newest first, got %s", got[0].Type)
	}
}

func TestCleanupEventsByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo, now.AddDate(0, 0, -40))
	storeEventAt(t, store, events.EventTypeSubstrateCheckFailed, "", events.SeverityError, now.AddDate(0, 0, -40))
	storeEventAt(t, store, events.EventTypeSubstrateCheckFailed, "", events.SeverityError, now.AddDate(0, 0, -100))
	storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo, now)

	deleted, err := store.CleanupEventsByAge(ctx, 30, 90, 100)
	if err != nil {
		t.Fatalf("CleanupEventsByAge failed: %v", err)
	}
	// Old info event plus the 100-day-old error event
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	counts, err := store.GetEventCounts(ctx)
	if err != nil {
		t.Fatalf("GetEventCounts failed: %v", err)
	}
	if counts.TotalEvents != 2 {
		t.Errorf("Expected 2 events remaining, got %d", counts.TotalEvents)
	}
	// The 40-day-old error is inside its 90-day retention
	if counts.EventsBySeverity["error"] != 1 {
		t.Errorf("Expected 1 error event kept, got %d", counts.EventsBySeverity["error"])
	}

	if _, err := store.CleanupEventsByAge(ctx, -1, 90, 100); err == nil {
		t.Error("Expected error for negative retention")
	}
	if _, err := store.CleanupEventsByAge(ctx, 30, 90, 0); err == nil {
		t.Error("Expected error for zero batch size")
	}
}

func TestCleanupEventsBySessionLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		storeEventAt(t, store, events.EventTypeRunStateChange, "sess-busy", events.SeverityInfo,
			now.Add(time.Duration(i)*time.Minute))
	}
	storeEventAt(t, store, events.EventTypeRunStateChange, "sess-busy", events.SeverityError,
		now.Add(-time.Hour))
	storeEventAt(t, store, events.EventTypeRunStateChange, "sess-quiet", events.SeverityInfo, now)

	deleted, err := store.CleanupEventsBySessionLimit(ctx, 3, 100)
	if err != nil {
		t.Fatalf("CleanupEventsBySessionLimit failed: %v", err)
	}
	// 6 events over a limit of 3 leaves an excess of 3
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}

	remaining, err := store.GetEventsBySession(ctx, "sess-busy")
	if err != nil {
		t.Fatalf("GetEventsBySession failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("Expected 3 events remaining, got %d", len(remaining))
	}
	// The error event is oldest but exempt from cleanup
	if remaining[0].Severity != events.SeverityError {
		t.Errorf("Expected error event preserved, got %s", remaining[0].Severity)
	}

	quiet, _ := store.GetEventsBySession(ctx, "sess-quiet")
	if len(quiet) != 1 {
		t.Errorf("Expected untouched session to keep its event, got %d", len(quiet))
	}

	// 0 means unlimited
	deleted, err = store.CleanupEventsBySessionLimit(ctx, 0, 100)
	if err != nil {
		t.Fatalf("CleanupEventsBySessionLimit failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected no deletions with unlimited, got %d", deleted)
	}
}

func TestCleanupEventsByGlobalLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo,
			now.Add(time.Duration(i)*time.Second))
	}

	deleted, err := store.CleanupEventsByGlobalLimit(ctx, 4, 3)
	if err != nil {
		t.Fatalf("CleanupEventsByGlobalLimit failed: %v", err)
	}
	if deleted != 6 {
		t.Errorf("Expected 6 deleted, got %d", deleted)
	}

	counts, err := store.GetEventCounts(ctx)
	if err != nil {
		t.Fatalf("GetEventCounts failed: %v", err)
	}
	if counts.TotalEvents != 4 {
		t.Errorf("Expected 4 events remaining, got %d", counts.TotalEvents)
	}

	// Under the limit nothing happens
	deleted, err = store.CleanupEventsByGlobalLimit(ctx, 100, 3)
	if err != nil {
		t.Fatalf("CleanupEventsByGlobalLimit failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected no deletions under limit, got %d", deleted)
	}
}

func TestGetEventCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	storeEventAt(t, store, events.EventTypeObservationBatch, "", events.SeverityInfo, now)
	storeEventAt(t, store, events.EventTypeSessionPlanned, "sess-1", events.SeverityInfo, now)
	storeEventAt(t, store, events.EventTypeRunStateChange, "sess-1", events.SeverityError, now)

	counts, err := store.GetEventCounts(ctx)
	if err != nil {
		t.Fatalf("GetEventCounts failed: %v", err)
	}
	if counts.TotalEvents != 3 {
		t.Errorf("Expected 3 total events, got %d", counts.TotalEvents)
	}
	if counts.EventsBySession["sess-1"] != 2 {
		t.Errorf("Expected 2 events for sess-1, got %d", counts.EventsBySession["sess-1"])
	}
	if counts.EventsBySeverity["info"] != 2 {
		t.Errorf("Expected 2 info events, got %d", counts.EventsBySeverity["info"])
	}
	if counts.EventsByType["run_state_change"] != 1 {
		t.Errorf("Expected 1 run_state_change, got %d", counts.EventsByType["run_state_change"])
	}
}

func TestVacuumDatabase(t *testing.T) {
	store := newTestStore(t)
	if err := store.VacuumDatabase(context.Background()); err != nil {
		t.Fatalf("VacuumDatabase failed: %v", err)
	}
}
