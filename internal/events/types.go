package events

import (
	"context"
	"time"
)

// EventType represents the type of event recorded by the engine.
type EventType string

const (
	// Learning events

	// EventTypeObservationBatch indicates a batch of observations was ingested
	EventTypeObservationBatch EventType = "observation_batch"
	// EventTypePatternThreshold indicates a pattern's confidence crossed a level boundary
	EventTypePatternThreshold EventType = "pattern_threshold_crossed"
	// EventTypeDecayApplied indicates a decay pass adjusted stale pattern scores
	EventTypeDecayApplied EventType = "decay_applied"

	// Exploration planning events

	// EventTypeSessionPlanned indicates goals were generated for a new session
	EventTypeSessionPlanned EventType = "session_planned"
	// EventTypeSessionStateChange indicates a session transitioned between states
	EventTypeSessionStateChange EventType = "session_state_change"
	// EventTypeBudgetExhausted indicates the session time budget ran out mid-flight
	EventTypeBudgetExhausted EventType = "budget_exhausted"

	// Run lifecycle events

	// EventTypeRunStateChange indicates a run transitioned between states
	EventTypeRunStateChange EventType = "run_state_change"
	// EventTypeGenerationRetry indicates a generation attempt was retried after a transient failure
	EventTypeGenerationRetry EventType = "generation_retry"
	// EventTypeCircuitBreakerStateChange indicates the generation circuit breaker changed state
	EventTypeCircuitBreakerStateChange EventType = "circuit_breaker_state_change"
	// EventTypeCostAlert indicates generation spend crossed a warning or hard limit
	EventTypeCostAlert EventType = "cost_alert"
	// EventTypeSandboxCreated indicates a run sandbox was provisioned
	EventTypeSandboxCreated EventType = "sandbox_created"
	// EventTypeSandboxDestroyed indicates a run sandbox was torn down
	EventTypeSandboxDestroyed EventType = "sandbox_destroyed"
	// EventTypeSubstrateCheckFailed indicates the execution substrate pre-flight check failed
	EventTypeSubstrateCheckFailed EventType = "substrate_check_failed"

	// Curation events

	// EventTypeDiscoveryCurated indicates a validated run result was promoted to a discovery
	EventTypeDiscoveryCurated EventType = "discovery_curated"
	// EventTypeDiscoveryDeduplicated indicates a discovery was folded into an existing dedup group
	EventTypeDiscoveryDeduplicated EventType = "discovery_deduplicated"
	// EventTypeFeedbackRecorded indicates user feedback was attached to a discovery
	EventTypeFeedbackRecorded EventType = "feedback_recorded"

	// Maintenance events

	// EventTypeEventCleanupCompleted indicates an event retention cleanup cycle completed
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
	// EventTypeRetentionCompleted indicates a discovery retention cleanup cycle completed
	EventTypeRetentionCompleted EventType = "retention_completed"
	// EventTypeScheduleWindowOpened indicates the scheduler entered its preferred window
	EventTypeScheduleWindowOpened EventType = "schedule_window_opened"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// Event represents something that happened inside the engine. Events form the
// audit trail behind `spark tail` and are subject to retention cleanup.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// SessionID is the exploration session this event belongs to, if any
	SessionID string `json:"session_id,omitempty"`
	// RunID is the run this event belongs to, if any
	RunID string `json:"run_id,omitempty"`
	// Actor is the component that emitted the event (engine, orchestrator, curator, cli, scheduler)
	Actor string `json:"actor"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// PatternThresholdData contains structured data for confidence level crossings.
type PatternThresholdData struct {
	// PatternKey is the pattern whose confidence crossed a boundary
	PatternKey string `json:"pattern_key"`
	// Category is the pattern's category
	Category string `json:"category"`
	// Confidence is the score after the update
	Confidence float64 `json:"confidence"`
	// PreviousLevel is the bucket before the update
	PreviousLevel string `json:"previous_level"`
	// NewLevel is the bucket after the update
	NewLevel string `json:"new_level"`
	// SampleCount is the number of supporting observations
	SampleCount int `json:"sample_count"`
}

// ObservationBatchData contains structured data for ingest batches.
type ObservationBatchData struct {
	// Accepted is the number of observations normalized successfully
	Accepted int `json:"accepted"`
	// Rejected is the number of observations dropped as unrecognized
	Rejected int `json:"rejected"`
	// Source is the dominant source of the batch (commit, file_change, test_run)
	Source string `json:"source,omitempty"`
}

// DecayAppliedData contains structured data for decay passes.
type DecayAppliedData struct {
	// PatternsDecayed is the number of patterns whose scores were reduced
	PatternsDecayed int `json:"patterns_decayed"`
	// PatternsSkipped is the number of patterns still inside the staleness window
	PatternsSkipped int `json:"patterns_skipped"`
	// ProcessingTimeMs is the time taken for the pass in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// SessionPlannedData contains structured data for session planning events.
type SessionPlannedData struct {
	// SessionID is the planned session
	SessionID string `json:"session_id"`
	// GoalCount is the number of goals accepted into the session
	GoalCount int `json:"goal_count"`
	// BudgetMinutes is the session time budget in minutes
	BudgetMinutes int `json:"budget_minutes"`
	// Risk is the session risk appetite
	Risk string `json:"risk"`
	// ReadyPatterns is the number of patterns that met the confidence threshold
	ReadyPatterns int `json:"ready_patterns"`
	// SkippedGoals is the number of candidate goals skipped by budget packing
	SkippedGoals int `json:"skipped_goals"`
}

// SessionStateChangeData contains structured data for session transitions.
type SessionStateChangeData struct {
	// SessionID is the session that transitioned
	SessionID string `json:"session_id"`
	// FromState is the previous state
	FromState string `json:"from_state"`
	// ToState is the new state
	ToState string `json:"to_state"`
	// Reason is additional context about why the transition happened
	Reason string `json:"reason,omitempty"`
}

// BudgetExhaustedData contains structured data for budget exhaustion events.
type BudgetExhaustedData struct {
	// SessionID is the session whose budget ran out
	SessionID string `json:"session_id"`
	// BudgetMinutes is the configured budget in minutes
	BudgetMinutes int `json:"budget_minutes"`
	// ElapsedMinutes is the wall time consumed when the budget tripped
	ElapsedMinutes int `json:"elapsed_minutes"`
	// RunsCancelled is the number of in-flight runs cancelled
	RunsCancelled int `json:"runs_cancelled"`
	// RunsNeverStarted is the number of pending runs cancelled before starting
	RunsNeverStarted int `json:"runs_never_started"`
}

// RunStateChangeData contains structured data for run transitions.
type RunStateChangeData struct {
	// RunID is the run that transitioned
	RunID string `json:"run_id"`
	// GoalID is the goal the run is executing
	GoalID string `json:"goal_id"`
	// FromState is the previous state
	FromState string `json:"from_state"`
	// ToState is the new state
	ToState string `json:"to_state"`
	// ErrorKind is the failure classification for terminal error states
	ErrorKind string `json:"error_kind,omitempty"`
	// Detail is additional context for the transition
	Detail string `json:"detail,omitempty"`
}

// GenerationRetryData contains structured data for generation retry events.
type GenerationRetryData struct {
	// RunID is the run whose generation was retried
	RunID string `json:"run_id"`
	// Attempt is the retry attempt number (1-based)
	Attempt int `json:"attempt"`
	// BackoffMs is the delay before the retry in milliseconds
	BackoffMs int64 `json:"backoff_ms"`
	// Reason is the transient failure that triggered the retry
	Reason string `json:"reason"`
}

// CircuitBreakerStateChangeData contains structured data for breaker transitions.
type CircuitBreakerStateChangeData struct {
	// FromState is the previous breaker state (closed, open, half-open)
	FromState string `json:"from_state"`
	// ToState is the new breaker state
	ToState string `json:"to_state"`
	// ConsecutiveFailures is the failure count that drove the transition
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// CostAlertData contains structured data for generation spend alerts.
type CostAlertData struct {
	// SpentUSD is the accumulated generation spend
	SpentUSD float64 `json:"spent_usd"`
	// LimitUSD is the configured limit
	LimitUSD float64 `json:"limit_usd"`
	// Level is the alert level (warning, exceeded)
	Level string `json:"level"`
}

// SandboxLifecycleData contains structured data for sandbox create/destroy events.
type SandboxLifecycleData struct {
	// RunID is the run the sandbox belongs to
	RunID string `json:"run_id"`
	// Path is the sandbox root directory
	Path string `json:"path"`
	// DurationMs is the time taken in milliseconds
	DurationMs int64 `json:"duration_ms"`
	// Success indicates whether the operation succeeded
	Success bool `json:"success"`
	// Error contains the error message if the operation failed
	Error string `json:"error,omitempty"`
}

// SubstrateCheckFailedData contains structured data for failed pre-flight checks.
type SubstrateCheckFailedData struct {
	// Substrate names the substrate that failed the check
	Substrate string `json:"substrate"`
	// Detail is the underlying error text
	Detail string `json:"detail"`
}

// DiscoveryCuratedData contains structured data for discovery promotion events.
type DiscoveryCuratedData struct {
	// DiscoveryID is the curated discovery
	DiscoveryID string `json:"discovery_id"`
	// RunID is the run that produced it
	RunID string `json:"run_id"`
	// ValueScore is the composite value score at curation time
	ValueScore float64 `json:"value_score"`
	// NoveltyScore is the novelty component
	NoveltyScore float64 `json:"novelty_score"`
	// Featured indicates whether the discovery was selected as featured
	Featured bool `json:"featured"`
	// DedupGroupID is the near-duplicate group, if any
	DedupGroupID string `json:"dedup_group_id,omitempty"`
}

// DiscoveryDeduplicatedData contains structured data for dedup decisions.
type DiscoveryDeduplicatedData struct {
	// DiscoveryID is the incoming discovery
	DiscoveryID string `json:"discovery_id"`
	// DuplicateOf is the discovery it was grouped with
	DuplicateOf string `json:"duplicate_of"`
	// DedupGroupID is the shared group identifier
	DedupGroupID string `json:"dedup_group_id"`
	// Similarity is the signature similarity that triggered grouping (0.0 to 1.0)
	Similarity float64 `json:"similarity"`
}

// FeedbackRecordedData contains structured data for feedback events.
type FeedbackRecordedData struct {
	// DiscoveryID is the discovery that received feedback
	DiscoveryID string `json:"discovery_id"`
	// Rating is the 1-5 rating supplied by the user
	Rating int `json:"rating"`
	// OldValueScore is the value score before the rating multiplier
	OldValueScore float64 `json:"old_value_score"`
	// NewValueScore is the value score after the rating multiplier
	NewValueScore float64 `json:"new_value_score"`
}

// EventCleanupCompletedData contains structured data for event cleanup cycles.
type EventCleanupCompletedData struct {
	// EventsDeleted is the total number of events deleted
	EventsDeleted int `json:"events_deleted"`
	// TimeBasedDeleted is the number of events deleted by time-based retention
	TimeBasedDeleted int `json:"time_based_deleted"`
	// PerSessionDeleted is the number of events deleted by per-session limit
	PerSessionDeleted int `json:"per_session_deleted"`
	// GlobalLimitDeleted is the number of events deleted by global safety limit
	GlobalLimitDeleted int `json:"global_limit_deleted"`
	// ProcessingTimeMs is the time taken for cleanup in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	// EventsRemaining is the total number of events remaining after cleanup
	EventsRemaining int `json:"events_remaining"`
	// Success indicates whether cleanup succeeded
	Success bool `json:"success"`
	// Error contains the error message if cleanup failed
	Error string `json:"error,omitempty"`
}

// RetentionCompletedData contains structured data for discovery retention cycles.
type RetentionCompletedData struct {
	// DiscoveriesDeleted is the number of discoveries removed
	DiscoveriesDeleted int `json:"discoveries_deleted"`
	// RetentionDays is the configured retention window
	RetentionDays int `json:"retention_days"`
	// ProcessingTimeMs is the time taken in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// ScheduleWindowData contains structured data for scheduler window events.
type ScheduleWindowData struct {
	// WindowStart is when the preferred window opened
	WindowStart time.Time `json:"window_start"`
	// WindowEnd is when the window closes
	WindowEnd time.Time `json:"window_end"`
	// IdleFor is how long the machine had been idle when the window opened
	IdleFor time.Duration `json:"idle_for"`
}

// EventStore defines the interface for storing and retrieving engine events.
type EventStore interface {
	// StoreEvent stores a new event in the event store
	StoreEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// GetEventsBySession retrieves all events for a specific session
	GetEventsBySession(ctx context.Context, sessionID string) ([]*Event, error)

	// GetRecentEvents retrieves the most recent events up to the specified limit
	GetRecentEvents(ctx context.Context, limit int) ([]*Event, error)
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// SessionID filters events by session ID
	SessionID string
	// RunID filters events by run ID
	RunID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}
