package storage

import (
	"context"
	"os"
	"time"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/storage/sqlite"
	"github.com/sparkengine/spark/internal/types"
)

// Storage defines the interface for engine storage backends
type Storage interface {
	// Engine Events - audit trail behind `spark tail`
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	GetEventsBySession(ctx context.Context, sessionID string) ([]*events.Event, error)
	GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error)

	// Event Cleanup - retention policy enforcement
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	CleanupEventsBySessionLimit(ctx context.Context, perSessionLimit, batchSize int) (int, error)
	CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Observations - append-only developer activity log
	AppendObservation(ctx context.Context, obs *types.Observation) error
	GetObservation(ctx context.Context, id string) (*types.Observation, error)
	ListObservations(ctx context.Context, filter types.ObservationFilter) ([]*types.Observation, error)

	// Patterns - scored behavioral beliefs
	UpsertPattern(ctx context.Context, pattern *types.Pattern) error
	GetPattern(ctx context.Context, key string) (*types.Pattern, error)
	ListPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.Pattern, error)

	// Sessions & Goals
	CreateSession(ctx context.Context, session *types.Session, actor string) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSessionState(ctx context.Context, id string, state types.SessionState, errMsg, actor string) error
	ListSessions(ctx context.Context, limit int) ([]*types.Session, error)
	GetActiveSessions(ctx context.Context) ([]*types.Session, error)
	GetGoal(ctx context.Context, id string) (*types.Goal, error)

	// Runs
	CreateRun(ctx context.Context, run *types.Run, actor string) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	UpdateRunState(ctx context.Context, id string, state types.RunState, runErr *types.RunError, actor string) error
	UpdateRunMetrics(ctx context.Context, id string, metrics types.RunMetrics) error
	SetRunArtifact(ctx context.Context, runID, artifactID string) error
	ListRunsBySession(ctx context.Context, sessionID string) ([]*types.Run, error)
	GetIncompleteRuns(ctx context.Context) ([]*types.Run, error)
	GetCategoryDurations(ctx context.Context) (map[types.GoalCategory]time.Duration, error)

	// Artifacts
	SaveArtifact(ctx context.Context, artifact *types.Artifact) error
	GetArtifact(ctx context.Context, id string) (*types.Artifact, error)

	// Discoveries
	SaveDiscovery(ctx context.Context, discovery *types.Discovery) error
	GetDiscovery(ctx context.Context, id string) (*types.Discovery, error)
	UpdateDiscovery(ctx context.Context, discovery *types.Discovery) error
	ListDiscoveries(ctx context.Context, filter types.DiscoveryFilter) ([]*types.Discovery, error)
	DeleteDiscoveriesBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Feedback
	RecordFeedback(ctx context.Context, feedback *types.Feedback) error
	GetFeedback(ctx context.Context, discoveryID string) ([]*types.Feedback, error)

	// Project Profile
	SaveProjectProfile(ctx context.Context, profile *types.ProjectProfile) error
	GetProjectProfile(ctx context.Context, projectID string) (*types.ProjectProfile, error)

	// Statistics
	GetStatistics(ctx context.Context, readyThreshold float64) (*types.Statistics, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".spark/spark.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults.
// SPARK_DB_PATH takes precedence when set, for test isolation.
func DefaultConfig() *Config {
	if dbPath := os.Getenv("SPARK_DB_PATH"); dbPath != "" {
		return &Config{Path: dbPath}
	}
	return &Config{
		Path: ".spark/spark.db",
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
// and future extension possibilities
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Default to standard path if not specified
	if cfg.Path == "" {
		cfg.Path = ".spark/spark.db"
	}

	return sqlite.New(cfg.Path)
}
