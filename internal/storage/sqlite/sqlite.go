package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sparkengine/spark/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Ensure directory exists (skip for in-memory databases)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// AppendObservation stores a new observation. Observations are immutable;
// there is no corresponding update or delete.
func (s *SQLiteStorage) AppendObservation(ctx context.Context, obs *types.Observation) error {
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payloadJSON, err := marshalObservationPayload(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO observations (id, source, timestamp, project_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`, obs.ID, obs.Source, obs.Timestamp, obs.ProjectID, payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	return nil
}

// GetObservation retrieves an observation by ID
func (s *SQLiteStorage) GetObservation(ctx context.Context, id string) (*types.Observation, error) {
	var obs types.Observation
	var payloadJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, timestamp, project_id, payload
		FROM observations
		WHERE id = ?
	`, id).Scan(&obs.ID, &obs.Source, &obs.Timestamp, &obs.ProjectID, &payloadJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}

	if err := unmarshalObservationPayload(&obs, payloadJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &obs, nil
}

// ListObservations retrieves observations matching the given filter,
// most recent first.
func (s *SQLiteStorage) ListObservations(ctx context.Context, filter types.ObservationFilter) ([]*types.Observation, error) {
	query := `
		SELECT id, source, timestamp, project_id, payload
		FROM observations
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Source != nil {
		query += " AND source = ?"
		args = append(args, *filter.Source)
	}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp < ?"
		args = append(args, *filter.Until)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var result []*types.Observation
	for rows.Next() {
		var obs types.Observation
		var payloadJSON string
		if err := rows.Scan(&obs.ID, &obs.Source, &obs.Timestamp, &obs.ProjectID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if err := unmarshalObservationPayload(&obs, payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		result = append(result, &obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observation rows: %w", err)
	}

	return result, nil
}

// marshalObservationPayload serializes the payload variant matching the
// observation's source.
func marshalObservationPayload(obs *types.Observation) (string, error) {
	var payload interface{}
	switch obs.Source {
	case types.SourceCommit:
		payload = obs.Commit
	case types.SourceFileChange:
		payload = obs.FileChange
	case types.SourceTestRun:
		payload = obs.TestRun
	default:
		return "", fmt.Errorf("unknown source: %s", obs.Source)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObservationPayload deserializes the payload column into the
// variant field matching the observation's source.
func unmarshalObservationPayload(obs *types.Observation, payloadJSON string) error {
	switch obs.Source {
	case types.SourceCommit:
		obs.Commit = &types.CommitPayload{}
		return json.Unmarshal([]byte(payloadJSON), obs.Commit)
	case types.SourceFileChange:
		obs.FileChange = &types.FileChangePayload{}
		return json.Unmarshal([]byte(payloadJSON), obs.FileChange)
	case types.SourceTestRun:
		obs.TestRun = &types.TestRunPayload{}
		return json.Unmarshal([]byte(payloadJSON), obs.TestRun)
	}
	return fmt.Errorf("unknown source: %s", obs.Source)
}

// UpsertPattern inserts a pattern or replaces its scored fields if the key
// already exists. The full row is written each time; the confidence model
// owns the values.
func (s *SQLiteStorage) UpsertPattern(ctx context.Context, pattern *types.Pattern) error {
	if err := pattern.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	evidenceJSON, err := json.Marshal(pattern.EvidenceWindow)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (key, category, label, confidence, sample_count, first_seen, last_seen, evidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			label = excluded.label,
			confidence = excluded.confidence,
			sample_count = excluded.sample_count,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			evidence = excluded.evidence,
			updated_at = CURRENT_TIMESTAMP
	`, pattern.Key, pattern.Category, pattern.Label, pattern.Confidence,
		pattern.SampleCount, pattern.FirstSeen, pattern.LastSeen, string(evidenceJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}

	return nil
}

// GetPattern retrieves a pattern by key
func (s *SQLiteStorage) GetPattern(ctx context.Context, key string) (*types.Pattern, error) {
	var pattern types.Pattern
	var evidenceJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT key, category, label, confidence, sample_count, first_seen, last_seen, evidence
		FROM patterns
		WHERE key = ?
	`, key).Scan(
		&pattern.Key, &pattern.Category, &pattern.Label, &pattern.Confidence,
		&pattern.SampleCount, &pattern.FirstSeen, &pattern.LastSeen, &evidenceJSON,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	if err := json.Unmarshal([]byte(evidenceJSON), &pattern.EvidenceWindow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}

	return &pattern, nil
}

// ListPatterns retrieves patterns matching the given filter, highest
// confidence first.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.Pattern, error) {
	query := `
		SELECT key, category, label, confidence, sample_count, first_seen, last_seen, evidence
		FROM patterns
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Category != nil {
		query += " AND category = ?"
		args = append(args, *filter.Category)
	}
	if filter.MinConfidence != nil {
		query += " AND confidence >= ?"
		args = append(args, *filter.MinConfidence)
	}

	query += " ORDER BY confidence DESC, key ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var result []*types.Pattern
	for rows.Next() {
		var pattern types.Pattern
		var evidenceJSON string
		err := rows.Scan(
			&pattern.Key, &pattern.Category, &pattern.Label, &pattern.Confidence,
			&pattern.SampleCount, &pattern.FirstSeen, &pattern.LastSeen, &evidenceJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(evidenceJSON), &pattern.EvidenceWindow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
		result = append(result, &pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern rows: %w", err)
	}

	return result, nil
}

// GetStatistics returns aggregate counts across the whole engine state.
// readyThreshold is the confidence at or above which a pattern counts as
// ready for exploration.
func (s *SQLiteStorage) GetStatistics(ctx context.Context, readyThreshold float64) (*types.Statistics, error) {
	stats := &types.Statistics{
		PatternsByCategory: make(map[types.PatternCategory]int),
		RunsByState:        make(map[types.RunState]int),
	}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations").Scan(&stats.TotalObservations)
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(confidence), 0)
		FROM patterns
	`).Scan(&stats.TotalPatterns, &stats.AverageConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to count patterns: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM patterns WHERE confidence >= ?
	`, readyThreshold).Scan(&stats.ReadyPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to count ready patterns: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM patterns GROUP BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category types.PatternCategory
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.PatternsByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE state IN ('planning', 'running')
	`).Scan(&stats.ActiveSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM runs GROUP BY state
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state types.RunState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan run state count: %w", err)
		}
		stats.RunsByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run state counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(featured), 0) FROM discoveries
	`).Scan(&stats.TotalDiscoveries, &stats.FeaturedDiscoveries)
	if err != nil {
		return nil, fmt.Errorf("failed to count discoveries: %w", err)
	}

	return stats, nil
}

// scanNullableTime maps a NullTime to a *time.Time
func scanNullableTime(t sql.NullTime) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
