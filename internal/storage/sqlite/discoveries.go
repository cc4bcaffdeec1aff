package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// SaveArtifact stores a generated artifact. Artifacts are immutable once
// written; re-generation produces a new artifact with a new ID.
func (s *SQLiteStorage) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}

	filesJSON, err := json.Marshal(artifact.Files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}
	depsJSON, err := json.Marshal(artifact.NewDeps)
	if err != nil {
		return fmt.Errorf("failed to marshal new_deps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, goal_id, language, entry_point, files, summary, new_deps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, artifact.ID, artifact.GoalID, artifact.Language, artifact.EntryPoint,
		string(filesJSON), artifact.Summary, string(depsJSON), artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	return nil
}

// GetArtifact retrieves an artifact by ID
func (s *SQLiteStorage) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	var artifact types.Artifact
	var filesJSON, depsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, goal_id, language, entry_point, files, summary, new_deps, created_at
		FROM artifacts
		WHERE id = ?
	`, id).Scan(&artifact.ID, &artifact.GoalID, &artifact.Language, &artifact.EntryPoint,
		&filesJSON, &artifact.Summary, &depsJSON, &artifact.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	if err := json.Unmarshal([]byte(filesJSON), &artifact.Files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	if err := json.Unmarshal([]byte(depsJSON), &artifact.NewDeps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new_deps: %w", err)
	}

	return &artifact, nil
}

// SaveDiscovery stores a newly curated discovery
func (s *SQLiteStorage) SaveDiscovery(ctx context.Context, discovery *types.Discovery) error {
	if err := discovery.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if discovery.CreatedAt.IsZero() {
		discovery.CreatedAt = time.Now()
	}

	derivedJSON, err := json.Marshal(discovery.DerivedFrom)
	if err != nil {
		return fmt.Errorf("failed to marshal derived_from: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discoveries (id, run_id, session_id, title, description, category,
		                         derived_from, value_score, novelty_score, difficulty,
		                         dedup_group_id, featured, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, discovery.ID, discovery.RunID, discovery.SessionID, discovery.Title,
		discovery.Description, discovery.Category, string(derivedJSON),
		discovery.ValueScore, discovery.NoveltyScore, discovery.Difficulty,
		discovery.DedupGroupID, discovery.Featured, discovery.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert discovery: %w", err)
	}

	return nil
}

// UpdateDiscovery rewrites a discovery's mutable curation fields: scores,
// featured flag, and dedup group. Identity and provenance never change.
func (s *SQLiteStorage) UpdateDiscovery(ctx context.Context, discovery *types.Discovery) error {
	if err := discovery.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE discoveries
		SET value_score = ?, novelty_score = ?, difficulty = ?, dedup_group_id = ?, featured = ?
		WHERE id = ?
	`, discovery.ValueScore, discovery.NoveltyScore, discovery.Difficulty,
		discovery.DedupGroupID, discovery.Featured, discovery.ID)
	if err != nil {
		return fmt.Errorf("failed to update discovery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return types.ErrDiscoveryNotFound
	}

	return nil
}

// GetDiscovery retrieves a discovery by ID, including its latest feedback
func (s *SQLiteStorage) GetDiscovery(ctx context.Context, id string) (*types.Discovery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, session_id, title, description, category, derived_from,
		       value_score, novelty_score, difficulty, dedup_group_id, featured, created_at
		FROM discoveries
		WHERE id = ?
	`, id)

	discovery, err := scanDiscovery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachLatestFeedback(ctx, discovery); err != nil {
		return nil, err
	}

	return discovery, nil
}

// ListDiscoveries retrieves discoveries matching the given filter. Ordering
// is value score descending, then novelty descending, then recency.
func (s *SQLiteStorage) ListDiscoveries(ctx context.Context, filter types.DiscoveryFilter) ([]*types.Discovery, error) {
	query := `
		SELECT id, run_id, session_id, title, description, category, derived_from,
		       value_score, novelty_score, difficulty, dedup_group_id, featured, created_at
		FROM discoveries
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Category != nil {
		query += " AND category = ?"
		args = append(args, *filter.Category)
	}
	if filter.MinValue != nil {
		query += " AND value_score >= ?"
		args = append(args, *filter.MinValue)
	}
	if filter.FeaturedOnly {
		query += " AND featured = 1"
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.Since)
	}

	query += " ORDER BY value_score DESC, novelty_score DESC, created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query discoveries: %w", err)
	}
	defer rows.Close()

	var result []*types.Discovery
	for rows.Next() {
		discovery, err := scanDiscovery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, discovery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating discovery rows: %w", err)
	}

	for _, discovery := range result {
		if err := s.attachLatestFeedback(ctx, discovery); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func scanDiscovery(row rowScanner) (*types.Discovery, error) {
	var discovery types.Discovery
	var derivedJSON string
	var dedupGroupID sql.NullString

	err := row.Scan(&discovery.ID, &discovery.RunID, &discovery.SessionID,
		&discovery.Title, &discovery.Description, &discovery.Category, &derivedJSON,
		&discovery.ValueScore, &discovery.NoveltyScore, &discovery.Difficulty,
		&dedupGroupID, &discovery.Featured, &discovery.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan discovery: %w", err)
	}

	if dedupGroupID.Valid {
		discovery.DedupGroupID = dedupGroupID.String
	}
	if err := json.Unmarshal([]byte(derivedJSON), &discovery.DerivedFrom); err != nil {
		return nil, fmt.Errorf("failed to unmarshal derived_from: %w", err)
	}

	return &discovery, nil
}

// attachLatestFeedback populates UserFeedback with the most recent rating
func (s *SQLiteStorage) attachLatestFeedback(ctx context.Context, discovery *types.Discovery) error {
	var feedback types.Feedback
	err := s.db.QueryRowContext(ctx, `
		SELECT discovery_id, rating, note, recorded_at
		FROM feedback
		WHERE discovery_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, discovery.ID).Scan(&feedback.DiscoveryID, &feedback.Rating, &feedback.Note, &feedback.RecordedAt)

	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get latest feedback: %w", err)
	}

	discovery.UserFeedback = &feedback
	return nil
}

// DeleteDiscoveriesBefore removes discoveries created before the cutoff.
// Featured discoveries and discoveries with recorded feedback are never
// deleted; retention only trims the unrated subordinate members of a
// dedup group.
func (s *SQLiteStorage) DeleteDiscoveriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM discoveries
		WHERE created_at < ?
		  AND featured = 0
		  AND id NOT IN (SELECT DISTINCT discovery_id FROM feedback)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old discoveries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// RecordFeedback appends a feedback row for a discovery. The discovery
// must exist; the rating history is append-only and the latest row wins.
func (s *SQLiteStorage) RecordFeedback(ctx context.Context, feedback *types.Feedback) error {
	if err := feedback.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if feedback.RecordedAt.IsZero() {
		feedback.RecordedAt = time.Now()
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM discoveries WHERE id = ?", feedback.DiscoveryID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check discovery: %w", err)
	}
	if exists == 0 {
		return types.ErrDiscoveryNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (discovery_id, rating, note, recorded_at)
		VALUES (?, ?, ?, ?)
	`, feedback.DiscoveryID, feedback.Rating, feedback.Note, feedback.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	return nil
}

// GetFeedback retrieves the full feedback history for a discovery,
// newest first.
func (s *SQLiteStorage) GetFeedback(ctx context.Context, discoveryID string) ([]*types.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT discovery_id, rating, note, recorded_at
		FROM feedback
		WHERE discovery_id = ?
		ORDER BY recorded_at DESC, id DESC
	`, discoveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var result []*types.Feedback
	for rows.Next() {
		var feedback types.Feedback
		if err := rows.Scan(&feedback.DiscoveryID, &feedback.Rating, &feedback.Note, &feedback.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		result = append(result, &feedback)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback rows: %w", err)
	}

	return result, nil
}

// SaveProjectProfile stores or refreshes the scanned project profile
func (s *SQLiteStorage) SaveProjectProfile(ctx context.Context, profile *types.ProjectProfile) error {
	if profile.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}

	languagesJSON, err := json.Marshal(profile.Languages)
	if err != nil {
		return fmt.Errorf("failed to marshal languages: %w", err)
	}
	topDirsJSON, err := json.Marshal(profile.TopDirs)
	if err != nil {
		return fmt.Errorf("failed to marshal top_dirs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_profiles (project_id, root, module_path, languages, top_dirs,
		                              has_tests, dependency_count, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			root = excluded.root,
			module_path = excluded.module_path,
			languages = excluded.languages,
			top_dirs = excluded.top_dirs,
			has_tests = excluded.has_tests,
			dependency_count = excluded.dependency_count,
			scanned_at = excluded.scanned_at
	`, profile.ProjectID, profile.Root, profile.ModulePath, string(languagesJSON),
		string(topDirsJSON), profile.HasTests, profile.DependencyCount, profile.ScannedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project profile: %w", err)
	}

	return nil
}

// GetProjectProfile retrieves the profile for a project
func (s *SQLiteStorage) GetProjectProfile(ctx context.Context, projectID string) (*types.ProjectProfile, error) {
	var profile types.ProjectProfile
	var languagesJSON, topDirsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, root, module_path, languages, top_dirs,
		       has_tests, dependency_count, scanned_at
		FROM project_profiles
		WHERE project_id = ?
	`, projectID).Scan(&profile.ProjectID, &profile.Root, &profile.ModulePath,
		&languagesJSON, &topDirsJSON, &profile.HasTests,
		&profile.DependencyCount, &profile.ScannedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project profile: %w", err)
	}

	if err := json.Unmarshal([]byte(languagesJSON), &profile.Languages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal languages: %w", err)
	}
	if err := json.Unmarshal([]byte(topDirsJSON), &profile.TopDirs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top_dirs: %w", err)
	}

	return &profile, nil
}
