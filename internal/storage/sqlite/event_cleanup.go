package sqlite

import (
	"context"
	"fmt"
	"time"
)

// EventCounts holds event count statistics for monitoring
type EventCounts struct {
	TotalEvents      int
	EventsBySession  map[string]int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// CleanupEventsByAge deletes events older than the retention period.
// Regular events are deleted after retentionDays, critical events after
// criticalRetentionDays. Deletions are batched for performance.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0

	regularCutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.deleteEventsBatched(ctx, batchSize, `
		DELETE FROM engine_events
		WHERE id IN (
			SELECT id FROM engine_events
			WHERE timestamp < ?
			AND severity IN ('info', 'warning')
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, regularCutoff)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	totalDeleted += deleted

	// Critical events keep their own, typically longer, retention
	criticalCutoff := time.Now().AddDate(0, 0, -criticalRetentionDays)
	deleted, err = s.deleteEventsBatched(ctx, batchSize, `
		DELETE FROM engine_events
		WHERE id IN (
			SELECT id FROM engine_events
			WHERE timestamp < ?
			AND severity IN ('error', 'critical')
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, criticalCutoff)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}
	totalDeleted += deleted

	return totalDeleted, nil
}

// deleteEventsBatched runs a parameterized batch delete until it stops
// making progress. The query must end with a LIMIT ? placeholder that
// receives the batch size.
func (s *SQLiteStorage) deleteEventsBatched(ctx context.Context, batchSize int, query string, args ...interface{}) (int, error) {
	totalDeleted := 0

	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		batchArgs := append(append([]interface{}{}, args...), batchSize)
		result, err := s.db.ExecContext(ctx, query, batchArgs...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}

		totalDeleted += int(rowsAffected)

		if rowsAffected < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// CleanupEventsBySessionLimit enforces per-session event limits. For each
// session with more than perSessionLimit events, the oldest non-critical
// events are deleted. Error and critical events are exempt.
func (s *SQLiteStorage) CleanupEventsBySessionLimit(ctx context.Context, perSessionLimit, batchSize int) (int, error) {
	if perSessionLimit < 0 {
		return 0, fmt.Errorf("per-session limit cannot be negative")
	}
	if perSessionLimit == 0 {
		// 0 means unlimited
		return 0, nil
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*) as event_count
		FROM engine_events
		WHERE session_id != ''
		GROUP BY session_id
		HAVING event_count > ?
	`, perSessionLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to query session event counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type sessionCount struct {
		sessionID string
		count     int
	}
	var over []sessionCount

	for rows.Next() {
		var sc sessionCount
		if err := rows.Scan(&sc.sessionID, &sc.count); err != nil {
			return 0, fmt.Errorf("failed to scan session count: %w", err)
		}
		over = append(over, sc)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating session counts: %w", err)
	}

	totalDeleted := 0
	for _, sc := range over {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		excess := sc.count - perSessionLimit
		if excess <= 0 {
			continue
		}

		deleted, err := s.deleteOldestForSession(ctx, sc.sessionID, excess, batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete events for session %s: %w", sc.sessionID, err)
		}
		totalDeleted += deleted
	}

	return totalDeleted, nil
}

// deleteOldestForSession deletes up to count of the oldest non-critical
// events for one session, in batches.
func (s *SQLiteStorage) deleteOldestForSession(ctx context.Context, sessionID string, count, batchSize int) (int, error) {
	totalDeleted := 0
	remaining := count

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		limitThisBatch := batchSize
		if remaining < batchSize {
			limitThisBatch = remaining
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM engine_events
			WHERE id IN (
				SELECT id FROM engine_events
				WHERE session_id = ?
				AND severity NOT IN ('error', 'critical')
				ORDER BY timestamp ASC
				LIMIT ?
			)
		`, sessionID, limitThisBatch)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}

		totalDeleted += int(rowsAffected)
		remaining -= int(rowsAffected)

		// No more non-critical events left to delete
		if rowsAffected < int64(limitThisBatch) {
			break
		}
	}

	return totalDeleted, nil
}

// CleanupEventsByGlobalLimit enforces a global event count limit. When the
// total count exceeds the limit, oldest non-critical events are deleted.
func (s *SQLiteStorage) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 1 {
		return 0, fmt.Errorf("global limit must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	var currentCount int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_events").Scan(&currentCount)
	if err != nil {
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}

	if currentCount <= globalLimit {
		return 0, nil
	}

	excess := currentCount - globalLimit
	totalDeleted := 0

	for excess > 0 {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		limitThisBatch := batchSize
		if excess < batchSize {
			limitThisBatch = excess
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM engine_events
			WHERE id IN (
				SELECT id FROM engine_events
				WHERE severity NOT IN ('error', 'critical')
				ORDER BY timestamp ASC
				LIMIT ?
			)
		`, limitThisBatch)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}

		totalDeleted += int(rowsAffected)
		excess -= int(rowsAffected)

		if rowsAffected < int64(limitThisBatch) {
			break
		}
	}

	return totalDeleted, nil
}

// GetEventCounts returns detailed event count statistics for monitoring
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{
		EventsBySession:  make(map[string]int),
		EventsBySeverity: make(map[string]int),
		EventsByType:     make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_events").Scan(&counts.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*)
		FROM engine_events
		WHERE session_id != ''
		GROUP BY session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sessionID string
		var count int
		if err := rows.Scan(&sessionID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		counts.EventsBySession[sessionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*)
		FROM engine_events
		GROUP BY severity
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by severity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts.EventsBySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating severity counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM engine_events
		GROUP BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts.EventsByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}

	return counts, nil
}

// VacuumDatabase runs the VACUUM command to reclaim disk space.
// This can be slow and locks the database, so it should be run during
// maintenance windows.
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
