package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sparkengine/spark/internal/events"
)

// StoreEvent stores a new engine event in the database
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO engine_events (
			id, type, timestamp, session_id, run_id, actor, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Timestamp,
		event.SessionID,
		event.RunID,
		event.Actor,
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, session=%s): %w", event.Type, event.SessionID, err)
	}

	return nil
}

// insertEventConn inserts an event on an existing connection so mutations
// and their audit events commit atomically.
func insertEventConn(ctx context.Context, conn *sql.Conn, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO engine_events (
			id, type, timestamp, session_id, run_id, actor, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Type,
		event.Timestamp,
		event.SessionID,
		event.RunID,
		event.Actor,
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s): %w", event.Type, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, session_id, run_id, actor, severity, message, data
		FROM engine_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.BeforeTime)
	}

	// Order by timestamp descending (most recent first)
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetEventsBySession retrieves all events for a specific session
func (s *SQLiteStorage) GetEventsBySession(ctx context.Context, sessionID string) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, session_id, run_id, actor, severity, message, data
		FROM engine_events
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by session: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetRecentEvents retrieves the most recent events up to the specified limit
func (s *SQLiteStorage) GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, session_id, run_id, actor, severity, message, data
		FROM engine_events
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// scanEvents is a helper function to scan rows into Event structs
func (s *SQLiteStorage) scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var dataJSON string
		var timestamp time.Time

		err := rows.Scan(
			&event.ID,
			&event.Type,
			&timestamp,
			&event.SessionID,
			&event.RunID,
			&event.Actor,
			&event.Severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Timestamp = timestamp

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return result, nil
}
