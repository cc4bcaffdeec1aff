package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/types"
)

// CreateSession stores a new session together with its accepted goals.
// The session row, the goal rows, and the planning event are written in
// one transaction so a crash can never leave goals without a session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *types.Session, actor string) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	// Acquire a dedicated connection for the transaction.
	// This is necessary because we need to execute raw SQL ("BEGIN IMMEDIATE", "COMMIT")
	// on the same connection, and database/sql's connection pool would otherwise
	// use different connections for different queries.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE acquires the write lock up front so concurrent planners
	// serialize instead of failing mid-insert. The sqlite3 driver's BeginTx
	// always uses DEFERRED mode, hence the raw Exec.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Track commit state for defer cleanup.
	// Use context.Background() for ROLLBACK to ensure cleanup happens even if ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO sessions (id, state, risk, budget_minutes, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, session.ID, session.State, session.Risk,
		int(session.Budget.Minutes()), nullableString(session.Error), session.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i := range session.Goals {
		goal := &session.Goals[i]
		derivedJSON, err := json.Marshal(goal.DerivedFrom)
		if err != nil {
			return fmt.Errorf("failed to marshal derived_from: %w", err)
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO goals (id, session_id, derived_from, description, category, risk,
			                   estimated_cost_minutes, priority, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, goal.ID, session.ID, string(derivedJSON), goal.Description, goal.Category,
			goal.Risk, int(goal.EstimatedCost.Minutes()), goal.Priority, goal.Status, goal.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert goal %s: %w", goal.ID, err)
		}
	}

	event := &events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeSessionPlanned,
		Timestamp: time.Now(),
		SessionID: session.ID,
		Actor:     actor,
		Severity:  events.SeverityInfo,
		Message:   fmt.Sprintf("session planned with %d goals", len(session.Goals)),
	}
	if err := event.SetSessionPlannedData(events.SessionPlannedData{
		SessionID:     session.ID,
		GoalCount:     len(session.Goals),
		BudgetMinutes: int(session.Budget.Minutes()),
		Risk:          string(session.Risk),
	}); err != nil {
		return fmt.Errorf("failed to build planning event: %w", err)
	}
	if err := insertEventConn(ctx, conn, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// GetSession retrieves a session and its goals by ID
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var session types.Session
	var budgetMinutes int
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, risk, budget_minutes, error, started_at, completed_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&session.ID, &session.State, &session.Risk, &budgetMinutes,
		&errMsg, &session.StartedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Budget = time.Duration(budgetMinutes) * time.Minute
	if errMsg.Valid {
		session.Error = errMsg.String
	}
	session.CompletedAt = scanNullableTime(completedAt)

	goals, err := s.getGoalsForSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Goals = goals

	return &session, nil
}

// getGoalsForSession loads a session's goals ordered by priority
func (s *SQLiteStorage) getGoalsForSession(ctx context.Context, sessionID string) ([]types.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, derived_from, description, category, risk,
		       estimated_cost_minutes, priority, status, created_at
		FROM goals
		WHERE session_id = ?
		ORDER BY priority DESC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session goals: %w", err)
	}
	defer rows.Close()

	var goals []types.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goal rows: %w", err)
	}

	return goals, nil
}

// GetGoal retrieves a goal by ID
func (s *SQLiteStorage) GetGoal(ctx context.Context, id string) (*types.Goal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, derived_from, description, category, risk,
		       estimated_cost_minutes, priority, status, created_at
		FROM goals
		WHERE id = ?
	`, id)

	goal, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row rowScanner) (*types.Goal, error) {
	var goal types.Goal
	var derivedJSON string
	var costMinutes int

	err := row.Scan(&goal.ID, &derivedJSON, &goal.Description, &goal.Category,
		&goal.Risk, &costMinutes, &goal.Priority, &goal.Status, &goal.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	goal.EstimatedCost = time.Duration(costMinutes) * time.Minute
	if err := json.Unmarshal([]byte(derivedJSON), &goal.DerivedFrom); err != nil {
		return nil, fmt.Errorf("failed to unmarshal derived_from: %w", err)
	}

	return &goal, nil
}

// UpdateSessionState transitions a session to a new state, enforcing the
// session state machine. The current state is read and checked inside the
// same transaction that writes the new one, so concurrent writers cannot
// race an illegal transition past the check.
func (s *SQLiteStorage) UpdateSessionState(ctx context.Context, id string, state types.SessionState, errMsg, actor string) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid session state: %s", state)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var current types.SessionState
	err = conn.QueryRowContext(ctx, "SELECT state FROM sessions WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return types.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read session state: %w", err)
	}

	if !current.CanTransitionTo(state) {
		return fmt.Errorf("invalid session transition %s -> %s", current, state)
	}

	if state.IsTerminal() {
		_, err = conn.ExecContext(ctx, `
			UPDATE sessions SET state = ?, error = ?, completed_at = ? WHERE id = ?
		`, state, nullableString(errMsg), time.Now(), id)
	} else {
		_, err = conn.ExecContext(ctx, `
			UPDATE sessions SET state = ?, error = ? WHERE id = ?
		`, state, nullableString(errMsg), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}

	severity := events.SeverityInfo
	if state == types.SessionFailed {
		severity = events.SeverityError
	} else if state == types.SessionCancelled {
		severity = events.SeverityWarning
	}

	event := &events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeSessionStateChange,
		Timestamp: time.Now(),
		SessionID: id,
		Actor:     actor,
		Severity:  severity,
		Message:   fmt.Sprintf("session %s -> %s", current, state),
	}
	if err := event.SetSessionStateChangeData(events.SessionStateChangeData{
		SessionID: id,
		FromState: string(current),
		ToState:   string(state),
		Reason:    errMsg,
	}); err != nil {
		return fmt.Errorf("failed to build transition event: %w", err)
	}
	if err := insertEventConn(ctx, conn, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// ListSessions retrieves sessions ordered most recent first
func (s *SQLiteStorage) ListSessions(ctx context.Context, limit int) ([]*types.Session, error) {
	query := `
		SELECT id FROM sessions ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.loadSessionsByQuery(ctx, query, args...)
}

// GetActiveSessions retrieves sessions that are not yet terminal
func (s *SQLiteStorage) GetActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return s.loadSessionsByQuery(ctx, `
		SELECT id FROM sessions
		WHERE state IN ('planning', 'running')
		ORDER BY started_at ASC
	`)
}

func (s *SQLiteStorage) loadSessionsByQuery(ctx context.Context, query string, args ...interface{}) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	var sessions []*types.Session
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if session != nil {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

// CreateRun stores a new run in its initial state
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.Run, actor string) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, goal_id, state, metrics, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SessionID, run.GoalID, run.State, string(metricsJSON), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	event := &events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeRunStateChange,
		Timestamp: time.Now(),
		SessionID: run.SessionID,
		RunID:     run.ID,
		Actor:     actor,
		Severity:  events.SeverityInfo,
		Message:   fmt.Sprintf("run created for goal %s", run.GoalID),
	}
	if err := event.SetRunStateChangeData(events.RunStateChangeData{
		RunID:   run.ID,
		GoalID:  run.GoalID,
		ToState: string(run.State),
	}); err != nil {
		return fmt.Errorf("failed to build creation event: %w", err)
	}
	if err := insertEventConn(ctx, conn, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, goal_id, state, artifact_id, error_kind, error_json,
		       metrics, started_at, completed_at
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func scanRun(row rowScanner) (*types.Run, error) {
	var run types.Run
	var artifactID, errorKind, errorJSON sql.NullString
	var metricsJSON string
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.SessionID, &run.GoalID, &run.State,
		&artifactID, &errorKind, &errorJSON, &metricsJSON,
		&run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if artifactID.Valid {
		run.ArtifactRef = artifactID.String
	}
	run.CompletedAt = scanNullableTime(completedAt)

	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if errorJSON.Valid && errorJSON.String != "" {
		run.Error = &types.RunError{}
		if err := json.Unmarshal([]byte(errorJSON.String), run.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run error: %w", err)
		}
	}

	return &run, nil
}

// UpdateRunState transitions a run to a new state, enforcing the run state
// machine inside the transaction. Terminal states set completed_at; the
// structured error, if any, is persisted alongside.
func (s *SQLiteStorage) UpdateRunState(ctx context.Context, id string, state types.RunState, runErr *types.RunError, actor string) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid run state: %s", state)
	}
	if runErr != nil {
		if err := runErr.Validate(); err != nil {
			return fmt.Errorf("invalid run error: %w", err)
		}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var current types.RunState
	var sessionID, goalID string
	err = conn.QueryRowContext(ctx, "SELECT state, session_id, goal_id FROM runs WHERE id = ?", id).
		Scan(&current, &sessionID, &goalID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read run state: %w", err)
	}

	if !current.CanTransitionTo(state) {
		return fmt.Errorf("invalid run transition %s -> %s", current, state)
	}

	var errorKind, errorJSON interface{}
	if runErr != nil {
		data, err := json.Marshal(runErr)
		if err != nil {
			return fmt.Errorf("failed to marshal run error: %w", err)
		}
		errorKind = string(runErr.Kind)
		errorJSON = string(data)
	}

	if state.IsTerminal() {
		_, err = conn.ExecContext(ctx, `
			UPDATE runs SET state = ?, error_kind = ?, error_json = ?, completed_at = ? WHERE id = ?
		`, state, errorKind, errorJSON, time.Now(), id)
	} else {
		_, err = conn.ExecContext(ctx, `
			UPDATE runs SET state = ?, error_kind = ?, error_json = ? WHERE id = ?
		`, state, errorKind, errorJSON, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}

	severity := events.SeverityInfo
	switch state {
	case types.RunFailed, types.RunTimedOut:
		severity = events.SeverityError
	case types.RunCancelled:
		severity = events.SeverityWarning
	}

	data := events.RunStateChangeData{
		RunID:     id,
		GoalID:    goalID,
		FromState: string(current),
		ToState:   string(state),
	}
	if runErr != nil {
		data.ErrorKind = string(runErr.Kind)
		data.Detail = runErr.Detail
	}

	event := &events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeRunStateChange,
		Timestamp: time.Now(),
		SessionID: sessionID,
		RunID:     id,
		Actor:     actor,
		Severity:  severity,
		Message:   fmt.Sprintf("run %s -> %s", current, state),
	}
	if err := event.SetRunStateChangeData(data); err != nil {
		return fmt.Errorf("failed to build transition event: %w", err)
	}
	if err := insertEventConn(ctx, conn, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// UpdateRunMetrics replaces a run's metrics snapshot. Called after each
// stage so partial metrics survive failures.
func (s *SQLiteStorage) UpdateRunMetrics(ctx context.Context, id string, metrics types.RunMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET metrics = ? WHERE id = ?
	`, string(metricsJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update run metrics: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// SetRunArtifact links a stored artifact to its run
func (s *SQLiteStorage) SetRunArtifact(ctx context.Context, runID, artifactID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET artifact_id = ? WHERE id = ?
	`, artifactID, runID)
	if err != nil {
		return fmt.Errorf("failed to set run artifact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// ListRunsBySession retrieves all runs for a session in creation order
func (s *SQLiteStorage) ListRunsBySession(ctx context.Context, sessionID string) ([]*types.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, goal_id, state, artifact_id, error_kind, error_json,
		       metrics, started_at, completed_at
		FROM runs
		WHERE session_id = ?
		ORDER BY started_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by session: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// GetIncompleteRuns retrieves runs stranded in non-terminal states, used
// by crash recovery and `spark doctor`.
func (s *SQLiteStorage) GetIncompleteRuns(ctx context.Context) ([]*types.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, goal_id, state, artifact_id, error_kind, error_json,
		       metrics, started_at, completed_at
		FROM runs
		WHERE state IN ('pending', 'generating', 'executing', 'validating')
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]*types.Run, error) {
	var result []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}

// GetCategoryDurations returns the average wall time of succeeded runs per
// goal category. Used to refine cost estimates for future goals.
func (s *SQLiteStorage) GetCategoryDurations(ctx context.Context) (map[types.GoalCategory]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.category,
		       AVG((julianday(r.completed_at) - julianday(r.started_at)) * 86400.0)
		FROM runs r
		JOIN goals g ON r.goal_id = g.id
		WHERE r.state = 'succeeded' AND r.completed_at IS NOT NULL
		GROUP BY g.category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category durations: %w", err)
	}
	defer rows.Close()

	result := make(map[types.GoalCategory]time.Duration)
	for rows.Next() {
		var category types.GoalCategory
		var seconds float64
		if err := rows.Scan(&category, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan category duration: %w", err)
		}
		result[category] = time.Duration(seconds * float64(time.Second))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duration rows: %w", err)
	}

	return result, nil
}

// nullableString maps "" to NULL for TEXT columns that are NULL when unset
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
