package sqlite

const schema = `
-- Observations table (append-only)
CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL CHECK(source IN ('commit', 'file_change', 'test_run')),
    timestamp DATETIME NOT NULL,
    project_id TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(source);
CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON observations(timestamp);
CREATE INDEX IF NOT EXISTS idx_observations_project ON observations(project_id);

-- Patterns table
CREATE TABLE IF NOT EXISTS patterns (
    key TEXT PRIMARY KEY,
    category TEXT NOT NULL CHECK(category IN ('language', 'style', 'workflow', 'interest')),
    label TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    sample_count INTEGER NOT NULL DEFAULT 0 CHECK(sample_count >= 0),
    first_seen DATETIME NOT NULL,
    last_seen DATETIME NOT NULL,
    evidence TEXT NOT NULL DEFAULT '[]',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_patterns_category ON patterns(category);
CREATE INDEX IF NOT EXISTS idx_patterns_confidence ON patterns(confidence);
CREATE INDEX IF NOT EXISTS idx_patterns_last_seen ON patterns(last_seen);

-- Sessions table
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL DEFAULT 'planning' CHECK(state IN ('planning', 'running', 'completed', 'failed', 'cancelled')),
    risk TEXT NOT NULL DEFAULT 'balanced' CHECK(risk IN ('conservative', 'balanced', 'experimental')),
    budget_minutes INTEGER NOT NULL DEFAULT 0 CHECK(budget_minutes >= 0),
    error TEXT,
    started_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

-- Goals table
-- session_id is set when a proposed goal is accepted into a session
CREATE TABLE IF NOT EXISTS goals (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    derived_from TEXT NOT NULL DEFAULT '[]',
    description TEXT NOT NULL CHECK(length(description) <= 1000),
    category TEXT NOT NULL,
    risk TEXT NOT NULL,
    estimated_cost_minutes INTEGER NOT NULL DEFAULT 0 CHECK(estimated_cost_minutes >= 0),
    priority REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'proposed' CHECK(status IN ('proposed', 'accepted', 'rejected')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_goals_session ON goals(session_id);
CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
CREATE INDEX IF NOT EXISTS idx_goals_category ON goals(category);

-- Runs table
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    goal_id TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending', 'generating', 'executing', 'validating', 'succeeded', 'failed', 'timed_out', 'cancelled')),
    artifact_id TEXT,
    error_kind TEXT,
    error_json TEXT,
    metrics TEXT NOT NULL DEFAULT '{}',
    started_at DATETIME,
    completed_at DATETIME,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
    FOREIGN KEY (goal_id) REFERENCES goals(id)
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_goal ON runs(goal_id);

-- Artifacts table
CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    goal_id TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    entry_point TEXT NOT NULL DEFAULT '',
    files TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL DEFAULT '',
    new_deps TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artifacts_goal ON artifacts(goal_id);

-- Discoveries table
CREATE TABLE IF NOT EXISTS discoveries (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    derived_from TEXT NOT NULL DEFAULT '[]',
    value_score REAL NOT NULL DEFAULT 0 CHECK(value_score >= 0 AND value_score <= 1),
    novelty_score REAL NOT NULL DEFAULT 0 CHECK(novelty_score >= 0 AND novelty_score <= 1),
    difficulty TEXT NOT NULL DEFAULT 'moderate' CHECK(difficulty IN ('trivial', 'moderate', 'risky')),
    dedup_group_id TEXT,
    featured INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_discoveries_session ON discoveries(session_id);
CREATE INDEX IF NOT EXISTS idx_discoveries_value ON discoveries(value_score);
CREATE INDEX IF NOT EXISTS idx_discoveries_dedup ON discoveries(dedup_group_id);
CREATE INDEX IF NOT EXISTS idx_discoveries_created_at ON discoveries(created_at);

-- Feedback table (append-only; latest rating per discovery wins)
CREATE TABLE IF NOT EXISTS feedback (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    discovery_id TEXT NOT NULL,
    rating INTEGER NOT NULL CHECK(rating >= 1 AND rating <= 5),
    note TEXT NOT NULL DEFAULT '',
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (discovery_id) REFERENCES discoveries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_feedback_discovery ON feedback(discovery_id);

-- Project profiles table
CREATE TABLE IF NOT EXISTS project_profiles (
    project_id TEXT PRIMARY KEY,
    root TEXT NOT NULL,
    module_path TEXT NOT NULL DEFAULT '',
    languages TEXT NOT NULL DEFAULT '[]',
    top_dirs TEXT NOT NULL DEFAULT '[]',
    has_tests INTEGER NOT NULL DEFAULT 0,
    dependency_count INTEGER NOT NULL DEFAULT 0,
    scanned_at DATETIME NOT NULL
);

-- Engine events table (audit trail)
CREATE TABLE IF NOT EXISTS engine_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    run_id TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL,
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error', 'critical')),
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_engine_events_session ON engine_events(session_id);
CREATE INDEX IF NOT EXISTS idx_engine_events_type ON engine_events(type);
CREATE INDEX IF NOT EXISTS idx_engine_events_severity ON engine_events(severity);
CREATE INDEX IF NOT EXISTS idx_engine_events_timestamp ON engine_events(timestamp);
`
