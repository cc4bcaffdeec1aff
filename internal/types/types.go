package types

import (
	"fmt"
	"time"
)

// ObservationSource identifies the kind of developer activity an
// observation was derived from.
type ObservationSource string

const (
	SourceCommit     ObservationSource = "commit"
	SourceFileChange ObservationSource = "file_change"
	SourceTestRun    ObservationSource = "test_run"
)

// IsValid checks if the observation source value is valid
func (s ObservationSource) IsValid() bool {
	switch s {
	case SourceCommit, SourceFileChange, SourceTestRun:
		return true
	}
	return false
}

// Observation is one normalized record of developer activity.
// Observations are immutable once created and form an append-only log;
// nothing in the system mutates or deletes them after ingest.
//
// The payload is a tagged variant: exactly one of Commit, FileChange,
// or TestRun is set, matching Source. This keeps extraction logic
// exhaustively checkable instead of fishing in an untyped map.
type Observation struct {
	ID        string            `json:"id"`
	Source    ObservationSource `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	ProjectID string            `json:"project_id"`

	Commit     *CommitPayload     `json:"commit,omitempty"`
	FileChange *FileChangePayload `json:"file_change,omitempty"`
	TestRun    *TestRunPayload    `json:"test_run,omitempty"`
}

// Validate checks if the observation has valid field values and that
// the payload variant matches the declared source.
func (o *Observation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !o.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", o.Source)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if o.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}

	set := 0
	if o.Commit != nil {
		set++
	}
	if o.FileChange != nil {
		set++
	}
	if o.TestRun != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one payload must be set (got %d)", set)
	}

	switch o.Source {
	case SourceCommit:
		if o.Commit == nil {
			return fmt.Errorf("commit payload required for source %s", o.Source)
		}
	case SourceFileChange:
		if o.FileChange == nil {
			return fmt.Errorf("file_change payload required for source %s", o.Source)
		}
	case SourceTestRun:
		if o.TestRun == nil {
			return fmt.Errorf("test_run payload required for source %s", o.Source)
		}
	}
	return nil
}

// FileStat records per-file churn within a commit.
type FileStat struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// CommitPayload is the observation payload for a version-control commit.
type CommitPayload struct {
	Hash       string     `json:"hash"`
	Message    string     `json:"message"`
	Branch     string     `json:"branch,omitempty"`
	Author     string     `json:"author,omitempty"`
	Files      []FileStat `json:"files,omitempty"`
	Insertions int        `json:"insertions"`
	Deletions  int        `json:"deletions"`
}

// FileChangeOp is the kind of filesystem change observed.
type FileChangeOp string

const (
	FileCreated  FileChangeOp = "created"
	FileModified FileChangeOp = "modified"
	FileDeleted  FileChangeOp = "deleted"
)

// IsValid checks if the file change operation value is valid
func (o FileChangeOp) IsValid() bool {
	switch o {
	case FileCreated, FileModified, FileDeleted:
		return true
	}
	return false
}

// FileChangePayload is the observation payload for a single file event.
type FileChangePayload struct {
	Path      string       `json:"path"`
	Op        FileChangeOp `json:"op"`
	SizeBytes int64        `json:"size_bytes,omitempty"`
	Extension string       `json:"extension,omitempty"`
}

// TestRunPayload is the observation payload for a test suite execution.
type TestRunPayload struct {
	Framework string        `json:"framework,omitempty"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// PatternCategory classifies what aspect of developer behavior a
// pattern describes.
type PatternCategory string

const (
	CategoryLanguage PatternCategory = "language"
	CategoryStyle    PatternCategory = "style"
	CategoryWorkflow PatternCategory = "workflow"
	CategoryInterest PatternCategory = "interest"
)

// IsValid checks if the pattern category value is valid
func (c PatternCategory) IsValid() bool {
	switch c {
	case CategoryLanguage, CategoryStyle, CategoryWorkflow, CategoryInterest:
		return true
	}
	return false
}

// AllPatternCategories returns every valid category, in display order.
func AllPatternCategories() []PatternCategory {
	return []PatternCategory{CategoryLanguage, CategoryStyle, CategoryWorkflow, CategoryInterest}
}

// ConfidenceLevel buckets a raw confidence score for display and
// threshold checks.
type ConfidenceLevel string

const (
	ConfidenceVeryLow     ConfidenceLevel = "very_low"
	ConfidenceLow         ConfidenceLevel = "low"
	ConfidenceModerate    ConfidenceLevel = "moderate"
	ConfidenceHigh        ConfidenceLevel = "high"
	ConfidenceVeryHigh    ConfidenceLevel = "very_high"
	ConfidenceExceptional ConfidenceLevel = "exceptional"
)

// LevelForConfidence maps a [0,1] confidence score to its display level.
func LevelForConfidence(score float64) ConfidenceLevel {
	switch {
	case score < 0.3:
		return ConfidenceVeryLow
	case score < 0.5:
		return ConfidenceLow
	case score < 0.7:
		return ConfidenceModerate
	case score < 0.85:
		return ConfidenceHigh
	case score < 0.95:
		return ConfidenceVeryHigh
	default:
		return ConfidenceExceptional
	}
}

// Evidence is one entry in a pattern's bounded evidence window: an
// observation that supported (or contradicted, via low weight) the
// pattern, with the extraction strength it carried.
type Evidence struct {
	ObservationID string    `json:"observation_id"`
	Weight        float64   `json:"weight"`
	SeenAt        time.Time `json:"seen_at"`
}

// Pattern is a scored, decaying belief about one habitual developer
// behavior. Patterns are created on first matching observation and
// never deleted; confidence only decays toward zero when unreinforced.
// Confidence is derived exclusively by the confidence model from the
// sample count and evidence consistency; callers never set it
// directly.
type Pattern struct {
	Key            string          `json:"key"`
	Category       PatternCategory `json:"category"`
	Label          string          `json:"label,omitempty"`
	Confidence     float64         `json:"confidence"`
	SampleCount    int             `json:"sample_count"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	EvidenceWindow []Evidence      `json:"evidence_window,omitempty"`
}

// Level returns the display bucket for the pattern's current confidence.
func (p *Pattern) Level() ConfidenceLevel {
	return LevelForConfidence(p.Confidence)
}

// Validate checks if the pattern has valid field values
func (p *Pattern) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", p.Category)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1] (got %f)", p.Confidence)
	}
	if p.SampleCount < 0 {
		return fmt.Errorf("sample_count cannot be negative (got %d)", p.SampleCount)
	}
	for i, ev := range p.EvidenceWindow {
		if ev.ObservationID == "" {
			return fmt.Errorf("evidence[%d]: observation_id is required", i)
		}
		if ev.Weight < 0 || ev.Weight > 1 {
			return fmt.Errorf("evidence[%d]: weight must be in [0,1] (got %f)", i, ev.Weight)
		}
	}
	return nil
}

// PatternFilter is used to filter pattern queries
type PatternFilter struct {
	Category      *PatternCategory
	MinConfidence *float64
	Limit         int
}

// ObservationFilter is used to filter observation queries
type ObservationFilter struct {
	Source    *ObservationSource
	ProjectID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Statistics provides aggregate counts across the whole engine state,
// shown by `spark status`.
type Statistics struct {
	TotalObservations   int                     `json:"total_observations"`
	TotalPatterns       int                     `json:"total_patterns"`
	PatternsByCategory  map[PatternCategory]int `json:"patterns_by_category"`
	ReadyPatterns       int                     `json:"ready_patterns"`
	AverageConfidence   float64                 `json:"average_confidence"`
	TotalSessions       int                     `json:"total_sessions"`
	ActiveSessions      int                     `json:"active_sessions"`
	TotalRuns           int                     `json:"total_runs"`
	RunsByState         map[RunState]int        `json:"runs_by_state"`
	TotalDiscoveries    int                     `json:"total_discoveries"`
	FeaturedDiscoveries int                     `json:"featured_discoveries"`
}

// ProjectProfile summarizes the observed project's shape. It seeds
// goal generation context (languages, test presence) and is refreshed
// by the project scanner rather than maintained incrementally.
type ProjectProfile struct {
	ProjectID       string    `json:"project_id"`
	Root            string    `json:"root"`
	ModulePath      string    `json:"module_path,omitempty"`
	Languages       []string  `json:"languages,omitempty"`
	TopDirs         []string  `json:"top_dirs,omitempty"`
	HasTests        bool      `json:"has_tests"`
	DependencyCount int       `json:"dependency_count"`
	ScannedAt       time.Time `json:"scanned_at"`
}
