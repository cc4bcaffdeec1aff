package types

import (
	"fmt"
	"time"
)

// IntegrationDifficulty estimates how hard it would be to fold a
// discovery's artifact into the target project. Advisory only; it
// annotates curation, never blocks it.
type IntegrationDifficulty string

const (
	DifficultyTrivial  IntegrationDifficulty = "trivial"  // Small, additive-only, no new dependencies
	DifficultyModerate IntegrationDifficulty = "moderate" // Touches existing code or adds a dependency
	DifficultyRisky    IntegrationDifficulty = "risky"    // Large or invasive relative to the project
)

// IsValid checks if the integration difficulty value is valid
func (d IntegrationDifficulty) IsValid() bool {
	switch d {
	case DifficultyTrivial, DifficultyModerate, DifficultyRisky:
		return true
	}
	return false
}

// ActionabilityWeight maps difficulty to the inverse-difficulty factor
// used in value scoring: easier integration scores higher.
func (d IntegrationDifficulty) ActionabilityWeight() float64 {
	switch d {
	case DifficultyTrivial:
		return 1.0
	case DifficultyModerate:
		return 0.6
	case DifficultyRisky:
		return 0.3
	default:
		return 0.3
	}
}

// Feedback is one user rating of a discovery. Rows are append-only;
// a discovery reflects its latest row.
type Feedback struct {
	DiscoveryID string    `json:"discovery_id"`
	Rating      int       `json:"rating"` // 1 (useless) .. 5 (excellent)
	Note        string    `json:"note,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Validate checks if the feedback has valid field values
func (f *Feedback) Validate() error {
	if f.DiscoveryID == "" {
		return fmt.Errorf("discovery_id is required")
	}
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5 (got %d)", f.Rating)
	}
	return nil
}

// Discovery is a curated, ranked artifact derived from a successfully
// validated run. Derived read-only from the run; user_feedback is the
// only externally mutable field. The run reference is non-owning and
// used for lookup only, never for lifecycle.
type Discovery struct {
	ID           string                `json:"id"`
	RunID        string                `json:"run_id"`
	SessionID    string                `json:"session_id"`
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	Category     GoalCategory          `json:"category"`
	DerivedFrom  []string              `json:"derived_from,omitempty"`
	ValueScore   float64               `json:"value_score"`
	NoveltyScore float64               `json:"novelty_score"`
	Difficulty   IntegrationDifficulty `json:"integration_difficulty"`
	DedupGroupID string                `json:"dedup_group_id"`
	Featured     bool                  `json:"featured"`
	UserFeedback *Feedback             `json:"user_feedback,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Validate checks if the discovery has valid field values
func (d *Discovery) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !d.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", d.Category)
	}
	if d.ValueScore < 0 || d.ValueScore > 1 {
		return fmt.Errorf("value_score must be in [0,1] (got %f)", d.ValueScore)
	}
	if d.NoveltyScore < 0 || d.NoveltyScore > 1 {
		return fmt.Errorf("novelty_score must be in [0,1] (got %f)", d.NoveltyScore)
	}
	if !d.Difficulty.IsValid() {
		return fmt.Errorf("invalid integration_difficulty: %s", d.Difficulty)
	}
	if d.DedupGroupID == "" {
		return fmt.Errorf("dedup_group_id is required")
	}
	if d.UserFeedback != nil {
		if err := d.UserFeedback.Validate(); err != nil {
			return fmt.Errorf("user_feedback: %w", err)
		}
	}
	return nil
}

// DiscoveryFilter is used to filter discovery queries
type DiscoveryFilter struct {
	Category     *GoalCategory
	MinValue     *float64
	FeaturedOnly bool
	SessionID    string
	Since        *time.Time
	Limit        int
}
