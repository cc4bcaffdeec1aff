package types

import (
	"fmt"
	"time"
)

// ArtifactFile is one file within a generated artifact.
type ArtifactFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Artifact is the code produced by the generation capability for one
// goal. The run records its ID as artifact_ref; the files themselves
// are materialized into the run's sandbox before execution.
type Artifact struct {
	ID         string         `json:"id"`
	GoalID     string         `json:"goal_id"`
	Language   string         `json:"language,omitempty"`
	EntryPoint string         `json:"entry_point"`
	Files      []ArtifactFile `json:"files"`
	Summary    string         `json:"summary,omitempty"`
	NewDeps    []string       `json:"new_deps,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks if the artifact has valid field values
func (a *Artifact) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.GoalID == "" {
		return fmt.Errorf("goal_id is required")
	}
	if len(a.Files) == 0 {
		return fmt.Errorf("artifact requires at least one file")
	}
	if a.EntryPoint == "" {
		return fmt.Errorf("entry_point is required")
	}
	found := false
	for i, f := range a.Files {
		if f.Path == "" {
			return fmt.Errorf("file %d: path is required", i)
		}
		if f.Path == a.EntryPoint {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("entry_point %q not among artifact files", a.EntryPoint)
	}
	return nil
}

// TotalBytes returns the combined size of all artifact files.
func (a *Artifact) TotalBytes() int {
	n := 0
	for _, f := range a.Files {
		n += len(f.Content)
	}
	return n
}
