// Package ingest turns raw developer activity into normalized
// observations for the confidence model. It hosts the observation
// sources: a filesystem watcher, a git history scanner, a project
// profiler, and a test run reporter. Sources never write to storage
// themselves; they hand observations to the engine, which owns ingest
// order.
package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sparkengine/spark/internal/types"
)

// Normalizer stamps raw source payloads into validated observations.
// Every observation it produces carries a fresh ID, the configured
// project, and a timestamp, so sources only have to describe what
// happened.
type Normalizer struct {
	projectID string
	now       func() time.Time
}

// NewNormalizer creates a normalizer for the given project.
func NewNormalizer(projectID string) *Normalizer {
	return &Normalizer{
		projectID: projectID,
		now:       time.Now,
	}
}

// Normalize builds an observation stamped with the current time.
// A payload type no source kind matches is ErrUnrecognizedObservation,
// which callers log as a warning and drop.
func (n *Normalizer) Normalize(payload any) (*types.Observation, error) {
	return n.NormalizeAt(payload, n.now())
}

// NormalizeAt builds an observation stamped with an explicit time.
// The git scanner uses it so replayed commits keep their commit time
// instead of the scan time.
func (n *Normalizer) NormalizeAt(payload any, at time.Time) (*types.Observation, error) {
	obs := &types.Observation{
		ID:        uuid.New().String(),
		Timestamp: at,
		ProjectID: n.projectID,
	}

	switch p := payload.(type) {
	case *types.CommitPayload:
		obs.Source = types.SourceCommit
		obs.Commit = p
	case *types.FileChangePayload:
		obs.Source = types.SourceFileChange
		obs.FileChange = p
	case *types.TestRunPayload:
		obs.Source = types.SourceTestRun
		obs.TestRun = p
	default:
		return nil, fmt.Errorf("%w: payload type %T", types.ErrUnrecognizedObservation, payload)
	}

	if err := obs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observation: %w", err)
	}
	return obs, nil
}
