// Package generator produces runnable artifacts for exploration goals.
//
// Two implementations ship. AnthropicGenerator calls the Anthropic API
// with retry, rate limiting, circuit breaking, and hourly cost
// tracking. TemplateGenerator renders deterministic artifacts offline
// and is the default in tests and when no API key is configured.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// GenerationErrorKind classifies generation failures so the run state
// machine can map them onto terminal run states.
type GenerationErrorKind string

const (
	// KindUnavailable means the capability cannot serve requests right
	// now: missing credentials, open circuit, exhausted retries, or an
	// exhausted cost budget.
	KindUnavailable GenerationErrorKind = "unavailable"

	// KindTimeout means the request ran out of time.
	KindTimeout GenerationErrorKind = "timeout"

	// KindRejected means the capability answered but the response was
	// unusable: unparseable, structurally invalid, or over the caller's
	// size limits.
	KindRejected GenerationErrorKind = "rejected"
)

// GenerationError is the structured failure type returned by
// Generator implementations.
type GenerationError struct {
	Kind   GenerationErrorKind
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("generation %s: %s", e.Kind, e.Detail)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AsGenerationError unwraps err to a *GenerationError if one is in the
// chain.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// GenerationRequest carries everything a generator needs to produce an
// artifact for one goal: the goal itself, the patterns it was derived
// from, the project's observed shape, and the caller's size and time
// limits.
type GenerationRequest struct {
	// Goal is the accepted exploration goal to realize. Required.
	Goal *types.Goal

	// Patterns are the behavioral patterns the goal derives from,
	// provided as context so generated code can match observed habits.
	Patterns []*types.Pattern

	// Profile is the project's observed shape. Optional.
	Profile *types.ProjectProfile

	// MaxFiles caps the number of files in the artifact. 0 = no cap.
	MaxFiles int

	// MaxBytes caps the artifact's total content size. 0 = no cap.
	MaxBytes int

	// ExecutionBudget is how long the artifact will be allowed to run,
	// so generators can size the work accordingly.
	ExecutionBudget time.Duration
}

// Validate checks that the request is usable.
func (r *GenerationRequest) Validate() error {
	if r.Goal == nil {
		return fmt.Errorf("goal is required")
	}
	if r.Goal.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	if r.Goal.Description == "" {
		return fmt.Errorf("goal description is required")
	}
	if r.MaxFiles < 0 {
		return fmt.Errorf("max_files must be non-negative, got %d", r.MaxFiles)
	}
	if r.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must be non-negative, got %d", r.MaxBytes)
	}
	return nil
}

// Generator turns an exploration goal into a runnable artifact.
type Generator interface {
	// Generate produces an artifact for the request. Failures are
	// reported as *GenerationError so callers can distinguish an
	// unavailable capability from a rejected response.
	Generate(ctx context.Context, req GenerationRequest) (*types.Artifact, error)

	// Available reports whether the generator can currently serve
	// requests. A non-nil error carries the reason.
	Available(ctx context.Context) error
}
