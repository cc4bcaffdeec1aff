// Package validator checks generated artifacts after execution and
// decides whether a run succeeded. All checks are static scans over
// the artifact source plus the recorded execution outcome; nothing is
// re-executed here. Each check contributes a weighted score and a run
// passes when the combined score clears the configured threshold with
// no hard issues raised.
package validator

import (
	"context"
	"fmt"
	"math"

	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
)

// SafetyLevel classifies how risky an artifact's source looks.
type SafetyLevel string

const (
	SafetySafe    SafetyLevel = "safe"
	SafetyCaution SafetyLevel = "caution"
	SafetyUnsafe  SafetyLevel = "unsafe"
)

// IsValid checks if the safety level value is valid
func (l SafetyLevel) IsValid() bool {
	switch l {
	case SafetySafe, SafetyCaution, SafetyUnsafe:
		return true
	}
	return false
}

// CheckType identifies the individual validation checks
type CheckType string

const (
	CheckSafety       CheckType = "safety"
	CheckStructure    CheckType = "structure"
	CheckQuality      CheckType = "quality"
	CheckCompleteness CheckType = "completeness"
	CheckExecution    CheckType = "execution"
)

// CheckResult is the outcome of one validation check. Issues are hard
// violations that block a pass; warnings are advisory only.
type CheckResult struct {
	Check    CheckType
	Score    float64
	Passed   bool
	Issues   []string
	Warnings []string
}

// Report aggregates every check for one artifact and execution.
type Report struct {
	Score       float64
	Passed      bool
	SafetyLevel SafetyLevel
	Checks      []CheckResult
	Issues      []string
	Warnings    []string
	TestsPassed int
	TestsFailed int
}

// Weights distribute the overall score across checks. They must be
// non-negative and sum to 1.
type Weights struct {
	Safety       float64
	Structure    float64
	Quality      float64
	Completeness float64
	Execution    float64
}

// DefaultWeights returns the standard check weighting
func DefaultWeights() Weights {
	return Weights{
		Safety:       0.30,
		Structure:    0.25,
		Quality:      0.15,
		Completeness: 0.10,
		Execution:    0.20,
	}
}

// Validate checks if the weights are usable
func (w Weights) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"safety", w.Safety},
		{"structure", w.Structure},
		{"quality", w.Quality},
		{"completeness", w.Completeness},
		{"execution", w.Execution},
	} {
		if v.value < 0 {
			return fmt.Errorf("%s weight must be non-negative, got %f", v.name, v.value)
		}
	}
	sum := w.Safety + w.Structure + w.Quality + w.Completeness + w.Execution
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// Config holds validator configuration
type Config struct {
	// PassThreshold is the minimum combined score for a pass.
	PassThreshold float64

	// Weights distribute the combined score across checks.
	Weights Weights
}

// DefaultConfig returns the default validator configuration
func DefaultConfig() Config {
	return Config{
		PassThreshold: 0.6,
		Weights:       DefaultWeights(),
	}
}

// Validate checks if the configuration values are valid
func (c Config) Validate() error {
	if c.PassThreshold < 0 || c.PassThreshold > 1 {
		return fmt.Errorf("pass threshold must be in [0,1], got %f", c.PassThreshold)
	}
	return c.Weights.Validate()
}

// Validator decides whether an executed artifact passed validation.
type Validator interface {
	Validate(ctx context.Context, artifact *types.Artifact, exec *substrate.ExecResult) (*Report, error)
}

// CodeValidator is the static-analysis implementation of Validator.
type CodeValidator struct {
	cfg Config
}

var _ Validator = (*CodeValidator)(nil)

// New creates a code validator with the given configuration. Zero
// fields fall back to defaults.
func New(cfg Config) (*CodeValidator, error) {
	if cfg.PassThreshold == 0 {
		cfg.PassThreshold = DefaultConfig().PassThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validator config: %w", err)
	}
	return &CodeValidator{cfg: cfg}, nil
}

// Validate runs every check against the artifact and its execution
// outcome. Validation itself only errors on unusable input or context
// expiry; a failed artifact comes back as a report with Passed false.
func (v *CodeValidator) Validate(ctx context.Context, artifact *types.Artifact, exec *substrate.ExecResult) (*Report, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("execution result is required")
	}

	report := &Report{SafetyLevel: SafetySafe}

	checks := []func() CheckResult{
		func() CheckResult { return checkSafety(artifact) },
		func() CheckResult { return checkStructure(artifact) },
		func() CheckResult { return checkQuality(artifact) },
		func() CheckResult { return checkCompleteness(artifact) },
		func() CheckResult { return checkExecution(exec) },
	}

	for _, run := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := run()
		report.Checks = append(report.Checks, result)
		report.Issues = append(report.Issues, result.Issues...)
		report.Warnings = append(report.Warnings, result.Warnings...)
	}

	report.SafetyLevel = safetyLevelOf(report.Checks)
	report.Score = v.combineScores(report.Checks)
	report.TestsPassed, report.TestsFailed = parseTestSignals(exec.Output)

	// A high score never overrides an unsafe scan or a hard issue.
	report.Passed = report.Score >= v.cfg.PassThreshold &&
		report.SafetyLevel != SafetyUnsafe &&
		len(report.Issues) == 0

	return report, nil
}

// combineScores folds per-check scores into one weighted total
func (v *CodeValidator) combineScores(checks []CheckResult) float64 {
	total := 0.0
	for _, c := range checks {
		switch c.Check {
		case CheckSafety:
			total += v.cfg.Weights.Safety * c.Score
		case CheckStructure:
			total += v.cfg.Weights.Structure * c.Score
		case CheckQuality:
			total += v.cfg.Weights.Quality * c.Score
		case CheckCompleteness:
			total += v.cfg.Weights.Completeness * c.Score
		case CheckExecution:
			total += v.cfg.Weights.Execution * c.Score
		}
	}
	return total
}

// safetyLevelOf picks the most restrictive level any check reported
func safetyLevelOf(checks []CheckResult) SafetyLevel {
	level := SafetySafe
	for _, c := range checks {
		if c.Check != CheckSafety {
			continue
		}
		switch {
		case len(c.Issues) > 0:
			return SafetyUnsafe
		case len(c.Warnings) > 0:
			level = SafetyCaution
		}
	}
	return level
}
