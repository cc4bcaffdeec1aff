package types

import (
	"errors"
	"fmt"
)

// RunErrorKind classifies why a run went terminal without succeeding.
// The curator and the pattern feedback loop branch on kinds, never on
// error text.
type RunErrorKind string

const (
	// ErrKindGenerationUnavailable means the code-generation capability
	// refused or could not accept the dispatch (run → failed).
	ErrKindGenerationUnavailable RunErrorKind = "generation_unavailable"
	// ErrKindGenerationTimeout means the generation stage exceeded its
	// timeout (run → timed_out).
	ErrKindGenerationTimeout RunErrorKind = "generation_timeout"
	// ErrKindExecutionCrash means the sandboxed execution crashed or
	// exited non-zero with no usable partial artifact (run → failed).
	ErrKindExecutionCrash RunErrorKind = "execution_crash"
	// ErrKindExecutionTimeout means the execution stage exceeded its
	// timeout (run → timed_out).
	ErrKindExecutionTimeout RunErrorKind = "execution_timeout"
	// ErrKindValidationFailure means validation ran and the artifact
	// fell below the pass threshold (run → failed, partial metrics kept).
	ErrKindValidationFailure RunErrorKind = "validation_failure"
	// ErrKindBudgetExhausted means the session budget ran out before the
	// run could finish (run → cancelled; not surfaced as a failure).
	ErrKindBudgetExhausted RunErrorKind = "budget_exhausted"
	// ErrKindAborted means the user cancelled the session explicitly
	// (run → cancelled).
	ErrKindAborted RunErrorKind = "aborted"
)

// IsValid checks if the run error kind value is valid
func (k RunErrorKind) IsValid() bool {
	switch k {
	case ErrKindGenerationUnavailable, ErrKindGenerationTimeout,
		ErrKindExecutionCrash, ErrKindExecutionTimeout,
		ErrKindValidationFailure, ErrKindBudgetExhausted, ErrKindAborted:
		return true
	}
	return false
}

// TerminalState returns the run state that a terminal error of this
// kind implies.
func (k RunErrorKind) TerminalState() RunState {
	switch k {
	case ErrKindGenerationTimeout, ErrKindExecutionTimeout:
		return RunTimedOut
	case ErrKindBudgetExhausted, ErrKindAborted:
		return RunCancelled
	default:
		return RunFailed
	}
}

// RunError is the structured diagnostic attached to a terminal run.
// It carries enough classified detail for the curator's feedback loop
// without anyone parsing opaque error strings.
type RunError struct {
	Kind        RunErrorKind `json:"kind"`
	Stage       RunState     `json:"stage"`
	Detail      string       `json:"detail,omitempty"`
	ExitStatus  *int         `json:"exit_status,omitempty"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Detail)
}

// Validate checks if the run error has valid field values
func (e *RunError) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", e.Kind)
	}
	if !e.Stage.IsValid() {
		return fmt.Errorf("invalid stage: %s", e.Stage)
	}
	return nil
}

// NewRunError builds a RunError for the given kind and stage.
func NewRunError(kind RunErrorKind, stage RunState, detail string) *RunError {
	return &RunError{Kind: kind, Stage: stage, Detail: detail}
}

// Sentinel errors for taxonomy checks with errors.Is. Component-local
// failures wrap these; only ErrSubstrateUnreachable is session-fatal.
var (
	// ErrUnrecognizedObservation marks an observation whose source kind
	// no extractor understands. Ingest logs a warning and drops it;
	// never fatal.
	ErrUnrecognizedObservation = errors.New("unrecognized observation")

	// ErrSubstrateUnreachable means the execution substrate did not
	// answer the pre-flight check. The only error that aborts a whole
	// session before any run starts.
	ErrSubstrateUnreachable = errors.New("substrate unreachable")

	// ErrSessionNotFound is returned for status queries on unknown
	// session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDiscoveryNotFound is returned for feedback on unknown
	// discovery IDs.
	ErrDiscoveryNotFound = errors.New("discovery not found")

	// ErrPatternNotFound is returned for score queries on unknown
	// pattern keys.
	ErrPatternNotFound = errors.New("pattern not found")
)
