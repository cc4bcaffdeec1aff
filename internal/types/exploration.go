package types

import (
	"fmt"
	"sort"
	"time"
)

// RiskLevel expresses how speculative an exploration goal is allowed
// to be.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskBalanced     RiskLevel = "balanced"
	RiskExperimental RiskLevel = "experimental"
)

// IsValid checks if the risk level value is valid
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskConservative, RiskBalanced, RiskExperimental:
		return true
	}
	return false
}

// GoalCategory classifies the kind of exploration a goal proposes.
type GoalCategory string

const (
	GoalFeaturePrototype GoalCategory = "feature_prototype"
	GoalRefactoring      GoalCategory = "refactoring"
	GoalTesting          GoalCategory = "testing"
	GoalTooling          GoalCategory = "tooling"
	GoalDocumentation    GoalCategory = "documentation"
	GoalPerformance      GoalCategory = "performance"
	GoalLearning         GoalCategory = "learning"
	GoalIntegration      GoalCategory = "integration"
)

// IsValid checks if the goal category value is valid
func (c GoalCategory) IsValid() bool {
	switch c {
	case GoalFeaturePrototype, GoalRefactoring, GoalTesting, GoalTooling,
		GoalDocumentation, GoalPerformance, GoalLearning, GoalIntegration:
		return true
	}
	return false
}

// GoalStatus tracks a goal through the planning cycle.
type GoalStatus string

const (
	GoalProposed GoalStatus = "proposed"
	GoalAccepted GoalStatus = "accepted"
	GoalRejected GoalStatus = "rejected"
)

// IsValid checks if the goal status value is valid
func (s GoalStatus) IsValid() bool {
	switch s {
	case GoalProposed, GoalAccepted, GoalRejected:
		return true
	}
	return false
}

// Goal is a bounded, risk-classified exploration objective derived
// from one or more patterns. Goals are immutable after acceptance;
// rejected goals are discarded, never reused.
type Goal struct {
	ID            string        `json:"id"`
	DerivedFrom   []string      `json:"derived_from"`
	Description   string        `json:"description"`
	Category      GoalCategory  `json:"category"`
	Risk          RiskLevel     `json:"risk"`
	EstimatedCost time.Duration `json:"estimated_cost"`
	Priority      float64       `json:"priority"`
	Status        GoalStatus    `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Validate checks if the goal has valid field values
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(g.DerivedFrom) == 0 {
		return fmt.Errorf("derived_from must name at least one pattern key")
	}
	if g.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !g.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", g.Category)
	}
	if !g.Risk.IsValid() {
		return fmt.Errorf("invalid risk: %s", g.Risk)
	}
	if g.EstimatedCost <= 0 {
		return fmt.Errorf("estimated_cost must be positive (got %v)", g.EstimatedCost)
	}
	if !g.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", g.Status)
	}
	return nil
}

// DerivesFrom reports whether the goal was derived from the given
// pattern key.
func (g *Goal) DerivesFrom(key string) bool {
	for _, k := range g.DerivedFrom {
		if k == key {
			return true
		}
	}
	return false
}

// SortPatternKeys normalizes derived_from ordering so identical
// derivations compare and serialize identically.
func (g *Goal) SortPatternKeys() {
	sort.Strings(g.DerivedFrom)
}

// SessionState represents the aggregate state of an exploration session
type SessionState string

const (
	SessionPlanning  SessionState = "planning"  // Goals accepted, runs not yet started
	SessionRunning   SessionState = "running"   // Runs in flight
	SessionCompleted SessionState = "completed" // All runs terminal (any mix of outcomes)
	SessionFailed    SessionState = "failed"    // Substrate unreachable before any run started
	SessionCancelled SessionState = "cancelled" // Explicit user abort
)

// IsValid checks if the session state value is valid
func (s SessionState) IsValid() bool {
	switch s {
	case SessionPlanning, SessionRunning, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the session state is terminal.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// ValidTransitions defines the valid state transitions for a session.
//
//	planning → running → completed
//	    ↓         ↓
//	  failed   cancelled
//
// A run failure never fails the session: completed is reached once
// every run is terminal regardless of outcomes. failed is reserved for
// the substrate being unreachable before any run started.
func (s SessionState) ValidTransitions() []SessionState {
	switch s {
	case SessionPlanning:
		return []SessionState{SessionRunning, SessionFailed, SessionCancelled}
	case SessionRunning:
		return []SessionState{SessionCompleted, SessionCancelled}
	case SessionCompleted, SessionFailed, SessionCancelled:
		return []SessionState{} // Terminal
	default:
		return []SessionState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s SessionState) CanTransitionTo(target SessionState) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Session is a time-budgeted batch of runs scheduled together. A
// session exclusively owns its runs; it is terminal once every run
// reaches a terminal state or the budget is exhausted.
type Session struct {
	ID          string        `json:"id"`
	Goals       []Goal        `json:"goals"`
	Budget      time.Duration `json:"budget"`
	State       SessionState  `json:"state"`
	Risk        RiskLevel     `json:"risk"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Validate checks if the session has valid field values
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(s.Goals) == 0 {
		return fmt.Errorf("session requires at least one goal")
	}
	if s.Budget <= 0 {
		return fmt.Errorf("budget must be positive (got %v)", s.Budget)
	}
	if !s.State.IsValid() {
		return fmt.Errorf("invalid state: %s", s.State)
	}
	if !s.Risk.IsValid() {
		return fmt.Errorf("invalid risk: %s", s.Risk)
	}
	for i := range s.Goals {
		if err := s.Goals[i].Validate(); err != nil {
			return fmt.Errorf("goal %d: %w", i, err)
		}
	}
	return nil
}

// RunState represents the state of one goal's execution instance
type RunState string

const (
	RunPending    RunState = "pending"    // Queued, not yet dispatched
	RunGenerating RunState = "generating" // Awaiting the code-generation capability
	RunExecuting  RunState = "executing"  // Artifact running in the sandbox
	RunValidating RunState = "validating" // Validation checks in progress
	RunSucceeded  RunState = "succeeded"  // Terminal: validated successfully
	RunFailed     RunState = "failed"     // Terminal: ran and failed
	RunTimedOut   RunState = "timed_out"  // Terminal: a stage timeout expired
	RunCancelled  RunState = "cancelled"  // Terminal: budget exhausted or aborted, never ran to completion
)

// IsValid checks if the run state value is valid
func (s RunState) IsValid() bool {
	switch s {
	case RunPending, RunGenerating, RunExecuting, RunValidating,
		RunSucceeded, RunFailed, RunTimedOut, RunCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the run state is terminal. No transition
// ever leaves a terminal state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunTimedOut, RunCancelled:
		return true
	}
	return false
}

// ValidTransitions defines the valid state transitions for the run
// state machine.
//
// State Machine Diagram:
//
//	pending → generating → executing → validating → succeeded
//	    ↓          ↓           ↓           ↓
//	    └──── failed | timed_out | cancelled ────┘
//
// Valid transitions:
//   - pending → generating (dispatch to the generation capability)
//   - pending → failed (dispatch refused: capability unavailable)
//   - generating → executing (artifact returned, handed to substrate)
//   - generating → timed_out (generation timeout expired)
//   - executing → validating (execution finished, exit status captured)
//   - executing → failed (execution crash, no usable result)
//   - executing → timed_out (execution timeout expired)
//   - validating → succeeded (build success and validation threshold met)
//   - validating → failed (validation below threshold or hard failure)
//   - validating → timed_out (validation timeout expired)
//   - any non-terminal → cancelled (session budget exhausted or abort)
func (s RunState) ValidTransitions() []RunState {
	switch s {
	case RunPending:
		return []RunState{RunGenerating, RunFailed, RunCancelled}
	case RunGenerating:
		return []RunState{RunExecuting, RunFailed, RunTimedOut, RunCancelled}
	case RunExecuting:
		return []RunState{RunValidating, RunFailed, RunTimedOut, RunCancelled}
	case RunValidating:
		return []RunState{RunSucceeded, RunFailed, RunTimedOut, RunCancelled}
	case RunSucceeded, RunFailed, RunTimedOut, RunCancelled:
		return []RunState{} // Terminal
	default:
		return []RunState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s RunState) CanTransitionTo(target RunState) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// RunMetrics captures measurable results from a run's stages. Partial
// metrics survive failures so diagnostics keep whatever was measured
// before the run went terminal.
type RunMetrics struct {
	GenerationMs    int64   `json:"generation_ms,omitempty"`
	ExecutionMs     int64   `json:"execution_ms,omitempty"`
	ValidationMs    int64   `json:"validation_ms,omitempty"`
	ExitStatus      int     `json:"exit_status"`
	OutputBytes     int     `json:"output_bytes,omitempty"`
	ValidationScore float64 `json:"validation_score,omitempty"`
	TestsPassed     int     `json:"tests_passed,omitempty"`
	TestsFailed     int     `json:"tests_failed,omitempty"`
}

// Run is one goal's execution instance within a session. Exactly one
// run exists per goal per session; state transitions are
// one-directional per ValidTransitions.
type Run struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	GoalID      string     `json:"goal_id"`
	State       RunState   `json:"state"`
	ArtifactRef string     `json:"artifact_ref,omitempty"`
	Metrics     RunMetrics `json:"metrics"`
	Error       *RunError  `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.GoalID == "" {
		return fmt.Errorf("goal_id is required")
	}
	if !r.State.IsValid() {
		return fmt.Errorf("invalid state: %s", r.State)
	}
	if r.State.IsTerminal() && r.CompletedAt == nil {
		return fmt.Errorf("terminal run must have completed_at")
	}
	if r.Error != nil {
		if err := r.Error.Validate(); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	return nil
}
