// Package substrate executes generated artifacts. The local substrate
// is the default implementation: it materializes an artifact's files
// into a run's sandbox directory and runs the entry point as a child
// process under a timeout and an output cap.
package substrate

import (
	"context"
	"time"

	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/types"
)

// DefaultOutputCap bounds captured output when the constraints leave
// MaxOutputBytes unset.
const DefaultOutputCap = 1 << 20

// Constraints bound a single execution.
type Constraints struct {
	// Timeout kills the process when exceeded. Zero means the caller's
	// context is the only bound.
	Timeout time.Duration

	// MaxOutputBytes caps captured combined output. Zero applies
	// DefaultOutputCap.
	MaxOutputBytes int
}

// ExecResult is the outcome of one sandboxed execution. A non-zero
// exit status is data for the validator, not an error.
type ExecResult struct {
	ExitStatus int
	Output     string
	Truncated  bool
	Duration   time.Duration
}

// Substrate runs artifacts inside sandboxes.
type Substrate interface {
	// Execute materializes the artifact into the sandbox and runs its
	// entry point. The returned error is non-nil only when execution
	// could not complete (setup failure, timeout, cancellation);
	// ordinary non-zero exits come back in the result. On timeout or
	// cancellation the partial result accompanies the error.
	Execute(ctx context.Context, sb *sandbox.Sandbox, artifact *types.Artifact, constraints Constraints) (*ExecResult, error)

	// Ping reports whether the substrate can accept executions.
	// Failures wrap types.ErrSubstrateUnreachable.
	Ping(ctx context.Context) error

	// Name identifies the substrate in events and diagnostics.
	Name() string
}
