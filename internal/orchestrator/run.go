package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/generator"
	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
)

// executeRun drives one run through generating, executing, and
// validating into a terminal state. It blocks on the run pool first;
// a run whose session dies while it waits lands in cancelled without
// ever starting a stage.
func (o *Orchestrator) executeRun(ctx context.Context, h *sessionHandle, run *types.Run, goal *types.Goal) {
	defer h.markTerminal(run.ID)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.transition(run, types.RunCancelled,
			types.NewRunError(h.cancelKind(), types.RunPending, "run never started"))
		return
	}
	defer o.sem.Release(1)
	h.markStarted(run.ID)

	o.transition(run, types.RunGenerating, nil)
	artifact, runErr := o.generate(ctx, h, run, goal)
	if runErr != nil {
		o.finishRun(run, runErr)
		return
	}

	o.transition(run, types.RunExecuting, nil)
	exec, runErr := o.execute(ctx, h, run, artifact)
	if runErr != nil {
		o.finishRun(run, runErr)
		return
	}

	o.transition(run, types.RunValidating, nil)
	if runErr := o.validate(ctx, h, run, artifact, exec); runErr != nil {
		o.finishRun(run, runErr)
		return
	}

	o.transition(run, types.RunSucceeded, nil)
}

// transition persists the run's next state before the stage it gates.
// Terminal transitions can land after the session context died, so
// persistence uses a background context throughout.
func (o *Orchestrator) transition(run *types.Run, state types.RunState, runErr *types.RunError) {
	if err := o.store.UpdateRunState(context.Background(), run.ID, state, runErr, actorName); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist run %s -> %s: %v\n", run.ID, state, err)
	}
	run.State = state
	run.Error = runErr
}

// finishRun maps a stage failure onto the terminal state its kind
// dictates: timeouts to timed_out, cancellations to cancelled,
// everything else to failed.
func (o *Orchestrator) finishRun(run *types.Run, runErr *types.RunError) {
	o.transition(run, runErr.Kind.TerminalState(), runErr)
}

// generate produces and persists the run's artifact under the
// generation timeout.
func (o *Orchestrator) generate(ctx context.Context, h *sessionHandle, run *types.Run, goal *types.Goal) (*types.Artifact, *types.RunError) {
	genCtx, cancel := context.WithTimeout(ctx, o.config.Exploration.GenerationTimeout)
	defer cancel()

	req := generator.GenerationRequest{
		Goal:            goal,
		Patterns:        o.loadPatterns(genCtx, goal.DerivedFrom),
		Profile:         o.loadProfile(genCtx),
		ExecutionBudget: o.config.Exploration.ExecutionTimeout,
	}

	start := time.Now()
	artifact, err := o.gen.Generate(genCtx, req)
	run.Metrics.GenerationMs = time.Since(start).Milliseconds()
	o.persistMetrics(run)

	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewRunError(h.cancelKind(), types.RunGenerating, "generation interrupted")
		}
		if genErr, ok := generator.AsGenerationError(err); ok && genErr.Kind == generator.KindTimeout {
			return nil, types.NewRunError(types.ErrKindGenerationTimeout, types.RunGenerating, err.Error())
		}
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, types.NewRunError(types.ErrKindGenerationTimeout, types.RunGenerating,
				fmt.Sprintf("generation exceeded %s", o.config.Exploration.GenerationTimeout))
		}
		// Unavailable and rejected responses share a terminal kind; the
		// detail keeps them apart.
		return nil, types.NewRunError(types.ErrKindGenerationUnavailable, types.RunGenerating, err.Error())
	}

	if err := o.store.SaveArtifact(context.Background(), artifact); err != nil {
		return nil, types.NewRunError(types.ErrKindGenerationUnavailable, types.RunGenerating,
			fmt.Sprintf("failed to store artifact: %v", err))
	}
	if err := o.store.SetRunArtifact(context.Background(), run.ID, artifact.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to link artifact %s to run %s: %v\n", artifact.ID, run.ID, err)
	}
	run.ArtifactRef = artifact.ID

	return artifact, nil
}

// execute provisions a sandbox and runs the artifact on the substrate.
// The stage timeout rides in the constraints so the substrate can hand
// back the partial result it had when the clock ran out.
func (o *Orchestrator) execute(ctx context.Context, h *sessionHandle, run *types.Run, artifact *types.Artifact) (*substrate.ExecResult, *types.RunError) {
	sb, runErr := o.createSandbox(run)
	if runErr != nil {
		return nil, runErr
	}
	defer o.destroySandbox(run, sb)

	start := time.Now()
	result, err := o.sub.Execute(ctx, sb, artifact, substrate.Constraints{
		Timeout: o.config.Exploration.ExecutionTimeout,
	})

	if result != nil {
		run.Metrics.ExecutionMs = result.Duration.Milliseconds()
		run.Metrics.ExitStatus = result.ExitStatus
		run.Metrics.OutputBytes = len(result.Output)
	} else {
		run.Metrics.ExecutionMs = time.Since(start).Milliseconds()
	}
	o.persistMetrics(run)

	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewRunError(h.cancelKind(), types.RunExecuting, "execution interrupted")
		}
		// Failed sandboxes survive cleanup when the manager is
		// configured to preserve them.
		sb.Status = sandbox.SandboxStatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewRunError(types.ErrKindExecutionTimeout, types.RunExecuting,
				fmt.Sprintf("execution exceeded %s", o.config.Exploration.ExecutionTimeout))
		}
		return nil, types.NewRunError(types.ErrKindExecutionCrash, types.RunExecuting, err.Error())
	}

	return result, nil
}

// validate scores the executed artifact. A below-threshold report is a
// validation_failure with the report's issues as diagnostics; only a
// stage timeout lands elsewhere.
func (o *Orchestrator) validate(ctx context.Context, h *sessionHandle, run *types.Run, artifact *types.Artifact, exec *substrate.ExecResult) *types.RunError {
	valCtx, cancel := context.WithTimeout(ctx, o.config.Exploration.ValidationTimeout)
	defer cancel()

	start := time.Now()
	report, err := o.val.Validate(valCtx, artifact, exec)
	run.Metrics.ValidationMs = time.Since(start).Milliseconds()
	if report != nil {
		run.Metrics.ValidationScore = report.Score
		run.Metrics.TestsPassed = report.TestsPassed
		run.Metrics.TestsFailed = report.TestsFailed
	}
	o.persistMetrics(run)

	if err != nil {
		if ctx.Err() != nil {
			return types.NewRunError(h.cancelKind(), types.RunValidating, "validation interrupted")
		}
		if errors.Is(valCtx.Err(), context.DeadlineExceeded) {
			return types.NewRunError(types.ErrKindExecutionTimeout, types.RunValidating, "validation timed out")
		}
		return types.NewRunError(types.ErrKindValidationFailure, types.RunValidating, err.Error())
	}

	if !report.Passed {
		runErr := types.NewRunError(types.ErrKindValidationFailure, types.RunValidating,
			fmt.Sprintf("validation score %.2f below threshold", report.Score))
		runErr.Diagnostics = append([]string(nil), report.Issues...)
		exit := exec.ExitStatus
		runErr.ExitStatus = &exit
		return runErr
	}

	return nil
}

func (o *Orchestrator) createSandbox(run *types.Run) (*sandbox.Sandbox, *types.RunError) {
	start := time.Now()
	sb, err := o.sandboxMgr.Create(context.Background(), run.ID)
	o.emitSandboxEvent(events.EventTypeSandboxCreated, run, sb, time.Since(start), err)
	if err != nil {
		return nil, types.NewRunError(types.ErrKindExecutionCrash, types.RunExecuting,
			fmt.Sprintf("sandbox create failed: %v", err))
	}
	return sb, nil
}

func (o *Orchestrator) destroySandbox(run *types.Run, sb *sandbox.Sandbox) {
	start := time.Now()
	err := o.sandboxMgr.Destroy(context.Background(), sb)
	o.emitSandboxEvent(events.EventTypeSandboxDestroyed, run, sb, time.Since(start), err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to destroy sandbox for run %s: %v\n", run.ID, err)
	}
}

func (o *Orchestrator) emitSandboxEvent(eventType events.EventType, run *types.Run, sb *sandbox.Sandbox, elapsed time.Duration, opErr error) {
	path := ""
	if sb != nil {
		path = sb.Path
	}
	severity := events.SeverityInfo
	msg := fmt.Sprintf("Sandbox created for run %s", run.ID)
	if eventType == events.EventTypeSandboxDestroyed {
		msg = fmt.Sprintf("Sandbox destroyed for run %s", run.ID)
	}
	errMsg := ""
	if opErr != nil {
		severity = events.SeverityWarning
		errMsg = opErr.Error()
	}

	event := events.NewSimpleEvent(eventType, run.SessionID, run.ID, actorName, severity, msg)
	err := event.SetSandboxLifecycleData(events.SandboxLifecycleData{
		RunID:      run.ID,
		Path:       path,
		DurationMs: elapsed.Milliseconds(),
		Success:    opErr == nil,
		Error:      errMsg,
	})
	if err == nil {
		err = o.store.StoreEvent(context.Background(), event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record sandbox event: %v\n", err)
	}
}

func (o *Orchestrator) persistMetrics(run *types.Run) {
	if err := o.store.UpdateRunMetrics(context.Background(), run.ID, run.Metrics); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist metrics for run %s: %v\n", run.ID, err)
	}
}

// loadPatterns resolves the patterns a goal derives from. A pattern
// pruned since planning is skipped, not fatal.
func (o *Orchestrator) loadPatterns(ctx context.Context, keys []string) []*types.Pattern {
	patterns := make([]*types.Pattern, 0, len(keys))
	for _, key := range keys {
		pattern, err := o.store.GetPattern(ctx, key)
		if err != nil || pattern == nil {
			continue
		}
		patterns = append(patterns, pattern)
	}
	return patterns
}

func (o *Orchestrator) loadProfile(ctx context.Context) *types.ProjectProfile {
	if o.config.ProjectID == "" {
		return nil
	}
	profile, err := o.store.GetProjectProfile(ctx, o.config.ProjectID)
	if err != nil {
		return nil
	}
	return profile
}
