package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/types"
)

// sessionHandle tracks one in-flight session: its cancellation, why it
// was cancelled, and how far each of its runs got.
type sessionHandle struct {
	session *types.Session
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	kind  types.RunErrorKind
	slots map[string]*runSlot
}

// runSlot records whether a run acquired a pool slot and whether it
// reached a terminal state. The budget watchdog reads these to tell
// runs cut down mid-flight from runs that never started.
type runSlot struct {
	started  bool
	terminal bool
}

// cancelWith records why the session is being torn down and cancels
// its context. The first reason wins.
func (h *sessionHandle) cancelWith(kind types.RunErrorKind) {
	h.mu.Lock()
	if h.kind == "" {
		h.kind = kind
	}
	h.mu.Unlock()
	h.cancel()
}

// cancelKind reports why the session context died. An external
// cancellation with no recorded reason counts as an abort.
func (h *sessionHandle) cancelKind() types.RunErrorKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind == "" {
		return types.ErrKindAborted
	}
	return h.kind
}

// wasAborted reports whether an explicit abort (user or shutdown) tore
// the session down. Budget exhaustion is not an abort; the session
// still completes.
func (h *sessionHandle) wasAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind == types.ErrKindAborted
}

func (h *sessionHandle) markStarted(runID string) {
	h.mu.Lock()
	if slot, ok := h.slots[runID]; ok {
		slot.started = true
	}
	h.mu.Unlock()
}

func (h *sessionHandle) markTerminal(runID string) {
	h.mu.Lock()
	if slot, ok := h.slots[runID]; ok {
		slot.terminal = true
	}
	h.mu.Unlock()
}

// liveCounts reports how many runs are in flight and how many never
// started, for the budget exhaustion event.
func (h *sessionHandle) liveCounts() (inFlight, neverStarted int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, slot := range h.slots {
		if slot.terminal {
			continue
		}
		if slot.started {
			inFlight++
		} else {
			neverStarted++
		}
	}
	return inFlight, neverStarted
}

// StartSession begins driving a planned session's goals. The session
// must already be persisted in planning state. The substrate
// pre-flight check and run creation happen synchronously under the
// caller's context; the runs themselves proceed on a goroutine scoped
// to the orchestrator's lifetime. A failed pre-flight marks the
// session failed and returns an error wrapping
// types.ErrSubstrateUnreachable; no run starts.
func (o *Orchestrator) StartSession(ctx context.Context, session *types.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}

	o.mu.RLock()
	running := o.running
	baseCtx := o.baseCtx
	o.mu.RUnlock()
	if !running {
		return fmt.Errorf("orchestrator is not running")
	}

	if session.State != types.SessionPlanning {
		return fmt.Errorf("session %s is %s, expected %s", session.ID, session.State, types.SessionPlanning)
	}

	// Substrate unreachable before any run starts is the one
	// session-fatal failure.
	if err := o.sub.Ping(ctx); err != nil {
		o.emitSubstrateCheckFailed(ctx, session.ID, err)
		if stErr := o.store.UpdateSessionState(ctx, session.ID, types.SessionFailed, err.Error(), actorName); stErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to mark session %s failed: %v\n", session.ID, stErr)
		}
		return fmt.Errorf("substrate pre-flight failed: %w", err)
	}

	// Exactly one run per goal, created in pending before anything
	// executes so budget accounting can tell runs that never started
	// from runs cut down mid-flight.
	runs := make([]*types.Run, 0, len(session.Goals))
	for i := range session.Goals {
		run := &types.Run{
			ID:        types.NewRunID(),
			SessionID: session.ID,
			GoalID:    session.Goals[i].ID,
			State:     types.RunPending,
			StartedAt: time.Now(),
		}
		if err := o.store.CreateRun(ctx, run, actorName); err != nil {
			o.releaseRuns(runs, "session setup failed")
			if stErr := o.store.UpdateSessionState(ctx, session.ID, types.SessionCancelled,
				fmt.Sprintf("run creation failed: %v", err), actorName); stErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to cancel session %s: %v\n", session.ID, stErr)
			}
			return fmt.Errorf("failed to create run for goal %s: %w", session.Goals[i].ID, err)
		}
		runs = append(runs, run)
	}

	if err := o.store.UpdateSessionState(ctx, session.ID, types.SessionRunning, "", actorName); err != nil {
		o.releaseRuns(runs, "session failed to start")
		return fmt.Errorf("failed to start session %s: %w", session.ID, err)
	}
	session.State = types.SessionRunning

	sessCtx, cancel := context.WithCancel(baseCtx)
	h := &sessionHandle{
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
		slots:   make(map[string]*runSlot, len(runs)),
	}
	for _, run := range runs {
		h.slots[run.ID] = &runSlot{}
	}

	// Registration re-checks running under the same lock Stop holds
	// for its abort snapshot, so a session either registers in time to
	// be aborted or never launches.
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		cancel()
		o.releaseRuns(runs, "orchestrator stopped during session setup")
		if stErr := o.store.UpdateSessionState(ctx, session.ID, types.SessionCancelled,
			"orchestrator stopped", actorName); stErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to cancel session %s: %v\n", session.ID, stErr)
		}
		return fmt.Errorf("orchestrator is not running")
	}
	o.active[session.ID] = h
	o.sessions.Add(1)
	o.mu.Unlock()

	go o.runSession(sessCtx, h, runs)

	return nil
}

// AbortSession cancels an in-flight session. Every non-terminal run
// lands in cancelled and the session itself reports cancelled once its
// sandboxes are released.
func (o *Orchestrator) AbortSession(sessionID string) error {
	o.mu.RLock()
	h, ok := o.active[sessionID]
	o.mu.RUnlock()
	if !ok {
		return types.ErrSessionNotFound
	}
	h.cancelWith(types.ErrKindAborted)
	return nil
}

// Wait blocks until the session finishes or ctx expires. A session
// missing from the active set already finished; Wait returns nil
// immediately for it.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	o.mu.RLock()
	h, ok := o.active[sessionID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSession executes every run under the pool bound and the budget
// watchdog, then finalizes the session.
func (o *Orchestrator) runSession(ctx context.Context, h *sessionHandle, runs []*types.Run) {
	defer o.sessions.Done()
	defer close(h.done)
	defer h.cancel()

	session := h.session
	fmt.Printf("Session %s: %d goal(s), budget %s\n", session.ID, len(session.Goals), session.Budget)

	// The budget counts wall time from dispatch. When it expires,
	// everything still live is cancelled, never failed.
	dispatchedAt := time.Now()
	budgetTimer := time.AfterFunc(session.Budget, func() {
		inFlight, neverStarted := h.liveCounts()
		o.emitBudgetExhausted(session, time.Since(dispatchedAt), inFlight, neverStarted)
		h.cancelWith(types.ErrKindBudgetExhausted)
	})
	defer budgetTimer.Stop()

	var wg sync.WaitGroup
	for i := range runs {
		run := runs[i]
		goal := &session.Goals[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.executeRun(ctx, h, run, goal)
		}()
	}
	wg.Wait()
	budgetTimer.Stop()

	o.finishSession(h)
}

// finishSession transitions the session to its terminal state and
// hands the completed batch to the curator. Every sandbox is already
// released: run goroutines destroy theirs before returning, and
// finishSession runs only after the last of them.
func (o *Orchestrator) finishSession(h *sessionHandle) {
	// The session context is dead or dying here; finalization writes
	// use a fresh one.
	ctx := context.Background()
	session := h.session

	state := types.SessionCompleted
	errMsg := ""
	if h.wasAborted() {
		state = types.SessionCancelled
		errMsg = "session aborted"
	}
	if err := o.store.UpdateSessionState(ctx, session.ID, state, errMsg, actorName); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to finalize session %s: %v\n", session.ID, err)
	}
	session.State = state
	fmt.Printf("Session %s: %s\n", session.ID, state)

	o.mu.Lock()
	delete(o.active, session.ID)
	o.mu.Unlock()

	o.curateSession(ctx, session)
}

// curateSession promotes the session's succeeded runs to discoveries.
// Aborted and budget-cut sessions still curate whatever succeeded
// before the cut.
func (o *Orchestrator) curateSession(ctx context.Context, session *types.Session) {
	if o.curator == nil {
		return
	}

	runs, err := o.store.ListRunsBySession(ctx, session.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load runs for curation: %v\n", err)
		return
	}

	o.curateMu.Lock()
	defer o.curateMu.Unlock()
	discoveries, err := o.curator.Curate(ctx, session, runs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: curation failed for session %s: %v\n", session.ID, err)
		return
	}
	if len(discoveries) > 0 {
		fmt.Printf("Session %s: curated %d discovery(ies)\n", session.ID, len(discoveries))
	}
}

// releaseRuns cancels pending runs created before a session failed to
// launch, so no run row is stranded in a non-terminal state.
func (o *Orchestrator) releaseRuns(runs []*types.Run, detail string) {
	for _, run := range runs {
		runErr := types.NewRunError(types.ErrKindAborted, types.RunPending, detail)
		if err := o.store.UpdateRunState(context.Background(), run.ID, types.RunCancelled, runErr, actorName); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release run %s: %v\n", run.ID, err)
		}
	}
}

func (o *Orchestrator) emitSubstrateCheckFailed(ctx context.Context, sessionID string, cause error) {
	event := events.NewSimpleEvent(events.EventTypeSubstrateCheckFailed, sessionID, "", actorName,
		events.SeverityError, fmt.Sprintf("substrate %s failed pre-flight check", o.sub.Name()))
	err := event.SetSubstrateCheckFailedData(events.SubstrateCheckFailedData{
		Substrate: o.sub.Name(),
		Detail:    cause.Error(),
	})
	if err == nil {
		err = o.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record substrate check event: %v\n", err)
	}
}

func (o *Orchestrator) emitBudgetExhausted(session *types.Session, elapsed time.Duration, inFlight, neverStarted int) {
	event, err := events.NewBudgetExhaustedEvent(session.ID, actorName,
		fmt.Sprintf("Budget %s exhausted with %d run(s) in flight", session.Budget, inFlight),
		events.BudgetExhaustedData{
			SessionID:        session.ID,
			BudgetMinutes:    int(session.Budget.Minutes()),
			ElapsedMinutes:   int(elapsed.Minutes()),
			RunsCancelled:    inFlight,
			RunsNeverStarted: neverStarted,
		})
	if err == nil {
		err = o.store.StoreEvent(context.Background(), event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record budget event: %v\n", err)
	}
}
