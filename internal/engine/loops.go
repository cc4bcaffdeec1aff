package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/generator"
	"github.com/sparkengine/spark/internal/types"
)

// batchTally accumulates ingest outcomes between observation_batch
// flushes. Guarded by batchMu.
type batchTally struct {
	accepted int
	rejected int
	bySource map[types.ObservationSource]int
}

// ingestLoop pumps observations from the file watcher and the git
// scanner into the confidence store, flushing batch counts once a
// minute. The watcher channel is nil when watching is disabled, which
// blocks that case forever.
func (e *Engine) ingestLoop(ctx context.Context) {
	defer close(e.ingestDoneCh)

	var obsCh <-chan *types.Observation
	if e.watcher != nil {
		obsCh = e.watcher.Observations()
	}

	var gitTick <-chan time.Time
	if e.gitScan != nil {
		ticker := time.NewTicker(e.cfg.Learning.GitPollInterval)
		defer ticker.Stop()
		gitTick = ticker.C

		// Catch up on commits made while the engine was down.
		e.scanCommits(ctx)
	}

	flush := time.NewTicker(observationBatchInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ingestStopCh:
			// The parent context may already be gone during shutdown;
			// flush against a fresh one so the final batch lands.
			e.flushBatch(context.Background())
			return
		case obs := <-obsCh:
			e.processObservation(ctx, obs)
		case <-gitTick:
			e.scanCommits(ctx)
		case <-flush.C:
			e.flushBatch(ctx)
			e.checkCostStatus(ctx)
		}
	}
}

// ingestNow persists one observation and feeds it to the confidence
// store, recording the outcome in the batch tally.
func (e *Engine) ingestNow(ctx context.Context, obs *types.Observation) error {
	e.noteActivity(time.Now())

	if err := e.store.AppendObservation(ctx, obs); err != nil {
		e.noteBatch(obs.Source, false)
		return fmt.Errorf("failed to persist observation: %w", err)
	}
	if _, err := e.patterns.Ingest(ctx, obs); err != nil {
		e.noteBatch(obs.Source, false)
		return err
	}
	e.noteBatch(obs.Source, true)
	return nil
}

func (e *Engine) processObservation(ctx context.Context, obs *types.Observation) {
	if obs == nil {
		return
	}
	if err := e.ingestNow(ctx, obs); err != nil {
		// Unrecognized observations are counted as rejected without
		// noise; the tally surfaces them in the next batch event.
		if !errors.Is(err, types.ErrUnrecognizedObservation) {
			fmt.Fprintf(os.Stderr, "Warning: failed to ingest observation %s: %v\n", obs.ID, err)
		}
	}
}

// scanCommits runs one git poll and ingests whatever is new.
func (e *Engine) scanCommits(ctx context.Context) {
	obs, err := e.gitScan.Scan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: git scan failed: %v\n", err)
		return
	}
	for _, o := range obs {
		e.processObservation(ctx, o)
	}
	if len(obs) > 0 {
		fmt.Printf("Ingest: %d commit(s) scanned\n", len(obs))
	}
}

// noteActivity advances the idle clock the scheduler watches.
func (e *Engine) noteActivity(now time.Time) {
	e.mu.Lock()
	if now.After(e.lastActivity) {
		e.lastActivity = now
	}
	e.mu.Unlock()
}

func (e *Engine) noteBatch(source types.ObservationSource, accepted bool) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	if e.batch.bySource == nil {
		e.batch.bySource = make(map[types.ObservationSource]int)
	}
	if accepted {
		e.batch.accepted++
	} else {
		e.batch.rejected++
	}
	e.batch.bySource[source]++
}

// flushBatch emits an observation_batch event for everything tallied
// since the last flush. Quiet periods emit nothing.
func (e *Engine) flushBatch(ctx context.Context) {
	e.batchMu.Lock()
	tally := e.batch
	e.batch = batchTally{}
	e.batchMu.Unlock()

	if tally.accepted == 0 && tally.rejected == 0 {
		return
	}

	// Dominant source, ties broken by name so the field is stable.
	var dominant types.ObservationSource
	best := -1
	for src, n := range tally.bySource {
		if n > best || (n == best && src < dominant) {
			dominant = src
			best = n
		}
	}

	event := events.NewSimpleEvent(events.EventTypeObservationBatch, "", "", actorName, events.SeverityInfo,
		fmt.Sprintf("Ingested %d observation(s), rejected %d", tally.accepted, tally.rejected))
	err := event.SetObservationBatchData(events.ObservationBatchData{
		Accepted: tally.accepted,
		Rejected: tally.rejected,
		Source:   string(dominant),
	})
	if err == nil {
		err = e.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record observation batch: %v\n", err)
	}
}

// checkCostStatus emits a cost_alert event whenever the generation
// budget status changes to warning or exceeded. Only active when the
// engine owns the cost tracker.
func (e *Engine) checkCostStatus(ctx context.Context) {
	if e.costs == nil {
		return
	}
	status := e.costs.Status()
	if status == e.lastCostStatus {
		return
	}
	e.lastCostStatus = status
	if status == generator.BudgetOK {
		return
	}

	stats := e.costs.Stats()
	event := events.NewSimpleEvent(events.EventTypeCostAlert, "", "", actorName, events.SeverityWarning,
		fmt.Sprintf("Generation spend $%.2f of $%.2f this window (%s)", stats.WindowCost, e.costLimitUSD, status))
	err := event.SetCostAlertData(events.CostAlertData{
		SpentUSD: stats.WindowCost,
		LimitUSD: e.costLimitUSD,
		Level:    status.String(),
	})
	if err == nil {
		err = e.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record cost alert: %v\n", err)
	}
}

// decayLoop applies time decay to pattern confidence on a fixed
// interval. The confidence store emits its own decay_applied event.
func (e *Engine) decayLoop(ctx context.Context) {
	defer close(e.decayDoneCh)

	ticker := time.NewTicker(e.cfg.Learning.DecayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.decayStopCh:
			return
		case <-ticker.C:
			if _, err := e.patterns.Decay(ctx, time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: decay pass failed: %v\n", err)
			}
		}
	}
}

// eventCleanupLoop periodically prunes old events from storage per the
// retention policy. Runs an immediate cleanup on startup, then on the
// configured interval.
func (e *Engine) eventCleanupLoop(ctx context.Context) {
	defer close(e.eventCleanupDoneCh)

	ret := e.cfg.Retention
	if !ret.CleanupEnabled {
		fmt.Printf("Event cleanup: disabled via configuration\n")
		return
	}

	interval := time.Duration(ret.CleanupIntervalHours) * time.Hour
	fmt.Printf("Event cleanup: started (interval=%v, retention=%dd/%dd, per_session_limit=%d, global_limit=%d)\n",
		interval, ret.RetentionDays, ret.RetentionCriticalDays, ret.PerSessionLimitEvents, ret.GlobalLimitEvents)

	if err := e.runEventCleanup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "event cleanup: initial cleanup failed: %v\n", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.eventCleanupStopCh:
			return
		case <-ticker.C:
			if err := e.runEventCleanup(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "event cleanup: error during cleanup: %v\n", err)
			}
		}
	}
}

// runEventCleanup applies the three retention policies in order:
// age-based, per-session limit, then the global cap. Every pass emits
// an event_cleanup_completed event, including partial failures.
func (e *Engine) runEventCleanup(ctx context.Context) error {
	start := time.Now()
	ret := e.cfg.Retention

	ageDeleted, err := e.store.CleanupEventsByAge(ctx, ret.RetentionDays, ret.RetentionCriticalDays, ret.CleanupBatchSize)
	if err != nil {
		e.emitEventCleanup(ctx, ageDeleted, 0, 0, time.Since(start), err)
		return fmt.Errorf("age-based cleanup: %w", err)
	}

	sessionDeleted, err := e.store.CleanupEventsBySessionLimit(ctx, ret.PerSessionLimitEvents, ret.CleanupBatchSize)
	if err != nil {
		e.emitEventCleanup(ctx, ageDeleted, sessionDeleted, 0, time.Since(start), err)
		return fmt.Errorf("per-session cleanup: %w", err)
	}

	globalDeleted, err := e.store.CleanupEventsByGlobalLimit(ctx, ret.GlobalLimitEvents, ret.CleanupBatchSize)
	if err != nil {
		e.emitEventCleanup(ctx, ageDeleted, sessionDeleted, globalDeleted, time.Since(start), err)
		return fmt.Errorf("global limit cleanup: %w", err)
	}

	elapsed := time.Since(start)
	e.emitEventCleanup(ctx, ageDeleted, sessionDeleted, globalDeleted, elapsed, nil)

	total := ageDeleted + sessionDeleted + globalDeleted
	if total > 0 {
		fmt.Printf("Event cleanup: deleted %d event(s) (age=%d, per_session=%d, global=%d) in %dms\n",
			total, ageDeleted, sessionDeleted, globalDeleted, elapsed.Milliseconds())
	}
	return nil
}

func (e *Engine) emitEventCleanup(ctx context.Context, ageDeleted, sessionDeleted, globalDeleted int, elapsed time.Duration, failure error) {
	total := ageDeleted + sessionDeleted + globalDeleted

	remaining := 0
	if counts, err := e.store.GetEventCounts(ctx); err == nil {
		remaining = counts.TotalEvents
	}

	severity := events.SeverityInfo
	message := fmt.Sprintf("Event cleanup removed %d event(s)", total)
	if failure != nil {
		severity = events.SeverityWarning
		message = fmt.Sprintf("Event cleanup failed after removing %d event(s): %v", total, failure)
	}

	event := events.NewSimpleEvent(events.EventTypeEventCleanupCompleted, "", "", actorName, severity, message)
	data := events.EventCleanupCompletedData{
		EventsDeleted:      total,
		TimeBasedDeleted:   ageDeleted,
		PerSessionDeleted:  sessionDeleted,
		GlobalLimitDeleted: globalDeleted,
		ProcessingTimeMs:   elapsed.Milliseconds(),
		EventsRemaining:    remaining,
		Success:            failure == nil,
	}
	if failure != nil {
		data.Error = failure.Error()
	}
	err := event.SetEventCleanupCompletedData(data)
	if err == nil {
		err = e.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record event cleanup: %v\n", err)
	}
}

// retentionLoop purges discoveries older than the configured retention
// window. Disabled entirely when retention is zero.
func (e *Engine) retentionLoop(ctx context.Context) {
	defer close(e.retentionDoneCh)

	days := e.cfg.Curation.DiscoveryRetentionDays
	if days <= 0 {
		return
	}

	fmt.Printf("Discovery retention: started (retention=%dd, interval=%v)\n", days, discoveryRetentionInterval)

	e.runDiscoveryRetention(ctx)

	ticker := time.NewTicker(discoveryRetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.retentionStopCh:
			return
		case <-ticker.C:
			e.runDiscoveryRetention(ctx)
		}
	}
}

func (e *Engine) runDiscoveryRetention(ctx context.Context) {
	start := time.Now()
	deleted, err := e.curator.CleanupExpired(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: discovery retention failed: %v\n", err)
		return
	}

	event := events.NewSimpleEvent(events.EventTypeRetentionCompleted, "", "", actorName, events.SeverityInfo,
		fmt.Sprintf("Discovery retention removed %d expired discoveries", deleted))
	err = event.SetRetentionCompletedData(events.RetentionCompletedData{
		DiscoveriesDeleted: deleted,
		RetentionDays:      e.cfg.Curation.DiscoveryRetentionDays,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
	})
	if err == nil {
		err = e.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record discovery retention: %v\n", err)
	}

	if deleted > 0 {
		fmt.Printf("Discovery retention: removed %d expired discoveries\n", deleted)
	}
}
