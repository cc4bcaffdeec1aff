package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sparkengine/spark/internal/events"
)

// scheduleLoop launches unattended exploration sessions inside the
// configured nightly window once the project has gone idle. At most
// one scheduled session starts per window.
func (e *Engine) scheduleLoop(ctx context.Context) {
	defer close(e.scheduleDoneCh)

	sched := e.cfg.Scheduler
	if !sched.Enabled {
		return
	}

	fmt.Printf("Scheduler: started (window %s+%dh, idle threshold %v, check every %v)\n",
		sched.PreferredStart, sched.WindowHours, sched.IdleThreshold, sched.CheckInterval)

	ticker := time.NewTicker(sched.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.scheduleStopCh:
			return
		case <-ticker.C:
			e.checkSchedule(ctx, time.Now())
		}
	}
}

// scheduleWindow resolves the exploration window relative to now. The
// window opens at preferredStart local time and stays open for
// windowHours; a start still ahead of now refers to yesterday's
// window. inside reports whether now falls before the window's end.
func scheduleWindow(preferredStart string, windowHours int, now time.Time) (start, end time.Time, inside bool) {
	t, err := time.Parse("15:04", preferredStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	end = start.Add(time.Duration(windowHours) * time.Hour)
	return start, end, now.Before(end)
}

// checkSchedule evaluates one scheduler tick: emit the window-opened
// event the first time a window is seen, then start a session once the
// idle threshold is met and the window has not been used yet.
func (e *Engine) checkSchedule(ctx context.Context, now time.Time) {
	sched := e.cfg.Scheduler
	start, end, inside := scheduleWindow(sched.PreferredStart, sched.WindowHours, now)
	if !inside {
		return
	}

	e.mu.Lock()
	idle := now.Sub(e.lastActivity)
	firstSight := !start.Equal(e.windowSeen)
	if firstSight {
		e.windowSeen = start
	}
	used := start.Equal(e.windowUsed)
	e.mu.Unlock()

	if firstSight {
		e.emitWindowOpened(ctx, start, end, idle)
	}
	if used {
		return
	}
	if idle < sched.IdleThreshold {
		return
	}
	if e.orch.ActiveSessionCount() >= sched.MaxConcurrentSessions {
		return
	}

	budget := e.cfg.Exploration.DefaultBudget
	goals, err := e.PlanSession(ctx, budget, sched.Risk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: scheduled planning failed: %v\n", err)
		return
	}
	if len(goals) == 0 {
		return
	}

	sessionID, err := e.startSession(ctx, goals, budget, sched.Risk, schedulerActor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: scheduled session failed to start: %v\n", err)
		return
	}

	e.mu.Lock()
	e.windowUsed = start
	e.mu.Unlock()

	fmt.Printf("Scheduler: started session %s (%d goal(s), risk %s)\n", sessionID, len(goals), sched.Risk)
}

func (e *Engine) emitWindowOpened(ctx context.Context, start, end time.Time, idle time.Duration) {
	event := events.NewSimpleEvent(events.EventTypeScheduleWindowOpened, "", "", schedulerActor, events.SeverityInfo,
		fmt.Sprintf("Exploration window open until %s", end.Format("15:04")))
	err := event.SetScheduleWindowData(events.ScheduleWindowData{
		WindowStart: start,
		WindowEnd:   end,
		IdleFor:     idle,
	})
	if err == nil {
		err = e.store.StoreEvent(ctx, event)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record schedule window: %v\n", err)
	}
}
