package repl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sparkengine/spark/internal/events"
	"github.com/sparkengine/spark/internal/goals"
	"github.com/sparkengine/spark/internal/types"
)

// cmdStatus shows pattern and exploration totals
func (r *REPL) cmdStatus(args []string) error {
	stats, err := r.store.GetStatistics(r.ctx, r.settings.Exploration.ReadyThreshold)
	if err != nil {
		return fmt.Errorf("failed to load statistics: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Project Status"))
	fmt.Println()
	fmt.Printf("  Observations  %d\n", stats.TotalObservations)
	fmt.Printf("  Patterns      %d (%s ready, avg confidence %.2f)\n",
		stats.TotalPatterns, green(fmt.Sprintf("%d", stats.ReadyPatterns)), stats.AverageConfidence)
	fmt.Printf("  Sessions      %d", stats.TotalSessions)
	if stats.ActiveSessions > 0 {
		fmt.Printf(" (%s active)", yellow(fmt.Sprintf("%d", stats.ActiveSessions)))
	}
	fmt.Println()
	fmt.Printf("  Runs          %d\n", stats.TotalRuns)
	fmt.Printf("  Discoveries   %d", stats.TotalDiscoveries)
	if stats.FeaturedDiscoveries > 0 {
		fmt.Printf(" (%s featured)", green(fmt.Sprintf("%d ✨", stats.FeaturedDiscoveries)))
	}
	fmt.Println()
	fmt.Println()

	return nil
}

// cmdPatterns lists learned patterns, optionally filtered by category
func (r *REPL) cmdPatterns(args []string) error {
	filter := types.PatternFilter{}
	if len(args) > 0 {
		category := types.PatternCategory(args[0])
		if !category.IsValid() {
			return fmt.Errorf("unknown category %q (language, style, workflow, interest)", args[0])
		}
		filter.Category = &category
	}

	patterns := r.patterns.Patterns(filter)
	if len(patterns) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No patterns yet. Run 'spark scan' or keep coding.\n\n", yellow("ℹ"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Patterns"))
	fmt.Println()

	for i, p := range patterns {
		if i >= 15 {
			fmt.Printf("\n... and %d more\n", len(patterns)-15)
			break
		}
		fmt.Printf("%2d. %s %s  %d sample(s), last seen %s\n",
			i+1, confidenceBadge(p.Confidence), p.Key, p.SampleCount, timeAgo(p.LastSeen))
	}
	fmt.Println()

	return nil
}

// cmdSummary shows exploration readiness
func (r *REPL) cmdSummary(args []string) error {
	sum := r.patterns.Summary(r.settings.Exploration.ReadyThreshold)

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Exploration Readiness"))
	fmt.Println()

	if sum.Ready {
		fmt.Printf("  %s Ready to explore (%.0f%%, suggested risk: %s)\n",
			green("✓"), sum.Readiness*100, sum.SuggestedRisk)
	} else {
		fmt.Printf("  %s Not ready yet (%.0f%%)\n", yellow("○"), sum.Readiness*100)
	}
	fmt.Printf("  %d pattern(s), %d ready, avg confidence %.2f\n",
		sum.TotalPatterns, sum.ReadyPatterns, sum.AverageConfidence)
	fmt.Println()

	if len(sum.TopPatterns) > 0 {
		fmt.Println("  Strongest patterns:")
		for _, p := range sum.TopPatterns {
			fmt.Printf("    %s %s\n", confidenceBadge(p.Confidence), p.Key)
		}
		fmt.Println()
	}

	for _, f := range sum.BlockingFactors {
		fmt.Printf("  %s %s\n", red("✗"), f)
	}
	for _, rec := range sum.Recommendations {
		fmt.Printf("  %s %s\n", gray("→"), rec)
	}
	if len(sum.BlockingFactors) > 0 || len(sum.Recommendations) > 0 {
		fmt.Println()
	}

	return nil
}

// cmdPlan previews the goals a session would pursue
func (r *REPL) cmdPlan(args []string) error {
	budget := r.settings.Exploration.DefaultBudget
	risk := r.settings.Scheduler.Risk

	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid budget %q (try 90m or 2h)", args[0])
		}
		budget = d
	}
	if len(args) > 1 {
		risk = types.RiskLevel(args[1])
		if !risk.IsValid() {
			return fmt.Errorf("invalid risk %q (conservative, balanced, experimental)", args[1])
		}
	}

	patterns := r.patterns.Patterns(types.PatternFilter{})

	// Profile and history are optional inputs; planning works without them.
	profile, _ := r.store.GetProjectProfile(r.ctx, r.projectID)
	history, err := r.store.GetCategoryDurations(r.ctx)
	if err != nil {
		history = nil
	}

	proposed := goals.Generate(r.settings.Exploration, patterns, profile, history, budget, risk)
	if len(proposed) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No goals proposed. Check 'summary' for blocking factors.\n\n", yellow("ℹ"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s (budget %s, risk %s)\n", cyan("Proposed Goals"), budget, risk)
	fmt.Println()

	for i, g := range proposed {
		fmt.Printf("%2d. [%s] %s\n", i+1, g.Category, g.Description)
		fmt.Printf("    %s %s, about %s, from %s\n",
			gray("→"), g.Risk, g.EstimatedCost.Round(time.Minute), strings.Join(g.DerivedFrom, ", "))
	}
	fmt.Println()
	fmt.Println("Run 'spark explore' to execute a plan like this.")
	fmt.Println()

	return nil
}

// cmdSessions lists recent sessions or inspects one
func (r *REPL) cmdSessions(args []string) error {
	if len(args) > 0 {
		return r.showSession(args[0])
	}

	sessions, err := r.store.ListSessions(r.ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No sessions yet. Run 'spark explore' to start one.\n\n", yellow("ℹ"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Recent Sessions"))
	fmt.Println()

	for i, s := range sessions {
		fmt.Printf("%2d. %s %s  %d goal(s), %s budget, started %s\n",
			i+1, sessionBadge(s.State), green(s.ID), len(s.Goals), s.Budget, timeAgo(s.StartedAt))
	}
	fmt.Println()

	return nil
}

func (r *REPL) showSession(id string) error {
	session, err := r.store.GetSession(r.ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	runs, err := r.store.ListRunsBySession(r.ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %s\n", cyan("Session"), session.ID)
	fmt.Println()
	fmt.Printf("  State    %s %s\n", sessionBadge(session.State), session.State)
	fmt.Printf("  Risk     %s\n", session.Risk)
	fmt.Printf("  Budget   %s\n", session.Budget)
	fmt.Printf("  Started  %s\n", timeAgo(session.StartedAt))
	if session.Error != "" {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("  Error    %s\n", red(session.Error))
	}
	fmt.Println()

	for _, run := range runs {
		fmt.Printf("  %s run %s  goal %s\n", runBadge(run.State), run.ID, run.GoalID)
		if run.Error != nil {
			fmt.Printf("    %s %s: %s\n", gray("→"), run.Error.Kind, run.Error.Detail)
		}
	}
	if len(runs) > 0 {
		fmt.Println()
	}

	return nil
}

// cmdDiscoveries lists recent discoveries or inspects one
func (r *REPL) cmdDiscoveries(args []string) error {
	if len(args) > 0 {
		return r.showDiscovery(args[0])
	}

	discoveries, err := r.store.ListDiscoveries(r.ctx, types.DiscoveryFilter{Limit: 10})
	if err != nil {
		return fmt.Errorf("failed to list discoveries: %w", err)
	}
	if len(discoveries) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No discoveries yet.\n\n", yellow("ℹ"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Recent Discoveries"))
	fmt.Println()

	for i, d := range discoveries {
		marker := " "
		if d.Featured {
			marker = "✨"
		}
		fmt.Printf("%2d. %s %s [%s] %s (value %.2f)\n",
			i+1, marker, green(d.ID), d.Category, d.Title, d.ValueScore)
	}
	fmt.Println()

	return nil
}

func (r *REPL) showDiscovery(id string) error {
	d, err := r.store.GetDiscovery(r.ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load discovery: %w", err)
	}
	if d == nil {
		return types.ErrDiscoveryNotFound
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %s", cyan("Discovery"), d.Title)
	if d.Featured {
		fmt.Printf(" %s", green("✨ featured"))
	}
	fmt.Println()
	fmt.Println()
	fmt.Printf("  %s\n", d.Description)
	fmt.Println()
	fmt.Printf("  Category    %s\n", d.Category)
	fmt.Printf("  Value       %.2f (novelty %.2f, difficulty %s)\n",
		d.ValueScore, d.NoveltyScore, d.Difficulty)
	if len(d.DerivedFrom) > 0 {
		fmt.Printf("  Derived     %s\n", strings.Join(d.DerivedFrom, ", "))
	}
	fmt.Printf("  Created     %s\n", timeAgo(d.CreatedAt))
	if d.UserFeedback != nil {
		fmt.Printf("  Feedback    %d/5", d.UserFeedback.Rating)
		if d.UserFeedback.Note != "" {
			fmt.Printf(" %s", gray(d.UserFeedback.Note))
		}
		fmt.Println()
	}
	fmt.Println()

	return nil
}

// cmdFeedback records a rating for a discovery
func (r *REPL) cmdFeedback(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: feedback <discovery-id> <rating 1-5> [note]")
	}

	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("rating must be a number between 1 and 5")
	}
	note := strings.Join(args[2:], " ")

	if _, err := r.curation.RecordFeedback(r.ctx, args[0], rating, note); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Feedback recorded for %s\n", green("✓"), args[0])
	return nil
}

// cmdTail shows recent engine events
func (r *REPL) cmdTail(args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("usage: tail [count]")
		}
		limit = n
	}

	evs, err := r.store.GetRecentEvents(r.ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	if len(evs) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No events yet.\n\n", yellow("ℹ"))
		return nil
	}

	fmt.Println()
	// Newest first from storage; print oldest first so the shell reads
	// like a log.
	for i := len(evs) - 1; i >= 0; i-- {
		ev := evs[i]
		fmt.Printf("%s [%s] %s: %s\n",
			severityBadge(ev.Severity), ev.Timestamp.Format("15:04:05"), ev.Type, ev.Message)
	}
	fmt.Println()

	return nil
}

// confidenceBadge renders a colored confidence score.
func confidenceBadge(score float64) string {
	text := fmt.Sprintf("%.2f", score)
	switch level := types.LevelForConfidence(score); level {
	case types.ConfidenceHigh, types.ConfidenceVeryHigh, types.ConfidenceExceptional:
		return color.New(color.FgGreen).Sprint(text)
	case types.ConfidenceModerate:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgHiBlack).Sprint(text)
	}
}

func sessionBadge(state types.SessionState) string {
	switch state {
	case types.SessionCompleted:
		return color.New(color.FgGreen).Sprint("✓")
	case types.SessionRunning:
		return color.New(color.FgYellow).Sprint("●")
	case types.SessionFailed:
		return color.New(color.FgRed).Sprint("✗")
	case types.SessionCancelled:
		return color.New(color.FgHiBlack).Sprint("○")
	default:
		return color.New(color.FgCyan).Sprint("◌")
	}
}

func runBadge(state types.RunState) string {
	switch state {
	case types.RunSucceeded:
		return color.New(color.FgGreen).Sprint("✓")
	case types.RunFailed, types.RunTimedOut:
		return color.New(color.FgRed).Sprint("✗")
	case types.RunCancelled:
		return color.New(color.FgHiBlack).Sprint("○")
	default:
		return color.New(color.FgYellow).Sprint("●")
	}
}

func severityBadge(sev events.EventSeverity) string {
	switch sev {
	case events.SeverityWarning:
		return color.New(color.FgYellow).Sprint("⚠")
	case events.SeverityError, events.SeverityCritical:
		return color.New(color.FgRed).Sprint("✗")
	default:
		return color.New(color.FgHiBlack).Sprint("·")
	}
}

// timeAgo renders a timestamp as a relative age.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
