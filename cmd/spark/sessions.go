package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/types"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List exploration sessions or inspect one",
	Long: `Without arguments, list recent exploration sessions newest first.
With a session ID, show its goals, runs, and discoveries.

Example:
  spark sessions
  spark sessions ses-1b9f3c
  spark sessions --limit 25`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if len(args) == 1 {
			showSessionDetail(ctx, args[0])
			return
		}

		sessions, err := store.ListSessions(ctx, sessionsLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list sessions: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(sessions) == 0 {
			fmt.Printf("%s\n", gray("No sessions yet."))
			fmt.Println("Run 'spark explore' to start one.")
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("Sessions (%d)", len(sessions))))

		for _, s := range sessions {
			fmt.Printf("  %s %s  %d goal(s), %s budget, %s, started %s\n",
				sessionStateBadge(s.State), green(s.ID), len(s.Goals), s.Budget, s.Risk, relativeAge(s.StartedAt))
		}
		fmt.Println()
	},
}

// showSessionDetail prints one session with its runs and discoveries.
func showSessionDetail(ctx context.Context, id string) {
	session, err := store.GetSession(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load session: %v\n", err)
		os.Exit(1)
	}
	runs, err := store.ListRunsBySession(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load runs: %v\n", err)
		os.Exit(1)
	}
	discoveries, err := store.ListDiscoveries(ctx, types.DiscoveryFilter{SessionID: id})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load discoveries: %v\n", err)
		os.Exit(1)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %s\n\n", cyan("Session"), session.ID)
	fmt.Printf("  State:   %s %s\n", sessionStateBadge(session.State), session.State)
	fmt.Printf("  Risk:    %s\n", session.Risk)
	fmt.Printf("  Budget:  %s\n", session.Budget)
	fmt.Printf("  Started: %s\n", session.StartedAt.Format("2006-01-02 15:04:05"))
	if session.CompletedAt != nil {
		fmt.Printf("  Took:    %s\n", session.CompletedAt.Sub(session.StartedAt).Round(time.Second))
	}
	if session.Error != "" {
		fmt.Printf("  Error:   %s\n", red(session.Error))
	}
	fmt.Println()

	goalByID := make(map[string]types.Goal, len(session.Goals))
	for _, g := range session.Goals {
		goalByID[g.ID] = g
	}

	if len(runs) > 0 {
		fmt.Printf("  %s\n", cyan("Runs"))
		for _, run := range runs {
			desc := run.GoalID
			if g, ok := goalByID[run.GoalID]; ok {
				desc = g.Description
			}
			fmt.Printf("    %s %s  %s\n", runStateBadge(run.State), run.State, desc)
			if run.Error != nil {
				fmt.Printf("      %s %s: %s\n", gray("→"), run.Error.Kind, run.Error.Detail)
			}
			if run.Metrics.ValidationScore > 0 {
				fmt.Printf("      %s score %.2f, %d test(s) passed\n",
					gray("→"), run.Metrics.ValidationScore, run.Metrics.TestsPassed)
			}
		}
		fmt.Println()
	}

	if len(discoveries) > 0 {
		fmt.Printf("  %s\n", cyan("Discoveries"))
		for _, d := range discoveries {
			marker := " "
			if d.Featured {
				marker = "✨"
			}
			fmt.Printf("    %s %s [%s] %s (value %.2f)\n",
				marker, green(d.ID), d.Category, d.Title, d.ValueScore)
		}
		fmt.Println()
		fmt.Printf("  Run 'spark discoveries <id>' for details\n")
		fmt.Println()
	}
}

func sessionStateBadge(state types.SessionState) string {
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

func runStateBadge(state types.RunState) string {
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

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 10, "Maximum sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}
