package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/engine"
	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/types"
)

var (
	exploreBudget time.Duration
	exploreRisk   string
	exploreDryRun bool
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Plan and run an exploration session now",
	Long: `Boot the engine for one exploration session: derive goals from the
current patterns, generate and execute artifacts in a sandbox, validate
the results, and record discoveries.

This takes the engine lock, so it cannot run while the daemon is up.
Press Ctrl+C to abort the session; completed runs are kept.

Example:
  spark explore
  spark explore --budget 30m --risk conservative
  spark explore --dry-run`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, _ := os.Getwd()
		if err := storage.ValidateAlignment(dbPath, cwd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		budget := exploreBudget
		if budget <= 0 {
			budget = settings.Exploration.DefaultBudget
		}
		risk := types.RiskLevel(exploreRisk)
		if exploreRisk == "" {
			risk = settings.Scheduler.Risk
		}

		lockPath, err := storage.AcquireEngineLock(dbPath, version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Stop the engine daemon first, or let it explore on schedule.")
			os.Exit(1)
		}
		defer func() {
			if err := storage.ReleaseEngineLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		eng, err := engine.New(&engine.Config{
			Store:       store,
			ProjectRoot: projectRoot(),
			Settings:    &settings,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to configure engine: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := eng.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start engine: %v\n", err)
			os.Exit(1)
		}
		defer stopEngine(eng)

		proposed, err := eng.PlanSession(ctx, budget, risk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: planning failed: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(proposed) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s No goals proposed. Run 'spark summary' to see why.\n", yellow("ℹ"))
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s %s\n\n",
			cyan("Exploration Plan"),
			gray(fmt.Sprintf("(budget %s, risk %s)", budget, risk)))
		for i, g := range proposed {
			fmt.Printf("%2d. [%s] %s\n", i+1, riskBadge(g.Risk), g.Description)
			fmt.Printf("    %s %s, about %s, from %s\n",
				gray("→"), g.Category, g.EstimatedCost.Round(time.Minute), strings.Join(g.DerivedFrom, ", "))
		}
		fmt.Println()

		if exploreDryRun {
			fmt.Println("Dry run requested; nothing executed.")
			return
		}

		sessionID, err := eng.StartSession(ctx, proposed, budget, risk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start session: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s Exploring %d goal(s) (session %s)...\n\n",
			yellow("●"), len(proposed), sessionID)

		if err := eng.WaitSession(ctx, sessionID); err != nil {
			if ctx.Err() != nil {
				fmt.Printf("\n%s Interrupted, aborting session...\n", yellow("⚠"))
				if err := eng.AbortSession(sessionID); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: abort failed: %v\n", err)
				} else {
					// Give the orchestrator a moment to settle into a
					// terminal state before reporting.
					settleCtx, settle := context.WithTimeout(context.Background(), 10*time.Second)
					_ = eng.WaitSession(settleCtx, sessionID)
					settle()
				}
			} else {
				fmt.Fprintf(os.Stderr, "Error: waiting for session: %v\n", err)
			}
		}

		showSessionDetail(context.Background(), sessionID)
	},
}

// stopEngine shuts the engine down with its own deadline. The command
// context may already be cancelled by the time this runs.
func stopEngine(eng *engine.Engine) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: engine shutdown: %v\n", err)
	}
}

func init() {
	exploreCmd.Flags().DurationVar(&exploreBudget, "budget", 0, "Session time budget (default from settings)")
	exploreCmd.Flags().StringVar(&exploreRisk, "risk", "", "Risk ceiling: conservative, balanced, experimental")
	exploreCmd.Flags().BoolVar(&exploreDryRun, "dry-run", false, "Show the plan without executing it")
	rootCmd.AddCommand(exploreCmd)
}
