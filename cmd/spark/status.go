package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/storage"
	"github.com/sparkengine/spark/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pattern confidence and exploration state",
	Long: `Show an overview of the project: how many patterns spark has learned,
whether the engine daemon is running, recent sessions, and discovery totals.

Example:
  spark status`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		stats, err := store.GetStatistics(ctx, settings.Exploration.ReadyThreshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get statistics: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s\n", yellow("Patterns:"))
		if stats.TotalPatterns == 0 {
			fmt.Printf("  %s\n", gray("No patterns learned yet"))
			fmt.Printf("  Run 'spark scan' to seed from git history\n")
		} else {
			fmt.Printf("  Total:          %d (from %d observations)\n",
				stats.TotalPatterns, stats.TotalObservations)
			fmt.Printf("  Ready:          %s (confidence >= %.2f)\n",
				green(fmt.Sprintf("%d", stats.ReadyPatterns)), settings.Exploration.ReadyThreshold)
			fmt.Printf("  Avg confidence: %.2f\n", stats.AverageConfidence)
			if len(stats.PatternsByCategory) > 0 {
				fmt.Printf("  By category:    ")
				first := true
				for _, cat := range []types.PatternCategory{
					types.CategoryLanguage, types.CategoryStyle,
					types.CategoryWorkflow, types.CategoryInterest,
				} {
					if n, ok := stats.PatternsByCategory[cat]; ok && n > 0 {
						if !first {
							fmt.Print(", ")
						}
						fmt.Printf("%s %d", cat, n)
						first = false
					}
				}
				fmt.Println()
			}
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Engine:"))
		displayEngineStatus()
		fmt.Println()

		fmt.Printf("%s\n", yellow("Exploration:"))
		if stats.TotalSessions == 0 {
			fmt.Printf("  %s\n", gray("No sessions yet"))
		} else {
			fmt.Printf("  Sessions: %d total", stats.TotalSessions)
			if stats.ActiveSessions > 0 {
				fmt.Printf(", %s active", green(fmt.Sprintf("%d", stats.ActiveSessions)))
			}
			fmt.Println()
			fmt.Printf("  Runs:     %d total", stats.TotalRuns)
			if n := stats.RunsByState[types.RunSucceeded]; n > 0 {
				fmt.Printf(", %s succeeded", green(fmt.Sprintf("%d", n)))
			}
			if n := stats.RunsByState[types.RunFailed]; n > 0 {
				red := color.New(color.FgRed).SprintFunc()
				fmt.Printf(", %s failed", red(fmt.Sprintf("%d", n)))
			}
			if n := stats.RunsByState[types.RunTimedOut]; n > 0 {
				fmt.Printf(", %d timed out", n)
			}
			fmt.Println()
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Discoveries:"))
		if stats.TotalDiscoveries == 0 {
			fmt.Printf("  %s\n", gray("Nothing discovered yet"))
		} else {
			fmt.Printf("  Total: %d", stats.TotalDiscoveries)
			if stats.FeaturedDiscoveries > 0 {
				fmt.Printf(", %s featured ✨", green(fmt.Sprintf("%d", stats.FeaturedDiscoveries)))
			}
			fmt.Println()
			fmt.Printf("  Run 'spark discoveries' to browse\n")
		}
		fmt.Println()
	},
}

// displayEngineStatus reports whether a daemon holds the engine lock.
func displayEngineStatus() {
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	lock, alive, err := storage.ReadEngineLock(dbPath)
	if err != nil {
		fmt.Printf("  %s Could not read engine lock: %v\n", yellow("⚠"), err)
		return
	}
	if lock == nil {
		fmt.Printf("  %s %s\n", gray("○"), gray("Not running"))
		fmt.Printf("  Start 'run-engine' to explore during idle time\n")
		return
	}
	if !alive {
		fmt.Printf("  %s Stale lock (PID %d no longer running)\n", yellow("⚠"), lock.PID)
		fmt.Printf("  The next engine start will reclaim it\n")
		return
	}

	fmt.Printf("  %s %s\n", green("●"), green("Running"))
	fmt.Printf("    Host:    %s (PID %d)\n", lock.Hostname, lock.PID)
	fmt.Printf("    Started: %s (%v ago)\n",
		lock.StartedAt.Format("2006-01-02 15:04:05"),
		time.Since(lock.StartedAt).Round(time.Second))
	fmt.Printf("    Version: %s\n", lock.Version)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
