package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/goals"
	"github.com/sparkengine/spark/internal/types"
)

var (
	planBudget time.Duration
	planRisk   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the goals a session would pursue",
	Long: `Generate an exploration plan from the current patterns without
executing anything. Shows each proposed goal with its category, risk,
time estimate, and the patterns it derives from.

Example:
  spark plan
  spark plan --budget 90m --risk conservative`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		budget := planBudget
		if budget <= 0 {
			budget = settings.Exploration.DefaultBudget
		}
		risk := types.RiskLevel(planRisk)
		if planRisk == "" {
			risk = settings.Scheduler.Risk
		}
		if !risk.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: invalid risk level %q (conservative, balanced, experimental)\n", planRisk)
			os.Exit(1)
		}

		patterns, err := store.ListPatterns(ctx, types.PatternFilter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load patterns: %v\n", err)
			os.Exit(1)
		}

		// Profile and history sharpen the plan but are not required.
		profile, _ := store.GetProjectProfile(ctx, projectID())
		history, err := store.GetCategoryDurations(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load run history: %v\n", err)
			history = nil
		}

		proposed := goals.Generate(settings.Exploration, patterns, profile, history, budget, risk)

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(proposed) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s No goals proposed.\n", yellow("ℹ"))
			fmt.Println("Run 'spark summary' to see what is blocking exploration.")
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s %s\n\n",
			cyan("Proposed Goals"),
			gray(fmt.Sprintf("(budget %s, risk %s)", budget, risk)))

		var total time.Duration
		for i, g := range proposed {
			fmt.Printf("%2d. [%s] %s\n", i+1, riskBadge(g.Risk), g.Description)
			fmt.Printf("    %s %s, about %s, priority %.2f\n",
				gray("→"), g.Category, g.EstimatedCost.Round(time.Minute), g.Priority)
			fmt.Printf("    %s derived from %s\n", gray("→"), strings.Join(g.DerivedFrom, ", "))
			total += g.EstimatedCost
		}
		fmt.Println()
		fmt.Printf("Estimated total: %s of %s budget\n", total.Round(time.Minute), budget)
		fmt.Println()
		fmt.Println("Run 'spark explore' to execute this plan.")
		fmt.Println()
	},
}

// riskBadge colors a risk level for display.
func riskBadge(risk types.RiskLevel) string {
	switch risk {
	case types.RiskConservative:
		return color.New(color.FgGreen).Sprint(risk)
	case types.RiskExperimental:
		return color.New(color.FgRed).Sprint(risk)
	default:
		return color.New(color.FgYellow).Sprint(risk)
	}
}

func init() {
	planCmd.Flags().DurationVar(&planBudget, "budget", 0, "Session time budget (default from settings)")
	planCmd.Flags().StringVar(&planRisk, "risk", "", "Risk ceiling: conservative, balanced, experimental")
	rootCmd.AddCommand(planCmd)
}
