package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/confidence"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show exploration readiness",
	Long: `Show whether the project has enough stable patterns for exploration,
which risk level the evidence supports, and what is blocking if not.

Example:
  spark summary`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// Hydrate a confidence store just for this read. The daemon owns
		// the live one; this command only needs a snapshot.
		patterns := confidence.New(settings.Learning, store)
		if err := patterns.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load patterns: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := patterns.Stop(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to stop confidence store: %v\n", err)
			}
		}()

		sum := patterns.Summary(settings.Exploration.ReadyThreshold)

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("Exploration Readiness"))

		if sum.Ready {
			fmt.Printf("  %s Ready to explore\n", green("✓"))
		} else {
			fmt.Printf("  %s Not ready yet\n", yellow("○"))
		}
		fmt.Printf("  Readiness:      %.0f%%\n", sum.Readiness*100)
		fmt.Printf("  Patterns:       %d total, %d ready\n", sum.TotalPatterns, sum.ReadyPatterns)
		fmt.Printf("  Avg confidence: %.2f\n", sum.AverageConfidence)
		fmt.Printf("  Suggested risk: %s\n", sum.SuggestedRisk)
		fmt.Println()

		if len(sum.TopPatterns) > 0 {
			fmt.Printf("  %s\n", cyan("Strongest patterns"))
			for _, p := range sum.TopPatterns {
				fmt.Printf("    %s %s %s\n", confidenceBar(p.Confidence), confidenceLabel(p.Confidence), p.Key)
			}
			fmt.Println()
		}

		if len(sum.BlockingFactors) > 0 {
			fmt.Printf("  %s\n", cyan("Blocking"))
			for _, f := range sum.BlockingFactors {
				fmt.Printf("    %s %s\n", red("✗"), f)
			}
			fmt.Println()
		}

		if len(sum.Recommendations) > 0 {
			for _, rec := range sum.Recommendations {
				fmt.Printf("  %s %s\n", gray("→"), rec)
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
