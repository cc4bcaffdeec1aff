package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/types"
)

var (
	patternsCategory      string
	patternsMinConfidence float64
	patternsLimit         int
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned behavioral patterns",
	Long: `List the patterns spark has learned from observations, strongest first.

Each line shows the pattern key, a confidence bar, the sample count,
and when the pattern was last reinforced.

Example:
  spark patterns
  spark patterns --category language
  spark patterns --min-confidence 0.7 --limit 5`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		filter := types.PatternFilter{Limit: patternsLimit}
		if patternsCategory != "" {
			category := types.PatternCategory(patternsCategory)
			if !category.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: unknown category %q (language, style, workflow, interest)\n", patternsCategory)
				os.Exit(1)
			}
			filter.Category = &category
		}
		if patternsMinConfidence > 0 {
			filter.MinConfidence = &patternsMinConfidence
		}

		patterns, err := store.ListPatterns(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list patterns: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(patterns) == 0 {
			fmt.Printf("%s\n", gray("No patterns match."))
			fmt.Println("Run 'spark scan' to seed patterns from git history.")
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("Patterns (%d)", len(patterns))))

		for _, p := range patterns {
			fmt.Printf("  %s %s %-28s %3d sample(s)  last seen %s\n",
				confidenceBar(p.Confidence),
				confidenceLabel(p.Confidence),
				p.Key,
				p.SampleCount,
				relativeAge(p.LastSeen))
		}
		fmt.Println()
	},
}

// confidenceBar renders a ten segment bar for a 0..1 score.
func confidenceBar(score float64) string {
	filled := int(score * 10)
	if filled > 10 {
		filled = 10
	}

	barColor := color.New(color.FgHiBlack)
	switch level := types.LevelForConfidence(score); level {
	case types.ConfidenceHigh, types.ConfidenceVeryHigh, types.ConfidenceExceptional:
		barColor = color.New(color.FgGreen)
	case types.ConfidenceModerate:
		barColor = color.New(color.FgYellow)
	}

	bar := barColor.Sprint(strings.Repeat("█", filled))
	bar += color.New(color.FgHiBlack).Sprint(strings.Repeat("░", 10-filled))
	return bar
}

func confidenceLabel(score float64) string {
	return fmt.Sprintf("%.2f", score)
}

// relativeAge renders a timestamp as a short age like "3d ago".
func relativeAge(t time.Time) string {
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

func init() {
	patternsCmd.Flags().StringVar(&patternsCategory, "category", "", "Filter by category: language, style, workflow, interest")
	patternsCmd.Flags().Float64Var(&patternsMinConfidence, "min-confidence", 0, "Only show patterns at or above this confidence")
	patternsCmd.Flags().IntVarP(&patternsLimit, "limit", "n", 0, "Maximum patterns to show (0 = all)")
	rootCmd.AddCommand(patternsCmd)
}
