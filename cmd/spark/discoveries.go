package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/types"
)

var (
	discoveriesCategory string
	discoveriesMinValue float64
	discoveriesFeatured bool
	discoveriesSession  string
	discoveriesLimit    int
)

var discoveriesCmd = &cobra.Command{
	Use:   "discoveries [discovery-id]",
	Short: "Browse what exploration produced",
	Long: `Without arguments, list curated discoveries ranked by value.
With a discovery ID, show its full description, scores, and feedback.

Example:
  spark discoveries
  spark discoveries --featured
  spark discoveries --category testing --min-value 0.5
  spark discoveries dis-4a2e91`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if len(args) == 1 {
			showDiscoveryDetail(ctx, args[0])
			return
		}

		filter := types.DiscoveryFilter{
			FeaturedOnly: discoveriesFeatured,
			SessionID:    discoveriesSession,
			Limit:        discoveriesLimit,
		}
		if discoveriesCategory != "" {
			category := types.GoalCategory(discoveriesCategory)
			if !category.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: unknown category %q\n", discoveriesCategory)
				os.Exit(1)
			}
			filter.Category = &category
		}
		if discoveriesMinValue > 0 {
			filter.MinValue = &discoveriesMinValue
		}

		discoveries, err := store.ListDiscoveries(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list discoveries: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(discoveries) == 0 {
			fmt.Printf("%s\n", gray("No discoveries match."))
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("Discoveries (%d)", len(discoveries))))

		for _, d := range discoveries {
			marker := " "
			if d.Featured {
				marker = "✨"
			}
			rating := ""
			if d.UserFeedback != nil {
				rating = gray(fmt.Sprintf("  rated %d/5", d.UserFeedback.Rating))
			}
			fmt.Printf("  %s %s [%s] %s\n", marker, green(d.ID), d.Category, d.Title)
			fmt.Printf("     %s value %.2f, novelty %.2f, %s%s\n",
				gray("→"), d.ValueScore, d.NoveltyScore, relativeAge(d.CreatedAt), rating)
		}
		fmt.Println()
	},
}

// showDiscoveryDetail prints everything recorded about one discovery.
func showDiscoveryDetail(ctx context.Context, id string) {
	d, err := store.GetDiscovery(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load discovery: %v\n", err)
		os.Exit(1)
	}
	if d == nil {
		fmt.Fprintf(os.Stderr, "Error: discovery %s not found\n", id)
		os.Exit(1)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %s", cyan("Discovery"), d.Title)
	if d.Featured {
		fmt.Printf("  %s", green("✨ featured"))
	}
	fmt.Println()
	fmt.Println()
	fmt.Printf("  %s\n\n", d.Description)
	fmt.Printf("  ID:         %s\n", d.ID)
	fmt.Printf("  Category:   %s\n", d.Category)
	fmt.Printf("  Value:      %.2f (novelty %.2f, difficulty %s)\n",
		d.ValueScore, d.NoveltyScore, d.Difficulty)
	if len(d.DerivedFrom) > 0 {
		fmt.Printf("  Derived:    %s\n", strings.Join(d.DerivedFrom, ", "))
	}
	fmt.Printf("  Session:    %s\n", d.SessionID)
	fmt.Printf("  Run:        %s\n", d.RunID)
	if d.DedupGroupID != "" {
		fmt.Printf("  Dedup:      group %s\n", d.DedupGroupID)
	}
	fmt.Printf("  Created:    %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))

	if d.UserFeedback != nil {
		fmt.Printf("  Feedback:   %d/5", d.UserFeedback.Rating)
		if d.UserFeedback.Note != "" {
			fmt.Printf("  %s", gray(d.UserFeedback.Note))
		}
		fmt.Println()
	} else {
		fmt.Printf("\n  %s\n", gray(fmt.Sprintf("Rate it: spark feedback %s <1-5> [note]", d.ID)))
	}
	fmt.Println()
}

func init() {
	discoveriesCmd.Flags().StringVar(&discoveriesCategory, "category", "", "Filter by goal category")
	discoveriesCmd.Flags().Float64Var(&discoveriesMinValue, "min-value", 0, "Only show discoveries at or above this value score")
	discoveriesCmd.Flags().BoolVar(&discoveriesFeatured, "featured", false, "Only show featured discoveries")
	discoveriesCmd.Flags().StringVar(&discoveriesSession, "session", "", "Only show discoveries from this session")
	discoveriesCmd.Flags().IntVarP(&discoveriesLimit, "limit", "n", 20, "Maximum discoveries to list")
	rootCmd.AddCommand(discoveriesCmd)
}
