package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/types"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <discovery-id> <rating> [note...]",
	Short: "Rate a discovery from 1 (useless) to 5 (excellent)",
	Long: `Record feedback on a discovery. Ratings feed back into ranking:
4 and 5 reinforce the patterns the discovery came from, 1 and 2 push
similar goals down in future sessions.

Example:
  spark feedback dis-4a2e91 5
  spark feedback dis-4a2e91 2 not worth the sandbox time`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		rating, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: rating must be a number between 1 and 5\n")
			os.Exit(1)
		}
		note := strings.Join(args[2:], " ")

		curation := curator.New(settings.Curation, store)
		feedback, err := curation.RecordFeedback(ctx, args[0], rating, note)
		if err != nil {
			if errors.Is(err, types.ErrDiscoveryNotFound) {
				fmt.Fprintf(os.Stderr, "Error: discovery %s not found\n", args[0])
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Recorded %d/5 for %s\n", green("✓"), feedback.Rating, args[0])
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
}
