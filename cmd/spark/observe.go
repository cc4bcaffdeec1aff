package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/ingest"
	"github.com/sparkengine/spark/internal/types"
)

var (
	observeFramework string
	observePassed    int
	observeFailed    int
	observeSkipped   int
	observeDuration  time.Duration
)

var observeCmd = &cobra.Command{
	Use:   "observe [test-output-file]",
	Short: "Record a test run as an observation",
	Long: `Feed a test run into the confidence store. Reads 'go test -v' output
from a file or stdin, or takes explicit counts via flags.

Wire it into your workflow so test habits become patterns:
  go test -v ./... 2>&1 | spark observe

Example:
  go test -v ./... 2>&1 | spark observe
  spark observe test.log
  spark observe --passed 42 --failed 1 --duration 8s`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		normalizer := ingest.NewNormalizer(projectID())
		reporter := ingest.NewTestRunReporter(normalizer)

		obs, err := buildTestObservation(reporter, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Same order the engine uses: persist first, then reinforce.
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

		if err := store.AppendObservation(ctx, obs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to persist observation: %v\n", err)
			os.Exit(1)
		}
		keys, err := patterns.Ingest(ctx, obs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to ingest observation: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		run := obs.TestRun
		fmt.Printf("%s Recorded test run: %d passed, %d failed, %d skipped\n",
			green("✓"), run.Passed, run.Failed, run.Skipped)
		if len(keys) > 0 {
			fmt.Printf("  %s reinforced %s\n", gray("→"), strings.Join(keys, ", "))
		}
	},
}

// buildTestObservation normalizes either explicit counts or raw test output.
func buildTestObservation(reporter *ingest.TestRunReporter, args []string) (obs *types.Observation, err error) {
	if observePassed+observeFailed+observeSkipped > 0 {
		return reporter.Report(observeFramework, observePassed, observeFailed, observeSkipped, observeDuration)
	}

	var data []byte
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", args[0], err)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	}
	return reporter.ReportOutput(string(data))
}

func init() {
	observeCmd.Flags().StringVar(&observeFramework, "framework", "go-test", "Test framework name")
	observeCmd.Flags().IntVar(&observePassed, "passed", 0, "Tests passed")
	observeCmd.Flags().IntVar(&observeFailed, "failed", 0, "Tests failed")
	observeCmd.Flags().IntVar(&observeSkipped, "skipped", 0, "Tests skipped")
	observeCmd.Flags().DurationVar(&observeDuration, "duration", 0, "How long the test run took")
	rootCmd.AddCommand(observeCmd)
}
