package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/ingest"
	"github.com/sparkengine/spark/internal/types"
)

var scanProfileOnly bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Profile the project and seed patterns from git history",
	Long: `Scan the project once: record its languages and layout, then walk
unprocessed git commits and feed them into the confidence store.

Rerunning is cheap. The commit scan picks up where the last one
stopped, so only new history is processed.

Example:
  spark scan
  spark scan --profile-only`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		root := projectRoot()

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		profile, err := ingest.NewProjectScanner(root, projectID()).Scan(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: project scan failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.SaveProjectProfile(ctx, profile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to save project profile: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Profiled project: %d language(s), %d dependencies\n",
			green("✓"), len(profile.Languages), profile.DependencyCount)

		if scanProfileOnly {
			return
		}

		scanner, err := ingest.NewGitScanner(ctx, root, ingest.NewNormalizer(projectID()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (skipping commit scan)\n", err)
			return
		}
		seedLastCommit(ctx, scanner)

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

		observations, err := scanner.Scan(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: git scan failed: %v\n", err)
			os.Exit(1)
		}
		if len(observations) == 0 {
			fmt.Printf("%s No new commits since the last scan\n", gray("·"))
			return
		}

		reinforced := make(map[string]struct{})
		for _, obs := range observations {
			if err := store.AppendObservation(ctx, obs); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to persist observation: %v\n", err)
				os.Exit(1)
			}
			keys, err := patterns.Ingest(ctx, obs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to ingest commit %s: %v\n", obs.ID, err)
				continue
			}
			for _, k := range keys {
				reinforced[k] = struct{}{}
			}
		}

		fmt.Printf("%s Scanned %d commit(s), reinforced %d pattern(s)\n",
			green("✓"), len(observations), len(reinforced))
		fmt.Printf("  %s spark patterns\n", gray("→"))
	},
}

// seedLastCommit anchors the scanner past already processed history.
func seedLastCommit(ctx context.Context, scanner *ingest.GitScanner) {
	source := types.SourceCommit
	seen, err := store.ListObservations(ctx, types.ObservationFilter{
		Source:    &source,
		ProjectID: projectID(),
		Limit:     1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load last commit observation: %v\n", err)
		return
	}
	if len(seen) > 0 && seen[0].Commit != nil {
		scanner.SetLastHash(seen[0].Commit.Hash)
	}
}

func init() {
	scanCmd.Flags().BoolVar(&scanProfileOnly, "profile-only", false, "Skip the git history scan")
	rootCmd.AddCommand(scanCmd)
}
