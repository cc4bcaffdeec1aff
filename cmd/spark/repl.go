package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/repl"
	"github.com/sparkengine/spark/internal/storage"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start interactive shell",
	Long: `Start an interactive shell for browsing patterns, sessions, and
discoveries without retyping 'spark' for every query.

The shell keeps the confidence store hydrated for the whole session,
so repeated pattern queries are cheap.

Type 'help' in the shell for available commands.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Validate alignment between database and working directory
		cwd, _ := os.Getwd()
		if err := storage.ValidateAlignment(dbPath, cwd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := &repl.Config{
			Store:     store,
			Settings:  &settings,
			ProjectID: projectID(),
			Actor:     actor,
		}

		r, err := repl.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create shell: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := r.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
