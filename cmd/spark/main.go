// Command spark is the command-line interface to the spark engine.
//
// Most commands operate on a project database created by 'spark init'
// and discovered via SPARK_DB_PATH or the .spark directory of the
// current working directory. The long-running engine itself lives in
// cmd/run-engine; this binary plans, inspects, and feeds it.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/storage"
)

const version = "0.1.0"

var (
	dbPath   string
	actor    string
	store    storage.Storage
	settings config.Config
)

var rootCmd = &cobra.Command{
	Use:   "spark",
	Short: "Pattern confidence and exploration engine",
	Long: `Spark watches how you work, builds decaying confidence in the patterns
it observes, and spends idle time exploring goals derived from them.

Typical workflow:
  spark init          Create the project database
  spark scan          Seed patterns from git history and project files
  spark status        Show pattern confidence and exploration state
  spark explore       Plan and run an exploration session now
  spark discoveries   Browse what exploration produced`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch cmd.Name() {
		case "init", "doctor", "help", "completion":
			// These manage their own database access.
			return
		}
		openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database (default: auto-discover)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "cli", "Actor recorded on events this command emits")
}

// openStore resolves the database path, opens storage, and loads settings.
// Exits with a hint when no project database exists yet.
func openStore() {
	if dbPath == "" {
		discovered, err := storage.DiscoverDatabase()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Run 'spark init' to create a project database.")
			os.Exit(1)
		}
		dbPath = discovered
	}

	s, err := storage.NewStorage(context.Background(), &storage.Config{Path: dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	store = s

	settings, err = config.Load(configPath(dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath returns the settings file that lives next to the database.
func configPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "config.yaml")
}

// projectRoot resolves the project directory that owns the database.
func projectRoot() string {
	root, err := storage.GetProjectRoot(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

func projectID() string {
	return filepath.Base(projectRoot())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
