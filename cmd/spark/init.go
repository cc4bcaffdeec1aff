package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/ingest"
	"github.com/sparkengine/spark/internal/storage"
)

var initScan bool

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a spark project in the current directory",
	Long: `Initialize a spark project by creating a .spark/ directory with a database.

This creates:
  - .spark/ directory
  - .spark/<project-name>.db (SQLite database)
  - .spark/config.yaml (settings, pre-filled with defaults)

If no project name is provided, the current directory name is used.

With --scan, the project is profiled immediately so the first planning
pass has languages and frameworks to work with.

Example:
  cd ~/myproject
  spark init              # Creates .spark/myproject.db
  spark init myapp        # Creates .spark/myapp.db
  spark init --scan       # Initialize and profile the project`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectName := ""
		if len(args) > 0 {
			projectName = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
			os.Exit(1)
		}

		newDBPath, err := storage.InitProject(cwd, projectName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Initialize the database schema by opening and closing it
		ctx := context.Background()
		db, err := storage.NewStorage(ctx, &storage.Config{Path: newDBPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}

		if err := writeDefaultSettings(configPath(newDBPath)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write settings: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized spark project\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(newDBPath))
		fmt.Printf("  Settings: %s\n", cyan(configPath(newDBPath)))
		fmt.Printf("  Project root: %s\n", cyan(cwd))
		fmt.Println()

		if initScan {
			fmt.Printf("%s Profiling project...\n", gray("→"))
			profile, err := ingest.NewProjectScanner(cwd, filepath.Base(cwd)).Scan(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: project scan failed: %v\n", err)
			} else if err := db.SaveProjectProfile(ctx, profile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save project profile: %v\n", err)
			} else {
				fmt.Printf("%s Profiled %d language(s), %d dependencies\n",
					green("✓"), len(profile.Languages), profile.DependencyCount)
			}
			fmt.Println()
		}

		_ = db.Close() // Ignore close error during initialization

		fmt.Printf("%s Next steps:\n", gray("→"))
		if !initScan {
			fmt.Printf("  %s\n", gray("spark scan       # Seed patterns from git history"))
		}
		fmt.Printf("  %s\n", gray("spark status"))
		fmt.Printf("  %s\n", gray("spark explore"))
		fmt.Println()
	},
}

// writeDefaultSettings materializes the default configuration so users
// have a file to edit. Existing settings are left alone.
func writeDefaultSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	cfg := config.DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initScan, "scan", false, "Profile the project after initialization")
}
