package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/storage"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check spark installation and environment health",
	Long: `Run health checks to diagnose common spark configuration and environment issues.

This command checks for:
- Database existence and accessibility
- Project structure and working directory alignment
- Settings file validity
- Engine lock state (running, stale, or free)
- API key availability for goal generation
- Git repository status
- Sandbox directory permissions

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent spark from running`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		fixIssues, _ := cmd.Flags().GetBool("fix")
		vacuum, _ := cmd.Flags().GetBool("vacuum")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running spark health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: Database discovery
		fmt.Printf("%s Database discovery\n", cyan("→"))
		if dbPath == "" {
			if discoveredPath, err := storage.DiscoverDatabase(); err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("No database found: %v", err))
				fmt.Printf("  %s No database found\n", red("✗"))
				fmt.Printf("    Run 'spark init' to create one\n")
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				dbPath = discoveredPath
				fmt.Printf("  %s Found database: %s\n", green("✓"), dbPath)
			}
		} else {
			fmt.Printf("  %s Using explicit database: %s\n", green("✓"), dbPath)
		}

		if dbPath == "" {
			fmt.Printf("\n%s Critical failures prevent spark from running\n", red("✗"))
			os.Exit(2)
		}

		// Check 2: Database file accessibility
		fmt.Printf("%s Database file access\n", cyan("→"))
		if info, err := os.Stat(dbPath); err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot access database: %v", err))
			fmt.Printf("  %s Cannot access database file\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Database file accessible (%d bytes)\n", green("✓"), info.Size())
			if info.Size() == 0 {
				warnings = append(warnings, "Database file is empty (0 bytes)")
				fmt.Printf("  %s WARNING: Database is empty\n", yellow("⚠"))
			}
		}

		// Check 3: Project root and alignment
		fmt.Printf("%s Project structure\n", cyan("→"))
		root, err := storage.GetProjectRoot(dbPath)
		if err != nil {
			failures = append(failures, fmt.Sprintf("Invalid project structure: %v", err))
			fmt.Printf("  %s Invalid project structure\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Project root: %s\n", green("✓"), root)

			cwd, _ := os.Getwd()
			if err := storage.ValidateAlignment(dbPath, cwd); err != nil {
				failures = append(failures, "Database-working directory mismatch")
				fmt.Printf("  %s Working directory not aligned with database\n", yellow("⚠"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				fmt.Printf("  %s Working directory aligned\n", green("✓"))
			}
		}

		// Check 4: Settings
		fmt.Printf("%s Settings\n", cyan("→"))
		if _, err := config.Load(configPath(dbPath)); err != nil {
			failures = append(failures, fmt.Sprintf("Invalid settings: %v", err))
			fmt.Printf("  %s Settings are invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else if _, err := os.Stat(configPath(dbPath)); err != nil {
			fmt.Printf("  %s No settings file (using defaults)\n", green("✓"))
		} else {
			fmt.Printf("  %s Settings valid: %s\n", green("✓"), configPath(dbPath))
		}

		// Check 5: Engine lock
		fmt.Printf("%s Engine lock\n", cyan("→"))
		lock, alive, err := storage.ReadEngineLock(dbPath)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("Cannot read engine lock: %v", err))
			fmt.Printf("  %s Cannot read engine lock\n", yellow("⚠"))
		case lock == nil:
			fmt.Printf("  %s No engine running\n", green("✓"))
		case alive:
			fmt.Printf("  %s Engine running (PID %d on %s, since %s)\n",
				green("✓"), lock.PID, lock.Hostname, lock.StartedAt.Format("15:04:05"))
		default:
			warnings = append(warnings, fmt.Sprintf("Stale engine lock (PID %d)", lock.PID))
			fmt.Printf("  %s Stale engine lock (PID %d no longer running)\n", yellow("⚠"), lock.PID)
			if fixIssues && root != "" {
				lockPath := filepath.Join(root, ".spark", ".engine-lock")
				if err := storage.ReleaseEngineLock(lockPath); err != nil {
					fmt.Printf("    %s Failed to remove: %v\n", red("✗"), err)
				} else {
					fmt.Printf("    %s Stale lock removed\n", green("✓"))
					warnings = warnings[:len(warnings)-1]
				}
			}
		}

		// Check 6: Goal generation
		fmt.Printf("%s Goal generation\n", cyan("→"))
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey == "" {
			warnings = append(warnings, "ANTHROPIC_API_KEY not set (offline template generator will be used)")
			fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", yellow("⚠"))
			fmt.Printf("    Exploration falls back to the offline template generator\n")
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY is set\n", green("✓"))
			if verbose && len(apiKey) > 14 {
				fmt.Printf("    Key: %s...%s\n", apiKey[:10], apiKey[len(apiKey)-4:])
			}
		}

		// Check 7: Git repository
		fmt.Printf("%s Git repository\n", cyan("→"))
		if _, err := exec.LookPath("git"); err != nil {
			warnings = append(warnings, "git binary not found (commit scanning disabled)")
			fmt.Printf("  %s git binary not found\n", yellow("⚠"))
		} else if root != "" {
			gitDir := filepath.Join(root, ".git")
			if _, err := os.Stat(gitDir); err != nil {
				warnings = append(warnings, "Not a git repository (commit history cannot seed patterns)")
				fmt.Printf("  %s Not a git repository\n", yellow("⚠"))
			} else {
				fmt.Printf("  %s Git repository detected\n", green("✓"))
			}
		}

		// Check 8: Sandbox directory
		fmt.Printf("%s Sandbox directory\n", cyan("→"))
		if root != "" {
			sandboxRoot := filepath.Join(root, ".spark", "sandboxes")
			if info, err := os.Stat(sandboxRoot); err == nil {
				if !info.IsDir() {
					warnings = append(warnings, "sandboxes exists but is not a directory")
					fmt.Printf("  %s %s exists but is not a directory\n", yellow("⚠"), sandboxRoot)
				} else {
					fmt.Printf("  %s Sandbox directory exists\n", green("✓"))

					entries, _ := os.ReadDir(sandboxRoot)
					leftover := 0
					for _, entry := range entries {
						if entry.IsDir() && strings.HasPrefix(entry.Name(), "run-") {
							leftover++
						}
					}
					if leftover > 0 {
						fmt.Printf("  %s Found %d leftover sandbox(es)\n", yellow("⚠"), leftover)
						fmt.Printf("    The engine removes them as they age out\n")
					}
				}
			} else {
				fmt.Printf("  %s Sandbox directory does not exist (created on first run)\n", green("✓"))
			}
		}

		// Check 9: Database statistics
		fmt.Printf("%s Database statistics\n", cyan("→"))
		ctx := context.Background()
		if db, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath}); err == nil {
			stats, err := db.GetStatistics(ctx, config.DefaultConfig().Exploration.ReadyThreshold)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Cannot query statistics: %v", err))
				fmt.Printf("  %s Cannot query database\n", yellow("⚠"))
			} else {
				fmt.Printf("  %s %d observation(s), %d pattern(s), %d session(s), %d discoveries\n",
					green("✓"), stats.TotalObservations, stats.TotalPatterns, stats.TotalSessions, stats.TotalDiscoveries)
			}
			if counts, err := db.GetEventCounts(ctx); err == nil && verbose {
				fmt.Printf("    Events: %d\n", counts.TotalEvents)
			}
			if vacuum {
				fmt.Printf("  %s Vacuuming database...\n", cyan("→"))
				start := time.Now()
				if err := db.VacuumDatabase(ctx); err != nil {
					fmt.Printf("    %s Vacuum failed: %v\n", red("✗"), err)
				} else {
					fmt.Printf("    %s Vacuum completed in %v\n", green("✓"), time.Since(start).Round(time.Millisecond))
				}
			}
			db.Close()
		} else {
			failures = append(failures, fmt.Sprintf("Cannot connect to database: %v", err))
			fmt.Printf("  %s Cannot connect to database\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! spark is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s spark cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s spark may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s spark should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix common issues")
	doctorCmd.Flags().Bool("vacuum", false, "Compact the database after the checks")
	rootCmd.AddCommand(doctorCmd)
}
