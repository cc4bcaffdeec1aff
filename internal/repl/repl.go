// Package repl implements the interactive spark shell.
//
// The shell is a thin query layer over storage and the confidence store.
// It never boots the orchestrator: planning is read-only here, and anything
// that executes goals belongs to the engine daemon or 'spark explore'.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/storage"
)

// REPL represents the interactive shell
type REPL struct {
	store     storage.Storage
	settings  config.Config
	patterns  *confidence.Store
	curation  *curator.Curator
	projectID string
	rl        *readline.Instance
	ctx       context.Context
	actor     string
	commands  map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Store     storage.Storage
	Settings  *config.Config
	ProjectID string
	Actor     string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	settings := cfg.Settings
	if settings == nil {
		def := config.DefaultConfig()
		settings = &def
	}

	actor := cfg.Actor
	if actor == "" {
		actor = "user"
	}

	r := &REPL{
		store:     cfg.Store,
		settings:  *settings,
		patterns:  confidence.New(settings.Learning, cfg.Store),
		curation:  curator.New(settings.Curation, cfg.Store),
		projectID: cfg.ProjectID,
		actor:     actor,
		commands:  make(map[string]CommandHandler),
	}

	// Register built-in commands
	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	// Hydrate patterns once for the whole shell session. Commands that
	// read confidence go through this store instead of re-querying sqlite.
	if err := r.patterns.Start(ctx); err != nil {
		return fmt.Errorf("starting confidence store: %w", err)
	}
	defer func() {
		if err := r.patterns.Stop(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop confidence store: %v\n", err)
		}
	}()

	// Create readline instance
	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("spark> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       "", // In-memory history only
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	// Print welcome message
	r.printWelcome()

	// Main loop
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				// Ctrl+D - exit
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		// Process the input
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				// Exit command - graceful shutdown
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["status"] = r.cmdStatus
	r.commands["patterns"] = r.cmdPatterns
	r.commands["summary"] = r.cmdSummary
	r.commands["plan"] = r.cmdPlan
	r.commands["sessions"] = r.cmdSessions
	r.commands["discoveries"] = r.cmdDiscoveries
	r.commands["feedback"] = r.cmdFeedback
	r.commands["tail"] = r.cmdTail
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

// completer builds tab completion for the registered commands.
func (r *REPL) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("status"),
		readline.PcItem("patterns",
			readline.PcItem("language"),
			readline.PcItem("style"),
			readline.PcItem("workflow"),
			readline.PcItem("interest"),
		),
		readline.PcItem("summary"),
		readline.PcItem("plan"),
		readline.PcItem("sessions"),
		readline.PcItem("discoveries"),
		readline.PcItem("feedback"),
		readline.PcItem("tail"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Spark interactive shell"))
	fmt.Println("Pattern confidence and exploration at a glance")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Available Commands:"))
	fmt.Println()

	commands := []struct {
		name string
		desc string
	}{
		{"help, ?", "Show this help message"},
		{"status", "Show pattern and exploration totals"},
		{"patterns [category]", "List learned patterns, optionally by category"},
		{"summary", "Show exploration readiness"},
		{"plan [budget] [risk]", "Preview goals a session would pursue"},
		{"sessions [id]", "List recent sessions or inspect one"},
		{"discoveries [id]", "List recent discoveries or inspect one"},
		{"feedback <id> <1-5> [note]", "Rate a discovery"},
		{"tail [n]", "Show recent engine events"},
		{"exit, quit", "Exit the shell"},
	}

	green := color.New(color.FgGreen).SprintFunc()
	for _, cmd := range commands {
		// Pad before coloring so the escape codes do not skew the column.
		fmt.Printf("  %s %s\n", green(fmt.Sprintf("%-28s", cmd.name)), cmd.desc)
	}

	fmt.Println()
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF // Signal to exit the loop
}
