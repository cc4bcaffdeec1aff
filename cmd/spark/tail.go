package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sparkengine/spark/internal/events"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Watch engine activity in real-time",
	Long: `Display recent events from the engine and follow live updates.

Shows the event stream including:
- Observation batches and pattern threshold crossings
- Session and run state changes
- Budget, cost, and sandbox activity
- Curation and cleanup passes

Example:
  spark tail
  spark tail -f
  spark tail --session ses-1b9f3c -n 50`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")
		sessionID, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()

		if follow {
			runTailFollow(ctx, sessionID, limit)
		} else {
			runTailOnce(ctx, sessionID, limit)
		}
	},
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "Follow mode - watch for live updates (Ctrl+C to stop)")
	tailCmd.Flags().StringP("session", "s", "", "Filter events by session ID")
	tailCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show initially")
	rootCmd.AddCommand(tailCmd)
}

// runTailOnce shows recent events and exits
func runTailOnce(ctx context.Context, sessionID string, limit int) {
	evs, err := fetchEvents(ctx, sessionID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}

	if len(evs) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		if sessionID != "" {
			fmt.Printf("\n%s No events found for session %s\n\n", yellow("✨"), sessionID)
		} else {
			fmt.Printf("\n%s No events found\n\n", yellow("✨"))
		}
		return
	}

	// Display events newest last so the terminal reads like a log
	for i := len(evs) - 1; i >= 0; i-- {
		displayEvent(evs[i])
	}
}

// runTailFollow shows recent events and continues polling for new ones
func runTailFollow(ctx context.Context, sessionID string, initialLimit int) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("\n%s Following live updates (Ctrl+C to stop)...\n\n", cyan("●"))

	evs, err := fetchEvents(ctx, sessionID, initialLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
		os.Exit(1)
	}

	for i := len(evs) - 1; i >= 0; i-- {
		displayEvent(evs[i])
	}

	// Track the most recent event timestamp
	var lastTimestamp time.Time
	if len(evs) > 0 {
		lastTimestamp = evs[0].Timestamp
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nStopped following")
			return
		case <-ticker.C:
			newEvents, err := fetchEventsAfter(ctx, sessionID, lastTimestamp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError fetching new events: %v\n", err)
				continue
			}

			for i := len(newEvents) - 1; i >= 0; i-- {
				displayEvent(newEvents[i])
				if newEvents[i].Timestamp.After(lastTimestamp) {
					lastTimestamp = newEvents[i].Timestamp
				}
			}
		}
	}
}

// fetchEvents retrieves events based on the given filters
func fetchEvents(ctx context.Context, sessionID string, limit int) ([]*events.Event, error) {
	if sessionID != "" {
		return store.GetEventsBySession(ctx, sessionID)
	}
	return store.GetRecentEvents(ctx, limit)
}

// fetchEventsAfter retrieves events that occurred after the given timestamp
func fetchEventsAfter(ctx context.Context, sessionID string, afterTime time.Time) ([]*events.Event, error) {
	filter := events.EventFilter{
		AfterTime: afterTime,
		Limit:     100, // Fetch up to 100 new events at a time
	}
	if sessionID != "" {
		filter.SessionID = sessionID
	}
	return store.GetEvents(ctx, filter)
}

// displayEvent formats and prints a single event with color
func displayEvent(event *events.Event) {
	var severityColor *color.Color
	var severityIcon string

	switch event.Severity {
	case events.SeverityInfo:
		severityColor = color.New(color.FgCyan)
		severityIcon = "·"
	case events.SeverityWarning:
		severityColor = color.New(color.FgYellow)
		severityIcon = "⚠"
	case events.SeverityError:
		severityColor = color.New(color.FgRed)
		severityIcon = "✗"
	case events.SeverityCritical:
		severityColor = color.New(color.FgRed, color.Bold)
		severityIcon = "✗"
	default:
		severityColor = color.New(color.FgWhite)
		severityIcon = "•"
	}

	timestamp := event.Timestamp.Format("15:04:05")

	typeColor := color.New(color.FgMagenta)
	eventType := typeColor.Sprint(event.Type)

	scope := event.SessionID
	if scope == "" {
		scope = event.Actor
	}
	scopeColor := color.New(color.FgGreen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		severityIcon,
		timestamp,
		scopeColor.Sprint(scope),
		eventType,
		severityColor.Sprint(event.Message),
	)

	// Show structured data indented under the message
	if len(event.Data) > 0 {
		gray := color.New(color.FgHiBlack)
		for key, value := range event.Data {
			fmt.Printf("    %s: %v\n", gray.Sprint(key), value)
		}
	}
}
