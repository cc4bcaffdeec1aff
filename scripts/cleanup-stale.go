// scripts/cleanup-stale.go - Manual retention pass for a stopped engine
//
// The engine runs event cleanup and discovery retention on its own
// timers, but only while it is up. This tool runs one full pass against
// a database whose engine is down, using the same settings file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/curator"
	"github.com/sparkengine/spark/internal/storage"
)

func main() {
	ctx := context.Background()

	dbPath, err := storage.DiscoverDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connecting to database: %s\n", dbPath)

	if lock, alive, err := storage.ReadEngineLock(dbPath); err == nil && lock != nil && alive {
		fmt.Fprintf(os.Stderr, "Engine is running (PID %d); let its cleanup loops handle this\n", lock.PID)
		os.Exit(1)
	}

	settings, err := config.Load(filepath.Join(filepath.Dir(dbPath), "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ret := settings.Retention
	fmt.Printf("Running cleanup (events: %dd/%dd, discoveries: %dd)...\n",
		ret.RetentionDays, ret.RetentionCriticalDays, settings.Curation.DiscoveryRetentionDays)

	aged, err := store.CleanupEventsByAge(ctx, ret.RetentionDays, ret.RetentionCriticalDays, ret.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during age cleanup: %v\n", err)
		os.Exit(1)
	}
	perSession, err := store.CleanupEventsBySessionLimit(ctx, ret.PerSessionLimitEvents, ret.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during per-session cleanup: %v\n", err)
		os.Exit(1)
	}
	global, err := store.CleanupEventsByGlobalLimit(ctx, ret.GlobalLimitEvents, ret.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during global limit cleanup: %v\n", err)
		os.Exit(1)
	}

	expired, err := curator.New(settings.Curation, store).CleanupExpired(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during discovery retention: %v\n", err)
		os.Exit(1)
	}

	total := aged + perSession + global
	if total > 0 || expired > 0 {
		fmt.Printf("✓ Removed %d event(s) (age=%d, per_session=%d, global=%d) and %d expired discoveries\n",
			total, aged, perSession, global, expired)
	} else {
		fmt.Println("✓ Nothing stale found")
	}
}
