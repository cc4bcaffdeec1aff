// Command run-engine is the spark daemon. It watches the project, keeps
// pattern confidence current, and opens exploration sessions during the
// configured idle windows. One instance per project database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/engine"
	"github.com/sparkengine/spark/internal/storage"
)

const version = "0.1.0"

func main() {
	ctx := context.Background()

	// Discover database
	dbPath, err := storage.DiscoverDatabase()
	if err != nil {
		log.Fatalf("Failed to discover database: %v", err)
	}

	fmt.Printf("Using database: %s\n", dbPath)

	// Only one engine may own a database
	lockPath, err := storage.AcquireEngineLock(dbPath, version)
	if err != nil {
		log.Fatalf("Failed to acquire engine lock: %v", err)
	}
	defer func() {
		if err := storage.ReleaseEngineLock(lockPath); err != nil {
			log.Printf("Error releasing engine lock: %v", err)
		}
	}()

	// Open storage
	store, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	// Load settings from the file next to the database
	settings, err := config.Load(filepath.Join(filepath.Dir(dbPath), "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	root, err := storage.GetProjectRoot(dbPath)
	if err != nil {
		log.Fatalf("Failed to resolve project root: %v", err)
	}

	eng, err := engine.New(&engine.Config{
		Store:       store,
		ProjectRoot: root,
		Settings:    &settings,
		WatchFiles:  true,
		ScanGit:     true,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// Start engine
	fmt.Println("Starting spark engine...")
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Engine failed: %v", err)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println("Engine running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	<-sigCh
	fmt.Println("\nShutting down engine...")

	if err := eng.Stop(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	fmt.Println("Engine stopped.")
}
