package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndReleaseEngineLock(t *testing.T) {
	tmpDir := t.TempDir()
	sparkDir := filepath.Join(tmpDir, ".spark")
	if err := os.MkdirAll(sparkDir, 0755); err != nil {
		t.Fatalf("failed to create .spark dir: %v", err)
	}
	dbPath := filepath.Join(sparkDir, "spark.db")

	lockPath, err := AcquireEngineLock(dbPath, "test-version")
	if err != nil {
		t.Fatalf("AcquireEngineLock failed: %v", err)
	}
	if lockPath != filepath.Join(sparkDir, ".engine-lock") {
		t.Errorf("Unexpected lock path: %s", lockPath)
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	var lock EngineLock
	if err := json.Unmarshal(data, &lock); err != nil {
		t.Fatalf("failed to parse lock file: %v", err)
	}
	if lock.Holder != "spark-engine" {
		t.Errorf("Expected holder spark-engine, got %s", lock.Holder)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("Expected our PID %d, got %d", os.Getpid(), lock.PID)
	}

	// A second acquire by a live process must fail
	if _, err := AcquireEngineLock(dbPath, "test-version"); err == nil {
		t.Error("Expected error acquiring held lock, got success")
	}

	if err := ReleaseEngineLock(lockPath); err != nil {
		t.Fatalf("ReleaseEngineLock failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Expected lock file removed after release")
	}

	// Releasing again is a no-op
	if err := ReleaseEngineLock(lockPath); err != nil {
		t.Errorf("ReleaseEngineLock on missing file failed: %v", err)
	}
}

func TestAcquireEngineLockStealsStaleLock(t *testing.T) {
	tmpDir := t.TempDir()
	sparkDir := filepath.Join(tmpDir, ".spark")
	if err := os.MkdirAll(sparkDir, 0755); err != nil {
		t.Fatalf("failed to create .spark dir: %v", err)
	}
	dbPath := filepath.Join(sparkDir, "spark.db")

	hostname, _ := os.Hostname()
	stale := EngineLock{
		Holder:    "spark-engine",
		PID:       999999999, // Unlikely to exist
		Hostname:  hostname,
		StartedAt: time.Now().Add(-24 * time.Hour),
		Version:   "old",
	}
	data, _ := json.MarshalIndent(stale, "", "  ")
	lockPath := filepath.Join(sparkDir, ".engine-lock")
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		t.Fatalf("failed to write stale lock: %v", err)
	}

	got, err := AcquireEngineLock(dbPath, "new-version")
	if err != nil {
		t.Fatalf("Expected stale lock to be stolen, got error: %v", err)
	}
	defer func() { _ = ReleaseEngineLock(got) }()

	data, err = os.ReadFile(got)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	var lock EngineLock
	if err := json.Unmarshal(data, &lock); err != nil {
		t.Fatalf("failed to parse lock file: %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("Expected lock rewritten with our PID, got %d", lock.PID)
	}
}

func TestReleaseEngineLockEmptyPath(t *testing.T) {
	if err := ReleaseEngineLock(""); err != nil {
		t.Errorf("Expected nil for empty path, got %v", err)
	}
}
