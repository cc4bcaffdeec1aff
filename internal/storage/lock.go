package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// EngineLock is the lock file format the engine writes to claim exclusive
// use of a project database. The confidence store and orchestrator assume
// a single writer, so two engines must never share one database.
type EngineLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireEngineLock creates an exclusive lock file in the .spark directory.
// Returns the lock file path for cleanup on shutdown.
func AcquireEngineLock(dbPath, version string) (lockPath string, err error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	lockPath = filepath.Join(projectRoot, ".spark", ".engine-lock")

	// Check for existing lock
	if data, err := os.ReadFile(lockPath); err == nil {
		var existingLock EngineLock
		if json.Unmarshal(data, &existingLock) == nil {
			if isProcessAlive(existingLock.PID, existingLock.Hostname) {
				return "", fmt.Errorf("another engine is already running (PID %d on %s, started %s)",
					existingLock.PID, existingLock.Hostname, existingLock.StartedAt.Format(time.RFC3339))
			}
			// Stale lock, overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := EngineLock{
		Holder:    "spark-engine",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create engine lock: %w", err)
	}

	return lockPath, nil
}

// ReadEngineLock reports the engine lock for a database, if any. The
// second return value is true when the holding process is still alive.
// A missing lock file returns (nil, false, nil).
func ReadEngineLock(dbPath string) (*EngineLock, bool, error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("invalid database path: %w", err)
	}

	lockPath := filepath.Join(projectRoot, ".spark", ".engine-lock")
	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read engine lock: %w", err)
	}

	var lock EngineLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, false, fmt.Errorf("failed to parse engine lock: %w", err)
	}
	return &lock, isProcessAlive(lock.PID, lock.Hostname), nil
}

// ReleaseEngineLock removes the engine lock file.
// Should be called on engine shutdown (use defer).
func ReleaseEngineLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove engine lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given
// hostname. A lock held by an unreachable host is assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	// Check if PID exists on localhost (Unix: kill -0)
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to another user
	if err == syscall.EPERM {
		return true
	}

	return false
}
