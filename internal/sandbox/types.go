package sandbox

import "time"

// Sandbox is an isolated working directory for a single exploration
// run. Generated artifacts are written and executed here so a run
// never touches the project tree, and a snapshot taken before
// execution lets validation roll the directory back.
type Sandbox struct {
	// ID is a unique identifier for this sandbox and the name of its
	// directory under the sandbox root
	ID string

	// RunID is the exploration run this sandbox belongs to
	RunID string

	// Path is the absolute path to the sandbox root directory
	Path string

	// Created is when this sandbox was created
	Created time.Time

	// LastUsed is when this sandbox was last accessed
	LastUsed time.Time

	// Status is the current status of this sandbox
	Status SandboxStatus
}

// SandboxStatus represents the lifecycle state of a sandbox
type SandboxStatus string

const (
	// SandboxStatusActive indicates the sandbox is currently in use
	SandboxStatusActive SandboxStatus = "active"

	// SandboxStatusFailed indicates the run using this sandbox failed
	SandboxStatusFailed SandboxStatus = "failed"

	// SandboxStatusCleaned indicates the sandbox has been cleaned up
	SandboxStatusCleaned SandboxStatus = "cleaned"
)
