package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ID constructors. Short uuid prefixes keep IDs readable in CLI output
// and logs while staying unique enough for a single-user store.

// NewObservationID returns a fresh observation ID.
func NewObservationID() string {
	return fmt.Sprintf("obs-%s", uuid.New().String()[:8])
}

// NewGoalID returns a fresh goal ID.
func NewGoalID() string {
	return fmt.Sprintf("goal-%s", uuid.New().String()[:8])
}

// NewSessionID returns a fresh session ID.
func NewSessionID() string {
	return fmt.Sprintf("sess-%s", uuid.New().String()[:8])
}

// NewRunID returns a fresh run ID.
func NewRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String()[:8])
}

// NewDiscoveryID returns a fresh discovery ID.
func NewDiscoveryID() string {
	return fmt.Sprintf("disc-%s", uuid.New().String()[:8])
}

// NewArtifactID returns a fresh artifact ID.
func NewArtifactID() string {
	return fmt.Sprintf("art-%s", uuid.New().String()[:8])
}
