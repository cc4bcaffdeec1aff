package config

import (
	"fmt"
)

// EventRetentionConfig holds configuration for event retention and cleanup
type EventRetentionConfig struct {
	// RetentionDays is the retention period for regular events (in days)
	// Events older than this are eligible for deletion
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// RetentionCriticalDays is the retention period for error/critical
	// events (in days), kept longer for failure pattern analysis
	// Must be >= RetentionDays
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `yaml:"retention_critical_days"`

	// PerSessionLimitEvents is the maximum number of events to keep per
	// session. When the limit is reached, oldest non-critical events are
	// deleted. Set to 0 for unlimited
	// Default: 1000, Range: 0 or 100-10000
	PerSessionLimitEvents int `yaml:"per_session_limit_events"`

	// GlobalLimitEvents is the maximum total number of events to keep,
	// a safety limit against database bloat
	// Default: 100000, Range: 1000-1000000
	GlobalLimitEvents int `yaml:"global_limit_events"`

	// CleanupIntervalHours is how often to run cleanup (in hours)
	// Default: 24, Range: 1-168
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`

	// CleanupBatchSize is the number of events to delete per transaction
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupEnabled controls whether automatic cleanup is enabled
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

// DefaultEventRetentionConfig returns the default event retention
// configuration: a month of regular history, a quarter of failure
// history, and caps that keep the database around tens of megabytes.
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		PerSessionLimitEvents: 1000,
		GlobalLimitEvents:     100000,
		CleanupIntervalHours:  24,
		CleanupBatchSize:      1000,
		CleanupEnabled:        true,
	}
}

// Validate checks if the configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}
	if c.PerSessionLimitEvents < 0 {
		return fmt.Errorf("per_session_limit_events cannot be negative (got %d)",
			c.PerSessionLimitEvents)
	}
	if c.PerSessionLimitEvents > 0 && c.PerSessionLimitEvents < 100 {
		return fmt.Errorf("per_session_limit_events must be 0 (unlimited) or >= 100 (got %d)",
			c.PerSessionLimitEvents)
	}
	if c.PerSessionLimitEvents > 10000 {
		return fmt.Errorf("per_session_limit_events too large (got %d, max 10000)",
			c.PerSessionLimitEvents)
	}
	if c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be at least 1000 (got %d)",
			c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)",
			c.GlobalLimitEvents)
	}
	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)",
			c.CleanupIntervalHours)
	}
	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)",
			c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)",
			c.CleanupBatchSize)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c EventRetentionConfig) String() string {
	return fmt.Sprintf(
		"EventRetentionConfig{RetentionDays: %d, RetentionCriticalDays: %d, "+
			"PerSessionLimit: %d, GlobalLimit: %d, CleanupInterval: %dh, "+
			"BatchSize: %d, Enabled: %t}",
		c.RetentionDays, c.RetentionCriticalDays, c.PerSessionLimitEvents,
		c.GlobalLimitEvents, c.CleanupIntervalHours, c.CleanupBatchSize,
		c.CleanupEnabled,
	)
}

// applyEnv overlays SPARK_EVENT_* environment variables.
//
// Environment variables:
//   - SPARK_EVENT_RETENTION_DAYS: retention for regular events (default: 30)
//   - SPARK_EVENT_RETENTION_CRITICAL_DAYS: retention for error events (default: 90)
//   - SPARK_EVENT_PER_SESSION_LIMIT: max events per session, 0 unlimited (default: 1000)
//   - SPARK_EVENT_GLOBAL_LIMIT: max total events (default: 100000)
//   - SPARK_EVENT_CLEANUP_INTERVAL_HOURS: cleanup cadence (default: 24)
//   - SPARK_EVENT_CLEANUP_BATCH_SIZE: deletions per transaction (default: 1000)
//   - SPARK_EVENT_CLEANUP_ENABLED: enable automatic cleanup (default: true)
func (c *EventRetentionConfig) applyEnv() error {
	if err := parseEnvInt("SPARK_EVENT_RETENTION_DAYS", &c.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVENT_RETENTION_CRITICAL_DAYS", &c.RetentionCriticalDays); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVENT_PER_SESSION_LIMIT", &c.PerSessionLimitEvents); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVENT_GLOBAL_LIMIT", &c.GlobalLimitEvents); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVENT_CLEANUP_INTERVAL_HOURS", &c.CleanupIntervalHours); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVENT_CLEANUP_BATCH_SIZE", &c.CleanupBatchSize); err != nil {
		return err
	}
	return parseEnvBool("SPARK_EVENT_CLEANUP_ENABLED", &c.CleanupEnabled)
}
