package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// sparkEnvKeys are every environment variable the config reads, cleared
// around each test so host environment cannot leak in.
var sparkEnvKeys = []string{
	"SPARK_MIN_SAMPLES",
	"SPARK_OPTIMAL_SAMPLES",
	"SPARK_MAX_CONFIDENCE",
	"SPARK_DECAY_FACTOR",
	"SPARK_STALENESS_DAYS",
	"SPARK_EVIDENCE_WINDOW",
	"SPARK_GIT_POLL_INTERVAL",
	"SPARK_MAX_GOALS",
	"SPARK_READY_THRESHOLD",
	"SPARK_MAX_PARALLEL_RUNS",
	"SPARK_DEFAULT_BUDGET",
	"SPARK_GENERATION_TIMEOUT",
	"SPARK_EXECUTION_TIMEOUT",
	"SPARK_SCHEDULER_ENABLED",
	"SPARK_PREFERRED_START",
	"SPARK_IDLE_THRESHOLD",
	"SPARK_DISCOVERY_RETENTION_DAYS",
	"SPARK_EVENT_RETENTION_DAYS",
	"SPARK_EVENT_RETENTION_CRITICAL_DAYS",
	"SPARK_EVENT_PER_SESSION_LIMIT",
	"SPARK_EVENT_GLOBAL_LIMIT",
	"SPARK_EVENT_CLEANUP_INTERVAL_HOURS",
	"SPARK_EVENT_CLEANUP_BATCH_SIZE",
	"SPARK_EVENT_CLEANUP_ENABLED",
}

func clearSparkEnv() {
	for _, key := range sparkEnvKeys {
		_ = os.Unsetenv(key)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				defaults := DefaultConfig()
				if cfg.Learning.MinSamples != defaults.Learning.MinSamples {
					t.Errorf("MinSamples = %v, want %v", cfg.Learning.MinSamples, defaults.Learning.MinSamples)
				}
				if cfg.Exploration.MaxGoals != defaults.Exploration.MaxGoals {
					t.Errorf("MaxGoals = %v, want %v", cfg.Exploration.MaxGoals, defaults.Exploration.MaxGoals)
				}
				if cfg.Exploration.ReadyThreshold != 0.85 {
					t.Errorf("ReadyThreshold = %v, want 0.85", cfg.Exploration.ReadyThreshold)
				}
				if cfg.Scheduler.PreferredStart != "22:00" {
					t.Errorf("PreferredStart = %v, want 22:00", cfg.Scheduler.PreferredStart)
				}
				if cfg.Scheduler.Risk != types.RiskBalanced {
					t.Errorf("Risk = %v, want balanced", cfg.Scheduler.Risk)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"SPARK_MIN_SAMPLES":        "3",
				"SPARK_OPTIMAL_SAMPLES":    "15",
				"SPARK_READY_THRESHOLD":    "0.8",
				"SPARK_MAX_PARALLEL_RUNS":  "4",
				"SPARK_DEFAULT_BUDGET":     "90m",
				"SPARK_PREFERRED_START":    "23:30",
				"SPARK_EVENT_GLOBAL_LIMIT": "50000",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.Learning.MinSamples != 3 {
					t.Errorf("MinSamples = %v, want 3", cfg.Learning.MinSamples)
				}
				if cfg.Learning.OptimalSamples != 15 {
					t.Errorf("OptimalSamples = %v, want 15", cfg.Learning.OptimalSamples)
				}
				if cfg.Exploration.ReadyThreshold != 0.8 {
					t.Errorf("ReadyThreshold = %v, want 0.8", cfg.Exploration.ReadyThreshold)
				}
				if cfg.Exploration.MaxParallelRuns != 4 {
					t.Errorf("MaxParallelRuns = %v, want 4", cfg.Exploration.MaxParallelRuns)
				}
				if cfg.Exploration.DefaultBudget != 90*time.Minute {
					t.Errorf("DefaultBudget = %v, want 90m", cfg.Exploration.DefaultBudget)
				}
				if cfg.Scheduler.PreferredStart != "23:30" {
					t.Errorf("PreferredStart = %v, want 23:30", cfg.Scheduler.PreferredStart)
				}
				if cfg.Retention.GlobalLimitEvents != 50000 {
					t.Errorf("GlobalLimitEvents = %v, want 50000", cfg.Retention.GlobalLimitEvents)
				}
			},
		},
		{
			name: "invalid int value",
			envVars: map[string]string{
				"SPARK_MIN_SAMPLES": "not-a-number",
			},
			wantErr: true,
		},
		{
			name: "invalid duration value",
			envVars: map[string]string{
				"SPARK_DEFAULT_BUDGET": "ninety minutes",
			},
			wantErr: true,
		},
		{
			name: "parallel runs above cap",
			envVars: map[string]string{
				"SPARK_MAX_PARALLEL_RUNS": "16",
			},
			wantErr: true,
		},
		{
			name: "optimal samples not above min samples",
			envVars: map[string]string{
				"SPARK_MIN_SAMPLES":     "20",
				"SPARK_OPTIMAL_SAMPLES": "20",
			},
			wantErr: true,
		},
		{
			name: "malformed preferred start",
			envVars: map[string]string{
				"SPARK_PREFERRED_START": "late evening",
			},
			wantErr: true,
		},
		{
			name: "retention critical below regular",
			envVars: map[string]string{
				"SPARK_EVENT_RETENTION_DAYS":          "60",
				"SPARK_EVENT_RETENTION_CRITICAL_DAYS": "30",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSparkEnv()
			for key, value := range tt.envVars {
				_ = os.Setenv(key, value)
			}
			defer clearSparkEnv()

			cfg, err := Load("")
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearSparkEnv()
	defer clearSparkEnv()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
learning:
  min_samples: 4
  decay_factor: 0.95
exploration:
  max_goals: 3
  ready_threshold: 0.8
scheduler:
  preferred_start: "21:00"
  risk: experimental
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Learning.MinSamples != 4 {
		t.Errorf("MinSamples = %v, want 4", cfg.Learning.MinSamples)
	}
	if cfg.Learning.DecayFactor != 0.95 {
		t.Errorf("DecayFactor = %v, want 0.95", cfg.Learning.DecayFactor)
	}
	if cfg.Exploration.MaxGoals != 3 {
		t.Errorf("MaxGoals = %v, want 3", cfg.Exploration.MaxGoals)
	}
	if cfg.Scheduler.PreferredStart != "21:00" {
		t.Errorf("PreferredStart = %v, want 21:00", cfg.Scheduler.PreferredStart)
	}
	if cfg.Scheduler.Risk != types.RiskExperimental {
		t.Errorf("Risk = %v, want experimental", cfg.Scheduler.Risk)
	}

	// File values not overridden keep defaults
	defaults := DefaultConfig()
	if cfg.Exploration.MaxParallelRuns != defaults.Exploration.MaxParallelRuns {
		t.Errorf("MaxParallelRuns = %v, want default %v", cfg.Exploration.MaxParallelRuns, defaults.Exploration.MaxParallelRuns)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearSparkEnv()
	defer clearSparkEnv()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("exploration:\n  max_goals: 3\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	_ = os.Setenv("SPARK_MAX_GOALS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Exploration.MaxGoals != 7 {
		t.Errorf("MaxGoals = %v, want env override 7", cfg.Exploration.MaxGoals)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearSparkEnv()
	defer clearSparkEnv()

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() with missing file should not error: %v", err)
	}
	if cfg.Exploration.MaxGoals != DefaultConfig().Exploration.MaxGoals {
		t.Errorf("missing file should leave defaults intact")
	}
}

func TestRankingWeightsMustSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Curation.Weights.Technical = 0.9
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected weight-sum validation error")
	}
	if !strings.Contains(err.Error(), "weights must sum to 1.0") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEventRetentionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  EventRetentionConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "default config is valid",
			config: DefaultEventRetentionConfig(),
		},
		{
			name: "valid config at minimum bounds",
			config: EventRetentionConfig{
				RetentionDays:         1,
				RetentionCriticalDays: 1,
				PerSessionLimitEvents: 100,
				GlobalLimitEvents:     1000,
				CleanupIntervalHours:  1,
				CleanupBatchSize:      100,
				CleanupEnabled:        true,
			},
		},
		{
			name: "valid config at maximum bounds",
			config: EventRetentionConfig{
				RetentionDays:         365,
				RetentionCriticalDays: 730,
				PerSessionLimitEvents: 10000,
				GlobalLimitEvents:     1000000,
				CleanupIntervalHours:  168,
				CleanupBatchSize:      10000,
			},
		},
		{
			name: "retention days too low",
			config: EventRetentionConfig{
				RetentionDays:         0,
				RetentionCriticalDays: 90,
				PerSessionLimitEvents: 1000,
				GlobalLimitEvents:     100000,
				CleanupIntervalHours:  24,
				CleanupBatchSize:      1000,
			},
			wantErr: true,
			errMsg:  "retention_days must be between 1 and 365",
		},
		{
			name: "critical retention less than regular retention",
			config: EventRetentionConfig{
				RetentionDays:         60,
				RetentionCriticalDays: 30,
				PerSessionLimitEvents: 1000,
				GlobalLimitEvents:     100000,
				CleanupIntervalHours:  24,
				CleanupBatchSize:      1000,
			},
			wantErr: true,
			errMsg:  "retention_critical_days (30) must be >= retention_days (60)",
		},
		{
			name: "per-session limit too low but not zero",
			config: EventRetentionConfig{
				RetentionDays:         30,
				RetentionCriticalDays: 90,
				PerSessionLimitEvents: 50,
				GlobalLimitEvents:     100000,
				CleanupIntervalHours:  24,
				CleanupBatchSize:      1000,
			},
			wantErr: true,
			errMsg:  "per_session_limit_events must be 0 (unlimited) or >= 100",
		},
		{
			name: "per-session limit zero is valid (unlimited)",
			config: EventRetentionConfig{
				RetentionDays:         30,
				RetentionCriticalDays: 90,
				PerSessionLimitEvents: 0,
				GlobalLimitEvents:     100000,
				CleanupIntervalHours:  24,
				CleanupBatchSize:      1000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			}
		})
	}
}
