package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sparkengine/spark/internal/types"
)

// Config holds all engine configuration. Values come from defaults,
// then an optional .spark/config.yaml, then SPARK_* environment
// variables, in that order.
type Config struct {
	Learning    LearningConfig       `yaml:"learning"`
	Exploration ExplorationConfig    `yaml:"exploration"`
	Curation    CurationConfig       `yaml:"curation"`
	Scheduler   SchedulerConfig      `yaml:"scheduler"`
	Retention   EventRetentionConfig `yaml:"retention"`
}

// LearningConfig controls the pattern confidence model.
type LearningConfig struct {
	// MinSamples is the sample count below which confidence stays in the
	// provisional band (0.1 * n/min). Default: 5
	MinSamples int `yaml:"min_samples"`

	// OptimalSamples is where the sample-count curve saturates. The
	// default puts a pattern reinforced by ten consistent observations
	// over the balanced exploration-ready bar. Default: 10
	OptimalSamples int `yaml:"optimal_samples"`

	// MaxConfidence caps confidence below 1.0 to reflect residual
	// uncertainty. Default: 0.98
	MaxConfidence float64 `yaml:"max_confidence"`

	// ConsistencyFloor is the minimum multiplier applied for fully
	// inconsistent evidence. Default: 0.5
	ConsistencyFloor float64 `yaml:"consistency_floor"`

	// EvidenceWindowSize bounds the per-pattern evidence ring.
	// Default: 50
	EvidenceWindowSize int `yaml:"evidence_window_size"`

	// DecayFactor multiplies confidence of stale patterns each
	// maintenance tick. Must be in (0,1). Default: 0.98
	DecayFactor float64 `yaml:"decay_factor"`

	// StalenessDays is how long a pattern may go unreinforced before
	// decay applies. Default: 14
	StalenessDays int `yaml:"staleness_days"`

	// DecayInterval is how often the maintenance tick runs.
	// Default: 6h
	DecayInterval time.Duration `yaml:"decay_interval"`

	// GitPollInterval is how often the git scanner looks for new
	// commits. Default: 5m
	GitPollInterval time.Duration `yaml:"git_poll_interval"`

	// WatchDebounce coalesces rapid filesystem events per path.
	// Default: 2s
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// ExplorationConfig controls goal generation and session execution.
type ExplorationConfig struct {
	// MaxGoals bounds how many goals one planning cycle may propose.
	// Default: 5, Range: 1-10
	MaxGoals int `yaml:"max_goals"`

	// MaxPerCategory bounds goals per category before budget packing,
	// so one dominant pattern cannot monopolize a session. Default: 2
	MaxPerCategory int `yaml:"max_per_category"`

	// ReadyThreshold is the exploration-ready confidence bar for
	// balanced risk. Default: 0.85
	ReadyThreshold float64 `yaml:"ready_threshold"`

	// ConservativeThreshold is the stricter bar applied under
	// conservative risk. Default: 0.90
	ConservativeThreshold float64 `yaml:"conservative_threshold"`

	// ExperimentalThreshold is the relaxed bar applied under
	// experimental risk. Default: 0.70
	ExperimentalThreshold float64 `yaml:"experimental_threshold"`

	// NoveltyBias scales how much pattern novelty raises expected
	// value during packing. Default: 0.3
	NoveltyBias float64 `yaml:"novelty_bias"`

	// DefaultBudget is the session time budget when none is given.
	// Default: 2h
	DefaultBudget time.Duration `yaml:"default_budget"`

	// BaselineCost is the estimated run duration for categories with
	// no history. Default: 30m
	BaselineCost time.Duration `yaml:"baseline_cost"`

	// MaxParallelRuns bounds concurrent runs in a session.
	// Default: 2, Range: 1-4
	MaxParallelRuns int `yaml:"max_parallel_runs"`

	// GenerationTimeout bounds one generation call. Default: 10m
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	// ExecutionTimeout bounds one sandboxed execution. Default: 10m
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`

	// ValidationTimeout bounds one validation pass. Default: 5m
	ValidationTimeout time.Duration `yaml:"validation_timeout"`
}

// CurationConfig controls discovery scoring, deduplication, and
// retention.
type CurationConfig struct {
	// Weights are the value-score ranking weights. They must sum to
	// 1.0 within a small tolerance.
	Weights RankingWeights `yaml:"weights"`

	// MinValueScore drops discoveries scoring below it. Default: 0.2
	MinValueScore float64 `yaml:"min_value_score"`

	// MaxPerSession bounds how many discoveries one session surfaces.
	// Default: 3
	MaxPerSession int `yaml:"max_per_session"`

	// DedupCacheSize sizes the artifact-signature LRU. Default: 256
	DedupCacheSize int `yaml:"dedup_cache_size"`

	// DiscoveryRetentionDays prunes non-featured, unrated group
	// members older than this. 0 keeps everything forever. Default: 0
	DiscoveryRetentionDays int `yaml:"discovery_retention_days"`
}

// RankingWeights are the components of a discovery's value score.
type RankingWeights struct {
	Technical     float64 `yaml:"technical"`
	Relevance     float64 `yaml:"relevance"`
	Actionability float64 `yaml:"actionability"`
	Impact        float64 `yaml:"impact"`
	Novelty       float64 `yaml:"novelty"`
	Alignment     float64 `yaml:"alignment"`
	Recency       float64 `yaml:"recency"`
}

// Sum returns the total of all weights.
func (w RankingWeights) Sum() float64 {
	return w.Technical + w.Relevance + w.Actionability + w.Impact + w.Novelty + w.Alignment + w.Recency
}

// DefaultRankingWeights returns the stock value-score weights.
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{
		Technical:     0.25,
		Relevance:     0.20,
		Actionability: 0.15,
		Impact:        0.15,
		Novelty:       0.10,
		Alignment:     0.10,
		Recency:       0.05,
	}
}

// SchedulerConfig controls the daemon's exploration window. The core
// state machine never reads the wall clock; only the daemon loop does.
type SchedulerConfig struct {
	// Enabled turns the schedule loop on. Default: false (CLI),
	// the daemon enables it.
	Enabled bool `yaml:"enabled"`

	// PreferredStart is the local HH:MM wall time after which
	// scheduled sessions may start. Default: "22:00"
	PreferredStart string `yaml:"preferred_start"`

	// WindowHours is how long the window stays open after
	// PreferredStart. Default: 8
	WindowHours int `yaml:"window_hours"`

	// IdleThreshold is how long the developer must be inactive before
	// a scheduled session starts. Default: 30m
	IdleThreshold time.Duration `yaml:"idle_threshold"`

	// CheckInterval is how often the daemon evaluates the window.
	// Default: 5m
	CheckInterval time.Duration `yaml:"check_interval"`

	// MaxConcurrentSessions bounds sessions in flight. Default: 1
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// Risk is the risk preference for scheduled sessions.
	// Default: balanced
	Risk types.RiskLevel `yaml:"risk"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Learning: LearningConfig{
			MinSamples:         5,
			OptimalSamples:     10,
			MaxConfidence:      0.98,
			ConsistencyFloor:   0.5,
			EvidenceWindowSize: 50,
			DecayFactor:        0.98,
			StalenessDays:      14,
			DecayInterval:      6 * time.Hour,
			GitPollInterval:    5 * time.Minute,
			WatchDebounce:      2 * time.Second,
		},
		Exploration: ExplorationConfig{
			MaxGoals:              5,
			MaxPerCategory:        2,
			ReadyThreshold:        0.85,
			ConservativeThreshold: 0.90,
			ExperimentalThreshold: 0.70,
			NoveltyBias:           0.3,
			DefaultBudget:         2 * time.Hour,
			BaselineCost:          30 * time.Minute,
			MaxParallelRuns:       2,
			GenerationTimeout:     10 * time.Minute,
			ExecutionTimeout:      10 * time.Minute,
			ValidationTimeout:     5 * time.Minute,
		},
		Curation: CurationConfig{
			Weights:                DefaultRankingWeights(),
			MinValueScore:          0.2,
			MaxPerSession:          3,
			DedupCacheSize:         256,
			DiscoveryRetentionDays: 0,
		},
		Scheduler: SchedulerConfig{
			Enabled:               false,
			PreferredStart:        "22:00",
			WindowHours:           8,
			IdleThreshold:         30 * time.Minute,
			CheckInterval:         5 * time.Minute,
			MaxConcurrentSessions: 1,
			Risk:                  types.RiskBalanced,
		},
		Retention: DefaultEventRetentionConfig(),
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	l := c.Learning
	if l.MinSamples < 1 {
		return fmt.Errorf("learning.min_samples must be at least 1 (got %d)", l.MinSamples)
	}
	if l.OptimalSamples <= l.MinSamples {
		return fmt.Errorf("learning.optimal_samples (%d) must exceed min_samples (%d)",
			l.OptimalSamples, l.MinSamples)
	}
	if l.MaxConfidence <= 0 || l.MaxConfidence >= 1 {
		return fmt.Errorf("learning.max_confidence must be in (0,1) (got %f)", l.MaxConfidence)
	}
	if l.ConsistencyFloor < 0 || l.ConsistencyFloor > 1 {
		return fmt.Errorf("learning.consistency_floor must be in [0,1] (got %f)", l.ConsistencyFloor)
	}
	if l.EvidenceWindowSize < 2 {
		return fmt.Errorf("learning.evidence_window_size must be at least 2 (got %d)", l.EvidenceWindowSize)
	}
	if l.DecayFactor <= 0 || l.DecayFactor >= 1 {
		return fmt.Errorf("learning.decay_factor must be in (0,1) (got %f)", l.DecayFactor)
	}
	if l.StalenessDays < 1 {
		return fmt.Errorf("learning.staleness_days must be at least 1 (got %d)", l.StalenessDays)
	}

	e := c.Exploration
	if e.MaxGoals < 1 || e.MaxGoals > 10 {
		return fmt.Errorf("exploration.max_goals must be between 1 and 10 (got %d)", e.MaxGoals)
	}
	if e.MaxPerCategory < 1 {
		return fmt.Errorf("exploration.max_per_category must be at least 1 (got %d)", e.MaxPerCategory)
	}
	for name, v := range map[string]float64{
		"ready_threshold":        e.ReadyThreshold,
		"conservative_threshold": e.ConservativeThreshold,
		"experimental_threshold": e.ExperimentalThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("exploration.%s must be in (0,1] (got %f)", name, v)
		}
	}
	if e.ConservativeThreshold < e.ReadyThreshold {
		return fmt.Errorf("exploration.conservative_threshold (%f) must be >= ready_threshold (%f)",
			e.ConservativeThreshold, e.ReadyThreshold)
	}
	if e.ExperimentalThreshold > e.ReadyThreshold {
		return fmt.Errorf("exploration.experimental_threshold (%f) must be <= ready_threshold (%f)",
			e.ExperimentalThreshold, e.ReadyThreshold)
	}
	if e.MaxParallelRuns < 1 || e.MaxParallelRuns > 4 {
		return fmt.Errorf("exploration.max_parallel_runs must be between 1 and 4 (got %d)", e.MaxParallelRuns)
	}
	if e.DefaultBudget <= 0 || e.BaselineCost <= 0 {
		return fmt.Errorf("exploration budget and baseline cost must be positive")
	}
	if e.GenerationTimeout <= 0 || e.ExecutionTimeout <= 0 || e.ValidationTimeout <= 0 {
		return fmt.Errorf("exploration stage timeouts must be positive")
	}

	cu := c.Curation
	if sum := cu.Weights.Sum(); sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("curation.weights must sum to 1.0 (got %f)", sum)
	}
	if cu.MinValueScore < 0 || cu.MinValueScore > 1 {
		return fmt.Errorf("curation.min_value_score must be in [0,1] (got %f)", cu.MinValueScore)
	}
	if cu.MaxPerSession < 1 {
		return fmt.Errorf("curation.max_per_session must be at least 1 (got %d)", cu.MaxPerSession)
	}
	if cu.DedupCacheSize < 16 {
		return fmt.Errorf("curation.dedup_cache_size must be at least 16 (got %d)", cu.DedupCacheSize)
	}
	if cu.DiscoveryRetentionDays < 0 {
		return fmt.Errorf("curation.discovery_retention_days cannot be negative (got %d)", cu.DiscoveryRetentionDays)
	}

	s := c.Scheduler
	if _, err := time.Parse("15:04", s.PreferredStart); err != nil {
		return fmt.Errorf("scheduler.preferred_start must be HH:MM (got %q)", s.PreferredStart)
	}
	if s.WindowHours < 1 || s.WindowHours > 24 {
		return fmt.Errorf("scheduler.window_hours must be between 1 and 24 (got %d)", s.WindowHours)
	}
	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("scheduler.max_concurrent_sessions must be at least 1 (got %d)", s.MaxConcurrentSessions)
	}
	if !s.Risk.IsValid() {
		return fmt.Errorf("scheduler.risk is invalid (got %q)", s.Risk)
	}

	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, overlaid by the
// YAML file at path (if it exists), overlaid by environment variables.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays SPARK_* environment variables onto the config.
func (c *Config) applyEnv() error {
	if err := parseEnvInt("SPARK_MIN_SAMPLES", &c.Learning.MinSamples); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_OPTIMAL_SAMPLES", &c.Learning.OptimalSamples); err != nil {
		return err
	}
	if err := parseEnvFloat("SPARK_MAX_CONFIDENCE", &c.Learning.MaxConfidence); err != nil {
		return err
	}
	if err := parseEnvFloat("SPARK_DECAY_FACTOR", &c.Learning.DecayFactor); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_STALENESS_DAYS", &c.Learning.StalenessDays); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_EVIDENCE_WINDOW", &c.Learning.EvidenceWindowSize); err != nil {
		return err
	}
	if err := parseEnvDuration("SPARK_GIT_POLL_INTERVAL", &c.Learning.GitPollInterval); err != nil {
		return err
	}

	if err := parseEnvInt("SPARK_MAX_GOALS", &c.Exploration.MaxGoals); err != nil {
		return err
	}
	if err := parseEnvFloat("SPARK_READY_THRESHOLD", &c.Exploration.ReadyThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("SPARK_MAX_PARALLEL_RUNS", &c.Exploration.MaxParallelRuns); err != nil {
		return err
	}
	if err := parseEnvDuration("SPARK_DEFAULT_BUDGET", &c.Exploration.DefaultBudget); err != nil {
		return err
	}
	if err := parseEnvDuration("SPARK_GENERATION_TIMEOUT", &c.Exploration.GenerationTimeout); err != nil {
		return err
	}
	if err := parseEnvDuration("SPARK_EXECUTION_TIMEOUT", &c.Exploration.ExecutionTimeout); err != nil {
		return err
	}

	if err := parseEnvBool("SPARK_SCHEDULER_ENABLED", &c.Scheduler.Enabled); err != nil {
		return err
	}
	if err := parseEnvString("SPARK_PREFERRED_START", &c.Scheduler.PreferredStart); err != nil {
		return err
	}
	if err := parseEnvDuration("SPARK_IDLE_THRESHOLD", &c.Scheduler.IdleThreshold); err != nil {
		return err
	}

	if err := parseEnvInt("SPARK_DISCOVERY_RETENTION_DAYS", &c.Curation.DiscoveryRetentionDays); err != nil {
		return err
	}

	return c.Retention.applyEnv()
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a time.Duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
