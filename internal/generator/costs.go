package generator

import (
	"fmt"
	"sync"
	"time"
)

// BudgetStatus represents the current generation budget state
type BudgetStatus int

const (
	// BudgetOK indicates normal operation, under budget limits
	BudgetOK BudgetStatus = iota
	// BudgetWarning indicates approaching budget limits (>80% by default)
	BudgetWarning
	// BudgetExceeded indicates budget limits have been exceeded
	BudgetExceeded
)

// String returns the status name used in logs and CLI output
func (s BudgetStatus) String() string {
	switch s {
	case BudgetOK:
		return "ok"
	case BudgetWarning:
		return "warning"
	case BudgetExceeded:
		return "exceeded"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// CostConfig holds generation budget configuration
type CostConfig struct {
	// MaxTokensPerHour is the token budget (input + output) per window.
	// 0 = unlimited.
	MaxTokensPerHour int64

	// MaxCostPerHour is the USD budget per window. 0 = unlimited.
	MaxCostPerHour float64

	// WarnThreshold is the budget fraction that flips the status to
	// warning.
	WarnThreshold float64

	// ResetInterval is how often the windowed counters reset.
	ResetInterval time.Duration

	// InputTokenCost and OutputTokenCost are USD per 1M tokens.
	InputTokenCost  float64
	OutputTokenCost float64
}

// DefaultCostConfig returns conservative limits sized for a background
// engine that explores a few goals per hour.
func DefaultCostConfig() CostConfig {
	return CostConfig{
		MaxTokensPerHour: 200000,
		MaxCostPerHour:   2.00,
		WarnThreshold:    0.80,
		ResetInterval:    time.Hour,
		InputTokenCost:   3.00,
		OutputTokenCost:  15.00,
	}
}

// Validate checks that the configuration has usable values
func (c *CostConfig) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxCostPerHour < 0 {
		return fmt.Errorf("max_cost_per_hour must be non-negative, got %.2f", c.MaxCostPerHour)
	}
	if c.WarnThreshold <= 0 || c.WarnThreshold > 1.0 {
		return fmt.Errorf("warn_threshold must be between 0 and 1, got %.2f", c.WarnThreshold)
	}
	if c.ResetInterval <= 0 {
		return fmt.Errorf("reset_interval must be positive, got %v", c.ResetInterval)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative")
	}
	return nil
}

// CostStats is a point-in-time view of budget usage
type CostStats struct {
	Status       BudgetStatus `json:"status"`
	WindowTokens int64        `json:"window_tokens"`
	WindowCost   float64      `json:"window_cost"`
	TotalTokens  int64        `json:"total_tokens"`
	TotalCost    float64      `json:"total_cost"`
	WindowStart  time.Time    `json:"window_start"`
}

// CostTracker accumulates token usage per budget window and reports
// whether generation should keep going. Counters reset when the window
// expires; all-time totals never reset.
type CostTracker struct {
	config CostConfig
	now    func() time.Time

	mu           sync.Mutex
	windowStart  time.Time
	windowTokens int64
	windowCost   float64
	totalTokens  int64
	totalCost    float64
}

// NewCostTracker creates a tracker with the given configuration
func NewCostTracker(cfg CostConfig) (*CostTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost config: %w", err)
	}
	t := &CostTracker{
		config: cfg,
		now:    time.Now,
	}
	t.windowStart = t.now()
	return t, nil
}

// Record adds one request's token usage and returns the budget status
// after recording.
func (t *CostTracker) Record(inputTokens, outputTokens int64) BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetWindowIfExpired()

	tokens := inputTokens + outputTokens
	cost := t.cost(inputTokens, outputTokens)

	t.windowTokens += tokens
	t.windowCost += cost
	t.totalTokens += tokens
	t.totalCost += cost

	return t.statusLocked()
}

// Status returns the current budget status without recording usage
func (t *CostTracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetWindowIfExpired()
	return t.statusLocked()
}

// CanProceed reports whether another generation fits the budget. The
// returned reason is empty when it does.
func (t *CostTracker) CanProceed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetWindowIfExpired()

	if t.tokensExceededLocked() {
		return false, fmt.Sprintf("hourly token budget exceeded (%d/%d tokens used)",
			t.windowTokens, t.config.MaxTokensPerHour)
	}
	if t.costExceededLocked() {
		return false, fmt.Sprintf("hourly cost budget exceeded ($%.2f/$%.2f used)",
			t.windowCost, t.config.MaxCostPerHour)
	}
	return true, ""
}

// Stats returns current budget statistics
func (t *CostTracker) Stats() CostStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetWindowIfExpired()

	return CostStats{
		Status:       t.statusLocked(),
		WindowTokens: t.windowTokens,
		WindowCost:   t.windowCost,
		TotalTokens:  t.totalTokens,
		TotalCost:    t.totalCost,
		WindowStart:  t.windowStart,
	}
}

// statusLocked computes the status. Must be called with mu held.
func (t *CostTracker) statusLocked() BudgetStatus {
	if t.tokensExceededLocked() || t.costExceededLocked() {
		return BudgetExceeded
	}

	if t.config.MaxTokensPerHour > 0 {
		used := float64(t.windowTokens) / float64(t.config.MaxTokensPerHour)
		if used >= t.config.WarnThreshold {
			return BudgetWarning
		}
	}
	if t.config.MaxCostPerHour > 0 {
		used := t.windowCost / t.config.MaxCostPerHour
		if used >= t.config.WarnThreshold {
			return BudgetWarning
		}
	}
	return BudgetOK
}

func (t *CostTracker) tokensExceededLocked() bool {
	return t.config.MaxTokensPerHour > 0 && t.windowTokens >= t.config.MaxTokensPerHour
}

func (t *CostTracker) costExceededLocked() bool {
	return t.config.MaxCostPerHour > 0 && t.windowCost >= t.config.MaxCostPerHour
}

func (t *CostTracker) cost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * t.config.InputTokenCost / 1_000_000
	outputCost := float64(outputTokens) * t.config.OutputTokenCost / 1_000_000
	return inputCost + outputCost
}

// resetWindowIfExpired clears the windowed counters when the reset
// interval has elapsed. Must be called with mu held.
func (t *CostTracker) resetWindowIfExpired() {
	now := t.now()
	if now.Sub(t.windowStart) >= t.config.ResetInterval {
		t.windowTokens = 0
		t.windowCost = 0
		t.windowStart = now
	}
}
