// Package goals turns high-confidence patterns into a bounded,
// risk-classified exploration plan.
//
// Generate is a pure function: identical inputs always produce the
// identical ordered goal list. There is no clock, RNG, or I/O here.
// Goal IDs and timestamps are assigned by the caller at acceptance
// time, so proposed goals leave this package with both unset.
package goals

import (
	"sort"
	"time"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/types"
)

// noveltySaturationSamples is the evidence depth at which a pattern
// stops counting as novel. A fresh interest at a handful of samples
// scores near 1, a long-established habit scores 0.
const noveltySaturationSamples = 50

// candidate pairs a proposed goal with the pattern that produced it
// while ranking and packing still need the pattern's fields.
type candidate struct {
	goal    types.Goal
	pattern *types.Pattern
	ev      float64
}

// Generate proposes up to cfg.MaxGoals exploration goals from the
// given patterns, ordered by descending expected value and packed
// greedily into the session budget. A goal whose estimated cost
// exceeds the remaining budget is skipped, not truncated, so a large
// goal never silently shrinks to fit.
//
// history carries the average run duration per goal category from
// earlier sessions; categories without history fall back to
// cfg.BaselineCost. An unknown risk preference is treated as balanced.
func Generate(cfg config.ExplorationConfig, patterns []*types.Pattern, profile *types.ProjectProfile, history map[types.GoalCategory]time.Duration, budget time.Duration, risk types.RiskLevel) []types.Goal {
	if !risk.IsValid() {
		risk = types.RiskBalanced
	}
	threshold := thresholdFor(cfg, risk)
	bias := noveltyBiasFor(cfg, risk)

	qualified := make([]*types.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p == nil || p.Confidence < threshold {
			continue
		}
		qualified = append(qualified, p)
	}
	if len(qualified) == 0 {
		return nil
	}

	anchor := languageAnchor(qualified, profile)

	candidates := make([]candidate, 0, len(qualified))
	for _, p := range qualified {
		c, ok := buildCandidate(cfg, p, anchor, profile, history)
		if !ok {
			continue
		}
		c.ev = p.Confidence * (1 + bias*noveltyOf(p))
		c.goal.Priority = c.ev / (1 + bias)
		candidates = append(candidates, c)
	}

	sortCandidates(candidates)
	return pack(capPerCategory(candidates, cfg.MaxPerCategory), budget, cfg.MaxGoals)
}

// thresholdFor returns the confidence bar a pattern must clear before
// it can seed a goal under the given risk preference.
func thresholdFor(cfg config.ExplorationConfig, risk types.RiskLevel) float64 {
	switch risk {
	case types.RiskConservative:
		return cfg.ConservativeThreshold
	case types.RiskExperimental:
		return cfg.ExperimentalThreshold
	default:
		return cfg.ReadyThreshold
	}
}

// noveltyBiasFor returns how strongly novelty raises expected value.
// Experimental sessions double the bias so newer, thinner patterns
// can outrank entrenched ones.
func noveltyBiasFor(cfg config.ExplorationConfig, risk types.RiskLevel) float64 {
	if risk == types.RiskExperimental {
		return cfg.NoveltyBias * 2
	}
	return cfg.NoveltyBias
}

func noveltyOf(p *types.Pattern) float64 {
	n := float64(p.SampleCount) / noveltySaturationSamples
	if n > 1 {
		n = 1
	}
	return 1 - n
}

// sortCandidates orders by expected value descending. Ties break by
// lower sample count first (favor newer interests), then by pattern
// key ascending, so the order is total and reproducible.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ev != b.ev {
			return a.ev > b.ev
		}
		if a.pattern.SampleCount != b.pattern.SampleCount {
			return a.pattern.SampleCount < b.pattern.SampleCount
		}
		return a.pattern.Key < b.pattern.Key
	})
}

// capPerCategory keeps at most maxPerCategory goals per category,
// preserving order, so one dominant pattern family cannot monopolize
// a session before budget packing even starts.
func capPerCategory(candidates []candidate, maxPerCategory int) []candidate {
	if maxPerCategory <= 0 {
		return candidates
	}
	counts := make(map[types.GoalCategory]int, len(candidates))
	kept := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if counts[c.goal.Category] >= maxPerCategory {
			continue
		}
		counts[c.goal.Category]++
		kept = append(kept, c)
	}
	return kept
}

// pack selects goals greedily in ranked order until the budget or the
// goal cap is exhausted. Cumulative cost never exceeds the budget.
func pack(candidates []candidate, budget time.Duration, maxGoals int) []types.Goal {
	var goals []types.Goal
	remaining := budget
	for _, c := range candidates {
		if maxGoals > 0 && len(goals) >= maxGoals {
			break
		}
		if c.goal.EstimatedCost > remaining {
			continue
		}
		remaining -= c.goal.EstimatedCost
		goals = append(goals, c.goal)
	}
	return goals
}
