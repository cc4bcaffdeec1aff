package goals

import (
	"fmt"
	"strings"
	"time"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/types"
)

// anchor names the language that complementary goals should be
// pursued in. It comes from the strongest qualifying language pattern
// or, when none qualifies, the project profile's primary language. An
// empty key means the anchor carries a label only and must not appear
// in derived_from.
type anchor struct {
	key   string
	label string
}

// languageAnchor picks the language to pair style goals with.
// Patterns win over the profile because they reflect observed work
// rather than a one-time scan.
func languageAnchor(qualified []*types.Pattern, profile *types.ProjectProfile) anchor {
	var best *types.Pattern
	for _, p := range qualified {
		if p.Category != types.CategoryLanguage {
			continue
		}
		if best == nil || stronger(p, best) {
			best = p
		}
	}
	if best != nil {
		label := best.Label
		if label == "" {
			label = strings.TrimPrefix(best.Key, "lang:")
		}
		return anchor{key: best.Key, label: label}
	}
	if profile != nil && len(profile.Languages) > 0 {
		return anchor{label: profile.Languages[0]}
	}
	return anchor{}
}

// stronger reports whether a beats b under the ranking rules: higher
// confidence, then fewer samples, then key ascending.
func stronger(a, b *types.Pattern) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.SampleCount != b.SampleCount {
		return a.SampleCount < b.SampleCount
	}
	return a.Key < b.Key
}

// buildCandidate maps one qualifying pattern onto a proposed goal.
// Style goals pair with the language anchor when one exists, so the
// resulting goal derives from both patterns. Patterns whose key has
// no goal template are skipped.
func buildCandidate(cfg config.ExplorationConfig, p *types.Pattern, anc anchor, profile *types.ProjectProfile, history map[types.GoalCategory]time.Duration) (candidate, bool) {
	var (
		category    types.GoalCategory
		description string
		derived     = []string{p.Key}
	)

	switch p.Category {
	case types.CategoryLanguage:
		label := p.Label
		if label == "" {
			label = strings.TrimPrefix(p.Key, "lang:")
		}
		category = types.GoalFeaturePrototype
		description = fmt.Sprintf("Build a small %s prototype exploring current %s idioms and best practices", label, label)

	case types.CategoryStyle:
		if anc.key != "" {
			derived = append(derived, anc.key)
		}
		switch p.Key {
		case "style:test-driven":
			category = types.GoalTesting
			switch {
			case profile != nil && !profile.HasTests:
				description = "Bootstrap a test suite for the project, starting with the most frequently touched areas"
			case anc.label != "":
				description = fmt.Sprintf("Extend the %s test suite around the most recently changed code", anc.label)
			default:
				description = "Extend the test suite around the most recently changed code"
			}
		case "style:small-commits":
			category = types.GoalRefactoring
			if anc.label != "" {
				description = fmt.Sprintf("Carve a focused %s refactoring out of a frequently touched module", anc.label)
			} else {
				description = "Carve a focused refactoring out of a frequently touched module"
			}
		case "style:fast-feedback":
			category = types.GoalPerformance
			if anc.label != "" {
				description = fmt.Sprintf("Profile the %s test feedback loop and speed up its slowest step", anc.label)
			} else {
				description = "Profile the test feedback loop and speed up its slowest step"
			}
		default:
			return candidate{}, false
		}

	case types.CategoryWorkflow:
		switch p.Key {
		case "workflow:conventional-commits":
			category = types.GoalTooling
			description = "Build a commit helper that drafts conventional commit messages from staged changes"
		case "workflow:feature-branches":
			category = types.GoalIntegration
			description = "Automate feature branch setup and cleanup around the existing branch workflow"
		default:
			return candidate{}, false
		}

	case types.CategoryInterest:
		dir := strings.TrimPrefix(p.Key, "interest:")
		if dir == "docs" || dir == "documentation" {
			category = types.GoalDocumentation
			description = "Fill documentation gaps in the areas changing most often"
		} else {
			category = types.GoalLearning
			description = fmt.Sprintf("Explore the %s area in depth and catalog improvement opportunities", dir)
		}

	default:
		return candidate{}, false
	}

	goal := types.Goal{
		DerivedFrom:   derived,
		Description:   description,
		Category:      category,
		Risk:          classifyRisk(cfg, p.Confidence),
		EstimatedCost: estimatedCost(cfg, history, category),
		Status:        types.GoalProposed,
	}
	goal.SortPatternKeys()
	return candidate{goal: goal, pattern: p}, true
}

// classifyRisk labels a goal by the confidence band of its source
// pattern, independent of the session's risk preference. A goal built
// on near-certain habits is a safe bet even inside an experimental
// session.
func classifyRisk(cfg config.ExplorationConfig, confidence float64) types.RiskLevel {
	switch {
	case confidence >= cfg.ConservativeThreshold:
		return types.RiskConservative
	case confidence >= cfg.ReadyThreshold:
		return types.RiskBalanced
	default:
		return types.RiskExperimental
	}
}

// estimatedCost prefers the measured average run duration for the
// category and falls back to the configured baseline when no session
// has produced one yet.
func estimatedCost(cfg config.ExplorationConfig, history map[types.GoalCategory]time.Duration, category types.GoalCategory) time.Duration {
	if d, ok := history[category]; ok && d > 0 {
		return d
	}
	return cfg.BaselineCost
}
