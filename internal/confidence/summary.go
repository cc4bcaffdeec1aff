package confidence

import (
	"fmt"
	"sort"

	"github.com/sparkengine/spark/internal/types"
)

// readinessWeights set each category's contribution to the overall
// readiness score. They sum to 1.0; a category with no patterns
// contributes zero coverage.
var readinessWeights = map[types.PatternCategory]float64{
	types.CategoryLanguage: 0.25,
	types.CategoryStyle:    0.30,
	types.CategoryWorkflow: 0.25,
	types.CategoryInterest: 0.20,
}

const (
	// readinessBar is the overall readiness at which autonomous
	// exploration becomes worthwhile.
	readinessBar = 0.75
	// weakCategoryBar is the per-category confidence below which the
	// category counts as a blocking factor.
	weakCategoryBar = 0.5
	// topPatternCount bounds the strongest-patterns list in a summary.
	topPatternCount = 5
)

// Summary aggregates the pattern store for status displays and
// planning decisions.
type Summary struct {
	TotalPatterns     int                           `json:"total_patterns"`
	ByCategory        map[types.PatternCategory]int `json:"by_category"`
	ReadyPatterns     int                           `json:"ready_patterns"`
	AverageConfidence float64                       `json:"average_confidence"`
	TopPatterns       []*types.Pattern              `json:"top_patterns,omitempty"`
	Readiness         float64                       `json:"readiness"`
	Ready             bool                          `json:"ready"`
	SuggestedRisk     types.RiskLevel               `json:"suggested_risk"`
	BlockingFactors   []string                      `json:"blocking_factors,omitempty"`
	Recommendations   []string                      `json:"recommendations,omitempty"`
}

// Summary builds an aggregate view of the current pattern state.
// readyThreshold is the per-pattern confidence at or above which a
// pattern counts as exploration ready. Readiness is the weighted
// coverage of the four categories, each represented by its strongest
// pattern.
func (s *Store) Summary(readyThreshold float64) *Summary {
	s.mu.RLock()
	patterns := make([]*types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		patterns = append(patterns, clonePattern(p))
	}
	s.mu.RUnlock()

	sum := &Summary{
		TotalPatterns: len(patterns),
		ByCategory:    make(map[types.PatternCategory]int),
		SuggestedRisk: types.RiskConservative,
	}

	if len(patterns) == 0 {
		sum.BlockingFactors = []string{"No patterns detected"}
		sum.Recommendations = []string{"Continue coding to build pattern confidence"}
		return sum
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].Key < patterns[j].Key
	})

	best := make(map[types.PatternCategory]float64)
	total := 0.0
	for _, p := range patterns {
		sum.ByCategory[p.Category]++
		total += p.Confidence
		if p.Confidence >= readyThreshold {
			sum.ReadyPatterns++
		}
		if p.Confidence > best[p.Category] {
			best[p.Category] = p.Confidence
		}
	}
	sum.AverageConfidence = total / float64(len(patterns))

	sum.TopPatterns = patterns
	if len(sum.TopPatterns) > topPatternCount {
		sum.TopPatterns = sum.TopPatterns[:topPatternCount]
	}

	for _, cat := range types.AllPatternCategories() {
		score, ok := best[cat]
		if !ok {
			sum.BlockingFactors = append(sum.BlockingFactors,
				fmt.Sprintf("No %s patterns yet", cat))
			continue
		}
		sum.Readiness += score * readinessWeights[cat]
		if score < weakCategoryBar {
			sum.BlockingFactors = append(sum.BlockingFactors,
				fmt.Sprintf("Low %s confidence (%.1f%%)", cat, score*100))
		}
	}
	sum.Ready = sum.Readiness >= readinessBar

	switch {
	case sum.Readiness < weakCategoryBar:
		sum.Recommendations = append(sum.Recommendations,
			"Continue normal development to build stronger patterns")
	case sum.Readiness < readinessBar:
		sum.Recommendations = append(sum.Recommendations,
			"Keep coding in this project to sharpen existing patterns")
	default:
		sum.Recommendations = append(sum.Recommendations,
			"Ready for autonomous exploration")
	}

	switch {
	case sum.Readiness >= 0.9:
		sum.SuggestedRisk = types.RiskExperimental
	case sum.Readiness >= 0.8:
		sum.SuggestedRisk = types.RiskBalanced
	}

	return sum
}
