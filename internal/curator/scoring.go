package curator

import (
	"fmt"
	"strings"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// Byte thresholds separating trivially reviewable artifacts from ones
// that warrant a careful read.
const (
	trivialMaxBytes = 4 * 1024
	riskyMinBytes   = 12 * 1024
)

// maxTitleLen bounds discovery titles for list rendering.
const maxTitleLen = 80

// technicalValue scores the measured outcome of a run: the validation
// score, lifted when the artifact's own tests all passed.
func technicalValue(m types.RunMetrics) float64 {
	score := m.ValidationScore
	if m.TestsPassed > 0 && m.TestsFailed == 0 {
		score += 0.15
	}
	return clamp01(score)
}

// categoryImpact weighs how much a category of work tends to matter
// once integrated. Performance work leads, documentation trails.
func categoryImpact(category types.GoalCategory) float64 {
	switch category {
	case types.GoalPerformance:
		return 1.3
	case types.GoalFeaturePrototype, types.GoalTooling, types.GoalIntegration:
		return 1.1
	case types.GoalTesting, types.GoalLearning:
		return 0.9
	case types.GoalDocumentation:
		return 0.8
	default:
		return 1.0
	}
}

// impactScore combines the category multiplier with the artifact's
// scope. More files reach further, up to a cap.
func impactScore(category types.GoalCategory, artifact *types.Artifact) float64 {
	scope := 0.05 * float64(len(artifact.Files))
	if scope > 0.3 {
		scope = 0.3
	}
	return clamp01((0.5 + scope) * categoryImpact(category))
}

// recencyScore decays with the age of a run result. Fresh results
// score full; anything older than a month sits at the floor.
func recencyScore(completed, now time.Time) float64 {
	days := now.Sub(completed).Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.9 - (days-1)*0.05
	default:
		score := 0.6 - (days-7)*0.02
		if score < 0.1 {
			return 0.1
		}
		return score
	}
}

// feedbackMultiplier converts a 1..5 rating into a rank modifier
// between 0.8 and 1.2. Unrated discoveries rank unmodified.
func feedbackMultiplier(f *types.Feedback) float64 {
	if f == nil {
		return 1.0
	}
	return 0.7 + float64(f.Rating)/10
}

// RankScore is the presentation-time ordering key for a discovery: the
// curated value score modulated by the user's latest rating. The
// product can exceed 1.0; it orders lists, it is not reported as a
// score.
func RankScore(d *types.Discovery) float64 {
	return clamp01(d.ValueScore) * feedbackMultiplier(d.UserFeedback)
}

// classifyDifficulty reads static integration signals off an artifact.
// Artifacts are standalone programs, so folding one in is additive by
// construction; what varies is how much code there is to review and
// whether it pulls in dependencies the project does not already have.
func classifyDifficulty(artifact *types.Artifact) types.IntegrationDifficulty {
	size := artifact.TotalBytes()
	deps := len(artifact.NewDeps)
	switch {
	case deps > 2 || size > riskyMinBytes:
		return types.DifficultyRisky
	case deps == 0 && size <= trivialMaxBytes && len(artifact.Files) <= 2:
		return types.DifficultyTrivial
	default:
		return types.DifficultyModerate
	}
}

// artifactSignature buckets an artifact's shape for duplicate
// detection: category, language, file count, and coarse size. Two
// artifacts in the same bucket that also share a source pattern are
// treated as the same idea explored twice.
func artifactSignature(category types.GoalCategory, artifact *types.Artifact) string {
	lang := artifact.Language
	if lang == "" {
		lang = "unknown"
	}
	return fmt.Sprintf("%s|%s|f%d|%s", category, lang, len(artifact.Files), sizeBucket(artifact.TotalBytes()))
}

// sizeBucket coarsens byte counts so near-identical artifacts land in
// the same bucket despite small diffs.
func sizeBucket(n int) string {
	switch {
	case n <= 1024:
		return "1k"
	case n <= 4*1024:
		return "4k"
	case n <= 16*1024:
		return "16k"
	default:
		return "big"
	}
}

// discoveryTitle trims a goal description down to a list-friendly
// title, cutting at a word boundary when one is close enough.
func discoveryTitle(description string) string {
	title := strings.TrimSpace(description)
	if len(title) <= maxTitleLen {
		return title
	}
	cut := title[:maxTitleLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxTitleLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
