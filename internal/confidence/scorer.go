package confidence

import (
	"math"

	"github.com/sparkengine/spark/internal/config"
	"github.com/sparkengine/spark/internal/types"
)

// baseScore maps a sample count onto a saturating curve. Below
// minSamples the score stays in a provisional linear band; beyond it a
// sigmoid rises toward its plateau around optimalSamples.
func baseScore(sampleCount, minSamples, optimalSamples int) float64 {
	if sampleCount <= 0 {
		return 0
	}
	if sampleCount < minSamples {
		return 0.1 * float64(sampleCount) / float64(minSamples)
	}

	x := float64(sampleCount-minSamples) / float64(optimalSamples-minSamples)
	if x > 1 {
		x = 1
	}
	return 1 / (1 + math.Exp(-6*(x-0.5)))
}

// consistencyScore measures how much the evidence weights agree, as one
// minus the coefficient of variation. A single sample carries no
// consistency information.
func consistencyScore(weights []float64) float64 {
	if len(weights) <= 1 {
		return 0
	}

	allEqual := true
	for _, w := range weights[1:] {
		if w != weights[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return 1
	}

	mean := 0.0
	for _, w := range weights {
		mean += w
	}
	mean /= float64(len(weights))
	if mean == 0 {
		return 0
	}

	// Sample variance (n-1 denominator).
	variance := 0.0
	for _, w := range weights {
		d := w - mean
		variance += d * d
	}
	variance /= float64(len(weights) - 1)

	cv := math.Sqrt(variance) / math.Abs(mean)
	if cv > 1 {
		cv = 1
	}
	return 1 - cv
}

// computeConfidence combines the sample-count curve with the evidence
// consistency multiplier. ConsistencyFloor keeps fully inconsistent
// evidence from zeroing out an otherwise well-sampled pattern; the
// result is capped at MaxConfidence.
func computeConfidence(cfg config.LearningConfig, sampleCount int, weights []float64) float64 {
	base := baseScore(sampleCount, cfg.MinSamples, cfg.OptimalSamples)
	consistency := consistencyScore(weights)

	confidence := base * (cfg.ConsistencyFloor + (1-cfg.ConsistencyFloor)*consistency)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > cfg.MaxConfidence {
		confidence = cfg.MaxConfidence
	}
	return confidence
}

// rescore recomputes a pattern's confidence from its sample count and
// evidence window. Confidence is always derived, never set directly.
func rescore(cfg config.LearningConfig, p *types.Pattern) {
	weights := make([]float64, len(p.EvidenceWindow))
	for i, ev := range p.EvidenceWindow {
		weights[i] = ev.Weight
	}
	p.Confidence = computeConfidence(cfg, p.SampleCount, weights)
}
