// Package score centralizes all confidence arithmetic so resolution,
// merging, and classification share one set of named, testable formulas
// instead of inline constants.
package score

import (
	"math"

	"github.com/jwyoon/anamna/internal/model"
)

const (
	// DecayPerHop is the multiplicative confidence penalty for each
	// relative-reference hop during date resolution
	DecayPerHop = 0.85

	// TwoDigitYearPenalty is subtracted from absolute-date confidence
	// when the year was written with two digits
	TwoDigitYearPenalty = 0.05

	// MaxResolutionDepth caps the hop count before a chain is flagged
	// low-confidence regardless of its computed score
	MaxResolutionDepth = 4

	// FallbackConfidence is assigned when a relative anchor resolves
	// against the run reference date instead of a local anchor
	FallbackConfidence = 0.5

	// DistanceHalfLife is the character distance at which confidence
	// contributed by a supporting anchor halves
	DistanceHalfLife = 2000

	// AssistedCap bounds confidence reported by the assisted branch;
	// external model self-scores are never trusted past this value
	AssistedCap = 0.95
)

// Absolute returns the confidence of a directly resolved absolute date
func Absolute(twoDigitYear bool) float64 {
	if twoDigitYear {
		return 1.0 - TwoDigitYearPenalty
	}
	return 1.0
}

// Chain applies the per-hop decay for a resolution chain of the given
// depth on top of the base anchor's confidence
func Chain(base float64, depth int) float64 {
	if depth <= 0 {
		return clamp(base)
	}
	return clamp(base * math.Pow(DecayPerHop, float64(depth)))
}

// DistanceDecay attenuates confidence by the character distance between
// a dependent anchor and its supporting anchor
func DistanceDecay(conf float64, charDistance int) float64 {
	if charDistance <= 0 {
		return clamp(conf)
	}
	factor := math.Pow(0.5, float64(charDistance)/float64(DistanceHalfLife))
	return clamp(conf * factor)
}

// Assisted clamps a confidence self-reported by the external branch
func Assisted(reported float64) float64 {
	if reported > AssistedCap {
		return AssistedCap
	}
	return clamp(reported)
}

// PreferRule is the deterministic dedupe tie-break: the higher
// confidence wins, and an exact tie keeps the rule-sourced event
func PreferRule(a, b model.MedicalEvent) model.MedicalEvent {
	if a.Confidence > b.Confidence {
		return a
	}
	if b.Confidence > a.Confidence {
		return b
	}
	if a.Source == model.SourceRule {
		return a
	}
	if b.Source == model.SourceRule {
		return b
	}
	return a
}

// LowConfidence reports whether a resolved date must carry the
// low-confidence flag
func LowConfidence(conf float64, depth int, threshold float64) bool {
	return depth > MaxResolutionDepth || conf < threshold
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
