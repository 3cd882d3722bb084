package compute

import (
	"fmt"
	"strings"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/conflict"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
)

// Thresholds for the confidence components and their justification.
const (
	// presentThreshold is the value a signal must exceed to count as available.
	presentThreshold = 0.1

	lowAvailability = 0.5
	lowConsistency  = 0.7
	lowQuality      = 0.5

	// agreement is fixed while every signal has a single source.
	agreement = 1.0
)

const highConfidenceJustification = "High confidence: Complete data, no conflicts, strong signals"

// ConfidenceBreakdown describes how far the score can be trusted.
type ConfidenceBreakdown struct {
	Availability       float64 `json:"availability" yaml:"availability"`
	Agreement          float64 `json:"agreement" yaml:"agreement"`
	Consistency        float64 `json:"consistency" yaml:"consistency"`
	Quality            float64 `json:"quality" yaml:"quality"`
	AvgConfidence      float64 `json:"avg_confidence" yaml:"avg_confidence"`
	MinConfidence      float64 `json:"min_confidence" yaml:"min_confidence"`
	ConfidenceVariance float64 `json:"confidence_variance" yaml:"confidence_variance"`
	ConflictPenalty    float64 `json:"conflict_penalty" yaml:"conflict_penalty"`
	Justification      string  `json:"justification" yaml:"justification"`
}

// ConfidenceCalculator combines the four components with configured weights.
type ConfidenceCalculator struct {
	weights config.ConfidenceWeights
}

// NewConfidenceCalculator returns a calculator using weights.
func NewConfidenceCalculator(weights config.ConfidenceWeights) *ConfidenceCalculator {
	return &ConfidenceCalculator{weights: weights}
}

// Compute derives confidence from the signals and the conflict report.
// An empty signal set has zero availability and quality.
func (c *ConfidenceCalculator) Compute(signals normalize.Signals, report conflict.Report) ConfidenceBreakdown {
	var present int
	var total float64
	names := signals.Names()
	for _, name := range names {
		v := signals[name]
		if v > presentThreshold {
			present++
		}
		total += v
	}

	var availability, quality float64
	if len(names) > 0 {
		availability = float64(present) / float64(len(names))
		quality = total / float64(len(names))
	}
	consistency := 1 - report.TotalPenalty
	if consistency < 0 {
		consistency = 0
	}

	w := c.weights
	avg := availability*w.Availability +
		agreement*w.Agreement +
		consistency*w.Consistency +
		quality*w.Quality -
		report.TotalPenalty*w.ConflictPenalty

	components := [4]float64{availability, agreement, consistency, quality}
	return ConfidenceBreakdown{
		Availability:       availability,
		Agreement:          agreement,
		Consistency:        consistency,
		Quality:            quality,
		AvgConfidence:      clamp01(avg),
		MinConfidence:      minOf(components),
		ConfidenceVariance: variance(components),
		ConflictPenalty:    report.TotalPenalty,
		Justification:      justify(availability, consistency, quality, report.Count),
	}
}

func justify(availability, consistency, quality float64, conflicts int) string {
	var reasons []string
	if availability < lowAvailability {
		reasons = append(reasons, "Low data availability")
	}
	if consistency < lowConsistency {
		reasons = append(reasons, fmt.Sprintf("%d conflicts detected", conflicts))
	}
	if quality < lowQuality {
		reasons = append(reasons, "Weak signal strength")
	}
	if len(reasons) == 0 {
		return highConfidenceJustification
	}
	return "Reduced confidence: " + strings.Join(reasons, ", ")
}

func minOf(vs [4]float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// variance is the population variance.
func variance(vs [4]float64) float64 {
	var mean float64
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))
	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(vs))
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
