package compute

import (
	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
	"github.com/lugypresko/SDR-AGENT/internal/provenance"
)

// Penalty names as they appear in ScoreBreakdown.Penalties.
const (
	PenaltyMissingEnrichment = "missing_enrichment"
	PenaltyMissingPain       = "missing_pain"
	PenaltyMissingAngle      = "missing_angle"
)

// Thresholds below which a signal counts as missing.
const (
	thresholdEnrichment = 0.3
	thresholdPain       = 0.2
	thresholdAngle      = 0.2
)

// penaltyRule ties a penalty to the signal whose weakness triggers it.
type penaltyRule struct {
	name      string
	signal    string
	threshold float64
	magnitude func(config.PenaltyRules) float64
}

// penaltyRules is evaluated in order.
var penaltyRules = []penaltyRule{
	{PenaltyMissingEnrichment, "enrichment_quality", thresholdEnrichment, func(p config.PenaltyRules) float64 { return p.MissingEnrichment }},
	{PenaltyMissingPain, "pain_strength", thresholdPain, func(p config.PenaltyRules) float64 { return p.MissingPain }},
	{PenaltyMissingAngle, "angle_relevance", thresholdAngle, func(p config.PenaltyRules) float64 { return p.MissingAngle }},
}

// PenaltyNames returns the penalty names in evaluation order.
func PenaltyNames() []string {
	names := make([]string, len(penaltyRules))
	for i, r := range penaltyRules {
		names[i] = r.name
	}
	return names
}

// ScoreBreakdown is the scorer's output.
type ScoreBreakdown struct {
	Profile         string             `json:"profile" yaml:"profile"`
	WeightedSignals map[string]float64 `json:"weighted_signals" yaml:"weighted_signals"`
	// RawScore is the weighted sum × 100.
	RawScore float64 `json:"raw_score" yaml:"raw_score"`
	// Penalties maps a triggered penalty name to its magnitude (fraction of 100).
	Penalties    map[string]float64 `json:"penalties" yaml:"penalties"`
	TotalPenalty float64            `json:"total_penalty" yaml:"total_penalty"`

	// ConflictPenalty and FallbackPenalty are filled in by the engine.
	ConflictPenalty float64 `json:"conflict_penalty" yaml:"conflict_penalty"`
	FallbackPenalty float64 `json:"fallback_penalty" yaml:"fallback_penalty"`

	// FinalScore is RawScore minus penalties, floored at 0. The engine
	// replaces it with the fully penalised, clamped lead score.
	FinalScore float64 `json:"final_score" yaml:"final_score"`
}

// Scorer applies one weight profile. It is bound to a single tracker and
// so to a single scoring run.
type Scorer struct {
	profile   string
	weights   config.WeightProfile
	penalties config.PenaltyRules
	tracker   *provenance.Tracker
}

// NewScorer returns a Scorer for the named profile.
func NewScorer(profile string, weights config.WeightProfile, penalties config.PenaltyRules, tracker *provenance.Tracker) *Scorer {
	return &Scorer{profile: profile, weights: weights, penalties: penalties, tracker: tracker}
}

// ComputeWeightedScore weights signals by the profile and applies penalties.
// A profile signal absent from signals contributes 0.
func (s *Scorer) ComputeWeightedScore(signals normalize.Signals) ScoreBreakdown {
	out := ScoreBreakdown{
		Profile:         s.profile,
		WeightedSignals: make(map[string]float64, len(s.weights)),
		Penalties:       map[string]float64{},
	}

	var sum float64
	for _, name := range s.weights.Signals() {
		weight := s.weights[name]
		value := signals.Get(name)
		weighted := value * weight
		out.WeightedSignals[name] = weighted
		sum += weighted
		if s.tracker != nil {
			s.tracker.RecordWeighting(name, value, weight, weighted)
		}
	}
	out.RawScore = sum * 100

	score := out.RawScore
	for _, rule := range penaltyRules {
		if signals.Get(rule.signal) >= rule.threshold {
			continue
		}
		mag := rule.magnitude(s.penalties)
		out.Penalties[rule.name] = mag
		out.TotalPenalty += mag

		adjusted := score - mag*100
		if adjusted < 0 {
			adjusted = 0
		}
		if s.tracker != nil {
			s.tracker.RecordPenalty(rule.signal, score, mag, adjusted, rule.name)
		}
		score = adjusted
	}
	out.FinalScore = score
	return out
}
