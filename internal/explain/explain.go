// Package explain renders already-computed scoring artifacts as text.
// It performs no scoring of its own.
package explain

import (
	"fmt"
	"sort"

	"github.com/lugypresko/SDR-AGENT/internal/compute"
	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/conflict"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
)

// strongConfidence is the avg_confidence above which evidence is "Strong"
// and the headline says "high".
const strongConfidence = 0.7

const noAlternatives = "No alternative angles considered"

// Input gathers the artifacts of one scoring run.
type Input struct {
	Score       float64
	Tier        string
	PrimaryPain string
	Angle       string
	Rejected    []string
	Normalized  normalize.Signals
	Breakdown   compute.ScoreBreakdown
	Conflicts   conflict.Report
	Confidence  compute.ConfidenceBreakdown
}

// Explanation is the structured reasoning tree stored in a result trace.
type Explanation struct {
	Overview             Overview              `json:"summary" yaml:"summary"`
	Signals              []SignalContribution  `json:"signal_explanations" yaml:"signal_explanations"`
	Conflicts            []string              `json:"conflict_explanations" yaml:"conflict_explanations"`
	Penalties            []string              `json:"penalty_explanations" yaml:"penalty_explanations"`
	Confidence           ConfidenceExplanation `json:"confidence_explanations" yaml:"confidence_explanations"`
	TierJustification    string                `json:"tier_justification" yaml:"tier_justification"`
	RejectedAlternatives []string              `json:"rejected_alternatives" yaml:"rejected_alternatives"`
}

// Overview is the top of the tree.
type Overview struct {
	FinalScore    float64 `json:"final_score" yaml:"final_score"`
	Tier          string  `json:"tier" yaml:"tier"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	MainReasoning string  `json:"main_reasoning" yaml:"main_reasoning"`
}

// SignalContribution is one signal's share of the raw score.
type SignalContribution struct {
	Signal          string  `json:"signal" yaml:"signal"`
	NormalizedValue float64 `json:"normalized_value" yaml:"normalized_value"`
	WeightedValue   float64 `json:"weighted_value" yaml:"weighted_value"`
	Contribution    string  `json:"contribution" yaml:"contribution"`
}

// ConfidenceExplanation renders confidence components as percentages.
type ConfidenceExplanation struct {
	Availability  string `json:"availability" yaml:"availability"`
	Consistency   string `json:"consistency" yaml:"consistency"`
	Quality       string `json:"quality" yaml:"quality"`
	Justification string `json:"justification" yaml:"justification"`
}

// Explainer is stateless apart from the tier thresholds it cites.
type Explainer struct {
	tiers config.TierThresholds
}

// New returns an Explainer citing tiers in its tier justification.
func New(tiers config.TierThresholds) *Explainer {
	return &Explainer{tiers: tiers}
}

// Summary renders the one-line explanation.
func (e *Explainer) Summary(in Input) string {
	evidence := "Moderate signals"
	if in.Confidence.AvgConfidence > strongConfidence {
		evidence = "Strong signals"
	}
	return fmt.Sprintf("Main pain: %s. Angle: %s. Evidence: %s. Tier: %s (Score: %.0f)",
		in.PrimaryPain, in.Angle, evidence, in.Tier, in.Score)
}

// Full renders the complete reasoning tree.
func (e *Explainer) Full(in Input) Explanation {
	signals := contributions(in.Normalized, in.Breakdown.WeightedSignals)
	return Explanation{
		Overview: Overview{
			FinalScore:    in.Score,
			Tier:          in.Tier,
			Confidence:    in.Confidence.AvgConfidence,
			MainReasoning: headline(signals, in.Confidence.AvgConfidence),
		},
		Signals:              signals,
		Conflicts:            conflictLines(in.Conflicts),
		Penalties:            penaltyLines(in.Breakdown.Penalties),
		Confidence:           confidenceLines(in.Confidence),
		TierJustification:    e.TierJustification(in.Score, in.Tier),
		RejectedAlternatives: rejections(in.Rejected),
	}
}

// TierJustification compares score against the threshold relevant to tier.
func (e *Explainer) TierJustification(score float64, tier string) string {
	switch tier {
	case "A":
		return fmt.Sprintf("Score %.0f >= %g (High-potential, immediate send)", score, e.tiers.A)
	case "B":
		return fmt.Sprintf("Score %.0f >= %g (Good lead, queue)", score, e.tiers.B)
	default:
		return fmt.Sprintf("Score %.0f < %g (Optional or deprioritized)", score, e.tiers.B)
	}
}

// contributions lists weighted signals, largest first, ties by name.
func contributions(normalized normalize.Signals, weighted map[string]float64) []SignalContribution {
	out := make([]SignalContribution, 0, len(weighted))
	for name, w := range weighted {
		out = append(out, SignalContribution{
			Signal:          name,
			NormalizedValue: normalized.Get(name),
			WeightedValue:   w,
			Contribution:    fmt.Sprintf("%.1f points", w*100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeightedValue != out[j].WeightedValue {
			return out[i].WeightedValue > out[j].WeightedValue
		}
		return out[i].Signal < out[j].Signal
	})
	return out
}

func headline(signals []SignalContribution, confidence float64) string {
	level := "moderate"
	if confidence > strongConfidence {
		level = "high"
	}
	top := "no weighted signals"
	if len(signals) > 0 {
		top = signals[0].Signal
	}
	return fmt.Sprintf("Lead prioritized based on %s (%s confidence)", top, level)
}

func conflictLines(rep conflict.Report) []string {
	out := make([]string, 0, len(rep.Conflicts))
	for _, c := range rep.Conflicts {
		out = append(out, fmt.Sprintf("%s (Penalty: %.0f points)", c.Description, c.Penalty*100))
	}
	return out
}

// penaltyLines follows the scorer's evaluation order.
func penaltyLines(penalties map[string]float64) []string {
	out := make([]string, 0, len(penalties))
	for _, name := range compute.PenaltyNames() {
		if p, ok := penalties[name]; ok {
			out = append(out, fmt.Sprintf("%s: %.0f points", name, p*100))
		}
	}
	return out
}

func confidenceLines(c compute.ConfidenceBreakdown) ConfidenceExplanation {
	return ConfidenceExplanation{
		Availability:  fmt.Sprintf("%.0f%% data completeness", c.Availability*100),
		Consistency:   fmt.Sprintf("%.0f%% signal consistency", c.Consistency*100),
		Quality:       fmt.Sprintf("%.0f%% signal strength", c.Quality*100),
		Justification: c.Justification,
	}
}

func rejections(rejected []string) []string {
	if len(rejected) == 0 {
		return []string{noAlternatives}
	}
	out := make([]string, 0, len(rejected))
	for _, angle := range rejected {
		out = append(out, fmt.Sprintf("Rejected: %s (lower relevance)", angle))
	}
	return out
}
