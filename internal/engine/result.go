package engine

import (
	"github.com/lugypresko/SDR-AGENT/internal/compute"
	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/conflict"
	"github.com/lugypresko/SDR-AGENT/internal/explain"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
	"github.com/lugypresko/SDR-AGENT/internal/provenance"
)

// Tier names.
const (
	TierA = "A"
	TierB = "B"
	TierC = "C"
)

// Data quality flags.
const (
	QualityOK  = "OK"
	QualityLow = "LOW"
)

// qualityThreshold is the avg_confidence above which data quality is OK.
const qualityThreshold = 0.6

// missingThreshold is the normalized value at or below which a signal counts
// as missing in the metrics.
const missingThreshold = 0.1

// Result is the complete outcome for one lead.
type Result struct {
	LeadName           string  `json:"lead_name" yaml:"lead_name"`
	LeadCompany        string  `json:"lead_company" yaml:"lead_company"`
	LeadScore          float64 `json:"lead_score" yaml:"lead_score"`
	PriorityTier       string  `json:"priority_tier" yaml:"priority_tier"`
	AvgConfidence      float64 `json:"avg_confidence" yaml:"avg_confidence"`
	MinConfidence      float64 `json:"min_confidence" yaml:"min_confidence"`
	ExplanationSummary string  `json:"explanation_summary" yaml:"explanation_summary"`
	DataQualityFlag    string  `json:"data_quality_flag" yaml:"data_quality_flag"`
	Trace              Trace   `json:"trace" yaml:"trace"`
}

// Trace holds every intermediate artifact of the run.
type Trace struct {
	Lineage           []provenance.Entry          `json:"lineage" yaml:"lineage"`
	NormalizedSignals normalize.Signals           `json:"normalized_signals" yaml:"normalized_signals"`
	WeightedSignals   map[string]float64          `json:"weighted_signals" yaml:"weighted_signals"`
	Conflicts         conflict.Report             `json:"conflicts" yaml:"conflicts"`
	Confidence        compute.ConfidenceBreakdown `json:"confidence" yaml:"confidence"`
	ScoreBreakdown    compute.ScoreBreakdown      `json:"score_breakdown" yaml:"score_breakdown"`
	TierJustification string                      `json:"tier_justification" yaml:"tier_justification"`
	FullExplanation   explain.Explanation         `json:"full_explanation" yaml:"full_explanation"`
	FallbacksApplied  []Fallback                  `json:"fallbacks_applied" yaml:"fallbacks_applied"`
	Metrics           Metrics                     `json:"metrics" yaml:"metrics"`
	Versions          config.Versions             `json:"versions" yaml:"versions"`
}

// Fallback records one substituted collaborator output.
type Fallback struct {
	Agent   string  `json:"agent" yaml:"agent"`
	Reason  string  `json:"reason" yaml:"reason"`
	Penalty float64 `json:"penalty" yaml:"penalty"`
}

// Metrics are per-lead counters.
type Metrics struct {
	ProcessingTimeMs   float64 `json:"processing_time_ms" yaml:"processing_time_ms"`
	MissingSignals     int     `json:"missing_signals" yaml:"missing_signals"`
	ConflictCount      int     `json:"conflict_count" yaml:"conflict_count"`
	ConflictSeverity   string  `json:"conflict_severity" yaml:"conflict_severity"`
	ConfidenceVariance float64 `json:"confidence_variance" yaml:"confidence_variance"`
	FallbackCount      int     `json:"fallback_count" yaml:"fallback_count"`
}
