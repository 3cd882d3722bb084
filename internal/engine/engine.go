package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lugypresko/SDR-AGENT/internal/compute"
	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/conflict"
	"github.com/lugypresko/SDR-AGENT/internal/explain"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
	"github.com/lugypresko/SDR-AGENT/internal/provenance"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// ErrUnknownProfile is returned by New when the selected weight profile has
// no definition.
var ErrUnknownProfile = config.ErrUnknownProfile

const unknownLabel = "Unknown"

// Engine scores leads against one configuration and weight profile, both
// fixed at construction.
type Engine struct {
	cfg       *config.Config
	profile   string
	weights   config.WeightProfile
	now       func() time.Time
	resolver  *conflict.Resolver
	explainer *explain.Explainer
	calc      *compute.ConfidenceCalculator
}

// Option customises an Engine.
type Option func(*Engine)

// WithProfile selects a weight profile other than the config's active one.
func WithProfile(name string) Option {
	return func(e *Engine) { e.profile = name }
}

// WithClock replaces time.Now for lineage timestamps and timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an Engine for cfg. A nil cfg uses config.Default().
// It fails when the selected weight profile does not exist.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{cfg: cfg, profile: cfg.ActiveProfile, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	weights, err := cfg.Profile(e.profile)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.weights = weights
	e.resolver = conflict.NewResolver(cfg.Conflicts, cfg.Signals)
	e.explainer = explain.New(cfg.Tiers)
	e.calc = compute.NewConfidenceCalculator(cfg.Confidence)
	return e, nil
}

// Profile returns the name of the weight profile in use.
func (e *Engine) Profile() string { return e.profile }

// Versions returns the version identifiers stamped on every result.
func (e *Engine) Versions() config.Versions { return e.cfg.Versions }

// Tier maps a final score to a priority tier.
func (e *Engine) Tier(score float64) string {
	switch {
	case score >= e.cfg.Tiers.A:
		return TierA
	case score >= e.cfg.Tiers.B:
		return TierB
	default:
		return TierC
	}
}

// Process scores one lead. raw is not modified.
func (e *Engine) Process(raw schema.RawContext) *Result {
	start := e.now()
	tracker := provenance.NewTracker(e.now)

	in := raw.Clone()
	recordAgentOutputs(tracker, in)
	fallbacks := applyFallbacks(&in, e.cfg.Fallbacks)

	signals := e.deriveSignals(normalize.New(e.cfg.Normalization, tracker), in)
	report := e.resolver.ResolveAll(signals, in)
	breakdown := compute.NewScorer(e.profile, e.weights, e.cfg.Penalties, tracker).ComputeWeightedScore(signals)

	score := breakdown.FinalScore
	for _, c := range report.Conflicts {
		adjusted := score - c.Penalty*100
		tracker.RecordPenalty(c.Type, score, c.Penalty, adjusted, c.Description)
		score = adjusted
	}
	var fallbackPenalty float64
	for _, f := range fallbacks {
		fallbackPenalty += f.Penalty
		adjusted := score - f.Penalty*100
		tracker.RecordPenalty(f.Agent, score, f.Penalty, adjusted, f.Reason)
		score = adjusted
	}
	score = clamp(score, 0, 100)
	breakdown.ConflictPenalty = report.TotalPenalty
	breakdown.FallbackPenalty = fallbackPenalty
	breakdown.FinalScore = score

	confidence := e.calc.Compute(signals, report)
	if len(fallbacks) > 0 {
		confidence.AvgConfidence = max(0, confidence.AvgConfidence*(1-fallbackPenalty))
	}

	tier := e.Tier(score)

	expl := explain.Input{
		Score:       score,
		Tier:        tier,
		PrimaryPain: unknownLabel,
		Angle:       unknownLabel,
		Normalized:  signals,
		Breakdown:   breakdown,
		Conflicts:   report,
		Confidence:  confidence,
	}
	if in.Pain != nil && in.Pain.PrimaryPain != "" {
		expl.PrimaryPain = in.Pain.PrimaryPain
	}
	if in.Angle != nil {
		expl.Angle = in.Angle.Selected
		expl.Rejected = in.Angle.Rejected
	}
	summary := e.explainer.Summary(expl)
	full := e.explainer.Full(expl)

	tracker.RecordFinalScore(score, tier, confidence.AvgConfidence)

	missing := 0
	for _, v := range signals {
		if v <= missingThreshold {
			missing++
		}
	}

	elapsed := e.now().Sub(start)
	if e.cfg.MaxLatency > 0 && elapsed > e.cfg.MaxLatency {
		slog.Warn("engine: lead exceeded latency budget",
			"lead", raw.LeadName,
			"elapsed", elapsed,
			"budget", e.cfg.MaxLatency,
		)
	}

	flag := QualityLow
	if confidence.AvgConfidence > qualityThreshold {
		flag = QualityOK
	}

	return &Result{
		LeadName:           raw.LeadName,
		LeadCompany:        raw.LeadCompany,
		LeadScore:          score,
		PriorityTier:       tier,
		AvgConfidence:      confidence.AvgConfidence,
		MinConfidence:      confidence.MinConfidence,
		ExplanationSummary: summary,
		DataQualityFlag:    flag,
		Trace: Trace{
			Lineage:           tracker.Lineage(),
			NormalizedSignals: signals,
			WeightedSignals:   breakdown.WeightedSignals,
			Conflicts:         report,
			Confidence:        confidence,
			ScoreBreakdown:    breakdown,
			TierJustification: full.TierJustification,
			FullExplanation:   full,
			FallbacksApplied:  fallbacks,
			Metrics: Metrics{
				ProcessingTimeMs:   float64(elapsed) / float64(time.Millisecond),
				MissingSignals:     missing,
				ConflictCount:      report.Count,
				ConflictSeverity:   report.Severity,
				ConfidenceVariance: confidence.ConfidenceVariance,
				FallbackCount:      len(fallbacks),
			},
			Versions: e.cfg.Versions,
		},
	}
}

// recordAgentOutputs logs each present sub-output as received.
func recordAgentOutputs(t *provenance.Tracker, in schema.RawContext) {
	version := func(agent string) string { return in.AgentVersions[agent] }
	if in.BrightData != nil {
		t.RecordAgentOutput(schema.AgentBrightData, *in.BrightData, version(schema.AgentBrightData))
	}
	if in.Enrichment != nil {
		t.RecordAgentOutput(schema.AgentEnrichment, *in.Enrichment, version(schema.AgentEnrichment))
	}
	if in.Pain != nil {
		t.RecordAgentOutput(schema.AgentPain, *in.Pain, version(schema.AgentPain))
	}
	if in.Angle != nil {
		t.RecordAgentOutput(schema.AgentAngle, *in.Angle, version(schema.AgentAngle))
	}
	if in.Email != nil {
		t.RecordAgentOutput(schema.AgentEmail, *in.Email, version(schema.AgentEmail))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
