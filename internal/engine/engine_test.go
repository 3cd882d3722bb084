package engine

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/conflict"
	"github.com/lugypresko/SDR-AGENT/internal/provenance"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// baseTime is a fixed reference point so all test timestamps are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// richContext has every collaborator present with strong output.
func richContext() schema.RawContext {
	return schema.RawContext{
		LeadName:    "Ada Byron",
		LeadCompany: "Analytical Engines",
		LeadTitle:   "CTO",
		BrightData: &schema.BrightDataOutput{
			Headcount: schema.Int(100),
			OpenRoles: schema.Int(60),
			Industry:  "software",
			TechStack: []string{"go", "postgres"},
		},
		Enrichment: &schema.EnrichmentOutput{CompanyCategory: "B2B SaaS"},
		Pain: &schema.PainProfilerOutput{
			Candidates:  []string{"onboarding", "hiring", "churn", "tooling", "billing"},
			PrimaryPain: "slow onboarding",
		},
		Angle: &schema.AngleRouterOutput{
			Candidates: []string{"Execution Velocity", "Cost Reduction"},
			Rejected:   []string{"Cost Reduction"},
			Selected:   "Execution Velocity",
		},
		Email: &schema.EmailWriterOutput{
			PersonalizationDepth: schema.Float(0.9),
			Tone:                 "consultative",
		},
		AgentVersions: map[string]string{schema.AgentPain: "2.0.0"},
	}
}

// --- New() ---

func TestNew_UnknownProfile(t *testing.T) {
	_, err := New(config.Default(), WithProfile("v9"))
	if err == nil {
		t.Fatal("New with unknown profile returned nil error")
	}
	if !errors.Is(err, ErrUnknownProfile) || !errors.Is(err, config.ErrUnknownProfile) {
		t.Errorf("err = %v, want ErrUnknownProfile", err)
	}
}

func TestNew_NilConfigUsesDefault(t *testing.T) {
	e := newEngine(t, nil)
	if e.Profile() != config.DefaultProfile {
		t.Errorf("Profile() = %q, want %q", e.Profile(), config.DefaultProfile)
	}
	if e.Versions().Engine != config.DefaultVersion {
		t.Errorf("Versions().Engine = %q", e.Versions().Engine)
	}
}

func TestNew_WithProfile(t *testing.T) {
	e := newEngine(t, nil, WithProfile("experimental"))
	res := e.Process(richContext())
	if res.Trace.ScoreBreakdown.Profile != "experimental" {
		t.Errorf("breakdown profile = %q, want experimental", res.Trace.ScoreBreakdown.Profile)
	}
}

// --- Tier() ---

func TestTier_Boundaries(t *testing.T) {
	e := newEngine(t, nil)
	tests := []struct {
		score float64
		want  string
	}{
		{100, TierA},
		{80.0, TierA},
		{79.99, TierB},
		{55.0, TierB},
		{54.99, TierC},
		{0, TierC},
	}
	for _, tc := range tests {
		if got := e.Tier(tc.score); got != tc.want {
			t.Errorf("Tier(%g) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

// --- Process() ---

func TestProcess_RichContext(t *testing.T) {
	res := newEngine(t, nil).Process(richContext())

	// enrichment .105 + stress .20 + pain .25 + angle .12 + personalization .09
	// + complexity .025 + org .035 + email .04 = .865
	if !almostEqual(res.LeadScore, 86.5, 1e-6) {
		t.Errorf("LeadScore = %g, want 86.5", res.LeadScore)
	}
	if res.PriorityTier != TierA {
		t.Errorf("PriorityTier = %q, want A", res.PriorityTier)
	}
	// 8 of 9 signals present; quality 6.41 / 9.
	wantAvg := 8.0/9*0.30 + 0.20 + 0.25 + 6.41/9*0.15
	if !almostEqual(res.AvgConfidence, wantAvg, 1e-9) {
		t.Errorf("AvgConfidence = %g, want %g", res.AvgConfidence, wantAvg)
	}
	if res.DataQualityFlag != QualityOK {
		t.Errorf("DataQualityFlag = %q, want OK", res.DataQualityFlag)
	}
	if len(res.Trace.FallbacksApplied) != 0 {
		t.Errorf("FallbacksApplied = %+v, want none", res.Trace.FallbacksApplied)
	}
	if got := res.Trace.NormalizedSignals[SignalEmailQuality]; got != 0.8 {
		t.Errorf("email_quality = %g, want 0.8 (consultative)", got)
	}
	if got := res.Trace.NormalizedSignals[SignalStress]; got != 1 {
		t.Errorf("stress_signals = %g, want 1 (clipped at 0.5 ratio)", got)
	}
	wantPrefix := "Main pain: slow onboarding. Angle: Execution Velocity. Evidence: Strong signals. Tier: A"
	if !strings.HasPrefix(res.ExplanationSummary, wantPrefix) {
		t.Errorf("ExplanationSummary = %q", res.ExplanationSummary)
	}
	if got := res.Trace.FullExplanation.RejectedAlternatives; len(got) != 1 || got[0] != "Rejected: Cost Reduction (lower relevance)" {
		t.Errorf("RejectedAlternatives = %q", got)
	}
	if res.Trace.Metrics.MissingSignals != 1 {
		t.Errorf("MissingSignals = %d, want 1 (headcount)", res.Trace.Metrics.MissingSignals)
	}
	if res.Trace.Versions != config.Default().Versions {
		t.Errorf("Versions = %+v", res.Trace.Versions)
	}
}

func TestProcess_AllCollaboratorsMissing(t *testing.T) {
	res := newEngine(t, nil).Process(schema.RawContext{LeadName: "Nobody", LeadCompany: "Nowhere"})

	if got := len(res.Trace.FallbacksApplied); got != 3 {
		t.Fatalf("len(FallbacksApplied) = %d, want 3", got)
	}
	wantAgents := []string{schema.AgentBrightData, schema.AgentPain, schema.AgentAngle}
	for i, want := range wantAgents {
		if res.Trace.FallbacksApplied[i].Agent != want {
			t.Errorf("fallback %d agent = %q, want %q", i, res.Trace.FallbacksApplied[i].Agent, want)
		}
	}
	// Scorer: 23 - 10 = 13; engine subtracts 50 for fallbacks and clamps.
	if !almostEqual(res.Trace.ScoreBreakdown.RawScore, 23, 1e-9) {
		t.Errorf("RawScore = %g, want 23", res.Trace.ScoreBreakdown.RawScore)
	}
	if res.LeadScore != 0 {
		t.Errorf("LeadScore = %g, want 0", res.LeadScore)
	}
	if res.PriorityTier != TierC {
		t.Errorf("PriorityTier = %q, want C", res.PriorityTier)
	}
	if !almostEqual(res.Trace.ScoreBreakdown.FallbackPenalty, 0.5, 1e-9) {
		t.Errorf("FallbackPenalty = %g, want 0.5", res.Trace.ScoreBreakdown.FallbackPenalty)
	}
	if !almostEqual(res.AvgConfidence, 0.6414375*0.5, 1e-9) {
		t.Errorf("AvgConfidence = %g, want %g", res.AvgConfidence, 0.6414375*0.5)
	}
	if res.DataQualityFlag != QualityLow {
		t.Errorf("DataQualityFlag = %q, want LOW", res.DataQualityFlag)
	}
	if res.Trace.Metrics.FallbackCount != 3 {
		t.Errorf("FallbackCount = %d, want 3", res.Trace.Metrics.FallbackCount)
	}
	if !strings.HasPrefix(res.ExplanationSummary, "Main pain: execution friction. Angle: Execution Velocity.") {
		t.Errorf("ExplanationSummary = %q", res.ExplanationSummary)
	}
	if _, ok := res.Trace.NormalizedSignals[SignalEnrichmentQuality]; ok {
		t.Error("enrichment_quality should be absent when enrichment is missing")
	}
}

func TestProcess_BrightDataFallbackLowersConfidence(t *testing.T) {
	e := newEngine(t, nil)
	base := schema.RawContext{
		LeadName: "Grace",
		Pain:     &schema.PainProfilerOutput{Candidates: []string{"a", "b"}, PrimaryPain: "reporting"},
		Angle:    &schema.AngleRouterOutput{Selected: "Velocity"},
	}

	missing := e.Process(base)
	if got := missing.Trace.FallbacksApplied; len(got) != 1 || got[0].Agent != schema.AgentBrightData {
		t.Fatalf("FallbacksApplied = %+v, want exactly one BrightData entry", got)
	}
	if missing.Trace.FallbacksApplied[0].Reason != ReasonAgentFailed {
		t.Errorf("reason = %q", missing.Trace.FallbacksApplied[0].Reason)
	}

	neutral := base.Clone()
	neutral.BrightData = &schema.BrightDataOutput{
		Headcount: schema.Int(100),
		OpenRoles: schema.Int(0),
		Industry:  "Unknown",
	}
	present := e.Process(neutral)
	if len(present.Trace.FallbacksApplied) != 0 {
		t.Fatalf("neutral context applied fallbacks: %+v", present.Trace.FallbacksApplied)
	}

	if !(missing.AvgConfidence < present.AvgConfidence) {
		t.Errorf("AvgConfidence with fallback %g not < without %g", missing.AvgConfidence, present.AvgConfidence)
	}
	if !almostEqual(missing.AvgConfidence, present.AvgConfidence*0.85, 1e-9) {
		t.Errorf("AvgConfidence = %g, want %g × 0.85", missing.AvgConfidence, present.AvgConfidence)
	}
}

func TestProcess_EmptyOutputsTriggerFallbacks(t *testing.T) {
	res := newEngine(t, nil).Process(schema.RawContext{
		BrightData: &schema.BrightDataOutput{Description: "no facts"},
		Pain:       &schema.PainProfilerOutput{PrimaryPain: "orphan"},
		Angle:      &schema.AngleRouterOutput{Candidates: []string{"X"}},
	})
	want := []Fallback{
		{Agent: schema.AgentBrightData, Reason: ReasonAgentFailed, Penalty: 0.15},
		{Agent: schema.AgentPain, Reason: ReasonNoPain, Penalty: 0.20},
		{Agent: schema.AgentAngle, Reason: ReasonNoAngle, Penalty: 0.15},
	}
	if diff := cmp.Diff(want, res.Trace.FallbacksApplied); diff != "" {
		t.Errorf("FallbacksApplied mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_ConflictSizeVsPain(t *testing.T) {
	e := newEngine(t, nil)
	ctx := richContext()
	ctx.BrightData.Headcount = schema.Int(20)
	ctx.BrightData.OpenRoles = schema.Int(1)
	ctx.Pain.PrimaryPain = "enterprise scale rollout"

	res := e.Process(ctx)
	rep := res.Trace.Conflicts
	if rep.Count != 1 || rep.Conflicts[0].Type != conflict.SizeVsPain {
		t.Fatalf("conflicts = %+v, want size_vs_pain", rep.Conflicts)
	}
	if rep.Conflicts[0].Penalty != 0.15 {
		t.Errorf("penalty = %g, want 0.15", rep.Conflicts[0].Penalty)
	}
	if res.Trace.Metrics.ConflictSeverity != config.SeverityModerate {
		t.Errorf("ConflictSeverity = %q", res.Trace.Metrics.ConflictSeverity)
	}
	if !almostEqual(res.LeadScore, res.Trace.ScoreBreakdown.FinalScore, 1e-12) {
		t.Errorf("LeadScore %g differs from breakdown final %g", res.LeadScore, res.Trace.ScoreBreakdown.FinalScore)
	}

	ctx.BrightData.Headcount = schema.Int(500)
	res = e.Process(ctx)
	for _, c := range res.Trace.Conflicts.Conflicts {
		if c.Type == conflict.SizeVsPain {
			t.Errorf("headcount 500 triggered size_vs_pain")
		}
	}
}

func TestProcess_ConflictReducesScore(t *testing.T) {
	e := newEngine(t, nil)
	clean := e.Process(richContext())

	ctx := richContext()
	ctx.BrightData.Headcount = schema.Int(20)
	ctx.BrightData.OpenRoles = schema.Int(10)
	ctx.Pain.PrimaryPain = "scale"
	conflicted := e.Process(ctx)

	// headcount carries no weight and stress stays saturated, so only the
	// 15 conflict points differ.
	want := clean.LeadScore - 15
	if !almostEqual(conflicted.LeadScore, want, 1e-6) {
		t.Errorf("LeadScore = %g, want %g", conflicted.LeadScore, want)
	}
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	in := schema.RawContext{
		LeadName: "Immutable",
		Pain:     &schema.PainProfilerOutput{PrimaryPain: "x"},
	}
	snapshot := in.Clone()
	newEngine(t, nil).Process(in)
	if diff := cmp.Diff(snapshot, in); diff != "" {
		t.Errorf("Process mutated its input (-before +after):\n%s", diff)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	ignoreTiming := cmp.Options{
		cmpopts.IgnoreFields(provenance.Entry{}, "Timestamp"),
		cmpopts.IgnoreFields(Metrics{}, "ProcessingTimeMs"),
	}
	inputs := []schema.RawContext{richContext(), {LeadName: "Empty"}}
	for _, in := range inputs {
		first := mustNew(t).Process(in)
		second := mustNew(t).Process(in)
		if diff := cmp.Diff(first, second, ignoreTiming); diff != "" {
			t.Errorf("%s: results differ (-first +second):\n%s", in.LeadName, diff)
		}
	}
}

// mustNew builds an Engine with the real clock, as production does.
func mustNew(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestProcess_LineageScopedPerCall(t *testing.T) {
	e := newEngine(t, nil)
	first := e.Process(richContext())
	second := e.Process(richContext())

	if len(first.Trace.Lineage) != len(second.Trace.Lineage) {
		t.Fatalf("lineage grew across calls: %d then %d", len(first.Trace.Lineage), len(second.Trace.Lineage))
	}
	l := first.Trace.Lineage
	if l[0].Stage != provenance.StageAgentOutput {
		t.Errorf("first entry stage = %q, want agent_output", l[0].Stage)
	}
	if last := l[len(l)-1]; last.Stage != provenance.StageFinalScore || last.FinalScore.Tier != first.PriorityTier {
		t.Errorf("last entry = %+v, want final_score with tier %s", last, first.PriorityTier)
	}

	var agents, normalizations, weightings int
	for _, entry := range l {
		switch entry.Stage {
		case provenance.StageAgentOutput:
			agents++
			if entry.AgentOutput.Agent == schema.AgentPain && entry.AgentOutput.Version != "2.0.0" {
				t.Errorf("pain version = %q, want 2.0.0", entry.AgentOutput.Version)
			}
		case provenance.StageNormalization:
			normalizations++
		case provenance.StageWeighting:
			weightings++
		}
	}
	if agents != 5 {
		t.Errorf("agent_output entries = %d, want 5", agents)
	}
	if normalizations != 9 {
		t.Errorf("normalization entries = %d, want 9", normalizations)
	}
	if weightings != 8 {
		t.Errorf("weighting entries = %d, want 8", weightings)
	}
}

func TestProcess_AgentOutputRecordedBeforeFallback(t *testing.T) {
	res := newEngine(t, nil).Process(schema.RawContext{
		Pain: &schema.PainProfilerOutput{PrimaryPain: "only primary"},
	})
	var found bool
	for _, entry := range res.Trace.Lineage {
		if entry.Stage != provenance.StageAgentOutput {
			continue
		}
		if entry.AgentOutput.Agent != schema.AgentPain {
			t.Errorf("unexpected agent_output for %q", entry.AgentOutput.Agent)
			continue
		}
		found = true
		pain, ok := entry.AgentOutput.Data.(schema.PainProfilerOutput)
		if !ok {
			t.Fatalf("Data is %T, want schema.PainProfilerOutput", entry.AgentOutput.Data)
		}
		if len(pain.Candidates) != 0 || pain.PrimaryPain != "only primary" {
			t.Errorf("recorded pain = %+v, want original output", pain)
		}
	}
	if !found {
		t.Error("pain agent_output not recorded")
	}
}

func TestProcess_Bounds(t *testing.T) {
	e := newEngine(t, nil)
	tests := []struct {
		name string
		in   schema.RawContext
	}{
		{"zero value", schema.RawContext{}},
		{"negative headcount", schema.RawContext{BrightData: &schema.BrightDataOutput{Headcount: schema.Int(-40), OpenRoles: schema.Int(-3)}}},
		{"zero headcount", schema.RawContext{BrightData: &schema.BrightDataOutput{Headcount: schema.Int(0), OpenRoles: schema.Int(5)}}},
		{"open roles without headcount", schema.RawContext{BrightData: &schema.BrightDataOutput{OpenRoles: schema.Int(5)}}},
		{"huge values", schema.RawContext{BrightData: &schema.BrightDataOutput{Headcount: schema.Int(1 << 30), OpenRoles: schema.Int(1 << 30)}}},
		{"NaN personalization", schema.RawContext{Email: &schema.EmailWriterOutput{PersonalizationDepth: schema.Float(math.NaN())}}},
		{"out of range personalization", schema.RawContext{Email: &schema.EmailWriterOutput{PersonalizationDepth: schema.Float(7)}}},
		{"unknown tone", schema.RawContext{Email: &schema.EmailWriterOutput{Tone: "shouty"}}},
		{"rich", richContext()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Process(tc.in)
			if res.LeadScore < 0 || res.LeadScore > 100 {
				t.Errorf("LeadScore = %g outside [0,100]", res.LeadScore)
			}
			if res.AvgConfidence < 0 || res.AvgConfidence > 1 {
				t.Errorf("AvgConfidence = %g outside [0,1]", res.AvgConfidence)
			}
			for name, v := range res.Trace.NormalizedSignals {
				if v < 0 || v > 1 || math.IsNaN(v) {
					t.Errorf("signal %s = %g outside [0,1]", name, v)
				}
			}
			if res.PriorityTier == "" || res.ExplanationSummary == "" || res.Trace.TierJustification == "" {
				t.Errorf("incomplete result: %+v", res)
			}
			if res.Trace.FallbacksApplied == nil || res.Trace.Conflicts.Conflicts == nil {
				t.Error("trace lists must be empty, not nil")
			}
		})
	}
}

func TestProcess_EmailFallbackOptIn(t *testing.T) {
	ctx := richContext()
	ctx.Email = nil

	off := newEngine(t, nil).Process(ctx)
	if off.Trace.Metrics.FallbackCount != 0 {
		t.Fatalf("email fallback applied while disabled: %+v", off.Trace.FallbacksApplied)
	}
	if off.Trace.NormalizedSignals[SignalPersonalizationDepth] != 0 {
		t.Errorf("personalization_depth = %g, want 0", off.Trace.NormalizedSignals[SignalPersonalizationDepth])
	}

	cfg := config.Default()
	cfg.Fallbacks.Email.Enabled = true
	on := newEngine(t, cfg).Process(ctx)
	want := []Fallback{{Agent: schema.AgentEmail, Reason: ReasonAgentFailed, Penalty: 0.10}}
	if diff := cmp.Diff(want, on.Trace.FallbacksApplied); diff != "" {
		t.Errorf("FallbacksApplied mismatch (-want +got):\n%s", diff)
	}
	if got := on.Trace.NormalizedSignals[SignalPersonalizationDepth]; !almostEqual(got, 0.3, 1e-12) {
		t.Errorf("personalization_depth = %g, want 0.3", got)
	}
	if got := on.Trace.NormalizedSignals[SignalEmailQuality]; got != 0.7 {
		t.Errorf("email_quality = %g, want 0.7 (professional)", got)
	}
}

func TestProcess_PersonalizationZeroIsMeasured(t *testing.T) {
	ctx := richContext()
	ctx.Email.PersonalizationDepth = schema.Float(0)
	res := newEngine(t, nil).Process(ctx)
	if got := res.Trace.NormalizedSignals[SignalPersonalizationDepth]; got != 0 {
		t.Errorf("personalization_depth = %g, want 0", got)
	}

	ctx.Email.PersonalizationDepth = nil
	res = newEngine(t, nil).Process(ctx)
	if got := res.Trace.NormalizedSignals[SignalPersonalizationDepth]; got != 0.5 {
		t.Errorf("personalization_depth = %g, want placeholder 0.5", got)
	}
}

func TestProcess_PersonalizationAtThresholdCountsMissing(t *testing.T) {
	ctx := richContext()
	ctx.Email.PersonalizationDepth = schema.Float(0.1)
	res := newEngine(t, nil).Process(ctx)
	if got := res.Trace.NormalizedSignals[SignalPersonalizationDepth]; got != 0.1 {
		t.Fatalf("personalization_depth = %g, want 0.1", got)
	}
	if res.Trace.Metrics.MissingSignals != 2 {
		t.Errorf("MissingSignals = %d, want 2 (headcount, personalization_depth)", res.Trace.Metrics.MissingSignals)
	}
}

func TestProcess_NonFiniteInputStillEncodes(t *testing.T) {
	for _, depth := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		ctx := richContext()
		ctx.Email.PersonalizationDepth = schema.Float(depth)
		res := newEngine(t, nil).Process(ctx)

		if got := res.Trace.NormalizedSignals[SignalPersonalizationDepth]; got != 0 {
			t.Errorf("depth %g: personalization_depth = %g, want 0", depth, got)
		}
		data, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("depth %g: json.Marshal(result): %v", depth, err)
		}
		var decoded Result
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("depth %g: json.Unmarshal: %v", depth, err)
		}
		if decoded.LeadScore != res.LeadScore || decoded.PriorityTier != res.PriorityTier {
			t.Errorf("depth %g: decoded %g/%s, want %g/%s", depth, decoded.LeadScore, decoded.PriorityTier, res.LeadScore, res.PriorityTier)
		}
	}
}

func TestProcess_ProcessingTime(t *testing.T) {
	n := 0
	clock := func() time.Time {
		n++
		return baseTime.Add(time.Duration(n) * time.Millisecond)
	}
	res := newEngine(t, nil, WithClock(clock)).Process(richContext())
	if res.Trace.Metrics.ProcessingTimeMs <= 0 {
		t.Errorf("ProcessingTimeMs = %g, want > 0", res.Trace.Metrics.ProcessingTimeMs)
	}
}
