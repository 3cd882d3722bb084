package engine

import (
	"log/slog"
	"slices"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// Fallback reasons.
const (
	ReasonAgentFailed  = "Agent failed or returned None"
	ReasonNoPain       = "No pain candidates identified"
	ReasonNoAngle      = "No angle selected"
	ReasonNoEmailDepth = "No personalization measured"
)

// applyFallbacks replaces absent or empty critical sub-outputs of in with the
// configured defaults. in must already be a private copy.
func applyFallbacks(in *schema.RawContext, rules config.FallbackRules) []Fallback {
	applied := []Fallback{}
	add := func(agent, reason string, penalty float64) {
		applied = append(applied, Fallback{Agent: agent, Reason: reason, Penalty: penalty})
		slog.Debug("engine: fallback applied",
			"lead", in.LeadName,
			"agent", agent,
			"reason", reason,
			"penalty", penalty,
		)
	}

	if in.BrightData == nil || in.BrightData.IsEmpty() {
		r := rules.BrightData
		add(schema.AgentBrightData, ReasonAgentFailed, r.Penalty)
		in.BrightData = &schema.BrightDataOutput{
			Headcount: schema.Int(r.Headcount),
			OpenRoles: schema.Int(r.OpenRoles),
			Industry:  r.Industry,
		}
	}

	if in.Pain == nil || len(in.Pain.Candidates) == 0 {
		r := rules.Pain
		add(schema.AgentPain, ReasonNoPain, r.Penalty)
		in.Pain = &schema.PainProfilerOutput{
			Candidates:  slices.Clone(r.Candidates),
			PrimaryPain: r.Pain,
		}
	}

	if in.Angle == nil || in.Angle.Selected == "" {
		r := rules.Angle
		add(schema.AgentAngle, ReasonNoAngle, r.Penalty)
		in.Angle = &schema.AngleRouterOutput{
			Candidates: slices.Clone(r.Candidates),
			Rejected:   []string{},
			Selected:   r.Angle,
		}
	}

	if r := rules.Email; r.Enabled && (in.Email == nil || in.Email.PersonalizationDepth == nil) {
		reason := ReasonNoEmailDepth
		if in.Email == nil {
			reason = ReasonAgentFailed
		}
		add(schema.AgentEmail, reason, r.Penalty)
		email := schema.EmailWriterOutput{}
		if in.Email != nil {
			email = *in.Email
		}
		email.PersonalizationDepth = schema.Float(r.Personalization)
		if email.Tone == "" {
			email.Tone = r.Tone
		}
		in.Email = &email
	}

	return applied
}
