package engine

import (
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// Signal names.
const (
	SignalHeadcount            = "headcount"
	SignalStress               = "stress_signals"
	SignalEnrichmentQuality    = "enrichment_quality"
	SignalPainStrength         = "pain_strength"
	SignalAngleRelevance       = "angle_relevance"
	SignalPersonalizationDepth = "personalization_depth"
	SignalEmailQuality         = "email_quality"
	SignalDomainComplexity     = "domain_complexity"
	SignalOrgHealth            = "org_health"
)

// emailToneCategory is the categorical table email tone is looked up in.
const emailToneCategory = "email_tone"

// deriveSignals turns the fallback-filled context into normalized signals.
// Unmeasurable signals take their value from the placeholder table. Every
// value passes through n so it appears in the lineage.
func (e *Engine) deriveSignals(n *normalize.Normalizer, in schema.RawContext) normalize.Signals {
	defaults := e.cfg.Signals
	s := normalize.Signals{}

	if bd := in.BrightData; bd != nil {
		s[SignalHeadcount] = n.Normalize(SignalHeadcount, bd.Headcount)
		s[SignalStress] = n.NormalizeRatio(SignalStress, bd.OpenRoles, bd.Headcount)
	}

	if in.Enrichment != nil {
		s[SignalEnrichmentQuality] = n.Normalize(SignalEnrichmentQuality, defaults.Placeholder(SignalEnrichmentQuality))
	}

	candidates := 0
	if in.Pain != nil {
		candidates = len(in.Pain.Candidates)
	}
	s[SignalPainStrength] = n.NormalizeRatio(SignalPainStrength, candidates, defaults.PainCandidateCap)

	angle := 0.0
	if in.Angle != nil && in.Angle.Selected != "" {
		angle = defaults.Placeholder(SignalAngleRelevance)
	}
	s[SignalAngleRelevance] = n.Normalize(SignalAngleRelevance, angle)

	if em := in.Email; em != nil {
		if em.PersonalizationDepth != nil {
			s[SignalPersonalizationDepth] = n.Normalize(SignalPersonalizationDepth, em.PersonalizationDepth)
		} else {
			s[SignalPersonalizationDepth] = n.Normalize(SignalPersonalizationDepth, defaults.Placeholder(SignalPersonalizationDepth))
		}
		if em.Tone != "" {
			s[SignalEmailQuality] = n.NormalizeCategorical(SignalEmailQuality, em.Tone, defaults.Categories[emailToneCategory])
		} else {
			s[SignalEmailQuality] = n.Normalize(SignalEmailQuality, defaults.Placeholder(SignalEmailQuality))
		}
	} else {
		s[SignalPersonalizationDepth] = n.Normalize(SignalPersonalizationDepth, 0)
		s[SignalEmailQuality] = n.Normalize(SignalEmailQuality, 0)
	}

	s[SignalDomainComplexity] = n.Normalize(SignalDomainComplexity, defaults.Placeholder(SignalDomainComplexity))
	s[SignalOrgHealth] = n.Normalize(SignalOrgHealth, defaults.Placeholder(SignalOrgHealth))

	return s
}
