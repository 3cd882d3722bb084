// Package schema defines the raw output contract of each upstream
// collaborator and the per-lead aggregate RawContext.
//
// A nil sub-output means the collaborator failed or was skipped. That is a
// valid state: the engine substitutes configured defaults for it.
package schema

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
)

// Collaborator names used in provenance and fallback records.
const (
	AgentBrightData = "BrightDataEnrichmentAgent"
	AgentEnrichment = "EnrichmentAgent"
	AgentPain       = "PainProfiler"
	AgentAngle      = "AngleRouter"
	AgentEmail      = "EmailWriter"
)

// BrightDataOutput holds company facts from the enrichment scraper.
type BrightDataOutput struct {
	Description      string         `json:"raw_description,omitempty" yaml:"raw_description,omitempty"`
	Headcount        *int           `json:"raw_headcount,omitempty" yaml:"raw_headcount,omitempty"`
	HeadcountHistory []int          `json:"raw_headcount_history,omitempty" yaml:"raw_headcount_history,omitempty"`
	OpenRoles        *int           `json:"raw_open_roles,omitempty" yaml:"raw_open_roles,omitempty"`
	Industry         string         `json:"raw_industry,omitempty" yaml:"raw_industry,omitempty"`
	TechStack        []string       `json:"raw_tech_stack,omitempty" yaml:"raw_tech_stack,omitempty"`
	OrgStructure     map[string]any `json:"raw_org_structure,omitempty" yaml:"raw_org_structure,omitempty"`
}

// IsEmpty reports whether none of the size or industry facts are present.
func (b *BrightDataOutput) IsEmpty() bool {
	return b.Headcount == nil && b.OpenRoles == nil && b.Industry == ""
}

// EnrichmentOutput holds the qualitative company classification.
type EnrichmentOutput struct {
	CompanyCategory string         `json:"raw_company_category,omitempty" yaml:"raw_company_category,omitempty"`
	ProductType     string         `json:"raw_product_type,omitempty" yaml:"raw_product_type,omitempty"`
	BusinessModel   string         `json:"raw_business_model,omitempty" yaml:"raw_business_model,omitempty"`
	RoleSignals     map[string]any `json:"raw_role_signals,omitempty" yaml:"raw_role_signals,omitempty"`
}

// PainProfilerOutput holds candidate pains and the chosen primary pain.
type PainProfilerOutput struct {
	Candidates     []string       `json:"pain_candidates" yaml:"pain_candidates"`
	RawFragments   []string       `json:"raw_fragments,omitempty" yaml:"raw_fragments,omitempty"`
	PatternMatches map[string]any `json:"pattern_matches,omitempty" yaml:"pattern_matches,omitempty"`
	PrimaryPain    string         `json:"primary_pain,omitempty" yaml:"primary_pain,omitempty"`
}

// AngleRouterOutput holds candidate messaging angles and the selection.
type AngleRouterOutput struct {
	Candidates  []string       `json:"candidate_angles" yaml:"candidate_angles"`
	Rejected    []string       `json:"rejected_angles" yaml:"rejected_angles"`
	RawPatterns map[string]any `json:"raw_patterns,omitempty" yaml:"raw_patterns,omitempty"`
	Selected    string         `json:"selected_angle,omitempty" yaml:"selected_angle,omitempty"`
}

// EmailWriterOutput holds metadata about the generated outreach text.
type EmailWriterOutput struct {
	PersonalizationDepth *float64 `json:"personalization_depth,omitempty" yaml:"personalization_depth,omitempty"`
	Tone                 string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Structure            string   `json:"structure,omitempty" yaml:"structure,omitempty"`
	Length               *int     `json:"length,omitempty" yaml:"length,omitempty"`
	Body                 string   `json:"email_body,omitempty" yaml:"email_body,omitempty"`
}

// MarshalJSON encodes a NaN or infinite PersonalizationDepth as a string
// ("NaN", "+Inf") instead of failing, so a malformed upstream value can be
// kept verbatim in the lineage.
func (e EmailWriterOutput) MarshalJSON() ([]byte, error) {
	type plain EmailWriterOutput
	d := e.PersonalizationDepth
	if d == nil || (!math.IsNaN(*d) && !math.IsInf(*d, 0)) {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		PersonalizationDepth string `json:"personalization_depth"`
	}{plain(e), strconv.FormatFloat(*d, 'g', -1, 64)})
}

// RawContext is everything the collaborators produced for one lead.
type RawContext struct {
	LeadName    string `json:"lead_name" yaml:"lead_name"`
	LeadCompany string `json:"lead_company" yaml:"lead_company"`
	LeadTitle   string `json:"lead_title" yaml:"lead_title"`

	BrightData *BrightDataOutput   `json:"brightdata,omitempty" yaml:"brightdata,omitempty"`
	Enrichment *EnrichmentOutput   `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
	Pain       *PainProfilerOutput `json:"pain,omitempty" yaml:"pain,omitempty"`
	Angle      *AngleRouterOutput  `json:"angle,omitempty" yaml:"angle,omitempty"`
	Email      *EmailWriterOutput  `json:"email,omitempty" yaml:"email,omitempty"`

	AgentVersions map[string]string `json:"agent_versions,omitempty" yaml:"agent_versions,omitempty"`
}

// Clone returns a deep copy of c. Nested any-valued maps are copied one
// level deep; their values are treated as immutable.
func (c RawContext) Clone() RawContext {
	out := c
	out.AgentVersions = maps.Clone(c.AgentVersions)
	if c.BrightData != nil {
		b := *c.BrightData
		b.Headcount = clonePtr(b.Headcount)
		b.OpenRoles = clonePtr(b.OpenRoles)
		b.HeadcountHistory = slices.Clone(b.HeadcountHistory)
		b.TechStack = slices.Clone(b.TechStack)
		b.OrgStructure = maps.Clone(b.OrgStructure)
		out.BrightData = &b
	}
	if c.Enrichment != nil {
		e := *c.Enrichment
		e.RoleSignals = maps.Clone(e.RoleSignals)
		out.Enrichment = &e
	}
	if c.Pain != nil {
		p := *c.Pain
		p.Candidates = slices.Clone(p.Candidates)
		p.RawFragments = slices.Clone(p.RawFragments)
		p.PatternMatches = maps.Clone(p.PatternMatches)
		out.Pain = &p
	}
	if c.Angle != nil {
		a := *c.Angle
		a.Candidates = slices.Clone(a.Candidates)
		a.Rejected = slices.Clone(a.Rejected)
		a.RawPatterns = maps.Clone(a.RawPatterns)
		out.Angle = &a
	}
	if c.Email != nil {
		e := *c.Email
		e.PersonalizationDepth = clonePtr(e.PersonalizationDepth)
		e.Length = clonePtr(e.Length)
		out.Email = &e
	}
	return out
}

// Int returns a pointer to v, for building optional fields.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
