// Package conflict detects contradictions between normalized signals and the
// raw context of a lead.
//
// Checks run in a fixed order. Every triggered check adds its penalty to the
// report total. The report severity is the severity of the first triggered
// check, not the worst one.
package conflict

import (
	"strings"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/normalize"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// Check names, which are also the config keys of their rules.
const (
	SizeVsPain                  = "size_vs_pain"
	ComplexityVsPersonalization = "complexity_vs_personalization"
	ChurnVsOrgHealth            = "churn_vs_org_health"
)

// SeverityNone is the report severity when nothing triggered.
const SeverityNone = "none"

// Thresholds used by the checks.
const (
	smallCompanyHeadcount = 50
	highComplexity        = 0.7
	weakPersonalization   = 0.4
	highChurn             = 0.7
	healthyOrg            = 0.7
)

// enterprisePainTerms mark a pain as enterprise-scale.
var enterprisePainTerms = []string{"enterprise", "scale"}

// Order is the evaluation order of the checks.
var Order = []string{SizeVsPain, ComplexityVsPersonalization, ChurnVsOrgHealth}

// Conflict is one triggered check.
type Conflict struct {
	Type        string  `json:"type" yaml:"type"`
	Description string  `json:"description" yaml:"description"`
	Penalty     float64 `json:"penalty" yaml:"penalty"`
	Severity    string  `json:"severity" yaml:"severity"`
}

// Report is the outcome of all checks for one lead.
type Report struct {
	Conflicts    []Conflict `json:"conflicts" yaml:"conflicts"`
	TotalPenalty float64    `json:"total_penalty" yaml:"total_penalty"`
	Severity     string     `json:"severity" yaml:"severity"`
	Count        int        `json:"count" yaml:"count"`
}

// Resolver runs the configured checks. A check with no rule in the config,
// or whose rule is marked disabled, never triggers.
type Resolver struct {
	rules    map[string]config.ConflictRule
	defaults config.SignalDefaults
}

// NewResolver returns a Resolver. defaults supplies the placeholder used when
// a signal the checks read is missing.
func NewResolver(rules map[string]config.ConflictRule, defaults config.SignalDefaults) *Resolver {
	return &Resolver{rules: rules, defaults: defaults}
}

// ResolveAll runs every check in Order.
func (r *Resolver) ResolveAll(signals normalize.Signals, raw schema.RawContext) Report {
	rep := Report{Conflicts: []Conflict{}, Severity: SeverityNone}
	for _, name := range Order {
		var (
			c         Conflict
			triggered bool
		)
		switch name {
		case SizeVsPain:
			c, triggered = r.CheckSizeVsPain(raw)
		case ComplexityVsPersonalization:
			c, triggered = r.CheckComplexityVsPersonalization(signals)
		case ChurnVsOrgHealth:
			c, triggered = r.CheckChurnVsOrgHealth(signals)
		}
		if !triggered {
			continue
		}
		rep.Conflicts = append(rep.Conflicts, c)
		rep.TotalPenalty += c.Penalty
		if rep.Severity == SeverityNone {
			rep.Severity = c.Severity
		}
	}
	rep.Count = len(rep.Conflicts)
	return rep
}

// CheckSizeVsPain triggers when a small company reports an enterprise-scale
// pain. An unknown headcount never triggers.
func (r *Resolver) CheckSizeVsPain(raw schema.RawContext) (Conflict, bool) {
	rule, ok := r.rule(SizeVsPain)
	if !ok || raw.BrightData == nil || raw.BrightData.Headcount == nil || raw.Pain == nil {
		return Conflict{}, false
	}
	if *raw.BrightData.Headcount >= smallCompanyHeadcount {
		return Conflict{}, false
	}
	pain := strings.ToLower(raw.Pain.PrimaryPain)
	for _, term := range enterprisePainTerms {
		if strings.Contains(pain, term) {
			return newConflict(SizeVsPain, rule), true
		}
	}
	return Conflict{}, false
}

// CheckComplexityVsPersonalization triggers when a complex domain receives
// weakly personalized outreach.
func (r *Resolver) CheckComplexityVsPersonalization(signals normalize.Signals) (Conflict, bool) {
	rule, ok := r.rule(ComplexityVsPersonalization)
	if !ok {
		return Conflict{}, false
	}
	complexity := r.signal(signals, "domain_complexity")
	personalization := r.signal(signals, "personalization_depth")
	if complexity > highComplexity && personalization < weakPersonalization {
		return newConflict(ComplexityVsPersonalization, rule), true
	}
	return Conflict{}, false
}

// CheckChurnVsOrgHealth triggers when heavy hiring churn coexists with a
// healthy organisation signal.
func (r *Resolver) CheckChurnVsOrgHealth(signals normalize.Signals) (Conflict, bool) {
	rule, ok := r.rule(ChurnVsOrgHealth)
	if !ok {
		return Conflict{}, false
	}
	if r.signal(signals, "stress_signals") > highChurn && r.signal(signals, "org_health") > healthyOrg {
		return newConflict(ChurnVsOrgHealth, rule), true
	}
	return Conflict{}, false
}

// rule returns the rule for name, reporting false when the check has no
// rule or the rule is disabled.
func (r *Resolver) rule(name string) (config.ConflictRule, bool) {
	rule, ok := r.rules[name]
	if !ok || rule.Disabled {
		return config.ConflictRule{}, false
	}
	return rule, true
}

func newConflict(name string, rule config.ConflictRule) Conflict {
	return Conflict{
		Type:        name,
		Description: rule.Description,
		Penalty:     rule.Penalty,
		Severity:    rule.Severity,
	}
}

func (r *Resolver) signal(signals normalize.Signals, name string) float64 {
	if v, ok := signals[name]; ok {
		return v
	}
	return r.defaults.Placeholder(name)
}
