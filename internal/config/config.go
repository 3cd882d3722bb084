package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultProfile          = "v1"
	DefaultVersion          = "1.0.0"
	DefaultMaxLatency       = 20 * time.Millisecond
	DefaultPainCandidateCap = 5
	DefaultTierA            = 80.0
	DefaultTierB            = 55.0
)

// Severity names accepted for conflict rules.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// ErrUnknownProfile is returned when a weight profile name has no definition.
var ErrUnknownProfile = errors.New("unknown weight profile")

// Config is the complete scoring configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// Versions are the independently versioned identifiers stamped on every result.
	Versions Versions `yaml:"versions"`

	// ActiveProfile names the weight profile an engine uses unless overridden.
	ActiveProfile string `yaml:"active_profile"`

	// Profiles holds every named weight profile (v1, v2, experimental, ...).
	Profiles map[string]WeightProfile `yaml:"weight_profiles"`

	// Normalization holds per-signal clipping bounds. Signals without an
	// entry normalize against [0, 1].
	Normalization map[string]Bounds `yaml:"normalization"`

	// Signals is the central table of placeholder values and categorical
	// weight tables consulted during normalization.
	Signals SignalDefaults `yaml:"signals"`

	// Conflicts maps a conflict check name to its description, severity and penalty.
	// Entries merge over the defaults, so a default check is turned off with
	// disabled: true rather than by omitting it.
	Conflicts map[string]ConflictRule `yaml:"conflicts"`

	// Penalties holds the signal-quality penalty magnitudes applied by the scorer.
	Penalties PenaltyRules `yaml:"penalties"`

	// Tiers maps a final score to a priority tier.
	Tiers TierThresholds `yaml:"tiers"`

	// Confidence holds the composition weights of the confidence calculator.
	Confidence ConfidenceWeights `yaml:"confidence"`

	// Fallbacks configures the defaults injected for missing collaborator output.
	Fallbacks FallbackRules `yaml:"fallbacks"`

	// MaxLatency is the per-lead processing budget. Exceeding it is logged,
	// never enforced.
	MaxLatency time.Duration `yaml:"max_latency"`
}

// Versions identifies the engine, scoring model, explanation format and config.
type Versions struct {
	Engine         string `yaml:"engine" json:"cse_engine"`
	Scoring        string `yaml:"scoring" json:"scoring"`
	Explainability string `yaml:"explainability" json:"explainability"`
	Config         string `yaml:"config" json:"config"`
}

// WeightProfile maps a signal name to its contribution weight.
// Weights are expected to sum to 1.0.
type WeightProfile map[string]float64

// Signals returns the profile's signal names in sorted order.
func (p WeightProfile) Signals() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum adds the profile's weights in sorted signal order.
func (p WeightProfile) Sum() float64 {
	var total float64
	for _, name := range p.Signals() {
		total += p[name]
	}
	return total
}

// Bounds are the clipping limits for one signal.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
	// Expected is the typical value, kept for documentation and tuning.
	Expected float64 `yaml:"expected"`
}

// SignalDefaults is the single table of values used when a signal cannot be
// measured directly.
type SignalDefaults struct {
	// Placeholders maps a signal name to the value used when its
	// collaborator ran but produced no measurable value.
	Placeholders map[string]float64 `yaml:"placeholders"`

	// PainCandidateCap is the candidate count that saturates pain_strength.
	PainCandidateCap int `yaml:"pain_candidate_cap"`

	// Categories maps a categorical signal to its case-insensitive weight table.
	Categories map[string]map[string]float64 `yaml:"categories"`
}

// Placeholder returns the placeholder for name, or 0 when none is configured.
func (s SignalDefaults) Placeholder(name string) float64 {
	return s.Placeholders[name]
}

// ConflictRule describes one contradiction check.
type ConflictRule struct {
	Description string  `yaml:"description"`
	Severity    string  `yaml:"severity"`
	Penalty     float64 `yaml:"penalty"`
	Disabled    bool    `yaml:"disabled"`
}

// PenaltyRules are the penalty magnitudes (fractions of 100 points) for weak signals.
type PenaltyRules struct {
	MissingEnrichment float64 `yaml:"missing_enrichment"`
	MissingPain       float64 `yaml:"missing_pain"`
	MissingAngle      float64 `yaml:"missing_angle"`
}

// TierThresholds are the minimum scores for tiers A and B. Anything lower is C.
type TierThresholds struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// ConfidenceWeights are the composition weights of the avg_confidence formula.
type ConfidenceWeights struct {
	Availability    float64 `yaml:"availability"`
	Agreement       float64 `yaml:"agreement"`
	Consistency     float64 `yaml:"consistency"`
	Quality         float64 `yaml:"quality"`
	ConflictPenalty float64 `yaml:"conflict_penalty"`
}

// FallbackRules holds one rule per collaborator that can be substituted.
type FallbackRules struct {
	BrightData BrightDataFallback `yaml:"brightdata"`
	Pain       PainFallback       `yaml:"pain"`
	Angle      AngleFallback      `yaml:"angle"`
	Email      EmailFallback      `yaml:"email"`
}

// BrightDataFallback is the company-facts default.
type BrightDataFallback struct {
	Penalty   float64 `yaml:"penalty"`
	Headcount int     `yaml:"headcount"`
	OpenRoles int     `yaml:"open_roles"`
	Industry  string  `yaml:"industry"`
}

// PainFallback is the pain-profile default.
type PainFallback struct {
	Penalty    float64  `yaml:"penalty"`
	Pain       string   `yaml:"pain"`
	Candidates []string `yaml:"candidates"`
}

// AngleFallback is the messaging-angle default.
type AngleFallback struct {
	Penalty    float64  `yaml:"penalty"`
	Angle      string   `yaml:"angle"`
	Candidates []string `yaml:"candidates"`
}

// EmailFallback is the generated-text default. It is opt-in: email output is
// not one of the critical collaborators.
type EmailFallback struct {
	Enabled         bool    `yaml:"enabled"`
	Penalty         float64 `yaml:"penalty"`
	Personalization float64 `yaml:"personalization"`
	Tone            string  `yaml:"tone"`
}

// Profile returns the named weight profile.
func (c *Config) Profile(name string) (WeightProfile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames returns all profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the YAML config file at path.
// Keys absent from the file keep their Default() values; map entries present
// in the file replace the default entry of the same name.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. Each call returns fresh maps.
func Default() *Config {
	return &Config{
		Versions: Versions{
			Engine:         DefaultVersion,
			Scoring:        DefaultVersion,
			Explainability: DefaultVersion,
			Config:         DefaultVersion,
		},
		ActiveProfile: DefaultProfile,
		Profiles: map[string]WeightProfile{
			"v1": {
				"enrichment_quality":    0.15,
				"stress_signals":        0.20,
				"pain_strength":         0.25,
				"angle_relevance":       0.15,
				"personalization_depth": 0.10,
				"domain_complexity":     0.05,
				"org_health":            0.05,
				"email_quality":         0.05,
			},
			"v2": {
				"enrichment_quality":    0.10,
				"stress_signals":        0.25,
				"pain_strength":         0.30,
				"angle_relevance":       0.15,
				"personalization_depth": 0.10,
				"domain_complexity":     0.05,
				"org_health":            0.03,
				"email_quality":         0.02,
			},
			"experimental": {
				"enrichment_quality":    0.20,
				"stress_signals":        0.15,
				"pain_strength":         0.20,
				"angle_relevance":       0.20,
				"personalization_depth": 0.15,
				"domain_complexity":     0.05,
				"org_health":            0.03,
				"email_quality":         0.02,
			},
		},
		Normalization: map[string]Bounds{
			"headcount":             {Min: 0, Max: 10000, Expected: 100},
			"stress_signals":        {Min: 0, Max: 0.5, Expected: 0.1},
			"pain_strength":         {Min: 0, Max: 1, Expected: 0.5},
			"personalization_depth": {Min: 0, Max: 1, Expected: 0.7},
			"domain_complexity":     {Min: 0, Max: 1, Expected: 0.5},
		},
		Signals: SignalDefaults{
			Placeholders: map[string]float64{
				"enrichment_quality":    0.7,
				"angle_relevance":       0.8,
				"personalization_depth": 0.5,
				"email_quality":         0.7,
				"domain_complexity":     0.5,
				"org_health":            0.7,
			},
			PainCandidateCap: DefaultPainCandidateCap,
			Categories: map[string]map[string]float64{
				"email_tone": {
					"consultative": 0.8,
					"professional": 0.7,
					"friendly":     0.6,
					"casual":       0.5,
				},
			},
		},
		Conflicts: map[string]ConflictRule{
			"size_vs_pain": {
				Description: "Startup size but Enterprise pain",
				Severity:    SeverityModerate,
				Penalty:     0.15,
			},
			"complexity_vs_personalization": {
				Description: "High complexity but weak personalization",
				Severity:    SeverityMinor,
				Penalty:     0.10,
			},
			"churn_vs_org_health": {
				Description: "High churn but healthy org signal",
				Severity:    SeveritySevere,
				Penalty:     0.25,
			},
		},
		Penalties: PenaltyRules{
			MissingEnrichment: 0.10,
			MissingPain:       0.20,
			MissingAngle:      0.15,
		},
		Tiers: TierThresholds{A: DefaultTierA, B: DefaultTierB},
		Confidence: ConfidenceWeights{
			Availability:    0.30,
			Agreement:       0.20,
			Consistency:     0.25,
			Quality:         0.15,
			ConflictPenalty: 0.10,
		},
		Fallbacks: FallbackRules{
			BrightData: BrightDataFallback{
				Penalty:   0.15,
				Headcount: 100,
				OpenRoles: 0,
				Industry:  "Unknown",
			},
			Pain: PainFallback{
				Penalty:    0.20,
				Pain:       "execution friction",
				Candidates: []string{"execution friction"},
			},
			Angle: AngleFallback{
				Penalty:    0.15,
				Angle:      "Execution Velocity",
				Candidates: []string{"Execution Velocity"},
			},
			Email: EmailFallback{
				Enabled:         false,
				Penalty:         0.10,
				Personalization: 0.3,
				Tone:            "professional",
			},
		},
		MaxLatency: DefaultMaxLatency,
	}
}

// Validate checks required fields and structural constraints. Every number
// must be finite; NaN and Inf are rejected wherever they appear.
func Validate(cfg *Config) error {
	if len(cfg.Profiles) == 0 {
		return fmt.Errorf("weight_profiles: at least one profile is required")
	}
	if _, err := cfg.Profile(cfg.ActiveProfile); err != nil {
		return fmt.Errorf("active_profile: %w", err)
	}
	for _, name := range cfg.ProfileNames() {
		for _, signal := range cfg.Profiles[name].Signals() {
			if w := cfg.Profiles[name][signal]; !nonNegative(w) {
				return fmt.Errorf("weight_profiles.%s.%s: weight %g must be finite and not negative", name, signal, w)
			}
		}
	}
	for name, b := range cfg.Normalization {
		if !finite(b.Min) || !finite(b.Max) || !finite(b.Expected) {
			return fmt.Errorf("normalization.%s: bounds must be finite", name)
		}
		if b.Min > b.Max {
			return fmt.Errorf("normalization.%s: min %g exceeds max %g", name, b.Min, b.Max)
		}
	}
	for name, v := range cfg.Signals.Placeholders {
		if !unit(v) {
			return fmt.Errorf("signals.placeholders.%s: %g outside [0,1]", name, v)
		}
	}
	for signal, table := range cfg.Signals.Categories {
		for category, v := range table {
			if !unit(v) {
				return fmt.Errorf("signals.categories.%s.%s: %g outside [0,1]", signal, category, v)
			}
		}
	}
	if cfg.Signals.PainCandidateCap <= 0 {
		return fmt.Errorf("signals.pain_candidate_cap must be positive")
	}
	for name, rule := range cfg.Conflicts {
		if rule.Disabled {
			continue
		}
		switch rule.Severity {
		case SeverityMinor, SeverityModerate, SeveritySevere:
		default:
			return fmt.Errorf("conflicts.%s: unknown severity %q", name, rule.Severity)
		}
		if !nonNegative(rule.Penalty) {
			return fmt.Errorf("conflicts.%s: penalty %g must be finite and not negative", name, rule.Penalty)
		}
	}
	p := cfg.Penalties
	if !nonNegative(p.MissingEnrichment) || !nonNegative(p.MissingPain) || !nonNegative(p.MissingAngle) {
		return fmt.Errorf("penalties: magnitudes must be finite and not negative")
	}
	if !nonNegative(cfg.Tiers.A) || !nonNegative(cfg.Tiers.B) || cfg.Tiers.A < cfg.Tiers.B {
		return fmt.Errorf("tiers: require a >= b >= 0, got a=%g b=%g", cfg.Tiers.A, cfg.Tiers.B)
	}
	w := cfg.Confidence
	for _, v := range []float64{w.Availability, w.Agreement, w.Consistency, w.Quality, w.ConflictPenalty} {
		if !nonNegative(v) {
			return fmt.Errorf("confidence: weight %g must be finite and not negative", v)
		}
	}
	f := cfg.Fallbacks
	for name, penalty := range map[string]float64{
		"brightdata": f.BrightData.Penalty,
		"pain":       f.Pain.Penalty,
		"angle":      f.Angle.Penalty,
		"email":      f.Email.Penalty,
	} {
		if !unit(penalty) {
			return fmt.Errorf("fallbacks.%s.penalty: %g outside [0,1]", name, penalty)
		}
	}
	if !unit(f.Email.Personalization) {
		return fmt.Errorf("fallbacks.email.personalization: %g outside [0,1]", f.Email.Personalization)
	}
	if cfg.MaxLatency < 0 {
		return fmt.Errorf("max_latency must not be negative")
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// nonNegative is false for NaN, which fails every comparison.
func nonNegative(v float64) bool { return v >= 0 && !math.IsInf(v, 1) }

func unit(v float64) bool { return v >= 0 && v <= 1 }
