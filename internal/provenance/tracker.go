// Package provenance records the lineage of one scoring run:
// collaborator output → normalization → weighting → penalty → final score.
//
// A Tracker is append-only and scoped to a single lead. It is not safe for
// concurrent use; the engine builds a fresh one per Process call.
package provenance

import "time"

// Stage tags the kind of transformation an Entry records.
type Stage string

const (
	StageAgentOutput   Stage = "agent_output"
	StageNormalization Stage = "normalization"
	StageWeighting     Stage = "weighting"
	StagePenalty       Stage = "penalty"
	StageFinalScore    Stage = "final_score"
)

// Entry is one lineage record. Exactly one payload pointer is set,
// matching Stage.
type Entry struct {
	Stage     Stage     `json:"stage" yaml:"stage"`
	Signal    string    `json:"signal,omitempty" yaml:"signal,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	AgentOutput   *AgentOutput   `json:"agent_output,omitempty" yaml:"agent_output,omitempty"`
	Normalization *Normalization `json:"normalization,omitempty" yaml:"normalization,omitempty"`
	Weighting     *Weighting     `json:"weighting,omitempty" yaml:"weighting,omitempty"`
	Penalty       *Penalty       `json:"penalty,omitempty" yaml:"penalty,omitempty"`
	FinalScore    *FinalScore    `json:"final_score,omitempty" yaml:"final_score,omitempty"`
}

// AgentOutput is a collaborator's output as received, before fallbacks.
type AgentOutput struct {
	Agent   string `json:"agent" yaml:"agent"`
	Version string `json:"version" yaml:"version"`
	Data    any    `json:"data" yaml:"data"`
}

// Normalization records raw → [0,1].
type Normalization struct {
	RawValue        any     `json:"raw_value" yaml:"raw_value"`
	NormalizedValue float64 `json:"normalized_value" yaml:"normalized_value"`
}

// Weighting records normalized × weight.
type Weighting struct {
	NormalizedValue float64 `json:"normalized_value" yaml:"normalized_value"`
	Weight          float64 `json:"weight" yaml:"weight"`
	WeightedValue   float64 `json:"weighted_value" yaml:"weighted_value"`
}

// Penalty records a score deduction. Values are in score points.
type Penalty struct {
	OriginalValue float64 `json:"original_value" yaml:"original_value"`
	Penalty       float64 `json:"penalty" yaml:"penalty"`
	AdjustedValue float64 `json:"adjusted_value" yaml:"adjusted_value"`
	Reason        string  `json:"reason" yaml:"reason"`
}

// FinalScore records the outcome of the run.
type FinalScore struct {
	Score      float64 `json:"score" yaml:"score"`
	Tier       string  `json:"tier" yaml:"tier"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// DefaultAgentVersion is recorded when the caller supplies no version.
const DefaultAgentVersion = "1.0.0"

// Tracker accumulates the lineage of one scoring run.
type Tracker struct {
	entries []Entry
	now     func() time.Time
}

// NewTracker returns an empty Tracker. now may be nil, in which case
// time.Now is used.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// RecordAgentOutput appends a collaborator's raw output.
func (t *Tracker) RecordAgentOutput(agent string, data any, version string) {
	if version == "" {
		version = DefaultAgentVersion
	}
	t.append(Entry{
		Stage:       StageAgentOutput,
		AgentOutput: &AgentOutput{Agent: agent, Version: version, Data: data},
	})
}

// RecordNormalization appends a raw → normalized transformation.
func (t *Tracker) RecordNormalization(signal string, raw any, normalized float64) {
	t.append(Entry{
		Stage:         StageNormalization,
		Signal:        signal,
		Normalization: &Normalization{RawValue: raw, NormalizedValue: normalized},
	})
}

// RecordWeighting appends a normalized × weight transformation.
func (t *Tracker) RecordWeighting(signal string, normalized, weight, weighted float64) {
	t.append(Entry{
		Stage:  StageWeighting,
		Signal: signal,
		Weighting: &Weighting{
			NormalizedValue: normalized,
			Weight:          weight,
			WeightedValue:   weighted,
		},
	})
}

// RecordPenalty appends a deduction applied on behalf of signal.
func (t *Tracker) RecordPenalty(signal string, original, penalty, adjusted float64, reason string) {
	t.append(Entry{
		Stage:  StagePenalty,
		Signal: signal,
		Penalty: &Penalty{
			OriginalValue: original,
			Penalty:       penalty,
			AdjustedValue: adjusted,
			Reason:        reason,
		},
	})
}

// RecordFinalScore appends the run's outcome.
func (t *Tracker) RecordFinalScore(score float64, tier string, confidence float64) {
	t.append(Entry{
		Stage:      StageFinalScore,
		FinalScore: &FinalScore{Score: score, Tier: tier, Confidence: confidence},
	})
}

// Len returns the number of recorded entries.
func (t *Tracker) Len() int { return len(t.entries) }

// Lineage returns a copy of every entry in recording order.
// Mutating the copy does not affect the tracker.
func (t *Tracker) Lineage() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.clone()
	}
	return out
}

// DerivationChain returns the entries recorded for one signal, in order.
func (t *Tracker) DerivationChain(signal string) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.Signal == signal {
			out = append(out, e.clone())
		}
	}
	return out
}

func (t *Tracker) append(e Entry) {
	e.Timestamp = t.now()
	t.entries = append(t.entries, e)
}

// clone copies the payload structs so callers cannot reach tracker state.
// AgentOutput.Data and Normalization.RawValue are shared; the engine only
// records values it owns.
func (e Entry) clone() Entry {
	if e.AgentOutput != nil {
		v := *e.AgentOutput
		e.AgentOutput = &v
	}
	if e.Normalization != nil {
		v := *e.Normalization
		e.Normalization = &v
	}
	if e.Weighting != nil {
		v := *e.Weighting
		e.Weighting = &v
	}
	if e.Penalty != nil {
		v := *e.Penalty
		e.Penalty = &v
	}
	if e.FinalScore != nil {
		v := *e.FinalScore
		e.FinalScore = &v
	}
	return e
}
