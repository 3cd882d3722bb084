// Package normalize maps raw collaborator values onto [0, 1].
//
// Numeric values are clipped to the signal's configured bounds and rescaled.
// Absent or unconvertible numeric values map to 0. Categorical values map
// through a weight table; an absent or unknown category maps to the neutral
// 0.5, because "never classified" is not the same as "measured as zero".
//
// Every call is recorded in the provenance tracker.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/provenance"
)

// Neutral is the value of an absent or unrecognised category.
const Neutral = 0.5

// Signals maps a signal name to its normalized value in [0, 1].
type Signals map[string]float64

// Get returns the value for name, or 0 when it is absent.
func (s Signals) Get(name string) float64 {
	return s[name]
}

// Names returns the signal names in sorted order.
func (s Signals) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalizer applies per-signal bounds and records each result.
type Normalizer struct {
	bounds  map[string]config.Bounds
	tracker *provenance.Tracker
}

// New returns a Normalizer over bounds. Signals without bounds use [0, 1].
func New(bounds map[string]config.Bounds, tracker *provenance.Tracker) *Normalizer {
	return &Normalizer{bounds: bounds, tracker: tracker}
}

// Normalize clips raw to the bounds of name and rescales it to [0, 1].
// raw may be any integer, float, bool, numeric string or pointer to one.
func (n *Normalizer) Normalize(name string, raw any) float64 {
	v, ok := toFloat(raw)
	out := 0.0
	if ok {
		out = n.scale(name, v)
	}
	n.record(name, encodable(deref(raw)), out)
	return out
}

// NormalizeRatio normalizes num/den. A nil operand or a zero denominator
// yields 0.
func (n *Normalizer) NormalizeRatio(name string, num, den any) float64 {
	raw := fmt.Sprintf("%v/%v", deref(num), deref(den))
	nv, okN := toFloat(num)
	dv, okD := toFloat(den)
	if !okN || !okD || dv == 0 {
		n.record(name, raw, 0)
		return 0
	}
	out := n.scale(name, nv/dv)
	n.record(name, raw, out)
	return out
}

// NormalizeCategorical looks raw up in weights, ignoring case. An empty or
// unknown category yields Neutral.
func (n *Normalizer) NormalizeCategorical(name, raw string, weights map[string]float64) float64 {
	out := Neutral
	if raw != "" {
		if w, ok := lookupFold(weights, raw); ok {
			out = clamp01(w)
		}
	}
	var recorded any
	if raw != "" {
		recorded = raw
	}
	n.record(name, recorded, out)
	return out
}

func (n *Normalizer) scale(name string, v float64) float64 {
	b, ok := n.bounds[name]
	if !ok {
		b = config.Bounds{Min: 0, Max: 1}
	}
	if b.Min == b.Max {
		return Neutral
	}
	if v < b.Min {
		v = b.Min
	}
	if v > b.Max {
		v = b.Max
	}
	return clamp01((v - b.Min) / (b.Max - b.Min))
}

func (n *Normalizer) record(name string, raw any, out float64) {
	if n.tracker != nil {
		n.tracker.RecordNormalization(name, raw, out)
	}
}

func lookupFold(weights map[string]float64, key string) (float64, bool) {
	if w, ok := weights[strings.ToLower(key)]; ok {
		return w, true
	}
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return weights[k], true
		}
	}
	return 0, false
}

// toFloat converts raw to a finite float64. ok is false for nil, nil
// pointers, unsupported types, unparseable strings, NaN and Inf.
func toFloat(raw any) (v float64, ok bool) {
	switch x := raw.(type) {
	case nil:
		return 0, false
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int8:
		v = float64(x)
	case int16:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint:
		v = float64(x)
	case uint8:
		v = float64(x)
	case uint16:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	case bool:
		if x {
			v = 1
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = f
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case *int:
		if x == nil {
			return 0, false
		}
		v = float64(*x)
	case *int64:
		if x == nil {
			return 0, false
		}
		v = float64(*x)
	case *float64:
		if x == nil {
			return 0, false
		}
		v = *x
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// deref unwraps the supported pointer types so provenance holds values.
func deref(raw any) any {
	switch x := raw.(type) {
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	}
	return raw
}

// encodable replaces a NaN or infinite float with its string form ("NaN",
// "+Inf", "-Inf") so the recorded raw value survives JSON encoding.
func encodable(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
