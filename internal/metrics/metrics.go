// Package metrics aggregates scoring results across a run and exposes them
// in the Prometheus text exposition format.
//
// All exported methods are safe for concurrent use.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/lugypresko/SDR-AGENT/internal/engine"
)

// Metric family names.
const (
	LeadsTotal         = "leadscore_leads_total"
	TierTotal          = "leadscore_tier_total"
	FallbacksTotal     = "leadscore_fallbacks_total"
	ConflictsTotal     = "leadscore_conflicts_total"
	LowQualityTotal    = "leadscore_low_quality_total"
	SignalPresentTotal = "leadscore_signal_present_total"
	ScoreMean          = "leadscore_score_mean"
	ConfidenceMean     = "leadscore_confidence_mean"
	ProcessingMsTotal  = "leadscore_processing_ms_total"
)

// presentThreshold is the normalized value a signal must exceed to count as
// present.
const presentThreshold = 0.1

var tiers = []string{engine.TierA, engine.TierB, engine.TierC}

// Collector accumulates counters from engine results.
type Collector struct {
	mu sync.Mutex

	leads         float64
	lowQuality    float64
	scoreSum      float64
	confidenceSum float64
	processingMs  float64

	tiers     map[string]float64
	fallbacks map[string]float64
	conflicts map[string]float64
	signals   map[string]float64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		tiers:     make(map[string]float64),
		fallbacks: make(map[string]float64),
		conflicts: make(map[string]float64),
		signals:   make(map[string]float64),
	}
}

// Observe adds one result to the totals. A nil result is ignored.
func (c *Collector) Observe(res *engine.Result) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leads++
	c.tiers[res.PriorityTier]++
	c.scoreSum += res.LeadScore
	c.confidenceSum += res.AvgConfidence
	c.processingMs += res.Trace.Metrics.ProcessingTimeMs
	if res.DataQualityFlag == engine.QualityLow {
		c.lowQuality++
	}
	for _, f := range res.Trace.FallbacksApplied {
		c.fallbacks[f.Agent]++
	}
	for _, cf := range res.Trace.Conflicts.Conflicts {
		c.conflicts[cf.Type]++
	}
	for name, v := range res.Trace.NormalizedSignals {
		if v > presentThreshold {
			c.signals[name]++
		}
	}
}

// Families returns a snapshot of all metric families, sorted by name.
// Labelled families with no observations are omitted.
func (c *Collector) Families() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	var scoreMean, confidenceMean float64
	if c.leads > 0 {
		scoreMean = c.scoreSum / c.leads
		confidenceMean = c.confidenceSum / c.leads
	}

	tierCounts := make(map[string]float64, len(tiers))
	for _, t := range tiers {
		tierCounts[t] = c.tiers[t]
	}

	fams := []*dto.MetricFamily{
		scalar(LeadsTotal, "Leads scored.", dto.MetricType_COUNTER, c.leads),
		labelled(TierTotal, "Leads per priority tier.", "tier", tierCounts),
		labelled(FallbacksTotal, "Fallbacks applied per collaborator.", "agent", c.fallbacks),
		labelled(ConflictsTotal, "Conflicts detected per check.", "type", c.conflicts),
		scalar(LowQualityTotal, "Leads flagged LOW data quality.", dto.MetricType_COUNTER, c.lowQuality),
		labelled(SignalPresentTotal, "Leads where the signal was present.", "signal", c.signals),
		scalar(ScoreMean, "Mean lead score.", dto.MetricType_GAUGE, scoreMean),
		scalar(ConfidenceMean, "Mean avg_confidence.", dto.MetricType_GAUGE, confidenceMean),
		scalar(ProcessingMsTotal, "Total processing time in milliseconds.", dto.MetricType_COUNTER, c.processingMs),
	}

	out := fams[:0]
	for _, mf := range fams {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText encodes every family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range c.Families() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func scalar(name, help string, typ dto.MetricType, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   typ.Enum(),
		Metric: []*dto.Metric{sample(typ, v)},
	}
}

// labelled builds a counter family with one series per key, in key order.
func labelled(name, help, label string, values map[string]float64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		m := sample(dto.MetricType_COUNTER, values[k])
		m.Label = []*dto.LabelPair{{Name: ptr(label), Value: ptr(k)}}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

func sample(typ dto.MetricType, v float64) *dto.Metric {
	if typ == dto.MetricType_GAUGE {
		return &dto.Metric{Gauge: &dto.Gauge{Value: ptr(v)}}
	}
	return &dto.Metric{Counter: &dto.Counter{Value: ptr(v)}}
}

func ptr[T any](v T) *T { return &v }
