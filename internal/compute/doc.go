// Package compute turns normalized signals into a lead score and a
// confidence estimate.
//
// score.go applies a named weight profile (signals visited in sorted order,
// so float summation is reproducible), scales the weighted sum to 0–100 and
// deducts signal-quality penalties:
//
//	missing_enrichment  enrichment_quality < 0.3
//	missing_pain        pain_strength      < 0.2
//	missing_angle       angle_relevance    < 0.2
//
// confidence.go computes availability, agreement, consistency and quality
// and combines them with configurable weights. Confidence is independent of
// the score itself.
package compute
