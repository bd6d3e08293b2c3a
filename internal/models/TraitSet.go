package models

import "time"

// Threshold is a per-metric acceptable deviation band. A rewrite whose
// measured metric falls outside [Min, Max] is voice-violating.
type Threshold struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (t Threshold) Contains(v float64) bool {
	return v >= t.Min && v <= t.Max
}

// SemanticSignature captures cross-sample thematic consistency. Centroid is
// the mean embedding over processed samples; Consistency is the mean cosine
// similarity of each sample to the centroid. Fallback marks the documented
// default signature used when the understanding service was unavailable.
type SemanticSignature struct {
	Centroid    []float32 `json:"centroid,omitempty"`
	Consistency float64   `json:"consistency"`
	Fallback    bool      `json:"fallback"`
}

// TraitSet is the versioned output of one computation cycle. Owned by exactly
// one fingerprint and one version number; append-only, never rewritten.
// TargetThresholds are derived from StylometricMetrics and SemanticSignature
// of the same version, never mixed across versions.
type TraitSet struct {
	FingerprintID      string               `json:"fingerprint_id"`
	Version            int                  `json:"version"`
	StylometricMetrics map[string]float64   `json:"stylometric_metrics"`
	SemanticSignature  SemanticSignature    `json:"semantic_signature"`
	SignatureTraits    []string             `json:"signature_traits"`
	Pitfalls           []string             `json:"pitfalls"`
	TargetThresholds   map[string]Threshold `json:"target_thresholds"`
	Summary            string               `json:"summary"`
	SkippedSamples     []string             `json:"skipped_samples,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}
