package models

// Coverage confidence tiers.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// Coverage is a derived, non-persisted summary of the current evidence base.
// Consumers use it to judge how much to trust the fingerprint.
type Coverage struct {
	SampleCount int    `json:"sample_count"`
	WordCount   int    `json:"word_count"`
	Tier        string `json:"tier"`
}

// NewCoverage derives the confidence tier from sample and word counts.
// High confidence additionally requires a word-count floor so a dozen
// one-line samples do not masquerade as a rich corpus.
func NewCoverage(sampleCount, wordCount int) Coverage {
	tier := TierLow
	switch {
	case sampleCount >= 12 && wordCount >= 2400:
		tier = TierHigh
	case sampleCount >= 5 && wordCount >= 500:
		tier = TierMedium
	}
	return Coverage{
		SampleCount: sampleCount,
		WordCount:   wordCount,
		Tier:        tier,
	}
}
