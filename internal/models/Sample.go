package models

import "time"

// Sample source tags. Manual uploads come from the analysis endpoint,
// feedback captures from the continuous-learning loop.
const (
	SourceManual   = "manual"
	SourceFeedback = "feedback"
)

// Sample is one writing excerpt. Immutable once stored; multiple samples
// compose the evidence base of a single fingerprint.
type Sample struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	FingerprintID string    `json:"fingerprint_id,omitempty"`
	Text          string    `json:"text"`
	WordCount     int       `json:"word_count"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}
