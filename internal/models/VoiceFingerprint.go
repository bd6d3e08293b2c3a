package models

import "time"

// Fingerprint lifecycle statuses. Transitions are monotonic forward except
// computing→failed and failed→computing (retry); active is never revisited
// except through a fresh computing cycle producing a new version.
const (
	StatusPending   = "pending"
	StatusComputing = "computing"
	StatusActive    = "active"
	StatusFailed    = "failed"
)

// VoiceFingerprint is the versioned artifact summarizing a writer's measurable
// style. Version counts successful computations only; a failed attempt never
// consumes a version number. At most one fingerprint is active per owner.
type VoiceFingerprint struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputableStatuses are the statuses from which a computation cycle may be
// claimed. Computing is deliberately absent: the claim is the mutual-exclusion
// point for the single-in-flight invariant.
func ComputableStatuses() []string {
	return []string{StatusPending, StatusActive, StatusFailed}
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusComputing, StatusActive, StatusFailed:
		return true
	}
	return false
}
