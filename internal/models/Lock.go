package models

import "time"

// Lock categories. A lock forces the rewrite consumer to treat the whole
// trait category as immutable regardless of measured thresholds.
const (
	LockStyle     = "style"
	LockTone      = "tone"
	LockStructure = "structure"
)

// Lock is a user-toggleable hard constraint on one trait category. Locks are
// independent of TraitSet versioning.
type Lock struct {
	OwnerID   string    `json:"owner_id"`
	Category  string    `json:"category"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ValidLockCategory(c string) bool {
	switch c {
	case LockStyle, LockTone, LockStructure:
		return true
	}
	return false
}
