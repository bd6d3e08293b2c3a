package events

import "vfd/internal/models"

// Type names an event on the bus. The set is closed: every type has exactly
// one payload shape, so subscribers can switch exhaustively instead of
// probing untyped fields.
type Type string

const (
	TypeSampleCreated      Type = "sample.created"
	TypeSampleUpdated      Type = "sample.updated"
	TypeSampleAnalyzed     Type = "sample.analyzed"
	TypeProfileUpdated     Type = "voiceProfile.updated"
	TypeConstraintsChanged Type = "voiceProfile.constraints.changed"
)

// Payload is implemented by the closed set of event payload structs below.
type Payload interface {
	EventType() Type
}

type SampleCreated struct {
	SampleID      string `json:"sample_id"`
	OwnerID       string `json:"owner_id"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
	Source        string `json:"source"`
	WordCount     int    `json:"word_count"`
}

func (SampleCreated) EventType() Type { return TypeSampleCreated }

type SampleUpdated struct {
	SampleID string `json:"sample_id"`
	OwnerID  string `json:"owner_id"`
}

func (SampleUpdated) EventType() Type { return TypeSampleUpdated }

type SampleAnalyzed struct {
	SampleID string `json:"sample_id"`
	OwnerID  string `json:"owner_id"`
}

func (SampleAnalyzed) EventType() Type { return TypeSampleAnalyzed }

type ProfileUpdated struct {
	FingerprintID string             `json:"fingerprint_id"`
	OwnerID       string             `json:"owner_id"`
	Version       int                `json:"version"`
	Coverage      models.Coverage    `json:"coverage"`
	Scores        map[string]float64 `json:"scores,omitempty"`
	Reason        string             `json:"reason"`
}

func (ProfileUpdated) EventType() Type { return TypeProfileUpdated }

type ConstraintsChanged struct {
	FingerprintID string   `json:"fingerprint_id,omitempty"`
	OwnerID       string   `json:"owner_id"`
	Version       int      `json:"version"`
	ActiveLocks   []string `json:"active_locks"`
	Reason        string   `json:"reason"`
}

func (ConstraintsChanged) EventType() Type { return TypeConstraintsChanged }
