package services

import (
	"errors"
	"fmt"
)

// Input-validation failures. Rejected synchronously before any state
// transition; the fingerprint status is unchanged.
var (
	ErrEmptySample         = errors.New("sample text is empty")
	ErrMissingOwner        = errors.New("owner id is required")
	ErrInvalidLockCategory = errors.New("lock category must be style, tone or structure")
	ErrInsufficientSamples = errors.New("fewer than the minimum number of samples available")
	ErrNoFingerprint       = errors.New("no fingerprint exists for this owner")
)

// ErrComputationInFlight is returned when a computation cycle is already
// claimed for the fingerprint. Callers must wait for the status to leave
// computing before retrying; there is no mid-flight cancellation.
var ErrComputationInFlight = errors.New("a computation cycle is already in flight")

// ComputeError is the typed failure for an aborted computation cycle. It
// carries the fingerprint id and the last successfully computed version,
// which remains authoritative for reads until a retry succeeds.
type ComputeError struct {
	FingerprintID string
	LastVersion   int
	Err           error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("computation failed for fingerprint %s (last good version %d): %v",
		e.FingerprintID, e.LastVersion, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}
