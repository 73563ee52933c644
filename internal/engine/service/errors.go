// Package service implements the trust engine's operations on top of
// the store contract: enrollment, verification, device trust, rate
// limiting, risk scoring and the audit ledger.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

var (
	// ErrInvalidCode is returned for every rejected verification —
	// wrong code, replayed code, burnt recovery code, malformed input.
	// Callers must not learn which of those happened.
	ErrInvalidCode = errors.New("invalid verification code")

	ErrDeviceNotFound = errors.New("device not trusted for this subject")

	ErrConfirmationRequired = errors.New("explicit confirmation required")
)

// StorageError marks a fatal store failure. The operation aborted
// before any partial state change; callers should treat it as an
// outage, not as input they can correct.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// InvalidStateError reports an operation attempted from the wrong
// enrollment state, e.g. confirming a credential that is not pending.
type InvalidStateError struct {
	Operation string
	State     domain.CredentialState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: credential state is %q", e.Operation, e.State)
}

// RateLimitedError reports that the subject or address has exhausted
// its fixed-window attempt budget.
type RateLimitedError struct {
	Endpoint string
	ResetAt  time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s until %s", e.Endpoint, e.ResetAt.Format(time.RFC3339))
}
