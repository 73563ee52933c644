// Package store defines the trust engine's data access contract.
// Concrete drivers (sqlite today) implement it. Operations with
// concurrency requirements — recovery-code consumption, rate-limit
// increments, trust upserts, state CAS — are single store calls so the
// driver can make them atomic; callers never read-modify-write.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface, split into sub-repositories
// to keep concerns tidy and testable.
type Store interface {
	Credentials() Credentials
	RecoveryCodes() RecoveryCodes
	Devices() Devices
	Attempts() Attempts
	RateLimits() RateLimits
	Audit() Audit
	Settings() Settings

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn
	// returns nil and rolling back otherwise. Preferred over Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Credentials interface {
	// Get returns the subject's credential, or ErrNotFound when the
	// subject has never touched 2FA.
	Get(ctx context.Context, subject domain.Subject) (domain.TwoFactorCredential, error)

	// UpsertPending installs a fresh secret and salt and moves the
	// credential to pending_confirmation, overwriting any prior
	// disabled or pending state. The row is created on first touch.
	UpsertPending(ctx context.Context, cred domain.TwoFactorCredential) error

	// ConfirmEnabled transitions pending_confirmation -> enabled with a
	// compare-and-swap on state. Returns false when the state had
	// already moved (lost race or wrong state).
	ConfirmEnabled(ctx context.Context, subject domain.Subject, confirmedAt time.Time) (bool, error)

	// Disable clears the secret and returns the credential to
	// disabled, CAS-guarded on the expected current state.
	Disable(ctx context.Context, subject domain.Subject, from domain.CredentialState, at time.Time) (bool, error)

	// MarkVerifiedStep advances the replay marker to step. Returns
	// false when the stored marker is already at or past step, meaning
	// the code for that step was accepted before.
	MarkVerifiedStep(ctx context.Context, subject domain.Subject, step int64) (bool, error)
}

type RecoveryCodes interface {
	// ReplaceAll atomically swaps the subject's code set for hashes.
	// Run inside a transaction when combined with credential updates.
	ReplaceAll(ctx context.Context, subject domain.Subject, codes []domain.RecoveryCode) error

	// Consume marks the code with codeHash used if and only if it is
	// currently unused. Concurrent calls for the same code race to a
	// single true via a conditional single-statement update.
	Consume(ctx context.Context, subject domain.Subject, codeHash string, at time.Time) (bool, error)

	// CountRemaining returns the number of unused codes.
	CountRemaining(ctx context.Context, subject domain.Subject) (int, error)

	// DeleteAll removes the subject's codes (used when 2FA is disabled).
	DeleteAll(ctx context.Context, subject domain.Subject) error
}

type Devices interface {
	// Upsert creates the trust row, or refreshes last_used_at,
	// expires_at and is_active when the device_id already exists. The
	// upsert is atomic on the device_id uniqueness constraint.
	// Returns the stored row and whether it already existed.
	Upsert(ctx context.Context, device domain.TrustedDevice) (domain.TrustedDevice, bool, error)

	// Get returns the subject's row for deviceID, or ErrNotFound.
	Get(ctx context.Context, subject domain.Subject, deviceID string) (domain.TrustedDevice, error)

	// Touch bumps last_used_at on a trusted-device skip.
	Touch(ctx context.Context, subject domain.Subject, deviceID string, at time.Time) error

	// Revoke soft-revokes (is_active=false). Returns false when the
	// subject has no such device.
	Revoke(ctx context.Context, subject domain.Subject, deviceID string, at time.Time) (bool, error)

	// List returns the subject's devices ordered by last_used_at desc.
	List(ctx context.Context, subject domain.Subject) ([]domain.TrustedDevice, error)

	// CountActive returns the number of currently-trusted devices.
	CountActive(ctx context.Context, subject domain.Subject, now time.Time) (int, error)

	// DeleteRevokedBefore prunes rows revoked longer ago than cutoff.
	// Housekeeping only; active or merely-expired rows are kept.
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Attempts interface {
	// Record appends an immutable attempt row. No update or delete is
	// exposed.
	Record(ctx context.Context, attempt domain.VerificationAttempt) error

	// CountFailuresSince returns the subject's failed attempts since
	// the given time; feeds the risk scorer's velocity signal.
	CountFailuresSince(ctx context.Context, subject domain.Subject, since time.Time) (int, error)
}

type RateLimits interface {
	// Hit atomically rolls the window over if it has expired, then
	// increments and returns the post-increment counter state. Two
	// concurrent hits for the same key serialize at the storage layer.
	Hit(ctx context.Context, key domain.RateLimitKey, now time.Time, window time.Duration) (domain.RateLimitWindow, error)

	// DeleteExpiredBefore prunes windows that ended before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Audit interface {
	// Append writes an entry. The ledger is append-only: no update or
	// delete operation exists on this interface.
	Append(ctx context.Context, entry domain.AuditEntry) error

	// ListByActor returns the actor's most recent entries, newest
	// first, up to limit.
	ListByActor(ctx context.Context, actor domain.Subject, limit int) ([]domain.AuditEntry, error)
}

type Settings interface {
	// Get returns the subject's stored settings, or ErrNotFound when
	// defaults apply.
	Get(ctx context.Context, subject domain.Subject) (domain.SecuritySettings, error)

	// Upsert stores the subject's settings.
	Upsert(ctx context.Context, settings domain.SecuritySettings) error
}
