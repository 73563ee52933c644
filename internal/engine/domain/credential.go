package domain

import (
	"time"

	"github.com/damku999/trustengine/pkg/idx"
)

// CredentialState is the 2FA enrollment state machine position.
type CredentialState string

const (
	StateDisabled            CredentialState = "disabled"
	StatePendingConfirmation CredentialState = "pending_confirmation"
	StateEnabled             CredentialState = "enabled"
)

// TwoFactorCredential holds a subject's second-factor material.
// Invariant: Secret is non-empty iff State != StateDisabled.
type TwoFactorCredential struct {
	Subject Subject

	Secret           string // base32 TOTP secret, confidential
	RecoveryCodeSalt string // per-subject HMAC key for recovery-code hashes
	State            CredentialState

	// LastVerifiedStep is the TOTP time-step of the most recently
	// accepted code. A code presented for a step at or below this
	// marker is a replay and must be rejected.
	LastVerifiedStep int64

	BackupMethod      string // optional: "sms" or "email"
	BackupDestination string

	EnabledAt   *time.Time // when enrollment was initiated
	ConfirmedAt *time.Time // when the subject proved possession

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enabled reports whether the credential is fully confirmed.
func (c TwoFactorCredential) Enabled() bool {
	return c.State == StateEnabled
}

// RecoveryCode is a stored single-use backup credential. Only the
// salted hash is persisted; the plaintext is shown exactly once.
type RecoveryCode struct {
	ID        idx.ID
	Subject   Subject
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}
