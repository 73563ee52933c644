package domain

import (
	"time"

	"github.com/damku999/trustengine/pkg/idx"
)

// CodeType identifies which kind of credential a verification attempt
// presented.
type CodeType string

const (
	CodeTypeTOTP     CodeType = "totp"
	CodeTypeRecovery CodeType = "recovery"
	CodeTypeSMS      CodeType = "sms"
)

// VerificationAttempt is an immutable record of one challenge try.
// Rows are written once and never updated.
type VerificationAttempt struct {
	ID      idx.ID
	Subject Subject

	CodeType      CodeType
	IPAddress     string
	UserAgent     string
	Successful    bool
	FailureReason string // empty on success; internal, never shown to the caller

	AttemptedAt time.Time
}
