package domain

import (
	"time"

	"github.com/damku999/trustengine/pkg/idx"
)

// TrustedDevice is a client fingerprint granted a time-boxed exemption
// from second-factor challenges. Rows are soft-revoked, never deleted,
// so the audit trail stays complete.
type TrustedDevice struct {
	ID      idx.ID
	Subject Subject

	DeviceID   string // stable fingerprint, unique across all subjects
	DeviceName string // user-supplied label ("Office laptop")
	DeviceType string // mobile/tablet/desktop/bot/unknown
	Browser    string
	Platform   string

	IPAddress string
	UserAgent string

	LastUsedAt time.Time
	TrustedAt  time.Time
	ExpiresAt  *time.Time // nil = trust does not expire
	IsActive   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrustedAtTime reports whether the device is currently trusted:
// active and not past its expiry.
func (d TrustedDevice) TrustedAtTime(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	return d.ExpiresAt == nil || d.ExpiresAt.After(now)
}
