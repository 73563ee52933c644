package domain

import "time"

// Default security settings applied when a subject has no stored row.
const (
	DefaultDeviceTrustDays       = 30
	DefaultSessionTimeoutMinutes = 120
	DefaultMaxAttempts           = 5
	DefaultAttemptWindow         = 15 * time.Minute
)

// SecuritySettings are per-subject policy knobs. They are resolved once
// at the call boundary and passed down explicitly, never read from
// process-global state, so tests can inject arbitrary values.
type SecuritySettings struct {
	Subject Subject

	TwoFactorRequired     bool
	DeviceTrackingEnabled bool

	// Notification preferences form a closed schema on purpose: the
	// source system kept these as loose JSON, which made validation
	// impossible at the boundary.
	NotifyOnNewDevice  bool
	NotifyOnSuspicious bool

	SessionTimeout  time.Duration
	DeviceTrustTTL  time.Duration // how long a trust grant lasts
	MaxAttempts     int           // verification attempts per window
	AttemptWindow   time.Duration // fixed-window size for the limiter

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultSecuritySettings returns the engine defaults for a subject.
func DefaultSecuritySettings(subject Subject) SecuritySettings {
	return SecuritySettings{
		Subject:               subject,
		DeviceTrackingEnabled: true,
		NotifyOnNewDevice:     true,
		NotifyOnSuspicious:    true,
		SessionTimeout:        DefaultSessionTimeoutMinutes * time.Minute,
		DeviceTrustTTL:        DefaultDeviceTrustDays * 24 * time.Hour,
		MaxAttempts:           DefaultMaxAttempts,
		AttemptWindow:         DefaultAttemptWindow,
	}
}
