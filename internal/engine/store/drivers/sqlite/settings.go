package sqlite

import (
	"context"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type settingsRepo struct {
	db dbtx
}

func (r *settingsRepo) Get(ctx context.Context, subject domain.Subject) (domain.SecuritySettings, error) {
	var s domain.SecuritySettings
	var sessionTimeoutMinutes, deviceTrustDays, attemptWindowSeconds int

	err := r.db.QueryRowContext(ctx, `
		SELECT subject_type, subject_id, two_factor_required, device_tracking_enabled,
		       notify_new_device, notify_suspicious,
		       session_timeout_minutes, device_trust_days, max_attempts, attempt_window_seconds,
		       created_at, updated_at
		FROM security_settings
		WHERE subject_type = ? AND subject_id = ?`,
		subject.Type, subject.ID,
	).Scan(
		&s.Subject.Type, &s.Subject.ID, &s.TwoFactorRequired, &s.DeviceTrackingEnabled,
		&s.NotifyOnNewDevice, &s.NotifyOnSuspicious,
		&sessionTimeoutMinutes, &deviceTrustDays, &s.MaxAttempts, &attemptWindowSeconds,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.SecuritySettings{}, mapNotFound(err)
	}

	s.SessionTimeout = time.Duration(sessionTimeoutMinutes) * time.Minute
	s.DeviceTrustTTL = time.Duration(deviceTrustDays) * 24 * time.Hour
	s.AttemptWindow = time.Duration(attemptWindowSeconds) * time.Second
	return s, nil
}

func (r *settingsRepo) Upsert(ctx context.Context, s domain.SecuritySettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_settings (
			subject_type, subject_id, two_factor_required, device_tracking_enabled,
			notify_new_device, notify_suspicious,
			session_timeout_minutes, device_trust_days, max_attempts, attempt_window_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_type, subject_id) DO UPDATE SET
			two_factor_required     = excluded.two_factor_required,
			device_tracking_enabled = excluded.device_tracking_enabled,
			notify_new_device       = excluded.notify_new_device,
			notify_suspicious       = excluded.notify_suspicious,
			session_timeout_minutes = excluded.session_timeout_minutes,
			device_trust_days       = excluded.device_trust_days,
			max_attempts            = excluded.max_attempts,
			attempt_window_seconds  = excluded.attempt_window_seconds,
			updated_at              = excluded.updated_at`,
		s.Subject.Type, s.Subject.ID, s.TwoFactorRequired, s.DeviceTrackingEnabled,
		s.NotifyOnNewDevice, s.NotifyOnSuspicious,
		int(s.SessionTimeout/time.Minute), int(s.DeviceTrustTTL/(24*time.Hour)),
		s.MaxAttempts, int(s.AttemptWindow/time.Second),
		s.CreatedAt, s.UpdatedAt,
	)
	return err
}
