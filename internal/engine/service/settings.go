package service

import (
	"context"
	"errors"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/store"
)

// SettingsService resolves per-subject security policy. Settings are
// resolved once at the call boundary and passed down explicitly.
type SettingsService struct {
	Store store.Store

	Now func() time.Time
}

func (s *SettingsService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Resolve returns the subject's stored settings, falling back to the
// engine defaults when no row exists. The fallback is not persisted;
// defaults changing in a release apply to unconfigured subjects
// immediately.
func (s *SettingsService) Resolve(ctx context.Context, subject domain.Subject) (domain.SecuritySettings, error) {
	settings, err := s.Store.Settings().Get(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultSecuritySettings(subject), nil
	}
	if err != nil {
		return domain.SecuritySettings{}, storageErr("load security settings", err)
	}
	return settings, nil
}

// Update stores the subject's settings, clamping out-of-range values
// to the defaults rather than rejecting the write.
func (s *SettingsService) Update(ctx context.Context, settings domain.SecuritySettings) (domain.SecuritySettings, error) {
	if err := settings.Subject.Validate(); err != nil {
		return domain.SecuritySettings{}, err
	}

	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = domain.DefaultMaxAttempts
	}
	if settings.AttemptWindow <= 0 {
		settings.AttemptWindow = domain.DefaultAttemptWindow
	}
	if settings.DeviceTrustTTL <= 0 {
		settings.DeviceTrustTTL = domain.DefaultDeviceTrustDays * 24 * time.Hour
	}
	if settings.SessionTimeout <= 0 {
		settings.SessionTimeout = domain.DefaultSessionTimeoutMinutes * time.Minute
	}

	now := s.now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	if err := s.Store.Settings().Upsert(ctx, settings); err != nil {
		return domain.SecuritySettings{}, storageErr("store security settings", err)
	}
	return settings, nil
}
