package service

import (
	"context"
	"errors"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/store"
	"github.com/damku999/trustengine/pkg/fingerprintx"
	"github.com/damku999/trustengine/pkg/idx"
)

// DeviceService manages time-boxed trust grants keyed by the client
// fingerprint. A trusted, unexpired device skips the second-factor
// challenge; revocation and expiry both drop the exemption.
type DeviceService struct {
	Store store.Store

	Now func() time.Time
}

func (s *DeviceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Trust grants (or refreshes) trust for the presented fingerprint. The
// grant expires after ttl; re-trusting an already-trusted device slides
// the expiry forward rather than erroring. Returns the stored row and
// whether the device was newly trusted.
func (s *DeviceService) Trust(ctx context.Context, subject domain.Subject, attrs fingerprintx.Attributes, deviceName string, ttl time.Duration) (domain.TrustedDevice, bool, error) {
	if err := subject.Validate(); err != nil {
		return domain.TrustedDevice{}, false, err
	}

	now := s.now()
	expires := now.Add(ttl)

	device := domain.TrustedDevice{
		ID:         idx.New(),
		Subject:    subject,
		DeviceID:   fingerprintx.DeviceID(attrs),
		DeviceName: deviceName,
		DeviceType: fingerprintx.DeviceType(attrs.UserAgent),
		Browser:    fingerprintx.BrowserFamily(attrs.UserAgent),
		Platform:   fingerprintx.PlatformFamily(attrs.UserAgent),
		IPAddress:  attrs.IPAddress,
		UserAgent:  attrs.UserAgent,
		LastUsedAt: now,
		TrustedAt:  now,
		ExpiresAt:  &expires,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, existed, err := s.Store.Devices().Upsert(ctx, device)
	if err != nil {
		return domain.TrustedDevice{}, false, storageErr("upsert trusted device", err)
	}
	return stored, !existed, nil
}

// Lookup resolves the presented fingerprint to its trust row and
// reports whether it currently grants a challenge skip. A missing row
// returns trusted=false with a zero device, not an error.
func (s *DeviceService) Lookup(ctx context.Context, subject domain.Subject, attrs fingerprintx.Attributes) (domain.TrustedDevice, bool, error) {
	deviceID := fingerprintx.DeviceID(attrs)

	device, err := s.Store.Devices().Get(ctx, subject, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.TrustedDevice{}, false, nil
	}
	if err != nil {
		return domain.TrustedDevice{}, false, storageErr("look up device", err)
	}
	return device, device.TrustedAtTime(s.now()), nil
}

// MarkUsed bumps last_used_at after a trusted-device skip. Best-effort
// bookkeeping; the caller has already made the skip decision.
func (s *DeviceService) MarkUsed(ctx context.Context, subject domain.Subject, deviceID string) error {
	return s.Store.Devices().Touch(ctx, subject, deviceID, s.now())
}

// Revoke withdraws trust from one device. The row is kept, soft-
// revoked, so the audit trail retains the device history.
func (s *DeviceService) Revoke(ctx context.Context, subject domain.Subject, deviceID string) error {
	ok, err := s.Store.Devices().Revoke(ctx, subject, deviceID, s.now())
	if err != nil {
		return storageErr("revoke device", err)
	}
	if !ok {
		return ErrDeviceNotFound
	}
	return nil
}

// List returns the subject's devices, most recently used first,
// including revoked and expired rows so the subject can review history.
func (s *DeviceService) List(ctx context.Context, subject domain.Subject) ([]domain.TrustedDevice, error) {
	return s.Store.Devices().List(ctx, subject)
}

// CountActive returns the number of currently-trusted devices.
func (s *DeviceService) CountActive(ctx context.Context, subject domain.Subject) (int, error) {
	return s.Store.Devices().CountActive(ctx, subject, s.now())
}
