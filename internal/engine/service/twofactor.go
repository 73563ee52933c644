package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/store"
	"github.com/damku999/trustengine/pkg/cryptox"
	"github.com/damku999/trustengine/pkg/fingerprintx"
	"github.com/damku999/trustengine/pkg/idx"
	"github.com/damku999/trustengine/pkg/otpx"
	"github.com/damku999/trustengine/pkg/qrx"
	"github.com/damku999/trustengine/pkg/slogx"
)

const (
	recoveryCodeCount = 10
	qrImageSize       = 256

	// Warn threshold: subjects with fewer unused recovery codes than
	// this get a low_codes flag on successful recovery verification.
	recoveryCodeWarnAt = 3

	endpointConfirm = "2fa:confirm"
	endpointVerify  = "2fa:verify"
)

// PasswordVerifier re-proves the caller's identity before sensitive
// actions. The surrounding application owns passwords; the engine only
// asks for a yes/no.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, subject domain.Subject, password string) error
}

// RequestContext carries per-request audit attributes down from the
// transport layer.
type RequestContext struct {
	IPAddress     string
	UserAgent     string
	SessionID     string
	RequestID     string
	Geolocation   string
	GeoDistanceKm float64 // distance from last known location, 0 = unknown
}

// TwoFactorService orchestrates enrollment, verification and device
// trust. It owns no policy constants of its own: limits come from
// SecuritySettings, trust durations from the same, and all clock reads
// go through the injectable Now.
type TwoFactorService struct {
	Store     store.Store
	Devices   *DeviceService
	Settings  *SettingsService
	Limiter   *RateLimitService
	Audit     *AuditService
	Passwords PasswordVerifier

	Issuer string // otpauth issuer label, e.g. "WebMonks"

	Now func() time.Time
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// StatusResponse summarizes a subject's 2FA posture.
type StatusResponse struct {
	State                  domain.CredentialState
	Enabled                bool
	ConfirmedAt            *time.Time
	RecoveryCodesRemaining int
	TrustedDevices         int
}

// EnrollResponse is returned by Enable. Secret and RecoveryCodes are
// shown exactly once and never retrievable again.
type EnrollResponse struct {
	Secret        string
	URI           string
	QRCode        string // data:image/png;base64 payload of URI
	RecoveryCodes []string
}

// VerifyResult reports how a login challenge was satisfied.
type VerifyResult struct {
	Method                 domain.CodeType // totp or recovery; empty on a trust skip
	TrustedDeviceSkip      bool
	RecoveryCodesRemaining int  // populated after a recovery verification
	RecoveryCodesLow       bool // remaining below the warn threshold
}

// Status reports the subject's current enrollment state. Subjects that
// never touched 2FA report disabled rather than not-found.
func (s *TwoFactorService) Status(ctx context.Context, subject domain.Subject) (StatusResponse, error) {
	if err := subject.Validate(); err != nil {
		return StatusResponse{}, err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err != nil && err != store.ErrNotFound {
		return StatusResponse{}, storageErr("load credential", err)
	}
	if err == store.ErrNotFound {
		cred.State = domain.StateDisabled
	}

	resp := StatusResponse{
		State:       cred.State,
		Enabled:     cred.Enabled(),
		ConfirmedAt: cred.ConfirmedAt,
	}

	if cred.Enabled() {
		remaining, err := s.Store.RecoveryCodes().CountRemaining(ctx, subject)
		if err != nil {
			return StatusResponse{}, storageErr("count recovery codes", err)
		}
		resp.RecoveryCodesRemaining = remaining
	}

	devices, err := s.Devices.CountActive(ctx, subject)
	if err != nil {
		return StatusResponse{}, storageErr("count trusted devices", err)
	}
	resp.TrustedDevices = devices

	return resp, nil
}

// Enable begins enrollment: generates a fresh secret and recovery code
// set and moves the credential to pending_confirmation. Calling Enable
// again before confirming regenerates everything; calling it while
// enabled is an error — disable first.
func (s *TwoFactorService) Enable(ctx context.Context, subject domain.Subject, accountLabel string, req RequestContext) (EnrollResponse, error) {
	if err := subject.Validate(); err != nil {
		return EnrollResponse{}, err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err != nil && err != store.ErrNotFound {
		return EnrollResponse{}, storageErr("load credential", err)
	}
	if cred.Enabled() {
		return EnrollResponse{}, &InvalidStateError{Operation: "enable", State: cred.State}
	}

	key, err := otpx.GenerateSecret(s.Issuer, accountLabel)
	if err != nil {
		return EnrollResponse{}, err
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return EnrollResponse{}, err
	}

	plaintexts, err := cryptox.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return EnrollResponse{}, err
	}

	now := s.now()
	codes := make([]domain.RecoveryCode, len(plaintexts))
	for i, plain := range plaintexts {
		codes[i] = domain.RecoveryCode{
			ID:        idx.New(),
			Subject:   subject,
			CodeHash:  cryptox.HashRecoveryCode(salt, plain),
			CreatedAt: now,
		}
	}

	pending := domain.TwoFactorCredential{
		Subject:          subject,
		Secret:           key.Secret,
		RecoveryCodeSalt: salt,
		State:            domain.StatePendingConfirmation,
		EnabledAt:        &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Credentials().UpsertPending(ctx, pending); err != nil {
			return storageErr("store pending credential", err)
		}
		if err := tx.RecoveryCodes().ReplaceAll(ctx, subject, codes); err != nil {
			return storageErr("store recovery codes", err)
		}
		return nil
	})
	if err != nil {
		return EnrollResponse{}, err
	}

	qr, err := qrx.DataURI(key.URI, qrImageSize)
	if err != nil {
		return EnrollResponse{}, err
	}

	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "2fa.enable",
		Category:   "security",
		TargetType: "two_factor_credential",
		TargetID:   subject.String(),
		NewValues:  stateSnapshot(domain.StatePendingConfirmation),
		Metadata:   map[string]string{"recovery_codes": fmt.Sprint(recoveryCodeCount)},
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
	}, RiskSignals{OffHours: OffHours(s.now())})

	return EnrollResponse{
		Secret:        key.Secret,
		URI:           key.URI,
		QRCode:        qr,
		RecoveryCodes: plaintexts,
	}, nil
}

// Confirm completes enrollment by proving possession of the
// authenticator. The confirming code's time-step is burnt so the same
// code cannot immediately satisfy a login challenge.
func (s *TwoFactorService) Confirm(ctx context.Context, subject domain.Subject, code string, req RequestContext) error {
	if err := subject.Validate(); err != nil {
		return err
	}

	settings, err := s.Settings.Resolve(ctx, subject)
	if err != nil {
		return err
	}
	if err := s.enforceLimit(ctx, subject, endpointConfirm, settings); err != nil {
		return err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err == store.ErrNotFound {
		return &InvalidStateError{Operation: "confirm", State: domain.StateDisabled}
	}
	if err != nil {
		return storageErr("load credential", err)
	}
	if cred.State != domain.StatePendingConfirmation {
		return &InvalidStateError{Operation: "confirm", State: cred.State}
	}

	now := s.now()
	if !otpx.Verify(cred.Secret, code, now) {
		s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, false, "confirm code mismatch")
		s.auditVerification(ctx, subject, "2fa.confirm", req, false, RiskSignals{OffHours: OffHours(now)})
		return ErrInvalidCode
	}

	ok, err := s.Store.Credentials().ConfirmEnabled(ctx, subject, now)
	if err != nil {
		return storageErr("confirm credential", err)
	}
	if !ok {
		// State moved underneath us (concurrent confirm or disable).
		return &InvalidStateError{Operation: "confirm", State: cred.State}
	}

	if _, err := s.Store.Credentials().MarkVerifiedStep(ctx, subject, otpx.StepAt(now)); err != nil {
		return storageErr("mark verified step", err)
	}

	s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, true, "")
	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "2fa.confirm",
		Category:   "security",
		TargetType: "two_factor_credential",
		TargetID:   subject.String(),
		OldValues:  stateSnapshot(domain.StatePendingConfirmation),
		NewValues:  stateSnapshot(domain.StateEnabled),
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
	}, RiskSignals{OffHours: OffHours(now)})

	return nil
}

// VerifyLogin satisfies a login challenge. A currently-trusted device
// skips verification entirely; otherwise the presented code is
// dispatched by shape to the TOTP or recovery path. Every rejection,
// whatever the cause, surfaces as ErrInvalidCode.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, subject domain.Subject, code string, attrs fingerprintx.Attributes, req RequestContext) (VerifyResult, error) {
	if err := subject.Validate(); err != nil {
		return VerifyResult{}, err
	}

	settings, err := s.Settings.Resolve(ctx, subject)
	if err != nil {
		return VerifyResult{}, err
	}

	device, trusted, err := s.Devices.Lookup(ctx, subject, attrs)
	if err != nil {
		return VerifyResult{}, err
	}

	if trusted && settings.DeviceTrackingEnabled {
		if err := s.Devices.MarkUsed(ctx, subject, device.DeviceID); err != nil {
			slogx.FromContext(ctx).Warn("failed to touch trusted device",
				slog.String("device_id", device.DeviceID), slog.Any("error", err))
		}
		s.Audit.Record(ctx, domain.AuditEntry{
			Actor:      subject,
			Action:     "2fa.verify",
			Category:   "authentication",
			TargetType: "trusted_device",
			TargetID:   device.DeviceID,
			Metadata:   map[string]string{"method": "trusted_device"},
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			SessionID:  req.SessionID,
			RequestID:  req.RequestID,
		}, RiskSignals{OffHours: OffHours(s.now())})

		return VerifyResult{TrustedDeviceSkip: true}, nil
	}

	// The limit check itself consumes an attempt, so hammering the
	// endpoint with garbage burns the budget too.
	if err := s.enforceLimit(ctx, subject, endpointVerify, settings); err != nil {
		return VerifyResult{}, err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err == store.ErrNotFound {
		return VerifyResult{}, &InvalidStateError{Operation: "verify", State: domain.StateDisabled}
	}
	if err != nil {
		return VerifyResult{}, storageErr("load credential", err)
	}
	if !cred.Enabled() {
		return VerifyResult{}, &InvalidStateError{Operation: "verify", State: cred.State}
	}

	signals := RiskSignals{
		UnknownDevice:   device.DeviceID == "",
		RevokedDevice:   device.DeviceID != "" && !trusted,
		OffHours:        OffHours(s.now()),
		GeoDistanceKm:   req.GeoDistanceKm,
		SensitiveAction: false,
	}
	if failures, err := s.Store.Attempts().CountFailuresSince(ctx, subject, s.now().Add(-settings.AttemptWindow)); err == nil {
		signals.RecentFailures = failures
	}

	switch {
	case otpx.WellFormed(code):
		return s.verifyTOTP(ctx, subject, cred, code, req, signals)
	case cryptox.LooksLikeRecoveryCode(code):
		return s.verifyRecovery(ctx, subject, cred, code, req, signals)
	default:
		s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, false, "malformed code")
		s.auditVerification(ctx, subject, "2fa.verify", req, false, signals)
		return VerifyResult{}, ErrInvalidCode
	}
}

func (s *TwoFactorService) verifyTOTP(ctx context.Context, subject domain.Subject, cred domain.TwoFactorCredential, code string, req RequestContext, signals RiskSignals) (VerifyResult, error) {
	now := s.now()

	if !otpx.Verify(cred.Secret, code, now) {
		s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, false, "code mismatch")
		s.auditVerification(ctx, subject, "2fa.verify", req, false, signals)
		return VerifyResult{}, ErrInvalidCode
	}

	// A valid code is only accepted once per time-step. The marker
	// advance is the atomic arbiter between concurrent presentations.
	advanced, err := s.Store.Credentials().MarkVerifiedStep(ctx, subject, otpx.StepAt(now))
	if err != nil {
		return VerifyResult{}, storageErr("mark verified step", err)
	}
	if !advanced {
		s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, false, "replayed code")
		s.auditVerification(ctx, subject, "2fa.verify", req, false, signals)
		return VerifyResult{}, ErrInvalidCode
	}

	s.recordAttempt(ctx, subject, domain.CodeTypeTOTP, req, true, "")
	s.auditVerification(ctx, subject, "2fa.verify", req, true, signals)
	return VerifyResult{Method: domain.CodeTypeTOTP}, nil
}

func (s *TwoFactorService) verifyRecovery(ctx context.Context, subject domain.Subject, cred domain.TwoFactorCredential, code string, req RequestContext, signals RiskSignals) (VerifyResult, error) {
	hash := cryptox.HashRecoveryCode(cred.RecoveryCodeSalt, code)

	consumed, err := s.Store.RecoveryCodes().Consume(ctx, subject, hash, s.now())
	if err != nil {
		return VerifyResult{}, storageErr("consume recovery code", err)
	}
	if !consumed {
		s.recordAttempt(ctx, subject, domain.CodeTypeRecovery, req, false, "unknown or used recovery code")
		s.auditVerification(ctx, subject, "2fa.verify", req, false, signals)
		return VerifyResult{}, ErrInvalidCode
	}

	remaining, err := s.Store.RecoveryCodes().CountRemaining(ctx, subject)
	if err != nil {
		return VerifyResult{}, storageErr("count recovery codes", err)
	}

	s.recordAttempt(ctx, subject, domain.CodeTypeRecovery, req, true, "")
	s.auditVerification(ctx, subject, "2fa.verify", req, true, signals)

	if remaining < recoveryCodeWarnAt {
		slogx.FromContext(ctx).Warn("subject running low on recovery codes",
			slog.String("subject", subject.String()),
			slog.Int("remaining", remaining),
		)
	}

	return VerifyResult{
		Method:                 domain.CodeTypeRecovery,
		RecoveryCodesRemaining: remaining,
		RecoveryCodesLow:       remaining < recoveryCodeWarnAt,
	}, nil
}

// Disable turns 2FA off. It requires explicit confirmation plus a
// fresh password proof, deletes the recovery code set, and leaves
// trusted devices in place: trust is a device property, not a
// credential property.
func (s *TwoFactorService) Disable(ctx context.Context, subject domain.Subject, password string, confirmed bool, req RequestContext) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := s.proveIdentity(ctx, subject, password); err != nil {
		return err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err == store.ErrNotFound {
		return &InvalidStateError{Operation: "disable", State: domain.StateDisabled}
	}
	if err != nil {
		return storageErr("load credential", err)
	}
	if cred.State == domain.StateDisabled {
		return &InvalidStateError{Operation: "disable", State: cred.State}
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.Credentials().Disable(ctx, subject, cred.State, now)
		if err != nil {
			return storageErr("disable credential", err)
		}
		if !ok {
			return &InvalidStateError{Operation: "disable", State: cred.State}
		}
		if err := tx.RecoveryCodes().DeleteAll(ctx, subject); err != nil {
			return storageErr("delete recovery codes", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "2fa.disable",
		Category:   "security",
		TargetType: "two_factor_credential",
		TargetID:   subject.String(),
		OldValues:  stateSnapshot(cred.State),
		NewValues:  stateSnapshot(domain.StateDisabled),
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
	}, RiskSignals{SensitiveAction: true, OffHours: OffHours(now)})

	return nil
}

// RegenerateRecoveryCodes replaces the subject's code set after a
// password proof. Every code from the old set stops working, used or
// not. The new plaintexts are shown exactly once.
func (s *TwoFactorService) RegenerateRecoveryCodes(ctx context.Context, subject domain.Subject, password string, req RequestContext) ([]string, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if err := s.proveIdentity(ctx, subject, password); err != nil {
		return nil, err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err == store.ErrNotFound {
		return nil, &InvalidStateError{Operation: "regenerate recovery codes", State: domain.StateDisabled}
	}
	if err != nil {
		return nil, storageErr("load credential", err)
	}
	if !cred.Enabled() {
		return nil, &InvalidStateError{Operation: "regenerate recovery codes", State: cred.State}
	}

	plaintexts, err := cryptox.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	codes := make([]domain.RecoveryCode, len(plaintexts))
	for i, plain := range plaintexts {
		codes[i] = domain.RecoveryCode{
			ID:        idx.New(),
			Subject:   subject,
			CodeHash:  cryptox.HashRecoveryCode(cred.RecoveryCodeSalt, plain),
			CreatedAt: now,
		}
	}

	// The old and new sets swap atomically: a mid-replace failure must
	// not leave the subject with a partial code set.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.RecoveryCodes().ReplaceAll(ctx, subject, codes)
	})
	if err != nil {
		return nil, storageErr("replace recovery codes", err)
	}

	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "2fa.recovery_codes.regenerate",
		Category:   "security",
		TargetType: "two_factor_credential",
		TargetID:   subject.String(),
		Metadata:   map[string]string{"recovery_codes": fmt.Sprint(recoveryCodeCount)},
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
	}, RiskSignals{SensitiveAction: true, OffHours: OffHours(now)})

	return plaintexts, nil
}

// TrustCurrentDevice grants the presenting device a challenge
// exemption for the settings-controlled duration. Requires an enabled
// credential: trusting a device without 2FA would be a no-op grant.
// The returned flag reports whether the device was already trusted, in
// which case the grant's expiry just slid forward.
func (s *TwoFactorService) TrustCurrentDevice(ctx context.Context, subject domain.Subject, attrs fingerprintx.Attributes, deviceName string, req RequestContext) (domain.TrustedDevice, bool, error) {
	if err := subject.Validate(); err != nil {
		return domain.TrustedDevice{}, false, err
	}

	cred, err := s.Store.Credentials().Get(ctx, subject)
	if err == store.ErrNotFound {
		return domain.TrustedDevice{}, false, &InvalidStateError{Operation: "trust device", State: domain.StateDisabled}
	}
	if err != nil {
		return domain.TrustedDevice{}, false, storageErr("load credential", err)
	}
	if !cred.Enabled() {
		return domain.TrustedDevice{}, false, &InvalidStateError{Operation: "trust device", State: cred.State}
	}

	settings, err := s.Settings.Resolve(ctx, subject)
	if err != nil {
		return domain.TrustedDevice{}, false, err
	}

	device, isNew, err := s.Devices.Trust(ctx, subject, attrs, deviceName, settings.DeviceTrustTTL)
	if err != nil {
		return domain.TrustedDevice{}, false, err
	}

	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "device.trust",
		Category:   "security",
		TargetType: "trusted_device",
		TargetID:   device.DeviceID,
		Metadata: map[string]string{
			"device_type": device.DeviceType,
			"new_device":  fmt.Sprint(isNew),
		},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		SessionID: req.SessionID,
		RequestID: req.RequestID,
	}, RiskSignals{UnknownDevice: isNew, OffHours: OffHours(s.now())})

	return device, !isNew, nil
}

// RevokeDevice withdraws a trust grant immediately.
func (s *TwoFactorService) RevokeDevice(ctx context.Context, subject domain.Subject, deviceID string, req RequestContext) error {
	if err := subject.Validate(); err != nil {
		return err
	}

	if err := s.Devices.Revoke(ctx, subject, deviceID); err != nil {
		return err
	}

	s.Audit.Record(ctx, domain.AuditEntry{
		Actor:      subject,
		Action:     "device.revoke",
		Category:   "security",
		TargetType: "trusted_device",
		TargetID:   deviceID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
	}, RiskSignals{OffHours: OffHours(s.now())})

	return nil
}

// ListDevices returns the subject's device history, newest use first.
func (s *TwoFactorService) ListDevices(ctx context.Context, subject domain.Subject) ([]domain.TrustedDevice, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	return s.Devices.List(ctx, subject)
}

func (s *TwoFactorService) enforceLimit(ctx context.Context, subject domain.Subject, endpoint string, settings domain.SecuritySettings) error {
	key := domain.RateLimitKey{
		Identifier:     subject.String(),
		IdentifierType: "subject",
		Endpoint:       endpoint,
	}
	decision, err := s.Limiter.CheckAndIncrement(ctx, key, settings.MaxAttempts, settings.AttemptWindow)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		s.Audit.Record(ctx, domain.AuditEntry{
			Actor:      subject,
			Action:     "2fa.rate_limited",
			Category:   "authentication",
			TargetType: "rate_limit",
			TargetID:   endpoint,
		}, RiskSignals{RecentFailures: settings.MaxAttempts, OffHours: OffHours(s.now())})
		return &RateLimitedError{Endpoint: endpoint, ResetAt: decision.ResetAt}
	}
	return nil
}

func (s *TwoFactorService) proveIdentity(ctx context.Context, subject domain.Subject, password string) error {
	if s.Passwords == nil {
		return nil
	}
	return s.Passwords.VerifyPassword(ctx, subject, password)
}

func (s *TwoFactorService) recordAttempt(ctx context.Context, subject domain.Subject, codeType domain.CodeType, req RequestContext, successful bool, reason string) {
	attempt := domain.VerificationAttempt{
		ID:            idx.New(),
		Subject:       subject,
		CodeType:      codeType,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Successful:    successful,
		FailureReason: reason,
		AttemptedAt:   s.now(),
	}
	if err := s.Store.Attempts().Record(ctx, attempt); err != nil {
		slogx.FromContext(ctx).Error("failed to record verification attempt",
			slog.String("subject", subject.String()), slog.Any("error", err))
	}
}

func (s *TwoFactorService) auditVerification(ctx context.Context, subject domain.Subject, action string, req RequestContext, successful bool, signals RiskSignals) {
	entry := domain.AuditEntry{
		Actor:       subject,
		Action:      action,
		Category:    "authentication",
		TargetType:  "two_factor_credential",
		TargetID:    subject.String(),
		Metadata:    map[string]string{"successful": fmt.Sprint(successful)},
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		SessionID:   req.SessionID,
		RequestID:   req.RequestID,
		Geolocation: req.Geolocation,
	}
	if !successful {
		// A failure that just happened counts toward velocity.
		signals.RecentFailures++
	}
	s.Audit.Record(ctx, entry, signals)
}

func stateSnapshot(state domain.CredentialState) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"state": string(state)})
	return raw
}

