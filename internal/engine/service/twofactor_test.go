package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/internal/engine/store/drivers/sqlite"
	"github.com/damku999/trustengine/pkg/cryptox"
	"github.com/damku999/trustengine/pkg/fingerprintx"
	"github.com/damku999/trustengine/pkg/otpx"
)

const testPassword = "correct horse battery staple"

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakePasswords struct{}

func (fakePasswords) VerifyPassword(_ context.Context, _ domain.Subject, password string) error {
	if password != testPassword {
		return cryptox.ErrPasswordMismatch
	}
	return nil
}

type fixture struct {
	svc   *service.TwoFactorService
	clock *fakeClock
	audit *service.AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	// Mid-morning UTC so the off-hours signal stays quiet unless a test
	// moves the clock.
	clock := &fakeClock{t: time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)}

	audit := &service.AuditService{Store: st, Now: clock.Now}
	svc := &service.TwoFactorService{
		Store:     st,
		Devices:   &service.DeviceService{Store: st, Now: clock.Now},
		Settings:  &service.SettingsService{Store: st, Now: clock.Now},
		Limiter:   &service.RateLimitService{Store: st, Now: clock.Now},
		Audit:     audit,
		Passwords: fakePasswords{},
		Issuer:    "TrustEngine",
		Now:       clock.Now,
	}
	return &fixture{svc: svc, clock: clock, audit: audit}
}

func subjectForTest() domain.Subject {
	return domain.Subject{Type: domain.SubjectCustomer, ID: "01JEAH8V4N2Q6X9WRKC3M5T7PD"}
}

func deviceAttrs() fingerprintx.Attributes {
	return fingerprintx.Attributes{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36",
		AcceptLanguage: "en-AU,en;q=0.9",
		AcceptEncoding: "gzip, deflate, br",
		Platform:       "Windows",
		IPAddress:      "203.0.113.40",
	}
}

func requestCtx() service.RequestContext {
	return service.RequestContext{
		IPAddress: "203.0.113.40",
		UserAgent: deviceAttrs().UserAgent,
		SessionID: "sess-1",
		RequestID: "req-1",
	}
}

// enroll runs Enable + Confirm and advances the clock one TOTP step so
// the confirmation code's step is burnt before verification tests run.
func (f *fixture) enroll(t *testing.T, subject domain.Subject) (string, []string) {
	t.Helper()
	ctx := context.Background()

	resp, err := f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
	require.NoError(t, err)

	code, err := otpx.CodeAt(resp.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, subject, code, requestCtx()))

	f.clock.Advance(2 * otpx.Period * time.Second)
	return resp.Secret, resp.RecoveryCodes
}

func TestEnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()

	t.Run("fresh subject reports disabled", func(t *testing.T) {
		status, err := f.svc.Status(ctx, subject)
		require.NoError(t, err)
		require.Equal(t, domain.StateDisabled, status.State)
		require.False(t, status.Enabled)
	})

	var secret string
	t.Run("enable issues secret, QR and codes", func(t *testing.T) {
		resp, err := f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
		require.NoError(t, err)
		secret = resp.Secret
		require.NotEmpty(t, resp.Secret)
		require.Contains(t, resp.URI, "otpauth://totp/")
		require.Contains(t, resp.URI, "TrustEngine")
		require.True(t, strings.HasPrefix(resp.QRCode, "data:image/png;base64,"))
		require.Len(t, resp.RecoveryCodes, 10)
		for _, code := range resp.RecoveryCodes {
			require.True(t, cryptox.LooksLikeRecoveryCode(code), code)
		}

		status, err := f.svc.Status(ctx, subject)
		require.NoError(t, err)
		require.Equal(t, domain.StatePendingConfirmation, status.State)
		require.False(t, status.Enabled)
	})

	t.Run("wrong code does not confirm", func(t *testing.T) {
		err := f.svc.Confirm(ctx, subject, "000000", requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)

		status, err := f.svc.Status(ctx, subject)
		require.NoError(t, err)
		require.Equal(t, domain.StatePendingConfirmation, status.State)
	})

	t.Run("correct code confirms", func(t *testing.T) {
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)
		require.NoError(t, f.svc.Confirm(ctx, subject, code, requestCtx()))

		status, err := f.svc.Status(ctx, subject)
		require.NoError(t, err)
		require.True(t, status.Enabled)
		require.Equal(t, 10, status.RecoveryCodesRemaining)
		require.NotNil(t, status.ConfirmedAt)
	})

	t.Run("enable while enabled is rejected", func(t *testing.T) {
		_, err := f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, domain.StateEnabled, stateErr.State)
	})

	t.Run("confirm while enabled is rejected", func(t *testing.T) {
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)
		err = f.svc.Confirm(ctx, subject, code, requestCtx())
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
	})
}

func TestVerifyLoginTOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	secret, _ := f.enroll(t, subject)

	t.Run("valid code verifies", func(t *testing.T) {
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)

		result, err := f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
		require.NoError(t, err)
		require.Equal(t, domain.CodeTypeTOTP, result.Method)
		require.False(t, result.TrustedDeviceSkip)
	})

	t.Run("same code in same step is a replay", func(t *testing.T) {
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)

		_, err = f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)
	})

	t.Run("next step verifies again", func(t *testing.T) {
		f.clock.Advance(otpx.Period * time.Second)
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)

		result, err := f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
		require.NoError(t, err)
		require.Equal(t, domain.CodeTypeTOTP, result.Method)
	})

	t.Run("garbage input is invalid, not an error class of its own", func(t *testing.T) {
		_, err := f.svc.VerifyLogin(ctx, subject, "not-a-code", deviceAttrs(), requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)
	})
}

func TestVerifyLoginRequiresEnabledCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()

	_, err := f.svc.VerifyLogin(ctx, subject, "123456", deviceAttrs(), requestCtx())
	var stateErr *service.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, domain.StateDisabled, stateErr.State)

	_, err = f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
	require.NoError(t, err)

	_, err = f.svc.VerifyLogin(ctx, subject, "123456", deviceAttrs(), requestCtx())
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, domain.StatePendingConfirmation, stateErr.State)
}

func TestRecoveryCodesAreSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	_, codes := f.enroll(t, subject)

	result, err := f.svc.VerifyLogin(ctx, subject, codes[0], deviceAttrs(), requestCtx())
	require.NoError(t, err)
	require.Equal(t, domain.CodeTypeRecovery, result.Method)
	require.Equal(t, 9, result.RecoveryCodesRemaining)
	require.False(t, result.RecoveryCodesLow)

	// Same code again: burnt.
	_, err = f.svc.VerifyLogin(ctx, subject, codes[0], deviceAttrs(), requestCtx())
	require.ErrorIs(t, err, service.ErrInvalidCode)

	// Lowercase input with stray whitespace still matches.
	result, err = f.svc.VerifyLogin(ctx, subject, "  "+strings.ToLower(codes[1])+" ", deviceAttrs(), requestCtx())
	require.NoError(t, err)
	require.Equal(t, 8, result.RecoveryCodesRemaining)
}

func TestRateLimitLockoutAndRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	secret, _ := f.enroll(t, subject)

	// Burn the full budget on wrong codes.
	for i := 0; i < domain.DefaultMaxAttempts; i++ {
		_, err := f.svc.VerifyLogin(ctx, subject, "000000", deviceAttrs(), requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)
	}

	// Even a correct code is refused while locked out.
	code, err := otpx.CodeAt(secret, f.clock.Now())
	require.NoError(t, err)
	_, err = f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
	var limited *service.RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.False(t, limited.ResetAt.IsZero())

	// Past the window the subject recovers on their own.
	f.clock.Advance(domain.DefaultAttemptWindow + time.Minute)
	code, err = otpx.CodeAt(secret, f.clock.Now())
	require.NoError(t, err)
	result, err := f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
	require.NoError(t, err)
	require.Equal(t, domain.CodeTypeTOTP, result.Method)
}

func TestRegenerateRecoveryCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	_, oldCodes := f.enroll(t, subject)

	t.Run("wrong password is refused", func(t *testing.T) {
		_, err := f.svc.RegenerateRecoveryCodes(ctx, subject, "wrong", requestCtx())
		require.ErrorIs(t, err, cryptox.ErrPasswordMismatch)
	})

	var newCodes []string
	t.Run("regeneration issues a fresh set", func(t *testing.T) {
		var err error
		newCodes, err = f.svc.RegenerateRecoveryCodes(ctx, subject, testPassword, requestCtx())
		require.NoError(t, err)
		require.Len(t, newCodes, 10)
		require.NotEqual(t, oldCodes, newCodes)
	})

	t.Run("old set is dead, new set works", func(t *testing.T) {
		_, err := f.svc.VerifyLogin(ctx, subject, oldCodes[0], deviceAttrs(), requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)

		result, err := f.svc.VerifyLogin(ctx, subject, newCodes[0], deviceAttrs(), requestCtx())
		require.NoError(t, err)
		require.Equal(t, domain.CodeTypeRecovery, result.Method)
	})
}

func TestDeviceTrustSkipsChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	secret, _ := f.enroll(t, subject)
	attrs := deviceAttrs()

	device, alreadyTrusted, err := f.svc.TrustCurrentDevice(ctx, subject, attrs, "Office laptop", requestCtx())
	require.NoError(t, err)
	require.False(t, alreadyTrusted)
	require.Equal(t, "desktop", device.DeviceType)
	require.Equal(t, "Chrome", device.Browser)
	require.NotNil(t, device.ExpiresAt)

	t.Run("trusted device skips verification", func(t *testing.T) {
		result, err := f.svc.VerifyLogin(ctx, subject, "", attrs, requestCtx())
		require.NoError(t, err)
		require.True(t, result.TrustedDeviceSkip)
	})

	t.Run("different fingerprint still challenged", func(t *testing.T) {
		other := attrs
		other.UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1"
		code, err := otpx.CodeAt(secret, f.clock.Now())
		require.NoError(t, err)
		result, err := f.svc.VerifyLogin(ctx, subject, code, other, requestCtx())
		require.NoError(t, err)
		require.False(t, result.TrustedDeviceSkip)
		require.Equal(t, domain.CodeTypeTOTP, result.Method)
	})

	t.Run("skip holds on day 29", func(t *testing.T) {
		f.clock.Advance(29 * 24 * time.Hour)
		result, err := f.svc.VerifyLogin(ctx, subject, "", attrs, requestCtx())
		require.NoError(t, err)
		require.True(t, result.TrustedDeviceSkip)
	})

	t.Run("expired on day 31", func(t *testing.T) {
		f.clock.Advance(2 * 24 * time.Hour)
		_, err := f.svc.VerifyLogin(ctx, subject, "", attrs, requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode, "empty code on an expired device falls through to verification")
	})

	t.Run("re-trust slides expiry forward", func(t *testing.T) {
		refreshed, alreadyTrusted, err := f.svc.TrustCurrentDevice(ctx, subject, attrs, "Office laptop", requestCtx())
		require.NoError(t, err)
		require.True(t, alreadyTrusted, "same fingerprint re-trusts the existing grant")
		require.True(t, refreshed.ExpiresAt.After(f.clock.Now().Add(29*24*time.Hour)))

		result, err := f.svc.VerifyLogin(ctx, subject, "", attrs, requestCtx())
		require.NoError(t, err)
		require.True(t, result.TrustedDeviceSkip)
	})
}

func TestRevokeDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	f.enroll(t, subject)
	attrs := deviceAttrs()

	device, _, err := f.svc.TrustCurrentDevice(ctx, subject, attrs, "", requestCtx())
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeDevice(ctx, subject, device.DeviceID, requestCtx()))

	t.Run("revoked device is challenged again", func(t *testing.T) {
		_, err := f.svc.VerifyLogin(ctx, subject, "", attrs, requestCtx())
		require.ErrorIs(t, err, service.ErrInvalidCode)
	})

	t.Run("double revoke reports not found", func(t *testing.T) {
		err := f.svc.RevokeDevice(ctx, subject, device.DeviceID, requestCtx())
		require.ErrorIs(t, err, service.ErrDeviceNotFound)
	})

	t.Run("history keeps the revoked row", func(t *testing.T) {
		devices, err := f.svc.ListDevices(ctx, subject)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		require.False(t, devices[0].IsActive)
	})
}

func TestDisable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	f.enroll(t, subject)
	attrs := deviceAttrs()

	_, _, err := f.svc.TrustCurrentDevice(ctx, subject, attrs, "", requestCtx())
	require.NoError(t, err)

	t.Run("requires explicit confirmation", func(t *testing.T) {
		err := f.svc.Disable(ctx, subject, testPassword, false, requestCtx())
		require.ErrorIs(t, err, service.ErrConfirmationRequired)
	})

	t.Run("requires the password", func(t *testing.T) {
		err := f.svc.Disable(ctx, subject, "wrong", true, requestCtx())
		require.ErrorIs(t, err, cryptox.ErrPasswordMismatch)
	})

	t.Run("disables and clears recovery codes", func(t *testing.T) {
		require.NoError(t, f.svc.Disable(ctx, subject, testPassword, true, requestCtx()))

		status, err := f.svc.Status(ctx, subject)
		require.NoError(t, err)
		require.Equal(t, domain.StateDisabled, status.State)
		require.Zero(t, status.RecoveryCodesRemaining)
	})

	t.Run("trusted devices survive the disable", func(t *testing.T) {
		devices, err := f.svc.ListDevices(ctx, subject)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		require.True(t, devices[0].IsActive)
	})

	t.Run("double disable is an invalid state", func(t *testing.T) {
		err := f.svc.Disable(ctx, subject, testPassword, true, requestCtx())
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, domain.StateDisabled, stateErr.State)
	})
}

func TestAuditTrailAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()
	secret, _ := f.enroll(t, subject)

	code, err := otpx.CodeAt(secret, f.clock.Now())
	require.NoError(t, err)
	_, err = f.svc.VerifyLogin(ctx, subject, code, deviceAttrs(), requestCtx())
	require.NoError(t, err)

	entries, err := f.audit.Recent(ctx, subject, 50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	actions := make(map[string]bool)
	for _, e := range entries {
		actions[e.Action] = true
		require.Equal(t, subject, e.Actor)
		require.NotEmpty(t, e.ID)
		require.False(t, e.OccurredAt.IsZero())
	}
	require.True(t, actions["2fa.enable"])
	require.True(t, actions["2fa.confirm"])
	require.True(t, actions["2fa.verify"])
}

func TestRiskScoring(t *testing.T) {
	t.Run("zero signals score zero", func(t *testing.T) {
		score, factors := service.ScoreRisk(service.RiskSignals{})
		require.Zero(t, score)
		require.Empty(t, factors)
	})

	t.Run("adding a signal never lowers the score", func(t *testing.T) {
		base, _ := service.ScoreRisk(service.RiskSignals{UnknownDevice: true})
		more, _ := service.ScoreRisk(service.RiskSignals{UnknownDevice: true, OffHours: true})
		require.GreaterOrEqual(t, more, base)
	})

	t.Run("failure velocity is capped", func(t *testing.T) {
		five, _ := service.ScoreRisk(service.RiskSignals{RecentFailures: 5})
		fifty, _ := service.ScoreRisk(service.RiskSignals{RecentFailures: 50})
		require.Equal(t, five, fifty)
	})

	t.Run("everything at once clamps to 100", func(t *testing.T) {
		score, factors := service.ScoreRisk(service.RiskSignals{
			UnknownDevice:   true,
			RevokedDevice:   true,
			RecentFailures:  10,
			OffHours:        true,
			GeoDistanceKm:   1200,
			SensitiveAction: true,
		})
		require.Equal(t, 100, score)
		require.Len(t, factors, 6)
		require.Equal(t, domain.RiskCritical, domain.RiskLevelForScore(score))
	})

	t.Run("thresholds map to levels", func(t *testing.T) {
		require.Equal(t, domain.RiskLow, domain.RiskLevelForScore(24))
		require.Equal(t, domain.RiskMedium, domain.RiskLevelForScore(25))
		require.Equal(t, domain.RiskHigh, domain.RiskLevelForScore(50))
		require.Equal(t, domain.RiskCritical, domain.RiskLevelForScore(75))
	})
}

func TestFailedConfirmIsAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()

	_, err := f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
	require.NoError(t, err)

	err = f.svc.Confirm(ctx, subject, "000000", requestCtx())
	require.ErrorIs(t, err, service.ErrInvalidCode)

	entries, err := f.audit.Recent(ctx, subject, 10)
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if e.Action == "2fa.confirm" {
			found = true
			require.Equal(t, "false", e.Metadata["successful"])
			require.NotEmpty(t, e.RiskLevel)
		}
	}
	require.True(t, found, "a rejected confirmation must land in the ledger")
}

func TestTrustDeviceRequiresEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject := subjectForTest()

	t.Run("never-enrolled subject reports disabled", func(t *testing.T) {
		_, _, err := f.svc.TrustCurrentDevice(ctx, subject, deviceAttrs(), "Office laptop", requestCtx())
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, domain.StateDisabled, stateErr.State)
	})

	t.Run("pending enrollment is still rejected", func(t *testing.T) {
		_, err := f.svc.Enable(ctx, subject, "customer@example.com", requestCtx())
		require.NoError(t, err)

		_, _, err = f.svc.TrustCurrentDevice(ctx, subject, deviceAttrs(), "Office laptop", requestCtx())
		var stateErr *service.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, domain.StatePendingConfirmation, stateErr.State)
	})
}

func TestStorageFailuresAreTyped(t *testing.T) {
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())

	svc := &service.TwoFactorService{
		Store:    st,
		Devices:  &service.DeviceService{Store: st},
		Settings: &service.SettingsService{Store: st},
		Limiter:  &service.RateLimitService{Store: st},
		Audit:    &service.AuditService{Store: st},
		Issuer:   "TrustEngine",
	}

	// Every store call fails once the handle is gone.
	require.NoError(t, st.Close())

	_, err = svc.Status(ctx, subjectForTest())
	var storage *service.StorageError
	require.ErrorAs(t, err, &storage)
	require.Equal(t, "load credential", storage.Op)
	require.Error(t, storage.Err)
}
