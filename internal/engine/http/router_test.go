package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	httpapi "github.com/damku999/trustengine/internal/engine/http"
	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/internal/engine/store/drivers/sqlite"
	"github.com/damku999/trustengine/pkg/httpx"
	"github.com/damku999/trustengine/pkg/otpx"
	"github.com/damku999/trustengine/pkg/slogx"
)

var subjectSecret = []byte("router-test-secret")

func newTestRouter(t *testing.T) *httpapi.Router {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	logger := slogx.New(slogx.Config{Service: "trustengine-test", Level: "error", Format: "text"})

	audit := &service.AuditService{Store: st}
	router := httpapi.NewRouter(subjectSecret, "test", st, logger)
	router.AuditService = audit
	router.TwoFactorService = &service.TwoFactorService{
		Store:    st,
		Devices:  &service.DeviceService{Store: st},
		Settings: &service.SettingsService{Store: st},
		Limiter:  &service.RateLimitService{Store: st},
		Audit:    audit,
		Issuer:   "TrustEngine",
	}
	router.ApplyRoutes()
	return router
}

func mintSubjectToken(t *testing.T) string {
	t.Helper()

	claims := httpx.SubjectClaims{
		SubjectType: "customer",
		SessionID:   "sess-77",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "01JEAH8V4N2Q6X9WRKC3M5T7PD",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(subjectSecret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0")
	req.Header.Set("Accept-Language", "en-AU")
	req.RemoteAddr = "203.0.113.9:51000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestSystemEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &health)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "ok", health.Checks["database"])
}

func TestEngineEndpointsRequireSubject(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/2fa/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	// Wrong-key token is also rejected.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpx.SubjectClaims{
		SubjectType: "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "someone",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("some other secret"))
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodGet, "/v1/2fa/status", bad, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEnrollVerifyOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := mintSubjectToken(t)

	var enrollment struct {
		Secret        string   `json:"secret"`
		URI           string   `json:"uri"`
		QRCode        string   `json:"qr_code"`
		RecoveryCodes []string `json:"recovery_codes"`
	}

	t.Run("enable", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/enable", token,
			map[string]string{"account_label": "customer@example.com"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		decodeBody(t, rec, &enrollment)
		require.NotEmpty(t, enrollment.Secret)
		require.Contains(t, enrollment.URI, "otpauth://totp/")
		require.Contains(t, enrollment.QRCode, "data:image/png;base64,")
		require.Len(t, enrollment.RecoveryCodes, 10)
	})

	t.Run("confirm with wrong code", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/confirm", token,
			map[string]string{"code": "000000"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errBody struct {
			Error string `json:"error"`
		}
		decodeBody(t, rec, &errBody)
		require.Equal(t, "invalid_code", errBody.Error)
	})

	t.Run("confirm", func(t *testing.T) {
		code, err := otpx.CodeAt(enrollment.Secret, time.Now())
		require.NoError(t, err)

		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/confirm", token,
			map[string]string{"code": code})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("status reflects enabled", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/v1/2fa/status", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var status struct {
			State                  string `json:"state"`
			Enabled                bool   `json:"enabled"`
			RecoveryCodesRemaining int    `json:"recovery_codes_remaining"`
		}
		decodeBody(t, rec, &status)
		require.Equal(t, "enabled", status.State)
		require.True(t, status.Enabled)
		require.Equal(t, 10, status.RecoveryCodesRemaining)
	})

	t.Run("verify with recovery code", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/verify", token,
			map[string]string{"code": enrollment.RecoveryCodes[0]})
		require.Equal(t, http.StatusOK, rec.Code)

		var result struct {
			Verified               bool   `json:"verified"`
			Method                 string `json:"method"`
			RecoveryCodesRemaining int    `json:"recovery_codes_remaining"`
		}
		decodeBody(t, rec, &result)
		require.True(t, result.Verified)
		require.Equal(t, "recovery", result.Method)
		require.Equal(t, 9, result.RecoveryCodesRemaining)
	})

	t.Run("used recovery code is rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/verify", token,
			map[string]string{"code": enrollment.RecoveryCodes[0]})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeviceEndpoints(t *testing.T) {
	router := newTestRouter(t)
	token := mintSubjectToken(t)

	// Enroll first: device trust requires an enabled credential.
	rec := doJSON(t, router, http.MethodPost, "/v1/2fa/enable", token,
		map[string]string{"account_label": "customer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var enrollment struct {
		Secret string `json:"secret"`
	}
	decodeBody(t, rec, &enrollment)

	code, err := otpx.CodeAt(enrollment.Secret, time.Now())
	require.NoError(t, err)
	rec = doJSON(t, router, http.MethodPost, "/v1/2fa/confirm", token, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code)

	var deviceID string
	t.Run("trust current device", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/devices/trust", token,
			map[string]string{"device_name": "Office laptop"})
		require.Equal(t, http.StatusOK, rec.Code)

		var device struct {
			DeviceID          string `json:"device_id"`
			DeviceType        string `json:"device_type"`
			Active            bool   `json:"active"`
			WasAlreadyTrusted bool   `json:"was_already_trusted"`
		}
		decodeBody(t, rec, &device)
		require.NotEmpty(t, device.DeviceID)
		require.Equal(t, "desktop", device.DeviceType)
		require.True(t, device.Active)
		require.False(t, device.WasAlreadyTrusted)
		deviceID = device.DeviceID
	})

	t.Run("re-trust reports already trusted", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/devices/trust", token,
			map[string]string{"device_name": "Office laptop"})
		require.Equal(t, http.StatusOK, rec.Code)

		var device struct {
			DeviceID          string `json:"device_id"`
			WasAlreadyTrusted bool   `json:"was_already_trusted"`
		}
		decodeBody(t, rec, &device)
		require.Equal(t, deviceID, device.DeviceID)
		require.True(t, device.WasAlreadyTrusted)
	})

	t.Run("trusted device skips verification", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/2fa/verify", token,
			map[string]string{"code": ""})
		require.Equal(t, http.StatusOK, rec.Code)

		var result struct {
			TrustedDeviceSkip bool `json:"trusted_device_skip"`
		}
		decodeBody(t, rec, &result)
		require.True(t, result.TrustedDeviceSkip)
	})

	t.Run("list devices", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/v1/devices", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list struct {
			Devices []struct {
				DeviceID string `json:"device_id"`
			} `json:"devices"`
		}
		decodeBody(t, rec, &list)
		require.Len(t, list.Devices, 1)
		require.Equal(t, deviceID, list.Devices[0].DeviceID)
	})

	t.Run("revoke device", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodDelete, "/v1/devices/"+deviceID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodDelete, "/v1/devices/"+deviceID, token, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAuditEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := mintSubjectToken(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/2fa/enable", token,
		map[string]string{"account_label": "customer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/audit?limit=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var trail struct {
		Entries []struct {
			Action    string `json:"action"`
			RiskLevel string `json:"risk_level"`
		} `json:"entries"`
	}
	decodeBody(t, rec, &trail)
	require.NotEmpty(t, trail.Entries)
	require.Equal(t, "2fa.enable", trail.Entries[0].Action)
	require.NotEmpty(t, trail.Entries[0].RiskLevel)
}
