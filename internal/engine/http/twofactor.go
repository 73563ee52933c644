package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/pkg/httpx"
	"github.com/damku999/trustengine/pkg/slogx"
)

// TwoFactorHandler serves the 2FA lifecycle endpoints.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
}

type statusResponse struct {
	State                  string     `json:"state"`
	Enabled                bool       `json:"enabled"`
	ConfirmedAt            *time.Time `json:"confirmed_at,omitempty"`
	RecoveryCodesRemaining int        `json:"recovery_codes_remaining"`
	TrustedDevices         int        `json:"trusted_devices"`
}

type enableRequest struct {
	AccountLabel string `json:"account_label"`
}

type enableResponse struct {
	Secret        string   `json:"secret"`
	URI           string   `json:"uri"`
	QRCode        string   `json:"qr_code"`
	RecoveryCodes []string `json:"recovery_codes"`
}

type confirmRequest struct {
	Code string `json:"code"`
}

type verifyRequest struct {
	Code string `json:"code"`

	// Optional extra fingerprint hints the client collected.
	DeviceHints map[string]string `json:"device_hints,omitempty"`
}

type verifyResponse struct {
	Verified               bool   `json:"verified"`
	Method                 string `json:"method,omitempty"`
	TrustedDeviceSkip      bool   `json:"trusted_device_skip"`
	RecoveryCodesRemaining int    `json:"recovery_codes_remaining,omitempty"`
	RecoveryCodesLow       bool   `json:"recovery_codes_low,omitempty"`
}

type disableRequest struct {
	Password  string `json:"password"`
	Confirmed bool   `json:"confirmed"`
}

type regenerateRequest struct {
	Password string `json:"password"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// HandleStatus handles GET /v1/2fa/status.
func (h *TwoFactorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	status, err := h.TwoFactorService.Status(ctx, subject)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, statusResponse{
		State:                  string(status.State),
		Enabled:                status.Enabled,
		ConfirmedAt:            status.ConfirmedAt,
		RecoveryCodesRemaining: status.RecoveryCodesRemaining,
		TrustedDevices:         status.TrustedDevices,
	})
}

// HandleEnable handles POST /v1/2fa/enable. The secret and recovery
// codes in the response are shown exactly once.
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.AccountLabel == "" {
		req.AccountLabel = subject.String()
	}

	resp, err := h.TwoFactorService.Enable(ctx, subject, req.AccountLabel, requestCtxFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enableResponse{
		Secret:        resp.Secret,
		URI:           resp.URI,
		QRCode:        resp.QRCode,
		RecoveryCodes: resp.RecoveryCodes,
	})
}

// HandleConfirm handles POST /v1/2fa/confirm.
func (h *TwoFactorHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.TwoFactorService.Confirm(ctx, subject, req.Code, requestCtxFrom(r)); err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"state": string(domain.StateEnabled),
	})
}

// HandleVerify handles POST /v1/2fa/verify: the login challenge.
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	result, err := h.TwoFactorService.VerifyLogin(ctx, subject, req.Code, attrsFrom(r, req.DeviceHints), requestCtxFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{
		Verified:               true,
		Method:                 string(result.Method),
		TrustedDeviceSkip:      result.TrustedDeviceSkip,
		RecoveryCodesRemaining: result.RecoveryCodesRemaining,
		RecoveryCodesLow:       result.RecoveryCodesLow,
	})
}

// HandleDisable handles POST /v1/2fa/disable.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req disableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.TwoFactorService.Disable(ctx, subject, req.Password, req.Confirmed, requestCtxFrom(r)); err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"state": string(domain.StateDisabled),
	})
}

// HandleRegenerateRecoveryCodes handles
// POST /v1/2fa/recovery-codes/regenerate. The returned plaintexts are
// shown exactly once; the previous set stops working entirely.
func (h *TwoFactorHandler) HandleRegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	codes, err := h.TwoFactorService.RegenerateRecoveryCodes(ctx, subject, req.Password, requestCtxFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}
