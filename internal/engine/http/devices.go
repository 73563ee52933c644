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

// DevicesHandler serves trusted-device management.
type DevicesHandler struct {
	TwoFactorService *service.TwoFactorService
}

type trustRequest struct {
	DeviceName  string            `json:"device_name"`
	DeviceHints map[string]string `json:"device_hints,omitempty"`
}

type trustResponse struct {
	deviceResponse
	WasAlreadyTrusted bool `json:"was_already_trusted"`
}

type deviceResponse struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name,omitempty"`
	DeviceType string     `json:"device_type"`
	Browser    string     `json:"browser,omitempty"`
	Platform   string     `json:"platform,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	LastUsedAt time.Time  `json:"last_used_at"`
	TrustedAt  time.Time  `json:"trusted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
}

func toDeviceResponse(d domain.TrustedDevice) deviceResponse {
	return deviceResponse{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType,
		Browser:    d.Browser,
		Platform:   d.Platform,
		IPAddress:  d.IPAddress,
		LastUsedAt: d.LastUsedAt,
		TrustedAt:  d.TrustedAt,
		ExpiresAt:  d.ExpiresAt,
		Active:     d.IsActive,
	}
}

// HandleTrust handles POST /v1/devices/trust.
func (h *DevicesHandler) HandleTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req trustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	device, alreadyTrusted, err := h.TwoFactorService.TrustCurrentDevice(ctx, subject, attrsFrom(r, req.DeviceHints), req.DeviceName, requestCtxFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, trustResponse{
		deviceResponse:    toDeviceResponse(device),
		WasAlreadyTrusted: alreadyTrusted,
	})
}

// HandleList handles GET /v1/devices.
func (h *DevicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	devices, err := h.TwoFactorService.ListDevices(ctx, subject)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceResponse(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// HandleRevoke handles DELETE /v1/devices/{device_id}.
func (h *DevicesHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Missing device id")
		return
	}

	if err := h.TwoFactorService.RevokeDevice(ctx, subject, deviceID, requestCtxFrom(r)); err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
