package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/pkg/cryptox"
	"github.com/damku999/trustengine/pkg/fingerprintx"
	"github.com/damku999/trustengine/pkg/httpx"
	"github.com/damku999/trustengine/pkg/slogx"
)

// subjectFrom resolves the authenticated subject injected by the
// subject middleware. A false return means the middleware was bypassed
// somehow; callers must 401.
func subjectFrom(r *http.Request) (domain.Subject, bool) {
	st, sid, ok := httpx.SubjectFromContext(r.Context())
	if !ok {
		return domain.Subject{}, false
	}
	subject := domain.Subject{Type: domain.SubjectType(st), ID: sid}
	if err := subject.Validate(); err != nil {
		return domain.Subject{}, false
	}
	return subject, true
}

// attrsFrom assembles the fingerprint vector from request headers.
// Clients may post additional stable hints; those arrive in the request
// body and are merged by the handler.
func attrsFrom(r *http.Request, extra map[string]string) fingerprintx.Attributes {
	return fingerprintx.Attributes{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Platform:       r.Header.Get("Sec-CH-UA-Platform"),
		IPAddress:      httpx.ClientIP(r),
		Extra:          extra,
	}
}

func requestCtxFrom(r *http.Request) service.RequestContext {
	return service.RequestContext{
		IPAddress: httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: httpx.SessionIDFromContext(r.Context()),
		RequestID: slogx.RequestIDFromContext(r.Context()),
	}
}

// writeServiceError maps service-layer errors onto the JSON error
// surface. Verification failures stay deliberately vague.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var stateErr *service.InvalidStateError
	var limited *service.RateLimitedError
	var storage *service.StorageError

	switch {
	case errors.As(err, &storage):
		log.Error("storage failure", "op", storage.Op, "err", storage.Err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage_error",
			"The service is temporarily unavailable.")

	case errors.As(err, &limited):
		retry := int(time.Until(limited.ResetAt).Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts",
			"Too many attempts. Please try again later.")

	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code",
			"The provided code is not valid.")

	case errors.As(err, &stateErr):
		httpx.WriteError(w, http.StatusConflict, "invalid_state", stateErr.Error())

	case errors.Is(err, service.ErrConfirmationRequired):
		httpx.WriteError(w, http.StatusBadRequest, "confirmation_required",
			"This action requires explicit confirmation.")

	case errors.Is(err, cryptox.ErrPasswordMismatch):
		httpx.WriteError(w, http.StatusForbidden, "invalid_password",
			"Password verification failed.")

	case errors.Is(err, service.ErrDeviceNotFound):
		httpx.WriteError(w, http.StatusNotFound, "device_not_found",
			"No trusted device with that id.")

	case errors.Is(err, domain.ErrInvalidSubject):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_subject",
			"Subject reference is missing or malformed.")

	default:
		log.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error",
			"An internal error occurred.")
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_subject",
		"Subject reference is missing or malformed.")
}
