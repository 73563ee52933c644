// Package http exposes the trust engine over JSON. Every engine
// endpoint sits behind the subject-resolver middleware: the
// surrounding application authenticates the principal and mints a
// short-lived context token, and these handlers only ever see the
// resolved subject reference.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/internal/engine/store"
	"github.com/damku999/trustengine/pkg/httpx"
	"github.com/damku999/trustengine/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	subjectSecret []byte
	buildVersion  string
	startTime     time.Time
	logger        *slog.Logger

	store            store.Store
	TwoFactorService *service.TwoFactorService
	AuditService     *service.AuditService
}

func NewRouter(subjectSecret []byte, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		subjectSecret: subjectSecret,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		store:         st,
		logger:        logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTwoFactor()
	r.registerDevices()
	r.registerAudit()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactorService: r.TwoFactorService}
	subject := httpx.SubjectMiddleware(r.subjectSecret)

	// GET /status - read-only, lenient limit
	r.Mux.Handle("GET /v1/2fa/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			subject,
			httpx.RateLimitMiddleware(httpx.LenientLimit, httpx.SubjectKey),
		),
	)

	// POST /enable - moderate limit; repeated calls regenerate the
	// pending secret so flooding is pointless but still bounded
	r.Mux.Handle("POST /v1/2fa/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnable),
			subject,
			httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.SubjectKey),
		),
	)

	// POST /confirm and /verify - strict transport limit in front of the
	// persistent per-subject attempt limiter
	r.Mux.Handle("POST /v1/2fa/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			subject,
			httpx.RateLimitMiddleware(httpx.StrictLimit, httpx.SubjectKey),
		),
	)
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			subject,
			httpx.RateLimitMiddleware(httpx.StrictLimit, httpx.SubjectKey),
		),
	)

	// POST /disable - moderate limit (password-gated)
	r.Mux.Handle("POST /v1/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			subject,
			httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.SubjectKey),
		),
	)

	// POST /recovery-codes/regenerate - moderate limit (password-gated)
	r.Mux.Handle("POST /v1/2fa/recovery-codes/regenerate",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateRecoveryCodes),
			subject,
			httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.SubjectKey),
		),
	)
}

func (r *Router) registerDevices() {
	h := &DevicesHandler{TwoFactorService: r.TwoFactorService}
	subject := httpx.SubjectMiddleware(r.subjectSecret)

	r.Mux.Handle("GET /v1/devices",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			subject,
			httpx.RateLimitMiddleware(httpx.LenientLimit, httpx.SubjectKey),
		),
	)
	r.Mux.Handle("POST /v1/devices/trust",
		httpx.Chain(http.HandlerFunc(h.HandleTrust),
			subject,
			httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.SubjectKey),
		),
	)
	r.Mux.Handle("DELETE /v1/devices/{device_id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			subject,
			httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.SubjectKey),
		),
	)
}

func (r *Router) registerAudit() {
	h := &AuditHandler{AuditService: r.AuditService}
	subject := httpx.SubjectMiddleware(r.subjectSecret)

	r.Mux.Handle("GET /v1/audit",
		httpx.Chain(http.HandlerFunc(h.HandleRecent),
			subject,
			httpx.RateLimitMiddleware(httpx.LenientLimit, httpx.SubjectKey),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitMiddleware(httpx.LenientLimit, httpx.IPKey),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitMiddleware(httpx.LenientLimit, httpx.IPKey),
		),
	)
}
