package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/service"
	"github.com/damku999/trustengine/pkg/httpx"
	"github.com/damku999/trustengine/pkg/slogx"
)

// AuditHandler exposes a subject's own authentication history.
type AuditHandler struct {
	AuditService *service.AuditService
}

type auditEntryResponse struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"`
	Category     string            `json:"category"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	RiskScore    int               `json:"risk_score"`
	RiskLevel    string            `json:"risk_level"`
	RiskFactors  []string          `json:"risk_factors,omitempty"`
	IsSuspicious bool              `json:"is_suspicious"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

func toAuditEntryResponse(e domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID.String(),
		Action:       e.Action,
		Category:     e.Category,
		Metadata:     e.Metadata,
		IPAddress:    e.IPAddress,
		RiskScore:    e.RiskScore,
		RiskLevel:    string(e.RiskLevel),
		RiskFactors:  e.RiskFactors,
		IsSuspicious: e.IsSuspicious,
		OccurredAt:   e.OccurredAt,
	}
}

// HandleRecent handles GET /v1/audit?limit=N. Subjects only ever see
// their own trail; the internal snapshots (old/new values) stay
// internal.
func (h *AuditHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	subject, ok := subjectFrom(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.AuditService.Recent(ctx, subject, limit)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
