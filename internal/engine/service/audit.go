package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/store"
	"github.com/damku999/trustengine/pkg/idx"
	"github.com/damku999/trustengine/pkg/slogx"
)

// Additive risk weights. All non-negative, so adding a signal can only
// raise the score.
const (
	riskUnknownDevice   = 25
	riskRevokedDevice   = 10
	riskPerFailure      = 8
	riskFailureCap      = 40
	riskOffHours        = 10
	riskGeoDistance     = 15
	riskSensitiveAction = 20

	riskGeoDistanceKm = 500.0
)

// Office hours for the off-hours signal, UTC.
const (
	businessHoursStart = 6  // inclusive
	businessHoursEnd   = 22 // exclusive
)

// RiskSignals are the observed inputs to the risk scorer. Callers set
// only what they observed; the zero value scores zero.
type RiskSignals struct {
	UnknownDevice   bool    // fingerprint has no trust row
	RevokedDevice   bool    // trust row exists but is revoked or expired
	RecentFailures  int     // failed attempts inside the attempt window
	OffHours        bool    // outside business hours
	GeoDistanceKm   float64 // distance from last known location, 0 = unknown
	SensitiveAction bool    // disable, regenerate and similar
}

// ScoreRisk folds signals into a 0-100 score and the list of factor
// labels that contributed. The labels are stable identifiers persisted
// on the audit entry.
func ScoreRisk(sig RiskSignals) (int, []string) {
	score := 0
	var factors []string

	if sig.UnknownDevice {
		score += riskUnknownDevice
		factors = append(factors, "unknown_device")
	}
	if sig.RevokedDevice {
		score += riskRevokedDevice
		factors = append(factors, "revoked_device")
	}
	if sig.RecentFailures > 0 {
		penalty := sig.RecentFailures * riskPerFailure
		if penalty > riskFailureCap {
			penalty = riskFailureCap
		}
		score += penalty
		factors = append(factors, "recent_failures")
	}
	if sig.OffHours {
		score += riskOffHours
		factors = append(factors, "off_hours")
	}
	if sig.GeoDistanceKm > riskGeoDistanceKm {
		score += riskGeoDistance
		factors = append(factors, "geo_distance")
	}
	if sig.SensitiveAction {
		score += riskSensitiveAction
		factors = append(factors, "sensitive_action")
	}

	if score > 100 {
		score = 100
	}
	return score, factors
}

// OffHours reports whether t falls outside business hours (UTC).
func OffHours(t time.Time) bool {
	h := t.UTC().Hour()
	return h < businessHoursStart || h >= businessHoursEnd
}

// AuditService appends risk-scored entries to the ledger. Recording is
// best-effort relative to the operation being audited: a ledger write
// failure is logged, never propagated, so an audit outage cannot lock
// subjects out.
type AuditService struct {
	Store store.Store

	Now func() time.Time
}

func (s *AuditService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Record scores signals, stamps the entry and appends it. The caller
// fills the descriptive fields (action, category, actor, request
// context); ID, OccurredAt and all risk fields are set here.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry, signals RiskSignals) {
	now := s.now()

	score, factors := ScoreRisk(signals)
	level := domain.RiskLevelForScore(score)

	entry.ID = idx.New()
	entry.OccurredAt = now
	entry.RiskScore = score
	entry.RiskLevel = level
	entry.RiskFactors = factors
	entry.IsSuspicious = level == domain.RiskHigh || level == domain.RiskCritical

	if err := s.Store.Audit().Append(ctx, entry); err != nil {
		slogx.FromContext(ctx).Error("failed to append audit entry",
			slog.String("action", entry.Action),
			slog.String("actor", entry.Actor.String()),
			slog.Any("error", err),
		)
		return
	}

	if entry.IsSuspicious {
		slogx.FromContext(ctx).Warn("suspicious activity recorded",
			slog.String("action", entry.Action),
			slog.String("actor", entry.Actor.String()),
			slog.Int("risk_score", score),
			slog.String("risk_level", string(level)),
		)
	}
}

// Recent returns the actor's newest entries, up to limit.
func (s *AuditService) Recent(ctx context.Context, actor domain.Subject, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, err := s.Store.Audit().ListByActor(ctx, actor, limit)
	if err != nil {
		return nil, storageErr("list audit entries", err)
	}
	return entries, nil
}
