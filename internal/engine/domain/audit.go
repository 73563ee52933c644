package domain

import (
	"encoding/json"
	"time"

	"github.com/damku999/trustengine/pkg/idx"
)

// RiskLevel buckets a risk score into operational severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Fixed risk-level thresholds. Scores are clamped to [0, 100].
const (
	RiskMediumThreshold   = 25
	RiskHighThreshold     = 50
	RiskCriticalThreshold = 75
)

// RiskLevelForScore maps a score onto its level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= RiskCriticalThreshold:
		return RiskCritical
	case score >= RiskHighThreshold:
		return RiskHigh
	case score >= RiskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AuditEntry is an append-only record of an authentication-related
// event. Entries are never updated or deleted by the engine; retention
// is an external policy concern.
type AuditEntry struct {
	ID    idx.ID
	Actor Subject

	Action   string // e.g. "2fa.verify"
	Category string // "authentication" or "security"

	TargetType string
	TargetID   string

	// Before/after snapshots as opaque JSON blobs; nil when the event
	// did not change state.
	OldValues json.RawMessage
	NewValues json.RawMessage

	Metadata map[string]string

	IPAddress string
	UserAgent string
	SessionID string
	RequestID string

	RiskScore    int // 0-100
	RiskLevel    RiskLevel
	RiskFactors  []string
	IsSuspicious bool

	Geolocation string

	OccurredAt time.Time
}
