package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type auditRepo struct {
	db dbtx
}

const auditColumns = `id, actor_type, actor_id, action, category,
	target_type, target_id, old_values, new_values, metadata,
	ip_address, user_agent, session_id, request_id,
	risk_score, risk_level, risk_factors, is_suspicious, geolocation, occurred_at`

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor.Type, e.Actor.ID, e.Action, e.Category,
		nullString(e.TargetType), nullString(e.TargetID),
		nullRawJSON(e.OldValues), nullRawJSON(e.NewValues), metadata,
		nullString(e.IPAddress), nullString(e.UserAgent),
		nullString(e.SessionID), nullString(e.RequestID),
		e.RiskScore, e.RiskLevel, strings.Join(e.RiskFactors, " "),
		e.IsSuspicious, nullString(e.Geolocation), e.OccurredAt,
	)
	return err
}

func (r *auditRepo) ListByActor(ctx context.Context, actor domain.Subject, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_entries
		WHERE actor_type = ? AND actor_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`,
		actor.Type, actor.ID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAuditEntry(s rowScanner) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var targetType, targetID, oldValues, newValues, metadata sql.NullString
	var ipAddress, userAgent, sessionID, requestID, geolocation sql.NullString
	var riskFactors string

	err := s.Scan(
		&e.ID, &e.Actor.Type, &e.Actor.ID, &e.Action, &e.Category,
		&targetType, &targetID, &oldValues, &newValues, &metadata,
		&ipAddress, &userAgent, &sessionID, &requestID,
		&e.RiskScore, &e.RiskLevel, &riskFactors, &e.IsSuspicious,
		&geolocation, &e.OccurredAt,
	)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	e.TargetType = fromNullString(targetType)
	e.TargetID = fromNullString(targetID)
	e.IPAddress = fromNullString(ipAddress)
	e.UserAgent = fromNullString(userAgent)
	e.SessionID = fromNullString(sessionID)
	e.RequestID = fromNullString(requestID)
	e.Geolocation = fromNullString(geolocation)
	e.RiskFactors = splitAndFilter(riskFactors)

	if oldValues.Valid {
		e.OldValues = json.RawMessage(oldValues.String)
	}
	if newValues.Valid {
		e.NewValues = json.RawMessage(newValues.String)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return e, nil
}

func nullRawJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func splitAndFilter(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
