package sqlite

import (
	"context"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type attemptsRepo struct {
	db dbtx
}

func (r *attemptsRepo) Record(ctx context.Context, a domain.VerificationAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (
			id, subject_type, subject_id, code_type,
			ip_address, user_agent, successful, failure_reason, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Subject.Type, a.Subject.ID, a.CodeType,
		a.IPAddress, a.UserAgent, a.Successful, a.FailureReason, a.AttemptedAt,
	)
	return err
}

func (r *attemptsRepo) CountFailuresSince(ctx context.Context, subject domain.Subject, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_attempts
		WHERE subject_type = ? AND subject_id = ? AND successful = 0 AND attempted_at >= ?`,
		subject.Type, subject.ID, since,
	).Scan(&count)
	return count, err
}
