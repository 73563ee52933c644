package sqlite

import (
	"context"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) ReplaceAll(ctx context.Context, subject domain.Subject, codes []domain.RecoveryCode) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM recovery_codes WHERE subject_type = ? AND subject_id = ?`,
		subject.Type, subject.ID,
	); err != nil {
		return err
	}

	for _, code := range codes {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO recovery_codes (id, subject_type, subject_id, code_hash, used_at, created_at)
			VALUES (?, ?, ?, ?, NULL, ?)`,
			code.ID, subject.Type, subject.ID, code.CodeHash, code.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *recoveryCodesRepo) Consume(ctx context.Context, subject domain.Subject, codeHash string, at time.Time) (bool, error) {
	// Conditional single-statement update: of two concurrent consumers
	// of the same code, exactly one sees a row flip from unused.
	res, err := r.db.ExecContext(ctx, `
		UPDATE recovery_codes
		SET used_at = ?
		WHERE subject_type = ? AND subject_id = ? AND code_hash = ? AND used_at IS NULL`,
		at, subject.Type, subject.ID, codeHash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *recoveryCodesRepo) CountRemaining(ctx context.Context, subject domain.Subject) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recovery_codes
		WHERE subject_type = ? AND subject_id = ? AND used_at IS NULL`,
		subject.Type, subject.ID,
	).Scan(&count)
	return count, err
}

func (r *recoveryCodesRepo) DeleteAll(ctx context.Context, subject domain.Subject) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM recovery_codes WHERE subject_type = ? AND subject_id = ?`,
		subject.Type, subject.ID,
	)
	return err
}
