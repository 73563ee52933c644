package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type credentialsRepo struct {
	db dbtx
}

const credentialColumns = `subject_type, subject_id, secret, recovery_salt, state,
	last_verified_step, backup_method, backup_destination,
	enabled_at, confirmed_at, created_at, updated_at`

func (r *credentialsRepo) Get(ctx context.Context, subject domain.Subject) (domain.TwoFactorCredential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM two_factor_credentials
		WHERE subject_type = ? AND subject_id = ?`,
		subject.Type, subject.ID,
	)
	return scanCredential(row)
}

func (r *credentialsRepo) UpsertPending(ctx context.Context, cred domain.TwoFactorCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_credentials (
			subject_type, subject_id, secret, recovery_salt, state,
			last_verified_step, backup_method, backup_destination,
			enabled_at, confirmed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (subject_type, subject_id) DO UPDATE SET
			secret             = excluded.secret,
			recovery_salt      = excluded.recovery_salt,
			state              = excluded.state,
			last_verified_step = 0,
			backup_method      = excluded.backup_method,
			backup_destination = excluded.backup_destination,
			enabled_at         = excluded.enabled_at,
			confirmed_at       = NULL,
			updated_at         = excluded.updated_at`,
		cred.Subject.Type, cred.Subject.ID, cred.Secret, cred.RecoveryCodeSalt, cred.State,
		nullString(cred.BackupMethod), nullString(cred.BackupDestination),
		cred.EnabledAt, cred.UpdatedAt, cred.UpdatedAt,
	)
	return err
}

func (r *credentialsRepo) ConfirmEnabled(ctx context.Context, subject domain.Subject, confirmedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_credentials
		SET state = ?, confirmed_at = ?, updated_at = ?
		WHERE subject_type = ? AND subject_id = ? AND state = ?`,
		domain.StateEnabled, confirmedAt, confirmedAt,
		subject.Type, subject.ID, domain.StatePendingConfirmation,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *credentialsRepo) Disable(ctx context.Context, subject domain.Subject, from domain.CredentialState, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_credentials
		SET secret = '', recovery_salt = '', state = ?,
		    last_verified_step = 0, enabled_at = NULL, confirmed_at = NULL,
		    updated_at = ?
		WHERE subject_type = ? AND subject_id = ? AND state = ?`,
		domain.StateDisabled, at, subject.Type, subject.ID, from,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *credentialsRepo) MarkVerifiedStep(ctx context.Context, subject domain.Subject, step int64) (bool, error) {
	// The guard makes replay detection a single atomic statement: only
	// one request per time-step can advance the marker.
	res, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_credentials
		SET last_verified_step = ?
		WHERE subject_type = ? AND subject_id = ? AND last_verified_step < ?`,
		step, subject.Type, subject.ID, step,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanCredential(row *sql.Row) (domain.TwoFactorCredential, error) {
	var c domain.TwoFactorCredential
	var backupMethod, backupDestination sql.NullString
	var enabledAt, confirmedAt sql.NullTime

	err := row.Scan(
		&c.Subject.Type, &c.Subject.ID, &c.Secret, &c.RecoveryCodeSalt, &c.State,
		&c.LastVerifiedStep, &backupMethod, &backupDestination,
		&enabledAt, &confirmedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.TwoFactorCredential{}, mapNotFound(err)
	}

	c.BackupMethod = fromNullString(backupMethod)
	c.BackupDestination = fromNullString(backupDestination)
	if enabledAt.Valid {
		t := enabledAt.Time
		c.EnabledAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	return c, nil
}
