package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type devicesRepo struct {
	db dbtx
}

const deviceColumns = `id, subject_type, subject_id, device_id, device_name, device_type,
	browser, platform, ip_address, user_agent,
	last_used_at, trusted_at, expires_at, is_active, created_at, updated_at`

func (r *devicesRepo) Upsert(ctx context.Context, d domain.TrustedDevice) (domain.TrustedDevice, bool, error) {
	// Existence check first, then a single atomic upsert on the
	// device_id uniqueness constraint. The boolean only feeds the
	// response payload; correctness rests on the upsert.
	var existing int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trusted_devices
		WHERE subject_type = ? AND subject_id = ? AND device_id = ? AND is_active = 1`,
		d.Subject.Type, d.Subject.ID, d.DeviceID,
	).Scan(&existing); err != nil {
		return domain.TrustedDevice{}, false, err
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO trusted_devices (
			id, subject_type, subject_id, device_id, device_name, device_type,
			browser, platform, ip_address, user_agent,
			last_used_at, trusted_at, expires_at, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			subject_type = excluded.subject_type,
			subject_id   = excluded.subject_id,
			device_name  = excluded.device_name,
			device_type  = excluded.device_type,
			browser      = excluded.browser,
			platform     = excluded.platform,
			ip_address   = excluded.ip_address,
			user_agent   = excluded.user_agent,
			last_used_at = excluded.last_used_at,
			trusted_at   = excluded.trusted_at,
			expires_at   = excluded.expires_at,
			is_active    = 1,
			updated_at   = excluded.updated_at
		RETURNING `+deviceColumns,
		d.ID, d.Subject.Type, d.Subject.ID, d.DeviceID, d.DeviceName, d.DeviceType,
		d.Browser, d.Platform, d.IPAddress, d.UserAgent,
		d.LastUsedAt, d.TrustedAt, d.ExpiresAt, d.CreatedAt, d.UpdatedAt,
	)

	stored, err := scanDevice(row)
	if err != nil {
		return domain.TrustedDevice{}, false, err
	}
	return stored, existing > 0, nil
}

func (r *devicesRepo) Get(ctx context.Context, subject domain.Subject, deviceID string) (domain.TrustedDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+`
		FROM trusted_devices
		WHERE subject_type = ? AND subject_id = ? AND device_id = ?`,
		subject.Type, subject.ID, deviceID,
	)
	return scanDevice(row)
}

func (r *devicesRepo) Touch(ctx context.Context, subject domain.Subject, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices
		SET last_used_at = ?, updated_at = ?
		WHERE subject_type = ? AND subject_id = ? AND device_id = ?`,
		at, at, subject.Type, subject.ID, deviceID,
	)
	return err
}

func (r *devicesRepo) Revoke(ctx context.Context, subject domain.Subject, deviceID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices
		SET is_active = 0, updated_at = ?
		WHERE subject_type = ? AND subject_id = ? AND device_id = ? AND is_active = 1`,
		at, subject.Type, subject.ID, deviceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *devicesRepo) List(ctx context.Context, subject domain.Subject) ([]domain.TrustedDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`
		FROM trusted_devices
		WHERE subject_type = ? AND subject_id = ?
		ORDER BY last_used_at DESC`,
		subject.Type, subject.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.TrustedDevice
	for rows.Next() {
		d, err := scanDeviceRows(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *devicesRepo) CountActive(ctx context.Context, subject domain.Subject, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trusted_devices
		WHERE subject_type = ? AND subject_id = ? AND is_active = 1
		  AND (expires_at IS NULL OR expires_at > ?)`,
		subject.Type, subject.ID, now,
	).Scan(&count)
	return count, err
}

func (r *devicesRepo) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM trusted_devices
		WHERE is_active = 0 AND updated_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row *sql.Row) (domain.TrustedDevice, error) {
	d, err := scanDeviceFrom(row)
	if err != nil {
		return domain.TrustedDevice{}, mapNotFound(err)
	}
	return d, nil
}

func scanDeviceRows(rows *sql.Rows) (domain.TrustedDevice, error) {
	return scanDeviceFrom(rows)
}

func scanDeviceFrom(s rowScanner) (domain.TrustedDevice, error) {
	var d domain.TrustedDevice
	var expiresAt sql.NullTime

	err := s.Scan(
		&d.ID, &d.Subject.Type, &d.Subject.ID, &d.DeviceID, &d.DeviceName, &d.DeviceType,
		&d.Browser, &d.Platform, &d.IPAddress, &d.UserAgent,
		&d.LastUsedAt, &d.TrustedAt, &expiresAt, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.TrustedDevice{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	return d, nil
}
