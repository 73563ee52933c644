package sqlite

import (
	"context"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
)

type rateLimitsRepo struct {
	db dbtx
}

func (r *rateLimitsRepo) Hit(ctx context.Context, key domain.RateLimitKey, now time.Time, window time.Duration) (domain.RateLimitWindow, error) {
	// Single upsert: start a fresh window when none exists or the
	// stored one has expired, otherwise increment in place. Concurrent
	// hits serialize on the row; the caller sees the post-increment
	// count, so increment-and-compare stays race-free.
	cutoff := now.Add(-window)

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_windows (identifier, identifier_type, endpoint, attempts, window_start, last_attempt)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (identifier, identifier_type, endpoint) DO UPDATE SET
			attempts = CASE
				WHEN rate_limit_windows.window_start <= ? THEN 1
				ELSE rate_limit_windows.attempts + 1
			END,
			window_start = CASE
				WHEN rate_limit_windows.window_start <= ? THEN excluded.window_start
				ELSE rate_limit_windows.window_start
			END,
			last_attempt = excluded.last_attempt
		RETURNING attempts, window_start, last_attempt`,
		key.Identifier, key.IdentifierType, key.Endpoint, now, now,
		cutoff, cutoff,
	)

	w := domain.RateLimitWindow{Key: key}
	if err := row.Scan(&w.Attempts, &w.WindowStart, &w.LastAttempt); err != nil {
		return domain.RateLimitWindow{}, err
	}
	return w, nil
}

func (r *rateLimitsRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM rate_limit_windows WHERE window_start < ?`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
