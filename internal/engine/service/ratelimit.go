package service

import (
	"context"
	"time"

	"github.com/damku999/trustengine/internal/engine/domain"
	"github.com/damku999/trustengine/internal/engine/store"
)

// RateLimitService wraps the store's atomic fixed-window counter with
// a check-and-increment decision. Every call counts against the
// budget, including the one that gets denied.
type RateLimitService struct {
	Store store.Store

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *RateLimitService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CheckAndIncrement records one attempt for key and reports whether it
// fits within maxAttempts per window. The increment happens before the
// comparison, so concurrent callers each consume a distinct slot and
// exactly maxAttempts of them are allowed per window.
func (s *RateLimitService) CheckAndIncrement(ctx context.Context, key domain.RateLimitKey, maxAttempts int, window time.Duration) (domain.RateLimitDecision, error) {
	w, err := s.Store.RateLimits().Hit(ctx, key, s.now(), window)
	if err != nil {
		return domain.RateLimitDecision{}, storageErr("hit rate limit window", err)
	}

	remaining := maxAttempts - w.Attempts
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateLimitDecision{
		Allowed:   w.Attempts <= maxAttempts,
		Remaining: remaining,
		ResetAt:   w.WindowStart.Add(window),
	}, nil
}
