package domain

import "time"

// RateLimitKey identifies one fixed-window counter.
type RateLimitKey struct {
	Identifier     string // e.g. "user:42" or an IP address
	IdentifierType string // "subject" or "ip"
	Endpoint       string // e.g. "2fa:verify"
}

// RateLimitWindow is the persisted counter row. It is only ever
// mutated through the store's atomic hit operation.
type RateLimitWindow struct {
	Key RateLimitKey

	Attempts    int
	WindowStart time.Time
	LastAttempt time.Time
}

// RateLimitDecision is the outcome of a check-and-increment.
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
