// Package domain holds the trust engine's plain data types. Rows are
// owned by an abstract Subject so the engine never branches on whether
// the principal is a staff user or a portal customer.
package domain

import "errors"

// SubjectType distinguishes the two principal kinds the surrounding
// application knows about.
type SubjectType string

const (
	SubjectUser     SubjectType = "user"
	SubjectCustomer SubjectType = "customer"
)

var ErrInvalidSubject = errors.New("domain: invalid subject reference")

// Subject is the opaque reference to an authenticated principal. It is
// resolved by the caller; the engine only keys records by it.
type Subject struct {
	Type SubjectType
	ID   string
}

// Validate checks that the reference is complete and of a known type.
func (s Subject) Validate() error {
	if s.ID == "" {
		return ErrInvalidSubject
	}
	switch s.Type {
	case SubjectUser, SubjectCustomer:
		return nil
	default:
		return ErrInvalidSubject
	}
}

// String renders the canonical "type:id" form used as a rate-limit
// identifier and in log fields.
func (s Subject) String() string {
	return string(s.Type) + ":" + s.ID
}
