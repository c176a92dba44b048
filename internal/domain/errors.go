package domain

import "fmt"

// Sentinel errors for the domain layer. Adapters wrap these with %w so the
// classifier and callers can use errors.Is across the async boundary.
var (
	ErrNotFound       = fmt.Errorf("not found")
	ErrInvalidInput   = fmt.Errorf("invalid input")
	ErrAuthInvalid    = fmt.Errorf("authentication failed")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrBackend        = fmt.Errorf("backend error")
	ErrUnavailable    = fmt.Errorf("service unavailable")
	ErrSessionExpired = fmt.Errorf("session expired")
	ErrGeoDenied      = fmt.Errorf("geolocation unavailable")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g. "backend.Send")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}
