package usecase

import (
	"context"
	"errors"
	"strings"

	"medichat/internal/domain"
)

// ErrorKind buckets a resolution error for routing purposes.
type ErrorKind int

const (
	// ErrorKindTransport covers network failures, backend 5xx, rate limits
	// and timeouts enforced at the backend boundary. Recoverable; surfaced
	// only in the originating session while it is still viewed.
	ErrorKindTransport ErrorKind = iota
	// ErrorKindCancelled means the send's token was aborted. Expected and
	// silent; never surfaced to the user.
	ErrorKindCancelled
	// ErrorKindAuth means the credential was rejected. Terminal for the
	// send; surfaced as a session-expired notice.
	ErrorKindAuth
)

// ErrorClassifier analyzes backend errors and categorizes them.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify inspects an error from the backend boundary. A deadline exceeded
// on the request context is a transport failure, not a cancellation: only an
// explicit token abort counts as cancelled.
func (c *ErrorClassifier) Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, domain.ErrAuthInvalid), errors.Is(err, domain.ErrSessionExpired):
		return ErrorKindAuth
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTransport
	default:
		// String fallback for transports that do not wrap context errors.
		if strings.Contains(err.Error(), "context canceled") {
			return ErrorKindCancelled
		}
		return ErrorKindTransport
	}
}
