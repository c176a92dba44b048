package backend

import (
	"context"

	"golang.org/x/time/rate"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
)

// RateLimitedBackend throttles Send against a token bucket so a fast
// typist cannot flood the assistant with concurrent requests. Waiting
// honors the send's context, so a cancelled or superseded request stops
// queuing immediately.
//
// Reads pass through untouched.
type RateLimitedBackend struct {
	inner   domain.ChatBackend
	limiter *rate.Limiter
}

var _ domain.ChatBackend = (*RateLimitedBackend)(nil)

// NewRateLimitedBackend wraps inner with the configured limit. When the
// limit is disabled the wrapper passes everything through.
func NewRateLimitedBackend(inner domain.ChatBackend, cfg config.RateLimitConfig) *RateLimitedBackend {
	var limiter *rate.Limiter
	if cfg.Enabled {
		rps := cfg.RPS
		if rps <= 0 {
			rps = config.Defaults().Backend.RateLimit.RPS
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimitedBackend{inner: inner, limiter: limiter}
}

// Send implements domain.ChatBackend.
func (r *RateLimitedBackend) Send(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return r.inner.Send(ctx, sessionID, query)
}

// FetchHistory implements domain.ChatBackend.
func (r *RateLimitedBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return r.inner.FetchHistory(ctx, sessionID)
}

// ListSessions implements domain.ChatBackend.
func (r *RateLimitedBackend) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return r.inner.ListSessions(ctx)
}
