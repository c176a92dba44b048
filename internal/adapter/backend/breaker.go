package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
)

// BreakerBackend wraps a ChatBackend with circuit breaker protection on
// Send. When the backend fails repeatedly the circuit opens and subsequent
// sends fail fast without reaching the network, preventing retry storms
// against a down assistant.
//
// History and session listing bypass the breaker: both are cheap reads
// answered from the session cache most of the time, and failing them fast
// would only blank the picker.
type BreakerBackend struct {
	inner   domain.ChatBackend
	breaker *gobreaker.CircuitBreaker[*domain.ChatResult]
	logger  *slog.Logger
}

var _ domain.ChatBackend = (*BreakerBackend)(nil)

// NewBreakerBackend wraps inner with a circuit breaker configured by cfg.
// Zero-valued fields fall back to the config defaults.
func NewBreakerBackend(inner domain.ChatBackend, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	def := config.Defaults().Backend.Breaker
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = def.MaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = def.Interval
	}

	cb := gobreaker.NewCircuitBreaker[*domain.ChatResult](gobreaker.Settings{
		Name:        "backend:send",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Cancelled sends are the coordinator discarding a stale
			// request, not a backend fault; they must not trip the circuit.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerBackend{inner: inner, breaker: cb, logger: logger}
}

// Send implements domain.ChatBackend. Calls are routed through the breaker.
func (b *BreakerBackend) Send(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
	res, err := b.breaker.Execute(func() (*domain.ChatResult, error) {
		return b.inner.Send(ctx, sessionID, query)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: circuit open: %v", domain.ErrUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

// FetchHistory implements domain.ChatBackend.
func (b *BreakerBackend) FetchHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return b.inner.FetchHistory(ctx, sessionID)
}

// ListSessions implements domain.ChatBackend.
func (b *BreakerBackend) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return b.inner.ListSessions(ctx)
}

// State returns the current breaker state for monitoring.
func (b *BreakerBackend) State() gobreaker.State { return b.breaker.State() }

// Counts returns the current breaker failure/success counts.
func (b *BreakerBackend) Counts() gobreaker.Counts { return b.breaker.Counts() }
