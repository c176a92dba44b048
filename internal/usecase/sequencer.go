package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"medichat/internal/domain"
)

// HistoryLoader is the slice of the backend the sequencer needs.
type HistoryLoader interface {
	FetchHistory(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// LoadSequencer serializes history fetches: at most one fetch is in flight,
// and starting a new one aborts the previous. Users click through sessions
// faster than loads resolve; without this, a slow earlier load could clobber
// a later, faster one and display the wrong transcript.
type LoadSequencer struct {
	mu     sync.Mutex
	gen    uint64             // increments per load; stale loads compare against it
	cancel context.CancelFunc // token of the outstanding load, nil when idle

	backend HistoryLoader
	cache   *SessionCache
	logger  *slog.Logger
}

// NewLoadSequencer creates a sequencer over backend and cache.
func NewLoadSequencer(backend HistoryLoader, cache *SessionCache, logger *slog.Logger) *LoadSequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadSequencer{backend: backend, cache: cache, logger: logger}
}

// Load resolves sessionID's transcript and hands it to apply.
//
// A non-empty cache entry short-circuits synchronously: apply runs with the
// cached transcript and no network call is made. Otherwise any still-pending
// load is cancelled (its eventual resolution is ignored, not an error) and a
// fresh fetch starts. On success the transcript is written to the cache and
// apply runs -- but only if no newer load has started meanwhile. On failure
// apply never runs, leaving the previous view untouched.
func (s *LoadSequencer) Load(ctx context.Context, sessionID string, apply func([]domain.Message)) {
	if cached, ok := s.cache.Load(sessionID); ok && len(cached) > 0 {
		apply(cached)
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel() // newer load wins by actively aborting the older one
	}
	s.gen++
	gen := s.gen
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		msgs, err := s.backend.FetchHistory(loadCtx, sessionID)

		s.mu.Lock()
		stale := gen != s.gen
		if !stale {
			s.cancel = nil
		}
		s.mu.Unlock()

		switch {
		case errors.Is(err, context.Canceled) || stale:
			// Superseded; discard with no UI change.
			return
		case err != nil:
			s.logger.Warn("history load failed", "session_id", sessionID, "error", err)
			return
		}

		s.cache.Save(sessionID, msgs)
		apply(msgs)
	}()
}

// Loading reports whether a fetch is currently outstanding.
func (s *LoadSequencer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
