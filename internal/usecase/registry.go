package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"medichat/internal/domain"
)

// SessionLister is the slice of the backend the registry needs.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// SessionRegistry holds the known sessions as the backend reports them.
// Read-mostly; refreshed after a new session is created and, optionally, on
// a cron schedule.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions []domain.Session
	byID     map[string]domain.Session

	backend SessionLister
	logger  *slog.Logger
	sched   *cron.Cron
}

// NewSessionRegistry creates an empty registry over backend.
func NewSessionRegistry(backend SessionLister, logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		byID:    make(map[string]domain.Session),
		backend: backend,
		logger:  logger,
	}
}

// Refresh re-fetches the session list from the backend.
func (r *SessionRegistry) Refresh(ctx context.Context) error {
	sessions, err := r.backend.ListSessions(ctx)
	if err != nil {
		return domain.NewDomainError("registry.Refresh", err, "")
	}

	byID := make(map[string]domain.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}

	r.mu.Lock()
	r.sessions = sessions
	r.byID = byID
	r.mu.Unlock()

	r.logger.Debug("session registry refreshed", "count", len(sessions))
	return nil
}

// List returns a copy of the known sessions, newest first.
func (r *SessionRegistry) List() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]domain.Session, len(r.sessions))
	copy(cp, r.sessions)
	return cp
}

// Get returns the session with the given id, if known.
func (r *SessionRegistry) Get(id string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Len returns the number of known sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartAutoRefresh schedules periodic refreshes using a cron expression.
// Call StopAutoRefresh on shutdown.
func (r *SessionRegistry) StartAutoRefresh(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("scheduled registry refresh failed", "error", err)
		}
	})
	if err != nil {
		return domain.NewDomainError("registry.StartAutoRefresh", err, schedule)
	}
	c.Start()

	r.mu.Lock()
	r.sched = c
	r.mu.Unlock()
	return nil
}

// StopAutoRefresh stops the refresh schedule, if one is running.
func (r *SessionRegistry) StopAutoRefresh() {
	r.mu.Lock()
	c := r.sched
	r.sched = nil
	r.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
