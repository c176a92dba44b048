package usecase

import (
	"errors"
	"log/slog"
	"sync"

	"medichat/internal/domain"
)

// TranscriptArchive persists transcripts across restarts. The cache treats
// it as best-effort: archive failures are logged, never propagated.
type TranscriptArchive interface {
	SaveTranscript(sessionID string, msgs []domain.Message) error
	LoadTranscript(sessionID string) ([]domain.Message, error) // domain.ErrNotFound when absent
	SessionIDs() ([]string, error)
}

// SessionCache maps session ids to their last-known transcript. It is an
// optimization, not a source of truth: an absent entry means the caller must
// go to the Load Sequencer. Entries are written whenever the active session
// changes and whenever a response for a non-active session resolves.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string][]domain.Message
	archive TranscriptArchive // nil = memory only
	logger  *slog.Logger
}

// NewSessionCache creates a cache. archive may be nil.
func NewSessionCache(archive TranscriptArchive, logger *slog.Logger) *SessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCache{
		entries: make(map[string][]domain.Message),
		archive: archive,
		logger:  logger,
	}
}

// Save overwrites (or inserts) the transcript for sessionID. Idempotent.
// The stored slice is a copy; callers keep ownership of msgs.
func (c *SessionCache) Save(sessionID string, msgs []domain.Message) {
	if sessionID == "" {
		return
	}
	cp := make([]domain.Message, len(msgs))
	copy(cp, msgs)

	c.mu.Lock()
	c.entries[sessionID] = cp
	c.mu.Unlock()

	c.persist(sessionID, cp)
}

// Append adds messages to the end of sessionID's entry, creating it if
// needed. Used when a response for a backgrounded session resolves.
func (c *SessionCache) Append(sessionID string, msgs ...domain.Message) {
	if sessionID == "" || len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	entry := append(c.entries[sessionID], msgs...)
	c.entries[sessionID] = entry
	cp := make([]domain.Message, len(entry))
	copy(cp, entry)
	c.mu.Unlock()

	c.persist(sessionID, cp)
}

// Load returns the cached transcript for sessionID and whether one exists.
// The returned slice is a copy.
func (c *SessionCache) Load(sessionID string) ([]domain.Message, bool) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := make([]domain.Message, len(entry))
	copy(cp, entry)
	return cp, true
}

// Tail returns the last message of sessionID's entry, if any.
func (c *SessionCache) Tail(sessionID string) (domain.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry := c.entries[sessionID]
	if len(entry) == 0 {
		return domain.Message{}, false
	}
	return entry[len(entry)-1], true
}

// Warm preloads every archived transcript into memory. Called once at
// startup; a missing or failing archive leaves the cache empty.
func (c *SessionCache) Warm() {
	if c.archive == nil {
		return
	}
	ids, err := c.archive.SessionIDs()
	if err != nil {
		c.logger.Warn("transcript archive unavailable", "error", err)
		return
	}
	for _, id := range ids {
		msgs, err := c.archive.LoadTranscript(id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				c.logger.Warn("load archived transcript", "session_id", id, "error", err)
			}
			continue
		}
		c.mu.Lock()
		if _, exists := c.entries[id]; !exists {
			c.entries[id] = msgs
		}
		c.mu.Unlock()
	}
}

func (c *SessionCache) persist(sessionID string, msgs []domain.Message) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveTranscript(sessionID, msgs); err != nil {
		c.logger.Warn("archive transcript", "session_id", sessionID, "error", err)
	}
}
