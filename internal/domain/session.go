package domain

import "time"

// Session describes one persisted conversation as the backend reports it.
// ID is empty for a session the backend has not acknowledged yet (a "new
// chat" before the first exchange). Once assigned, the ID never changes;
// only the title may be updated by a registry refresh.
type Session struct {
	ID        string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Unsaved reports whether the session has no backend identity yet.
func (s Session) Unsaved() bool { return s.ID == "" }

// RequestKey scopes concurrency bookkeeping to one conversation.
type RequestKey string

// UnsavedKey is the shared key for every send issued before the backend has
// assigned a session id. All such sends deliberately collapse onto one key.
const UnsavedKey RequestKey = "~unsaved"

// KeyFor derives the RequestKey for a session id ("" means unsaved).
func KeyFor(sessionID string) RequestKey {
	if sessionID == "" {
		return UnsavedKey
	}
	return RequestKey(sessionID)
}
