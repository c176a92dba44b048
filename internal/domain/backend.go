package domain

import "context"

// ChatBackend is the remote assistant. All reasoning, retrieval and
// persistence happen behind it; the client only sees these three calls.
// Send and FetchHistory honor context cancellation; ListSessions is
// idempotent and short enough that callers rely on the context deadline
// alone.
type ChatBackend interface {
	// Send submits a query for the given session ID ("" = unsaved session;
	// the backend creates one and returns its id in the result).
	Send(ctx context.Context, sessionID, query string) (*ChatResult, error)

	// FetchHistory returns the full ordered transcript of a session.
	FetchHistory(ctx context.Context, sessionID string) ([]Message, error)

	// ListSessions returns the caller's sessions, newest first.
	ListSessions(ctx context.Context) ([]Session, error)
}

// CredentialSource reports whether a usable credential exists right now.
// Sends are refused up front when it does not; see Coordinator.Send.
type CredentialSource interface {
	Valid() bool
}
