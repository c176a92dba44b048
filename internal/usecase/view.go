package usecase

import "medichat/internal/domain"

// LiveView is the transcript currently rendered to the user. Implementations
// must be safe for concurrent use; the coordinator calls them from
// resolution goroutines.
type LiveView interface {
	// Append adds one message to the end of the live transcript.
	Append(msg domain.Message)
	// Replace swaps the whole live transcript (session switch).
	Replace(msgs []domain.Message)
	// Transcript returns a copy of the current live transcript.
	Transcript() []domain.Message
}

// Route says where a resolved response goes.
type Route int

const (
	// RouteLive renders the response in the live view.
	RouteLive Route = iota
	// RouteCache stashes the response for when its session is re-entered.
	RouteCache
)

// DecideRoute routes a resolved response by comparing the session it belongs
// to against the session being viewed right now. Both-unsaved counts as a
// match. Evaluated at resolution time, never at send time: the active
// session may have changed while the request was in flight.
func DecideRoute(resolvedSessionID, activeSessionID string) Route {
	if domain.KeyFor(resolvedSessionID) == domain.KeyFor(activeSessionID) {
		return RouteLive
	}
	return RouteCache
}
