package chat

// viewChangedMsg tells the model the live transcript mutated underneath it.
type viewChangedMsg struct{}

// sendDoneMsg carries the synchronous outcome of a send. A nil Err means
// the request is in flight; its resolution arrives later as viewChangedMsg.
type sendDoneMsg struct {
	Err error
}

// sessionsRefreshedMsg says the registry finished a refresh; the picker
// re-reads the list on its next open.
type sessionsRefreshedMsg struct {
	Err error
}

// pendingTickMsg drives the pending-request status line.
type pendingTickMsg struct{}
