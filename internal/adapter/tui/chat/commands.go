package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// sendCmd submits a query through the coordinator. The coordinator appends
// the user message and resolves the response asynchronously; only the
// synchronous refusal (empty query, expired credential) comes back here.
func sendCmd(coord Conversations, query string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{Err: coord.Send(context.Background(), query)}
	}
}

// switchCmd makes sessionID the active session. The coordinator replaces
// the view synchronously (cache hit) or after the history fetch lands.
func switchCmd(coord Conversations, sessionID string) tea.Cmd {
	return func() tea.Msg {
		coord.Switch(context.Background(), sessionID)
		return viewChangedMsg{}
	}
}

// refreshSessionsCmd refreshes the session registry for the picker.
func refreshSessionsCmd(reg SessionDirectory) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sessionsRefreshedMsg{Err: reg.Refresh(ctx)}
	}
}

// pendingTickCmd re-renders the pending status line while requests are in
// flight.
func pendingTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(_ time.Time) tea.Msg {
		return pendingTickMsg{}
	})
}
