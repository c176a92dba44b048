// Package chat is the Bubble Tea chat interface. It renders the live
// transcript, routes keyboard input to the conversation coordinator, and
// hosts the session picker.
package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"medichat/internal/domain"
	"medichat/internal/usecase"
)

// View is the live transcript buffer. The coordinator mutates it from
// resolution goroutines while the Bubble Tea loop reads it, so all access
// goes through the mutex; mutations poke the program with a refresh message.
type View struct {
	mu      sync.RWMutex
	msgs    []domain.Message
	max     int // ring buffer size; 0 = unbounded
	program *tea.Program
}

var _ usecase.LiveView = (*View)(nil)

// NewView creates a view buffer holding at most max messages.
func NewView(max int) *View {
	return &View{max: max}
}

// Attach connects the view to a running program so mutations trigger a
// re-render. Must be called before the coordinator starts resolving.
func (v *View) Attach(p *tea.Program) {
	v.mu.Lock()
	v.program = p
	v.mu.Unlock()
}

// Append implements usecase.LiveView.
func (v *View) Append(msg domain.Message) {
	v.mu.Lock()
	v.msgs = append(v.msgs, msg)
	if v.max > 0 && len(v.msgs) > v.max {
		v.msgs = v.msgs[len(v.msgs)-v.max:]
	}
	p := v.program
	v.mu.Unlock()

	if p != nil {
		p.Send(viewChangedMsg{})
	}
}

// Replace implements usecase.LiveView.
func (v *View) Replace(msgs []domain.Message) {
	cp := make([]domain.Message, len(msgs))
	copy(cp, msgs)

	v.mu.Lock()
	v.msgs = cp
	p := v.program
	v.mu.Unlock()

	if p != nil {
		p.Send(viewChangedMsg{})
	}
}

// Transcript implements usecase.LiveView.
func (v *View) Transcript() []domain.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make([]domain.Message, len(v.msgs))
	copy(cp, v.msgs)
	return cp
}
