package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"medichat/internal/adapter/tui/theme"
	"medichat/internal/domain"
)

// Conversations is the slice of the coordinator the TUI drives.
type Conversations interface {
	Send(ctx context.Context, query string) error
	Switch(ctx context.Context, sessionID string)
	NewChat()
	ActiveSession() string
	PendingCount() int
	IsPending(key domain.RequestKey) bool
}

// SessionDirectory lists the user's saved sessions for the picker.
type SessionDirectory interface {
	Refresh(ctx context.Context) error
	List() []domain.Session
	Get(id string) (domain.Session, bool)
}

// ModelDeps are dependencies injected into the chat model.
type ModelDeps struct {
	Coord    Conversations
	Registry SessionDirectory
	View     *View
	Logger   *slog.Logger
	Markdown bool
}

// Model is the root Bubble Tea model.
type Model struct {
	deps ModelDeps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	mdRenderer *glamour.TermRenderer
	mdWidth    int

	// Session picker state.
	pickerOpen bool
	pickerIdx  int
	sessions   []domain.Session

	width    int
	height   int
	ready    bool
	quitting bool
	notice   string // one-line status message, cleared on next input
}

// NewModel creates the root chat model.
func NewModel(deps ModelDeps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	ta := textarea.New()
	ta.Placeholder = "Ask a health question..."
	ta.Prompt = "> "
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.Focus()

	return Model{
		deps:    deps,
		input:   ta,
		spinner: s,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textarea.Blink,
		refreshSessionsCmd(m.deps.Registry),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshTranscript()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case viewChangedMsg:
		m.refreshTranscript()
		if m.anyPending() {
			return m, pendingTickCmd()
		}
		return m, nil

	case sendDoneMsg:
		if msg.Err != nil {
			switch {
			case errors.Is(msg.Err, domain.ErrInvalidInput):
				m.notice = "Type a message first."
			case errors.Is(msg.Err, domain.ErrSessionExpired):
				// The expiry notice is already in the transcript.
			default:
				m.notice = theme.SymbolError + " " + msg.Err.Error()
			}
		}
		return m, pendingTickCmd()

	case sessionsRefreshedMsg:
		if msg.Err != nil {
			m.deps.Logger.Warn("session refresh failed", "error", msg.Err)
		}
		if m.pickerOpen {
			m.sessions = m.deps.Registry.List()
			m.clampPicker()
		}
		return m, nil

	case pendingTickMsg:
		if m.anyPending() {
			return m, pendingTickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.pickerOpen && !m.inputLocked() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	if m.pickerOpen {
		return m.handlePickerKey(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyCtrlN:
		m.deps.Coord.NewChat()
		m.refreshTranscript()
		return m, nil

	case tea.KeyCtrlS:
		m.pickerOpen = true
		m.sessions = m.deps.Registry.List()
		m.pickerIdx = 0
		return m, refreshSessionsCmd(m.deps.Registry)

	case tea.KeyEnter:
		if msg.Alt {
			break // newline
		}
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		if m.inputLocked() {
			m.notice = "Waiting for the current reply. Switch sessions to ask something else."
			return m, nil
		}
		m.input.Reset()
		return m, sendCmd(m.deps.Coord, value)

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if !m.inputLocked() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handlePickerKey drives the session picker overlay.
func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+s", "ctrl+c":
		m.pickerOpen = false
		return m, nil
	case "up", "k":
		m.pickerIdx--
		m.clampPicker()
		return m, nil
	case "down", "j":
		m.pickerIdx++
		m.clampPicker()
		return m, nil
	case "enter":
		m.pickerOpen = false
		if m.pickerIdx == 0 {
			m.deps.Coord.NewChat()
			m.refreshTranscript()
			return m, nil
		}
		idx := m.pickerIdx - 1
		if idx < len(m.sessions) {
			return m, switchCmd(m.deps.Coord, m.sessions[idx].ID)
		}
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "  Initializing..."
	}
	if m.pickerOpen {
		return m.pickerView()
	}

	parts := []string{
		m.headerView(),
		m.viewport.View(),
		strings.Repeat("─", max(1, m.width)),
		m.inputView(),
		m.statusView(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerView() string {
	title := "New conversation"
	if id := m.deps.Coord.ActiveSession(); id != "" {
		title = id
		if s, ok := m.deps.Registry.Get(id); ok && s.Title != "" {
			title = s.Title
		}
	}
	return theme.Bold.Render(theme.SymbolBot) + theme.TextMuted.Render("  "+title)
}

func (m Model) inputView() string {
	if m.inputLocked() {
		return theme.Dim.Render("> waiting for response...") + "\n" +
			m.spinner.View() + " " + theme.TextInfo.Render("Thinking...")
	}
	return m.input.View()
}

func (m Model) statusView() string {
	hints := "Enter send " + theme.SymbolBullet + " Ctrl+S sessions " +
		theme.SymbolBullet + " Ctrl+N new chat " + theme.SymbolBullet + " Ctrl+C quit"
	line := theme.StatusBar.Render(hints)

	if m.notice != "" {
		line = theme.TextWarning.Render(m.notice)
	} else if n := m.deps.Coord.PendingCount(); n > 1 ||
		(n == 1 && !m.deps.Coord.IsPending(domain.KeyFor(m.deps.Coord.ActiveSession()))) {
		line += theme.TextMuted.Render(fmt.Sprintf("  %s %d in flight", m.spinner.View(), n))
	}
	return line
}

// pickerView renders the session picker overlay. Index 0 is always the
// new-chat entry; saved sessions follow in registry order.
func (m Model) pickerView() string {
	var b strings.Builder
	b.WriteString(theme.Bold.Render("Sessions") + "\n\n")

	writeLine := func(i int, label string) {
		cursor := "  "
		if i == m.pickerIdx {
			cursor = "> "
			label = theme.PickerSelected.Render(label)
		}
		b.WriteString(cursor + label + "\n")
	}

	writeLine(0, "+ New chat")
	active := m.deps.Coord.ActiveSession()
	for i, s := range m.sessions {
		label := s.Title
		if label == "" {
			label = s.ID
		}
		if s.ID == active {
			label += " " + theme.TextMuted.Render(theme.SymbolBullet+" current")
		}
		if m.deps.Coord.IsPending(domain.KeyFor(s.ID)) {
			label += " " + theme.TextInfo.Render(theme.SymbolSpinner)
		}
		writeLine(i+1, label)
	}

	b.WriteString("\n" + theme.StatusBar.Render("enter select "+theme.SymbolBullet+" esc close"))
	return theme.PickerBorder.Width(max(20, m.width-4)).Render(b.String())
}

// refreshTranscript re-renders the viewport from the live view.
func (m *Model) refreshTranscript() {
	msgs := m.deps.View.Transcript()
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessage(msg domain.Message) string {
	var header string
	switch msg.Role {
	case domain.RoleUser:
		header = theme.RoleUser.Render(theme.SymbolUser)
	case domain.RoleAssistant:
		header = theme.RoleAssistant.Render(theme.SymbolBot)
	default:
		header = theme.RoleSystem.Render(msg.Role)
	}
	if !msg.Timestamp.IsZero() {
		header += theme.TextMuted.Render("  " + msg.Timestamp.Format("15:04"))
	}

	content := msg.Content
	if msg.Role == domain.RoleAssistant {
		content = m.renderMarkdown(content)
	}
	if msg.AudioURL != "" {
		content += "\n" + theme.TextMuted.Render("audio: "+msg.AudioURL)
	}
	return header + "\n" + strings.TrimRight(content, "\n") + "\n"
}

// renderMarkdown renders assistant content through glamour, falling back to
// the raw text on error. The renderer is rebuilt when the width changes.
func (m *Model) renderMarkdown(content string) string {
	if !m.deps.Markdown {
		return content
	}
	width := max(20, m.width-4)
	if m.mdRenderer == nil || m.mdWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.mdRenderer = r
		m.mdWidth = width
	}
	out, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

func (m *Model) layout() {
	headerH := 1
	dividerH := 1
	inputH := 3
	statusH := 1
	contentH := m.height - headerH - dividerH - inputH - statusH
	if contentH < 5 {
		contentH = 5
	}
	m.viewport = viewport.New(m.width, contentH)
	m.input.SetWidth(m.width - 2)
}

func (m *Model) clampPicker() {
	if m.pickerIdx < 0 {
		m.pickerIdx = 0
	}
	if m.pickerIdx > len(m.sessions) {
		m.pickerIdx = len(m.sessions)
	}
}

// inputLocked reports whether the composer is disabled because the viewed
// conversation has a request in flight.
func (m Model) inputLocked() bool {
	return m.deps.Coord.IsPending(domain.KeyFor(m.deps.Coord.ActiveSession()))
}

func (m Model) anyPending() bool {
	return m.deps.Coord.PendingCount() > 0
}
