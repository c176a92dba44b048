// Package theme provides the visual design system for the chat TUI.
// All styles use adaptive colors that work on both light and dark terminals.
//
// NO_COLOR (https://no-color.org/) is respected automatically by lipgloss via
// its color profile detection.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// --- Adaptive color palette ---

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	ColorBorder       = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorBorderActive = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
)

// --- Base styles ---

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)

	RoleUser      = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	RoleAssistant = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	RoleSystem    = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)

	StatusBar = lipgloss.NewStyle().Foreground(ColorMuted)

	PickerBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorderActive).
			Padding(0, 1)
	PickerSelected = lipgloss.NewStyle().Foreground(ColorBorderActive).Bold(true)
)

// --- Symbols ---
// Defaults are Unicode glyphs with ASCII fallback on non-UTF8 terminals.

var (
	SymbolSuccess  = "✓"
	SymbolError    = "✗"
	SymbolWarning  = "⚠"
	SymbolSpinner  = "⏳"
	SymbolBullet   = "•"
	SymbolEllipsis = "…"
	SymbolUser     = "You"
	SymbolBot      = "MediChat"
)

// DetectUnicodeSupport checks whether the terminal likely supports Unicode.
// Priority: MEDICHAT_ASCII_SYMBOLS env (explicit override) > locale detection.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("MEDICHAT_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols switches the Symbol* variables to ASCII when the terminal
// does not support Unicode. Called by init(); call again in tests if the
// environment changed.
func InitSymbols() {
	if DetectUnicodeSupport() {
		return
	}
	SymbolSuccess = "[OK]"
	SymbolError = "[ERR]"
	SymbolWarning = "[!]"
	SymbolSpinner = "[...]"
	SymbolBullet = "*"
	SymbolEllipsis = "..."
}

func init() {
	InitSymbols()
}
