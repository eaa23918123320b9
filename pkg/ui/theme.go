package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme is the fixed set of colors and styles used by the widgets.
type Theme struct {
	Renderer *lipgloss.Renderer

	// Colors
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Directory lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor

	// UI Elements
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Styles
	Base     lipgloss.Style
	Selected lipgloss.Style // row under the cursor
	Hover    lipgloss.Style // row under the mouse pointer
	Marked   lipgloss.Style // selected node when the cursor is elsewhere
	Guide    lipgloss.Style // tree guide lines
	Header   lipgloss.Style
	Footer   lipgloss.Style
	Button   lipgloss.Style
	Focused  lipgloss.Style // focused button

	// Pre-computed row styles, created once instead of per frame
	DirLabel  lipgloss.Style
	MutedText lipgloss.Style
	Indicator lipgloss.Style
}

// DefaultTheme returns the standard Dracula-inspired theme (adaptive).
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}, // Purple
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}, // Gray
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Directory: lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}, // Cyan
		Error:     lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}, // Red

		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Bold(true)

	t.Hover = r.NewStyle().Underline(true)

	t.Marked = r.NewStyle().Foreground(t.Primary)

	t.Guide = r.NewStyle().Foreground(t.Muted)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.Footer = r.NewStyle().
		Foreground(t.Subtext).
		Padding(0, 1)

	t.Button = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 2)

	t.Focused = t.Button.
		BorderForeground(t.Primary).
		Foreground(t.Primary).
		Bold(true)

	t.DirLabel = r.NewStyle().Foreground(t.Directory).Bold(true)
	t.MutedText = r.NewStyle().Foreground(t.Muted)
	t.Indicator = r.NewStyle().Foreground(t.Primary)

	return t
}
