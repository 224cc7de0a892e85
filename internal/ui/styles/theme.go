// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME
// =============================================================================

// Theme bundles the reusable styles for the chat layout.
type Theme struct {
	// Header across the top: app name plus conversation title.
	Header lipgloss.Style

	// StatusBar across the bottom: phase, hints, connection state.
	StatusBar      lipgloss.Style
	StatusBarKey   lipgloss.Style
	StatusBarPhase lipgloss.Style

	// Input area framing.
	InputFocused lipgloss.Style
	InputBlurred lipgloss.Style

	// Chat viewport framing.
	Viewport lipgloss.Style

	// Inline hints and timestamps.
	Muted lipgloss.Style
}

// NewTheme builds the theme. The mode string comes from config
// ("dark", "light", "auto"); auto defers to terminal background
// detection, which is what AdaptiveColor keys off anyway.
func NewTheme(mode string) *Theme {
	switch mode {
	case "dark":
		lipgloss.SetColorProfile(termenv.ColorProfile())
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetColorProfile(termenv.ColorProfile())
		lipgloss.SetHasDarkBackground(false)
	}

	return &Theme{
		Header: lipgloss.NewStyle().
			Foreground(Violet).
			Background(SurfaceDim).
			Bold(true).
			Padding(0, 1),

		StatusBar: lipgloss.NewStyle().
			Foreground(TextSecondary).
			Background(SurfaceDim).
			Padding(0, 1),

		StatusBarKey: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),

		StatusBarPhase: lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true),

		InputFocused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Cyan).
			Padding(0, 1),

		InputBlurred: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Overlay).
			Padding(0, 1),

		Viewport: lipgloss.NewStyle().
			Padding(0, 1),

		Muted: lipgloss.NewStyle().
			Foreground(TextMuted),
	}
}
