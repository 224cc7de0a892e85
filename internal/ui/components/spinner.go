// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/ngandimoun/minato-tui/internal/ui/styles"
)

// =============================================================================
// THINKING SPINNER
// =============================================================================

// NewThinkingSpinner returns the spinner shown between submit and the
// first frame.
func NewThinkingSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Violet)
	return s
}

// RenderThinking renders the spinner with its label.
func RenderThinking(s spinner.Model) string {
	label := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render("Minato is thinking")
	return s.View() + " " + label
}
