// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ngandimoun/minato-tui/internal/ui/styles"
	"github.com/ngandimoun/minato-tui/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom bar: connection state, turn phase, and key
// hints.
type StatusBar struct {
	Width int

	// Phase is the human-readable turn phase ("", "sending", "streaming").
	Phase string

	// Title is the conversation title.
	Title string

	// Hints are key hints like "esc cancel".
	Hints []string
}

// View renders the bar at the configured width.
func (s *StatusBar) View() string {
	barStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Background(styles.SurfaceDim).
		Padding(0, 1).
		Width(s.Width)

	var left []string
	if s.Title != "" {
		left = append(left, util.TruncateWidth(s.Title, 30))
	}
	if s.Phase != "" {
		phaseStyle := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
		left = append(left, phaseStyle.Render(s.Phase))
	}

	hintStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)
	right := hintStyle.Render(strings.Join(s.Hints, "  "))

	leftStr := strings.Join(left, "  ")
	gap := s.Width - lipgloss.Width(leftStr) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return barStyle.Render(leftStr + strings.Repeat(" ", gap) + right)
}
