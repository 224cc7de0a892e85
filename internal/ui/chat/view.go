// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/session"
	"github.com/ngandimoun/minato-tui/internal/ui/components"
)

// View renders the full chat layout.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if toasts := m.toasts.Active(); len(toasts) > 0 {
		stack := make([]string, 0, len(toasts))
		for _, t := range toasts {
			stack = append(stack, components.RenderToast(t, m.width))
		}
		joined := lipgloss.JoinVertical(lipgloss.Right, stack...)
		b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, joined))
		b.WriteString("\n")
	}

	inputStyle := m.theme.InputBlurred
	if m.input.Focused() {
		inputStyle = m.theme.InputFocused
	}
	b.WriteString(inputStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.conv.GetTitle()
	if title == "" {
		title = "New conversation"
	}
	return m.theme.Header.Width(m.width).Render("minato  " + title)
}

func (m *Model) renderStatusBar() string {
	bar := components.StatusBar{
		Width: m.width,
		Title: m.conv.GetTitle(),
		Hints: []string{"enter send", "ctrl+o older", "ctrl+c quit"},
	}
	if m.controller.Busy() {
		bar.Phase = m.phase.String()
		bar.Hints = []string{"esc cancel"}
	}
	return bar.View()
}

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

// refreshViewport re-renders the message list into the viewport.
// followTail keeps the view pinned to the newest message, which is what
// streaming wants; paging wants the opposite.
func (m *Model) refreshViewport(followTail bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	if followTail {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessages() string {
	msgs := m.snapshot
	if len(msgs) == 0 && m.phase == session.PhaseIdle {
		return m.theme.Muted.Render("\n  Say hi. Minato is listening.")
	}

	blocks := make([]string, 0, len(msgs)+1)
	for i, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg, i == len(msgs)-1))
	}

	if m.phase == session.PhaseSending {
		blocks = append(blocks, components.RenderThinking(m.spin))
	}

	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg model.Message, last bool) string {
	bubble := components.NewMessageBubble(msg)
	bubble.Width = m.viewport.Width
	bubble.ShowTimestamp = m.cfg.UI.ShowTimestamps

	streaming := last &&
		m.phase == session.PhaseStreaming &&
		msg.Role == model.RoleAssistant &&
		model.IsProvisional(msg.ID)
	bubble.Streaming = streaming

	// Finalized assistant prose gets the markdown treatment. Streaming
	// text stays plain: re-rendering partial markdown flickers badly on
	// half-open code fences.
	if m.renderer != nil && !streaming &&
		msg.Role == model.RoleAssistant &&
		!msg.Error &&
		len(msg.StructuredData) == 0 &&
		msg.Content != "" {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			bubble.Message.Content = strings.Trim(out, "\n")
			bubble.PreWrapped = true
		}
	}

	return bubble.View()
}
