// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/ui/styles"
	"github.com/ngandimoun/minato-tui/internal/util"
)

// =============================================================================
// MESSAGE BUBBLE
// =============================================================================

// MessageBubble renders one chat message.
type MessageBubble struct {
	Message       model.Message
	Width         int
	ShowTimestamp bool
	Streaming     bool

	// PreWrapped skips the bubble's own word wrapping, for content that
	// arrives already wrapped and styled (rendered markdown).
	PreWrapped bool
}

// NewMessageBubble creates a bubble with default width.
func NewMessageBubble(msg model.Message) *MessageBubble {
	return &MessageBubble{
		Message:       msg,
		Width:         80,
		ShowTimestamp: true,
	}
}

// View renders the bubble.
func (b *MessageBubble) View() string {
	// A message that carries only a structured payload renders as a card,
	// whatever its role.
	if len(b.Message.StructuredData) > 0 && b.Message.Content == "" {
		return b.renderCard()
	}

	switch b.Message.Role {
	case model.RoleUser:
		return b.renderUserBubble()
	case model.RoleAssistant:
		return b.renderAssistantBubble()
	default:
		return b.renderSystemBubble()
	}
}

// ==========================================================================
// USER BUBBLE - Blue tones, right-aligned
// ==========================================================================

func (b *MessageBubble) renderUserBubble() string {
	content := b.Message.DisplayContent()
	if content == "" {
		content = "..."
	}

	maxContentWidth := b.contentWidth()
	wrapped := wrapText(content, maxContentWidth)

	if line := b.renderAttachments(); line != "" {
		wrapped = wrapped + "\n" + line
	}

	bubble := lipgloss.NewStyle().
		Foreground(styles.UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.UserBubbleBorder).
		Padding(0, 2).
		Render(wrapped)

	header := b.renderHeader(b.Message.Role.DisplayName())

	// Right-align with a left margin.
	bubbleWidth := lipgloss.Width(bubble)
	leftMargin := b.Width - bubbleWidth - 2
	if leftMargin < 0 {
		leftMargin = 0
	}
	margin := lipgloss.NewStyle().MarginLeft(leftMargin)

	return lipgloss.JoinVertical(lipgloss.Right,
		margin.Render(header),
		margin.Render(bubble))
}

// ==========================================================================
// ASSISTANT BUBBLE - Violet tones, left-aligned
// ==========================================================================

func (b *MessageBubble) renderAssistantBubble() string {
	content := b.Message.DisplayContent()
	if b.Streaming {
		content += "▌"
	}
	if content == "" {
		content = "..."
	}

	wrapped := content
	if !b.PreWrapped {
		wrapped = wrapText(content, b.contentWidth())
	}

	fg, border := styles.AssistantBubbleFg, styles.AssistantBubbleBorder
	if b.Message.Error {
		fg, border = styles.ErrorBubbleFg, styles.ErrorBubbleBorder
		wrapped = styles.StatusIndicators.Error + " " + wrapped
	}

	bubble := lipgloss.NewStyle().
		Foreground(fg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 2).
		MarginRight(4).
		Render(wrapped)

	header := b.renderHeader(b.Message.Role.DisplayName())
	return lipgloss.JoinVertical(lipgloss.Left, header, bubble)
}

// ==========================================================================
// SYSTEM BUBBLE - Amber tones, centered
// ==========================================================================

func (b *MessageBubble) renderSystemBubble() string {
	content := b.Message.DisplayContent()
	if content == "" {
		return ""
	}

	bubble := lipgloss.NewStyle().
		Foreground(styles.SystemBubbleFg).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.SystemBubbleBorder).
		Padding(0, 2).
		Render(wrapText(content, b.contentWidth()))

	return lipgloss.PlaceHorizontal(b.Width, lipgloss.Center, bubble)
}

// ==========================================================================
// STRUCTURED-DATA CARD
// ==========================================================================

// renderCard renders a structured payload as a titled card. The payload's
// "type" names the card; a "title" field, when present, labels it.
func (b *MessageBubble) renderCard() string {
	raw := b.Message.StructuredData

	kind := gjson.GetBytes(raw, "type").String()
	if kind == "" {
		kind = "card"
	}
	title := gjson.GetBytes(raw, "title").String()
	if title == "" {
		title = kind
	}

	titleLine := lipgloss.NewStyle().
		Foreground(styles.CardTitleFg).
		Bold(true).
		Render(title)

	var rows []string
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if k == "type" || k == "id" || k == "title" {
			return true
		}
		// Nested payloads summarize; scalars print as-is.
		var v string
		switch value.Type {
		case gjson.JSON:
			v = util.TruncateRunes(value.Raw, 40)
		default:
			v = util.TruncateRunes(value.String(), 60)
		}
		rows = append(rows, lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(k+": ")+
			lipgloss.NewStyle().Foreground(styles.TextPrimary).Render(v))
		return true
	})

	body := titleLine
	if len(rows) > 0 {
		body += "\n" + strings.Join(rows, "\n")
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.CardBorder).
		Padding(0, 2).
		MarginRight(4).
		Render(body)
}

// ==========================================================================
// SHARED PIECES
// ==========================================================================

func (b *MessageBubble) renderHeader(role string) string {
	roleStyle := lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true)
	parts := []string{roleStyle.Render(strings.ToLower(role))}
	if b.ShowTimestamp && !b.Message.Timestamp.IsZero() {
		parts = append(parts, roleStyle.Render(util.RelativeTime(b.Message.Timestamp)))
	}
	return strings.Join(parts, " ")
}

// renderAttachments renders a one-line summary of attached files.
func (b *MessageBubble) renderAttachments() string {
	if len(b.Message.Attachments) == 0 {
		return ""
	}
	names := make([]string, len(b.Message.Attachments))
	for i, a := range b.Message.Attachments {
		label := util.TruncateRunes(a.Name, 24)
		if a.Size > 0 {
			label += " (" + util.FormatBytes(a.Size) + ")"
		}
		names[i] = label
	}
	return lipgloss.NewStyle().Foreground(styles.TextMuted).
		Render("attached: " + strings.Join(names, ", "))
}

func (b *MessageBubble) contentWidth() int {
	w := b.Width - 12
	if w < 20 {
		w = 20
	}
	return w
}
