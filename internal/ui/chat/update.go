// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/session"
	"github.com/ngandimoun/minato-tui/internal/ui/components"
)

const storeTimeout = 5 * time.Second

// Update handles Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TurnUpdateMsg:
		return m.handleTurnUpdate(session.Update(msg))

	case components.ToastTickMsg:
		m.toasts.Tick()
		m.layout()
		return m, components.ToastTickCmd()

	case spinner.TickMsg:
		if m.controller.Busy() {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			m.refreshViewport(false)
			return m, cmd
		}
		return m, nil

	case HistoryPageMsg:
		return m.handleHistoryPage(msg)

	case ConversationSavedMsg:
		if msg.Error != nil {
			m.logger.Warn("local save failed", zap.Error(msg.Error))
			m.toasts.AddError("Failed to save conversation locally.")
			m.layout()
		}
		return m, nil
	}

	// Everything else feeds the focused widgets.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		// A turn left running would keep mutating the conversation after
		// the terminal is restored.
		m.controller.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.controller.Busy() {
			m.controller.Cancel()
			return m, nil
		}
		if m.toasts.HasToasts() {
			m.toasts.DismissAll()
			m.layout()
		}
		return m, nil

	case key.Matches(msg, m.keys.DismissAll):
		m.toasts.DismissAll()
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Newline):
		m.input.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keys.OlderPage):
		return m, m.requestOlderPage()

	case key.Matches(msg, m.keys.Send):
		return m, m.submit()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit starts a text turn from the input area.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}

	err := m.controller.Start(context.Background(), text, nil)
	switch {
	case errors.Is(err, session.ErrTurnActive):
		m.toasts.AddStatus("Hold on, Minato is still answering.")
		m.layout()
		return nil
	case err != nil:
		m.toasts.AddError("Could not start the turn.")
		m.logger.Warn("send rejected", zap.Error(err))
		m.layout()
		return nil
	}

	m.input.Reset()
	m.refreshViewport(true)
	return m.spin.Tick
}

// =============================================================================
// TURN UPDATES
// =============================================================================

func (m *Model) handleTurnUpdate(u session.Update) (tea.Model, tea.Cmd) {
	m.phase = u.Phase
	m.snapshot = u.Messages
	m.refreshViewport(true)

	cmds := []tea.Cmd{waitForUpdate(m.controller.Updates())}

	if u.Phase.Terminal() {
		if u.Phase == session.PhaseFinalized {
			m.logger.Debug("turn complete", zap.String("message_id", u.FinalID))
		}
		if cmd := m.saveConversation(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	} else {
		cmds = append(cmds, m.spin.Tick)
	}

	return m, tea.Batch(cmds...)
}

// saveConversation persists the conversation off the UI loop. The clone
// keeps the write isolated from whatever the next turn does to the live
// list.
func (m *Model) saveConversation() tea.Cmd {
	if m.store == nil || !m.cfg.History.Enabled {
		return nil
	}
	snap := m.conv.Clone()
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		return ConversationSavedMsg{Error: store.SaveConversation(ctx, snap)}
	}
}

// =============================================================================
// HISTORY PAGING
// =============================================================================

// requestOlderPage fetches the page preceding the oldest message shown,
// from the local cache when it exists and from the server otherwise.
func (m *Model) requestOlderPage() tea.Cmd {
	if m.oldestLoaded || m.controller.Busy() {
		return nil
	}

	var before time.Time
	if len(m.conv.Messages) > 0 {
		before = m.conv.Messages[0].Timestamp
	}
	store := m.store
	api := m.api
	convID := m.conv.ID
	limit := m.cfg.History.PageSize

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		var page []model.Message
		var err error
		if store != nil {
			page, err = store.LoadMessagesBefore(ctx, convID, before, limit)
		} else {
			page, err = api.FetchHistory(ctx, convID, before, limit)
		}
		return HistoryPageMsg{Messages: page, Error: err}
	}
}

func (m *Model) handleHistoryPage(msg HistoryPageMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		m.logger.Warn("history page failed", zap.Error(msg.Error))
		m.toasts.AddError("Could not load older messages.")
		m.layout()
		return m, nil
	}
	if len(msg.Messages) == 0 {
		m.oldestLoaded = true
		m.toasts.AddStatus("Beginning of conversation.")
		m.layout()
		return m, nil
	}
	// A turn that started while the page was in flight owns the message
	// list; drop the page rather than merge under it.
	if m.controller.Busy() {
		return m, nil
	}

	m.conv.MergeHistory(msg.Messages)
	m.snapshot = m.conv.Messages
	m.refreshViewport(false)
	m.viewport.GotoTop()
	return m, nil
}
