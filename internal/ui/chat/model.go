// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/client"
	"github.com/ngandimoun/minato-tui/internal/config"
	"github.com/ngandimoun/minato-tui/internal/history"
	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/session"
	"github.com/ngandimoun/minato-tui/internal/ui/components"
	"github.com/ngandimoun/minato-tui/internal/ui/styles"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It owns the input
// area and the message viewport; the turn controller owns the
// conversation while a send is in flight, and every repaint during a
// turn renders from the controller's snapshots rather than the live
// message list.
type Model struct {
	cfg        *config.Config
	conv       *model.Conversation
	controller *session.Controller
	store      *history.Store // nil when local history is disabled
	api        *client.Client
	logger     *zap.Logger

	theme  *styles.Theme
	keys   KeyMap
	toasts *components.ToastManager

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	// renderer is the markdown renderer for finalized assistant
	// messages. Nil when markdown rendering is off.
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	phase    session.Phase
	snapshot []model.Message

	// oldestLoaded is set once a history page comes back empty; further
	// page requests are skipped.
	oldestLoaded bool
}

// New creates the chat model. store may be nil.
func New(cfg *config.Config, api *client.Client, conv *model.Conversation, store *history.Store, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	toasts := components.NewToastManager()
	controller := session.NewController(api, conv, toastNotifier{toasts: toasts}, logger)

	input := textarea.New()
	input.Placeholder = "Message Minato..."
	input.CharLimit = 8000
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	return &Model{
		cfg:        cfg,
		conv:       conv,
		controller: controller,
		store:      store,
		api:        api,
		logger:     logger,
		theme:      styles.NewTheme(cfg.UI.Theme),
		keys:       DefaultKeyMap(),
		toasts:     toasts,
		input:      input,
		spin:       components.NewThinkingSpinner(),
		phase:      session.PhaseIdle,
		snapshot:   conv.Messages,
	}
}

// Controller exposes the turn controller, mainly for tests and the
// one-shot send path.
func (m *Model) Controller() *session.Controller {
	return m.controller
}

// Init starts the blink cursor, the toast ticker, and the update pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		components.ToastTickCmd(),
		waitForUpdate(m.controller.Updates()),
	)
}

// waitForUpdate blocks on the controller's update channel and forwards
// the next ping into the Bubble Tea loop. Re-armed after every receive.
func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		return TurnUpdateMsg(<-ch)
	}
}

// layout recomputes the viewport geometry from the terminal size and
// the space the toast stack currently occupies.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	const headerHeight = 1
	const statusHeight = 1
	inputHeight := m.input.Height() + 2 // border rows

	// Each toast renders as a three-row bordered box.
	toastHeight := 3 * len(m.toasts.Active())

	vpHeight := m.height - headerHeight - statusHeight - inputHeight - toastHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(m.width - 2)

	m.rebuildRenderer()
	m.refreshViewport(true)
}

// rebuildRenderer builds the glamour renderer at the current wrap
// width. Markdown failures fall back to plain text at render time.
func (m *Model) rebuildRenderer() {
	if !m.cfg.UI.MarkdownRendering {
		m.renderer = nil
		return
	}
	wrap := m.width - 10
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		m.renderer = nil
		return
	}
	m.renderer = r
}
