// Package ui implements the full-screen terminal interface: a history
// sidebar, the conversation transcript, a prompt input line, and a
// generation-settings panel.
//
// The exchange controller reports progress through its listener from the
// goroutine running the exchange; the listener here converts each callback
// into a tea.Msg pushed onto a channel that Update drains, so all model
// mutation stays on the bubbletea loop.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/chat"
	"github.com/nhahub/NHA-065/internal/exchange"
	"github.com/nhahub/NHA-065/internal/history"
	"github.com/nhahub/NHA-065/internal/logging"
)

// Saver persists a generated image to disk. *download.Saver satisfies it.
type Saver interface {
	Save(ctx context.Context, ref, filename string) (string, error)
}

// Events pushed by the controller listener.
type sendEnabledMsg struct{ enabled bool }
type revealMsg struct{ partial string }
type messageAppendedMsg struct{ msg chat.Message }
type generatingMsg struct{ active bool }
type historyChangedMsg struct{}
type noticeMsg struct{ text string }

// Results of background commands.
type exchangeDoneMsg struct {
	result *exchange.Result
	err    error
}
type historyLoadedMsg struct{ err error }
type switchedMsg struct{ err error }
type profileMsg struct {
	profile *api.Profile
	err     error
}
type lorasMsg struct {
	loras []string
	err   error
}
type modelStatusMsg struct {
	status *api.ModelStatus
	err    error
}
type saveDoneMsg struct {
	path string
	err  error
}
type renderDoneMsg struct {
	rendered string
	nonce    int
}

type historyItem struct {
	item history.Item
}

func (i historyItem) Title() string {
	title := i.item.Preview
	if title == "" {
		title = "Untitled"
	}
	if i.item.Active {
		return "* " + title
	}
	return title
}

func (i historyItem) Description() string {
	return fmt.Sprintf("%d messages | %s", i.item.MessageCount, i.item.LastUpdated.Format("Jan 2 15:04"))
}

func (i historyItem) FilterValue() string {
	return strings.ToLower(i.item.Preview)
}

// Model is the bubbletea model for the full-screen interface.
type Model struct {
	controller *exchange.Controller
	client     *api.Client
	saver      Saver
	log        *logging.Logger

	events chan tea.Msg

	list     list.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width  int
	height int

	focusInput bool
	sending    bool
	generating bool

	// revealText holds the in-flight cumulative reply prefix; it is shown
	// below the rendered transcript and cleared when the message finalizes.
	revealText  string
	rendered    string
	renderNonce int

	panel       *settingsPanel
	loras       []string
	modelStatus *api.ModelStatus

	profile   *api.Profile
	lastImage *chat.Message

	status string
	err    error
}

// NewModel builds the interface around an initialized controller.
func NewModel(controller *exchange.Controller, client *api.Client, saver Saver, logger *logging.Logger) *Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 32, 20)
	l.Title = "Conversations"
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	vp := viewport.New(60, 20)
	vp.SetContent("Start a conversation below.")

	ti := textinput.New()
	ti.Placeholder = "Describe the logo you want..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	h := help.New()
	h.ShowAll = false

	m := &Model{
		controller: controller,
		client:     client,
		saver:      saver,
		log:        logger,
		events:     make(chan tea.Msg, 64),
		list:       l,
		viewport:   vp,
		input:      ti,
		spinner:    sp,
		help:       h,
		keys:       defaultKeys(),
		focusInput: true,
	}
	controller.SetListener(m.listener())
	return m
}

// listener bridges controller callbacks onto the event channel. Callbacks
// arrive from the exchange goroutine; the buffered channel plus waitEvent
// keeps delivery ordered.
func (m *Model) listener() exchange.Listener {
	push := func(msg tea.Msg) {
		m.events <- msg
	}
	return exchange.Funcs{
		OnSendEnabled:       func(enabled bool) { push(sendEnabledMsg{enabled: enabled}) },
		OnRevealUpdate:      func(partial string) { push(revealMsg{partial: partial}) },
		OnMessageAppended:   func(msg chat.Message) { push(messageAppendedMsg{msg: msg}) },
		OnGeneratingChanged: func(active bool) { push(generatingMsg{active: active}) },
		OnHistoryChanged:    func() { push(historyChangedMsg{}) },
		OnNotice:            func(text string) { push(noticeMsg{text: text}) },
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitEvent(),
		m.refreshHistoryCmd(),
		m.profileCmd(),
		m.lorasCmd(),
		m.modelStatusCmd(),
	)
}

// waitEvent delivers the next listener event to Update. Re-issued after
// every event so the channel keeps draining.
func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.controller.SendMessage(context.Background(), text)
		return exchangeDoneMsg{result: result, err: err}
	}
}

func (m *Model) refreshHistoryCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.controller.RefreshHistory(context.Background())
		return historyLoadedMsg{err: err}
	}
}

func (m *Model) switchCmd(conversationID string) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.SwitchTo(context.Background(), conversationID)
		return switchedMsg{err: err}
	}
}

func (m *Model) deleteCmd(conversationID string) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.DeleteConversation(context.Background(), conversationID)
		return switchedMsg{err: err}
	}
}

func (m *Model) profileCmd() tea.Cmd {
	return func() tea.Msg {
		p, err := m.client.GetProfile(context.Background())
		return profileMsg{profile: p, err: err}
	}
}

func (m *Model) lorasCmd() tea.Cmd {
	return func() tea.Msg {
		loras, _, err := m.client.ListLoRAs(context.Background())
		return lorasMsg{loras: loras, err: err}
	}
}

func (m *Model) modelStatusCmd() tea.Cmd {
	return func() tea.Msg {
		status, err := m.client.ModelStatus(context.Background())
		return modelStatusMsg{status: status, err: err}
	}
}

func (m *Model) saveCmd(img chat.Message) tea.Cmd {
	return func() tea.Msg {
		path, err := m.saver.Save(context.Background(), img.ImageRef, img.Filename)
		return saveDoneMsg{path: path, err: err}
	}
}

// renderCmd renders the finalized transcript to styled terminal text. The
// nonce discards stale results when messages land faster than renders finish.
func (m *Model) renderCmd(messages []chat.Message, width, nonce int) tea.Cmd {
	return func() tea.Msg {
		md := transcriptMarkdown(messages)
		rendered := md
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			if out, renderErr := r.Render(md); renderErr == nil {
				rendered = out
			}
		}
		return renderDoneMsg{rendered: rendered, nonce: nonce}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmds = append(cmds, m.rerender())

	case sendEnabledMsg:
		m.sending = !msg.enabled
		if msg.enabled {
			m.revealText = ""
		}
		cmds = append(cmds, m.waitEvent())

	case revealMsg:
		m.revealText = msg.partial
		m.syncViewport(true)
		cmds = append(cmds, m.waitEvent())

	case messageAppendedMsg:
		if msg.msg.ImageRef != "" {
			img := msg.msg
			m.lastImage = &img
			m.status = "Image ready. Press ctrl+d to save it."
		}
		m.revealText = ""
		cmds = append(cmds, m.rerender(), m.waitEvent())

	case generatingMsg:
		m.generating = msg.active
		cmds = append(cmds, m.waitEvent())

	case historyChangedMsg:
		m.applyHistory()
		cmds = append(cmds, m.waitEvent())

	case noticeMsg:
		m.status = msg.text
		cmds = append(cmds, m.waitEvent())

	case exchangeDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else if msg.result != nil {
			if msg.result.NeedsUpgrade {
				m.status = "Free plan limit reached. Upgrade to Pro for unlimited generations."
			}
			if msg.result.RemainingPrompts != nil && m.profile != nil && !m.profile.IsPro {
				m.profile.PromptCount = api.FreeDailyLimit - *msg.result.RemainingPrompts
			}
		}

	case historyLoadedMsg:
		if msg.err != nil {
			m.log.Debug("history refresh failed: %v", msg.err)
		}
		m.applyHistory()

	case switchedMsg:
		if msg.err == nil {
			m.applyHistory()
			cmds = append(cmds, m.rerender())
		}

	case profileMsg:
		if msg.err == nil {
			m.profile = msg.profile
		} else {
			m.log.Debug("profile load failed: %v", msg.err)
		}

	case lorasMsg:
		if msg.err == nil {
			m.loras = msg.loras
		} else {
			m.log.Debug("lora listing failed: %v", msg.err)
		}

	case modelStatusMsg:
		if msg.err == nil {
			m.modelStatus = msg.status
		} else {
			m.log.Debug("model status load failed: %v", msg.err)
		}

	case saveDoneMsg:
		if msg.err != nil {
			m.status = "Save failed: " + msg.err.Error()
		} else {
			m.status = "Saved to " + msg.path
		}

	case renderDoneMsg:
		if msg.nonce != m.renderNonce {
			break
		}
		m.rendered = msg.rendered
		m.syncViewport(true)

	case spinner.TickMsg:
		var spin tea.Cmd
		m.spinner, spin = m.spinner.Update(msg)
		cmds = append(cmds, spin)

	case tea.KeyMsg:
		return m.updateKeys(msg, cmds)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateKeys(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if m.panel != nil {
		return m.updateSettingsKeys(msg, cmds)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Tab):
		m.toggleFocus()
		return m, nil
	case key.Matches(msg, m.keys.NewChat):
		m.controller.NewChat()
		m.rendered = ""
		m.revealText = ""
		m.lastImage = nil
		m.viewport.SetContent("Start a conversation below.")
		m.status = "Started a new conversation."
		return m, tea.Batch(cmds...)
	case key.Matches(msg, m.keys.Settings):
		m.openSettings()
		return m, nil
	case key.Matches(msg, m.keys.Save):
		if m.lastImage == nil {
			m.status = "No generated image yet."
			return m, tea.Batch(cmds...)
		}
		return m, tea.Batch(append(cmds, m.saveCmd(*m.lastImage))...)
	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(append(cmds, m.refreshHistoryCmd())...)
	}

	if m.focusInput {
		switch msg.String() {
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.sending {
				return m, tea.Batch(cmds...)
			}
			m.input.SetValue("")
			m.status = ""
			return m, tea.Batch(append(cmds, m.sendCmd(text))...)
		case "pgup":
			m.viewport.HalfViewUp()
			return m, tea.Batch(cmds...)
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, tea.Batch(append(cmds, cmd)...)
	}

	// Sidebar focus.
	switch msg.String() {
	case "enter":
		if id, ok := m.selectedConversation(); ok {
			return m, tea.Batch(append(cmds, m.switchCmd(id))...)
		}
		return m, tea.Batch(cmds...)
	case "x", "delete":
		if id, ok := m.selectedConversation(); ok {
			return m, tea.Batch(append(cmds, m.deleteCmd(id))...)
		}
		return m, tea.Batch(cmds...)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, tea.Batch(append(cmds, cmd)...)
}

func (m *Model) toggleFocus() {
	m.focusInput = !m.focusInput
	if m.focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) selectedConversation() (string, bool) {
	item, ok := m.list.SelectedItem().(historyItem)
	if !ok {
		return "", false
	}
	return item.item.ConversationID, true
}

func (m *Model) applyHistory() {
	items := m.controller.HistoryItems()
	listItems := make([]list.Item, 0, len(items))
	for _, it := range items {
		listItems = append(listItems, historyItem{item: it})
	}
	m.list.SetItems(listItems)
}

// rerender schedules a transcript render for the current messages.
func (m *Model) rerender() tea.Cmd {
	messages := m.controller.Messages()
	if len(messages) == 0 {
		return nil
	}
	m.renderNonce++
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	return m.renderCmd(messages, wrap, m.renderNonce)
}

// syncViewport rebuilds the viewport content from the rendered transcript
// and any in-flight reveal text.
func (m *Model) syncViewport(follow bool) {
	content := m.rendered
	if m.revealText != "" {
		content += "\n" + revealStyle.Render("Assistant: "+m.revealText)
	}
	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}
}
