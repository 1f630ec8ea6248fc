package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/chat"
)

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	if m.panel != nil {
		return m.settingsView()
	}

	status := m.statusLine()
	left, right := m.paneWidths()
	bodyHeight := m.height - 4

	leftPane := panelStyle(!m.focusInput).Width(left).Height(bodyHeight).Render(m.list.View())
	rightPane := panelStyle(m.focusInput).Width(right).Height(bodyHeight).Render(m.viewport.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	inputLine := m.input.View()
	if m.sending {
		inputLine = m.spinner.View() + " waiting for reply..."
	}
	if m.generating {
		inputLine = m.spinner.View() + " generating your logo..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		status,
		body,
		inputLine,
		m.help.View(m.keys),
	)
}

func (m *Model) statusLine() string {
	parts := []string{"glyph"}
	if m.profile != nil {
		parts = append(parts, planSummary(m.profile))
	}
	if m.generating {
		parts = append(parts, "[generating]")
	} else if m.sending {
		parts = append(parts, "[thinking]")
	}
	if s := strings.TrimSpace(m.status); s != "" {
		parts = append(parts, s)
	}
	if m.err != nil {
		parts = append(parts, "err="+m.err.Error())
	}
	return statusStyle.Width(m.width).Render(strings.Join(parts, "  "))
}

// planSummary formats the account line shown in the status bar.
func planSummary(p *api.Profile) string {
	if p.IsPro {
		return "Pro Plan"
	}
	remaining := api.FreeDailyLimit - p.PromptCount
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("Free Plan %d/%d", remaining, api.FreeDailyLimit)
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	bodyHeight := m.height - 4
	if bodyHeight < 8 {
		bodyHeight = 8
	}

	m.list.SetSize(left-2, bodyHeight-2)
	m.viewport.Width = right - 2
	m.viewport.Height = bodyHeight - 2
	m.input.Width = m.width - 4
}

func (m *Model) paneWidths() (int, int) {
	left := m.width / 4
	if left < 24 {
		left = 24
	}
	if left > m.width-40 {
		left = m.width - 40
	}
	if left < 16 {
		left = 16
	}
	right := m.width - left - 1
	if right < 20 {
		right = 20
	}
	return left, right
}

// transcriptMarkdown builds the markdown source rendered into the
// transcript pane.
func transcriptMarkdown(messages []chat.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch {
		case msg.IsError:
			b.WriteString("> **Error:** " + msg.Text + "\n\n")
		case msg.Role == chat.RoleUser:
			b.WriteString("**You:** " + msg.Text + "\n\n")
		case msg.ImageRef != "":
			b.WriteString("**Generated:** `" + imageCaption(msg) + "`\n\n")
		default:
			b.WriteString("**Assistant:** " + msg.Text + "\n\n")
		}
	}
	return b.String()
}

func imageCaption(msg chat.Message) string {
	name := msg.Filename
	if name == "" {
		name = "logo.png"
	}
	if msg.Metadata == nil {
		return name
	}
	return fmt.Sprintf("%s (%s, %d steps, %s)", name, msg.Metadata.Model, msg.Metadata.Steps, msg.Metadata.Dimensions)
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	revealStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("39"))
)

func panelStyle(active bool) lipgloss.Style {
	border := lipgloss.NormalBorder()
	if active {
		return lipgloss.NewStyle().
			Border(border, true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	}
	return lipgloss.NewStyle().
		Border(border, true).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
}

type keyMap struct {
	Tab      key.Binding
	NewChat  key.Binding
	Settings key.Binding
	Save     key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle focus"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		Settings: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "settings"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "save image"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh history"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.NewChat, k.Settings, k.Save, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.NewChat, k.Settings},
		{k.Save, k.Refresh, k.Quit},
	}
}
