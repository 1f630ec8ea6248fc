package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/settings"
)

// settingsPanel is the modal generation-settings editor. Up/down moves the
// cursor, left/right adjusts the selected value, enter applies, esc discards.
type settingsPanel struct {
	draft  settings.Settings
	cursor int
}

const (
	rowSteps = iota
	rowWidth
	rowHeight
	rowUseLoRA
	rowLoRAFile
	rowUseIPAdapter
	rowReferenceImage
	rowAdapterScale
	rowCount
)

func (m *Model) openSettings() {
	m.panel = &settingsPanel{draft: m.controller.Settings()}
}

func (m *Model) updateSettingsKeys(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	p := m.panel
	switch msg.String() {
	case "esc":
		m.panel = nil
		return m, tea.Batch(cmds...)
	case "enter":
		if err := m.controller.UpdateSettings(p.draft); err != nil {
			m.status = err.Error()
			return m, tea.Batch(cmds...)
		}
		m.panel = nil
		m.status = "Settings applied."
		return m, tea.Batch(cmds...)
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < rowCount-1 {
			p.cursor++
		}
	case "left", "h":
		p.adjust(m.loras, -1)
	case "right", "l":
		p.adjust(m.loras, +1)
	}
	return m, tea.Batch(cmds...)
}

// adjust nudges the selected row by one increment in the given direction.
func (p *settingsPanel) adjust(loras []string, dir int) {
	switch p.cursor {
	case rowSteps:
		p.draft.Steps = settings.ClampSteps(p.draft.Steps + dir)
	case rowWidth:
		p.draft.Width = settings.ClampDimension(p.draft.Width + dir*settings.DimensionStep)
	case rowHeight:
		p.draft.Height = settings.ClampDimension(p.draft.Height + dir*settings.DimensionStep)
	case rowUseLoRA:
		p.draft.UseLoRA = !p.draft.UseLoRA
		if p.draft.UseLoRA && p.draft.LoRAFilename == "" && len(loras) > 0 {
			p.draft.LoRAFilename = loras[0]
		}
	case rowLoRAFile:
		p.draft.LoRAFilename = cycle(loras, p.draft.LoRAFilename, dir)
	case rowUseIPAdapter:
		p.draft.UseIPAdapter = !p.draft.UseIPAdapter
	case rowReferenceImage:
		// The payload is supplied via -reference-image or the plain mode's
		// /ref command; in the panel it can only be cleared.
		p.draft.ReferenceImage = ""
	case rowAdapterScale:
		scale := p.draft.IPAdapterScale + float64(dir)*0.05
		if scale < settings.MinAdapterScale {
			scale = settings.MinAdapterScale
		}
		if scale > settings.MaxAdapterScale {
			scale = settings.MaxAdapterScale
		}
		p.draft.IPAdapterScale = scale
	}
}

// cycle steps through options relative to current, wrapping at both ends.
func cycle(options []string, current string, dir int) string {
	if len(options) == 0 {
		return current
	}
	idx := 0
	for i, opt := range options {
		if opt == current {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(options)) % len(options)
	return options[idx]
}

func (m *Model) settingsView() string {
	p := m.panel
	rows := []struct {
		label string
		value string
	}{
		{"Steps", fmt.Sprintf("%d", p.draft.Steps)},
		{"Width", fmt.Sprintf("%d px", p.draft.Width)},
		{"Height", fmt.Sprintf("%d px", p.draft.Height)},
		{"Fine-tuned (LoRA)", onOff(p.draft.UseLoRA)},
		{"LoRA file", orNone(p.draft.LoRAFilename)},
		{"Reference conditioning", onOff(p.draft.UseIPAdapter)},
		{"Reference image", referenceLabel(p.draft.ReferenceImage)},
		{"Conditioning strength", fmt.Sprintf("%.2f", p.draft.IPAdapterScale)},
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("Generation Settings") + "\n\n")
	for i, row := range rows {
		line := fmt.Sprintf("  %-24s %s", row.label, row.value)
		if i == p.cursor {
			line = selectedRowStyle.Render("> " + line[2:])
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n←/→ adjust · ↑/↓ select · enter apply · esc cancel\n")
	b.WriteString("\nModel: " + modelLine(m.modelStatus) + "\n")
	if s := strings.TrimSpace(m.status); s != "" {
		b.WriteString("\n" + s + "\n")
	}

	box := panelStyle(true).Width(min(m.width-4, 64)).Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// modelLine summarizes backend model readiness for the panel footer.
func modelLine(s *api.ModelStatus) string {
	if s == nil {
		return "status unknown"
	}
	if !s.BaseModelLoaded {
		return "not loaded"
	}
	line := s.ModelID
	if line == "" {
		line = "loaded"
	}
	if s.Device != "" {
		line += " on " + s.Device
	}
	var extras []string
	if s.LoraLoaded {
		extras = append(extras, "LoRA")
	}
	if s.IPAdapterLoaded {
		extras = append(extras, "IP-Adapter")
	}
	if len(extras) > 0 {
		line += " (+" + strings.Join(extras, ", ") + ")"
	}
	return line
}

// referenceLabel summarizes the conditioning payload for the panel. The
// payload itself is a data URI, far too long to show.
func referenceLabel(uri string) string {
	if uri == "" {
		return "(none)"
	}
	return fmt.Sprintf("set (%d KB)", (len(uri)+1023)/1024)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
