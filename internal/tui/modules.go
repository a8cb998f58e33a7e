// SPDX-License-Identifier: MIT

// Package tui is the interactive module manager.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audiohost/internal/host"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))
)

const refreshInterval = 250 * time.Millisecond

var keys = struct {
	quit, up, down, toggle, config, moveUp, moveDown, volUp, volDown key.Binding
}{
	quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
	up:       key.NewBinding(key.WithKeys("up", "k")),
	down:     key.NewBinding(key.WithKeys("down", "j")),
	toggle:   key.NewBinding(key.WithKeys("enter", " ")),
	config:   key.NewBinding(key.WithKeys("c")),
	moveUp:   key.NewBinding(key.WithKeys("-")),
	moveDown: key.NewBinding(key.WithKeys("+", "=")),
	volUp:    key.NewBinding(key.WithKeys("]")),
	volDown:  key.NewBinding(key.WithKeys("[")),
}

// Controller is the part of the host the UI drives.
type Controller interface {
	Modules() []host.ModuleInfo
	Toggle(name string) error
	Config(name string) error
	MoveDSP(name string, delta int) error
	Volume() int
	SetVolume(volume int)
}

// StatusFunc returns a one-line playback status.
type StatusFunc func() string

type tickMsg time.Time

// ModuleListModel represents the Bubble Tea model for managing modules.
type ModuleListModel struct {
	ctl           Controller
	status        StatusFunc
	modules       []host.ModuleInfo
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
}

// NewModuleListModel creates a model driving ctl. status may be nil.
func NewModuleListModel(ctl Controller, status StatusFunc) ModuleListModel {
	return ModuleListModel{ctl: ctl, status: status, modules: ctl.Modules()}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh ticker.
func (m ModuleListModel) Init() tea.Cmd {
	return tick()
}

// Update handles input and updates the model.
func (m ModuleListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}

	case tickMsg:
		// Visualizers can stop on their own.
		m.refresh()
		cmds = append(cmds, tick())

	case tea.KeyMsg:
		if key.Matches(msg, keys.quit) {
			return m, tea.Quit
		}
		m.handleKey(msg)
	}

	m.viewport.SetContent(m.renderModules())
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *ModuleListModel) handleKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, keys.up):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, keys.down):
		if m.selectedIndex < len(m.modules)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, keys.volUp):
		m.ctl.SetVolume(min(m.ctl.Volume()+16, 255))
	case key.Matches(msg, keys.volDown):
		m.ctl.SetVolume(max(m.ctl.Volume()-16, 0))
	}

	sel, ok := m.selected()
	if !ok {
		return
	}
	var err error
	switch {
	case key.Matches(msg, keys.toggle):
		err = m.ctl.Toggle(sel.Name)
	case key.Matches(msg, keys.config):
		err = m.ctl.Config(sel.Name)
	case key.Matches(msg, keys.moveUp):
		if sel.Kind == host.KindDSP {
			err = m.ctl.MoveDSP(sel.Name, -1)
		}
	case key.Matches(msg, keys.moveDown):
		if sel.Kind == host.KindDSP {
			err = m.ctl.MoveDSP(sel.Name, 1)
		}
	default:
		return
	}
	m.err = err
	m.refresh()
}

func (m *ModuleListModel) refresh() {
	m.modules = m.ctl.Modules()
	if m.selectedIndex >= len(m.modules) {
		m.selectedIndex = max(len(m.modules)-1, 0)
	}
}

func (m ModuleListModel) selected() (host.ModuleInfo, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.modules) {
		return host.ModuleInfo{}, false
	}
	return m.modules[m.selectedIndex], true
}

// View renders the UI.
func (m ModuleListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Modules")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Start/Stop • c: Configure • +/-: Move effect • [/]: Volume • q: Quit")

	status := fmt.Sprintf("Volume %d", m.ctl.Volume())
	if m.status != nil {
		status = m.status() + " • " + status
	}
	if m.err != nil {
		status += "\n" + errorStyle.Render(m.err.Error())
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", title, m.viewport.View(), status, help)
}

// renderModules formats the module list.
func (m ModuleListModel) renderModules() string {
	if len(m.modules) == 0 {
		return "No modules loaded."
	}

	var sb strings.Builder
	for i, mod := range m.modules {
		state := "stopped"
		if mod.Running {
			state = "running"
			if mod.Slot >= 0 {
				state = fmt.Sprintf("slot %d", mod.Slot)
			}
		}
		line := fmt.Sprintf("[%s] %-12s %-10s (%s)", mod.Kind, mod.Name, state, mod.Plugin)
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Run launches the module manager and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, ctl Controller, status StatusFunc) error {
	p := tea.NewProgram(
		NewModuleListModel(ctl, status),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
