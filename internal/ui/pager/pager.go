// Package pager shows a disassembly listing in a scrollable full-screen
// view.
package pager

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
)

// Model is the pager's bubbletea model.
type Model struct {
	title    string
	lines    int
	viewport viewport.Model
	width    int
	height   int
}

// New returns a pager over content. title is shown in the status bar.
func New(title, content string, lines int) Model {
	vp := viewport.New()
	vp.SetContent(content)
	return Model{title: title, lines: lines, viewport: vp}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 1)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	status := fmt.Sprintf(" %s • %d instructions • %3.f%% • ↑/↓ scroll • g/G top/bottom • q quit ",
		m.title, m.lines, m.viewport.ScrollPercent()*100)

	statusStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return m.viewport.View() + "\n" + statusStyle.Render(status)
}

// Run shows the pager until the user quits or ctx is cancelled.
func Run(ctx context.Context, title, content string, lines int) error {
	program := tea.NewProgram(
		New(title, content, lines),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("pager: %w", err)
	}
	return nil
}
