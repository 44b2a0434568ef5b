package pager

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
)

func TestViewShowsContentAndStatus(t *testing.T) {
	var m tea.Model = New("main @ 0x1000", "00001000: c3  ret", 1)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 10})

	view := m.(Model).View()
	for _, want := range []string{"00001000: c3  ret", "main @ 0x1000", "1 instructions"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestWindowSizeLeavesRoomForStatus(t *testing.T) {
	var m tea.Model = New("f", strings.Repeat("line\n", 50), 50)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 40, Height: 12})

	pm := m.(Model)
	if pm.viewport.Height() != 11 {
		t.Errorf("viewport height = %d, want 11", pm.viewport.Height())
	}
}
