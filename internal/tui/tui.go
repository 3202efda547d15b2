package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"imgcluster/internal/core"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pane int

const (
	groupPane pane = iota
	memberPane
)

// model is the state of the run browser: the group list on the left and
// the members of the selected group on the right.
type model struct {
	run       *core.RunResult
	features  map[string]core.Vector
	groupIdx  int
	memberIdx int
	focus     pane
	width     int
	height    int
	quitting  bool
}

// NewModel returns the initial state for browsing run. run.Groups must be set.
func NewModel(run *core.RunResult) model {
	features := make(map[string]core.Vector, len(run.Images))
	for _, img := range run.Images {
		features[img.Path] = img.Features
	}

	return model{
		run:      run,
		features: features,
		width:    100,
		height:   24,
	}
}

// Init is the first command that will be run. We don't need any for now.
func (m model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			if m.focus == groupPane {
				m.focus = memberPane
			} else {
				m.focus = groupPane
			}
		case "right", "l", "enter":
			m.focus = memberPane
		case "left", "h", "esc":
			m.focus = groupPane
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		}
	}

	return m, nil
}

func (m *model) move(delta int) {
	if m.focus == groupPane {
		next := m.groupIdx + delta
		if next >= 0 && next < len(m.run.Groups) {
			m.groupIdx = next
			m.memberIdx = 0
		}
		return
	}

	group, ok := m.selectedGroup()
	if !ok {
		return
	}
	next := m.memberIdx + delta
	if next >= 0 && next < len(group.Members) {
		m.memberIdx = next
	}
}

func (m model) selectedGroup() (core.Group, bool) {
	if m.groupIdx < 0 || m.groupIdx >= len(m.run.Groups) {
		return core.Group{}, false
	}
	return m.run.Groups[m.groupIdx], true
}

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	noiseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (m model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	border := func(focused bool) lipgloss.Style {
		style := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1).Width(paneWidth)
		if focused {
			style = style.BorderForeground(lipgloss.Color("86"))
		}
		return style
	}

	header := titleStyle.Render(fmt.Sprintf("Run %s", shortID(m.run.ID))) +
		fmt.Sprintf("  eps=%g min_samples=%d  %d clusters, %d noise",
			m.run.Params.Eps, m.run.Params.MinSamples, m.run.Clusters, m.run.Noise)

	leftPane := border(m.focus == groupPane).Render(m.groupList())
	rightPane := border(m.focus == memberPane).Render(m.memberList())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	help := helpStyle.Render("[↑/k] Up | [↓/j] Down | [tab] Switch pane | [q] Quit")

	return docStyle.Render(header + "\n\n" + mainContent + "\n\n" + help)
}

func (m model) groupList() string {
	var b strings.Builder
	b.WriteString("Groups\n\n")
	if len(m.run.Groups) == 0 {
		b.WriteString("No images in this run.")
		return b.String()
	}

	for i, group := range m.run.Groups {
		line := fmt.Sprintf("%s (%d)", group.Name, len(group.Members))
		switch {
		case i == m.groupIdx:
			line = selectedStyle.Render("> " + line)
		case group.IsNoise():
			line = noiseStyle.Render("  " + line)
		default:
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m model) memberList() string {
	group, ok := m.selectedGroup()
	if !ok {
		return "Members\n\nNothing selected."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Members of %s\n\n", group.Name))

	// Keep the cursor visible on short terminals
	visible := m.height - 12
	if visible < 5 {
		visible = 5
	}
	start := 0
	if m.memberIdx >= visible {
		start = m.memberIdx - visible + 1
	}
	end := start + visible
	if end > len(group.Members) {
		end = len(group.Members)
	}

	for i := start; i < end; i++ {
		path := group.Members[i]
		line := filepath.Base(path)
		if vec, ok := m.features[path]; ok {
			line += "  " + formatVector(vec)
		}
		if m.focus == memberPane && i == m.memberIdx {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	if end < len(group.Members) {
		b.WriteString(fmt.Sprintf("  … %d more\n", len(group.Members)-end))
	}
	return b.String()
}

func formatVector(vec core.Vector) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.1f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StartTUI initializes and starts the Bubble Tea application.
func StartTUI(run *core.RunResult) error {
	p := tea.NewProgram(NewModel(run), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
