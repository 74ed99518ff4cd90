package ui

import (
	"strconv"
	"strings"

	"agentdeck/internal/approval"
	"agentdeck/internal/status"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	statusBar := m.statusLine()
	left, right := m.paneWidths()
	bodyHeight := m.height - 2

	leftPane := panelStyle(m.focusOnList).Width(left).Height(bodyHeight).Render(m.list.View())
	rightPane := panelStyle(!m.focusOnList).Width(right).Height(bodyHeight).Render(m.sessionPane())
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, body, m.bottomLine())
}

func (m Model) sessionPane() string {
	parts := []string{m.viewport.View()}
	if card := m.approvalCard(); card != "" {
		parts = append(parts, card)
	}
	parts = append(parts, m.composer.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) approvalCard() string {
	req, ok := m.flow.Pending()
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(approvalTitleStyle.Render("Permission required") + "\n")
	b.WriteString("  $ " + shorten(req.Command, m.viewport.Width-6) + "\n")
	line := ""
	switch m.flow.Phase() {
	case approval.PhaseResolving:
		b.WriteString("  resolving...")
	default:
		line = "  [y] allow once"
		if req.Pattern != "" {
			line += "  [a] always allow " + req.Pattern
		}
		b.WriteString(line)
		if err := m.flow.Err(); err != nil {
			b.WriteString("\n  " + errorStyle.Render("failed: "+err.Error()))
		}
	}
	return approvalCardStyle.Width(m.viewport.Width).Render(b.String())
}

func (m Model) bottomLine() string {
	switch {
	case m.searchMode:
		return m.search.View()
	case m.renameMode:
		return "rename: " + m.rename.View()
	}
	helpView := m.help.View(m.keys)
	if m.searchQuery != "" {
		helpView = "search: " + m.searchQuery + "  " + helpView
	}
	return helpView
}

func (m Model) statusLine() string {
	var parts []string

	if m.loading {
		parts = append(parts, m.spinner.View()+" loading...")
	}
	if m.selectedID != "" {
		parts = append(parts, "session="+shorten(m.selectedID, 18))
		if st, ok := m.poller.Status(m.selectedID); ok {
			parts = append(parts, m.badgeText(st.State))
		}
		if m.streamUp {
			parts = append(parts, "[live]")
		} else {
			parts = append(parts, "[offline]")
		}
		if rec := m.recs[m.selectedID]; rec != nil && rec.Dropped() > 0 {
			parts = append(parts, "[dropped "+strconv.Itoa(rec.Dropped())+"]")
		}
	}
	if m.sending {
		parts = append(parts, "[sending]")
	}
	if m.rendering {
		parts = append(parts, "[rendering]")
	}
	if m.matchCount > 0 {
		parts = append(parts, "[match "+strconv.Itoa(m.matchIndex+1)+"/"+strconv.Itoa(m.matchCount)+"]")
	}
	if s := strings.TrimSpace(m.status); s != "" {
		parts = append(parts, shorten(s, 80))
	}
	line := strings.Join(parts, "  ")
	if m.width > 0 {
		line = ansi.Truncate(line, m.width-2, "...")
	}
	return statusStyle.Render(line)
}

func (m Model) badgeFor(sessionID string) string {
	st, ok := m.poller.Status(sessionID)
	if !ok {
		return ""
	}
	return m.badgeText(st.State)
}

func (m Model) badgeText(st status.State) string {
	switch st {
	case status.Working:
		return workingStyle.Render("● working")
	case status.NeedsApproval:
		return approvalStyle.Render("● approval")
	case status.Waiting:
		return waitingStyle.Render("● waiting")
	default:
		return idleStyle.Render("● idle")
	}
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	bodyHeight := m.height - 2
	if bodyHeight < 8 {
		bodyHeight = 8
	}

	m.list.SetSize(left-2, bodyHeight-2)

	cardLines := 0
	if _, ok := m.flow.Pending(); ok {
		cardLines = 5
	}
	m.composer.SetWidth(right - 2)
	m.viewport.Width = right - 2
	m.viewport.Height = bodyHeight - 2 - composerHeight - cardLines
	if m.viewport.Height < 4 {
		m.viewport.Height = 4
	}
}

func (m *Model) paneWidths() (int, int) {
	left := m.width / 3
	if left < 30 {
		left = 30
	}
	if left > m.width-40 {
		left = m.width - 40
	}
	if left < 20 {
		left = 20
	}
	right := m.width - left - 1
	if right < 20 {
		right = 20
	}
	return left, right
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	searchMatchStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
	workingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	waitingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	approvalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	approvalTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	approvalCardStyle  = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("203")).
				Padding(0, 1)
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
	Up            key.Binding
	Down          key.Binding
	FocusLeft     key.Binding
	FocusRight    key.Binding
	Tab           key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
	Bottom        key.Binding
	Search        key.Binding
	NextMatch     key.Binding
	PrevMatch     key.Binding
	Compose       key.Binding
	ApproveOnce   key.Binding
	ApproveAlways key.Binding
	Refresh       key.Binding
	Export        key.Binding
	Copy          key.Binding
	Rename        key.Binding
	Delete        key.Binding
	Quit          key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		FocusLeft: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "focus list"),
		),
		FocusRight: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "focus session"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle focus"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "f"),
			key.WithHelp("pgdn", "page down"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "newest"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "prev match"),
		),
		Compose: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "write message"),
		),
		ApproveOnce: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "allow once"),
		),
		ApproveAlways: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "always allow"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh"),
		),
		Export: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "export markdown"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Tab, k.Compose, k.Search, k.ApproveOnce, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.FocusLeft, k.FocusRight, k.Tab},
		{k.PageUp, k.PageDown, k.Bottom, k.Search, k.NextMatch, k.PrevMatch},
		{k.Compose, k.ApproveOnce, k.ApproveAlways, k.Refresh},
		{k.Export, k.Copy, k.Rename, k.Delete, k.Quit},
	}
}
