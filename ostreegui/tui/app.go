// Package tui is the terminal front-end. It renders the layered packages of
// the current deployment and turns key presses into Actions.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

// Actions is what the UI can ask for. Calls must not block: they are made
// on the UI goroutine and results come back through ProgramSurface.
type Actions interface {
	Refresh()
	Install(name string)
	Uninstall(names []string) bool
	Upgrade()
	ApplyLive()
	Search(query string)
}

type viewMode int

const (
	viewNormal viewMode = iota
	viewSearch
	viewInstall
	viewConfirm
	viewError
)

type Model struct {
	actions Actions
	target  string
	keys    keyMap

	width  int
	height int
	cursor int
	scroll int

	viewMode viewMode
	input    textinput.Model
	spinner  spinner.Model

	loaded     bool
	deployment pm.Deployment
	packages   []string
	selected   map[string]bool

	// results is non-nil while search results are shown in place of the
	// package list.
	results     []string
	searchQuery string

	confirmText string
	confirmDo   func()

	// errTexts queues failures; the first one is on screen while viewMode
	// is viewError.
	errTexts  []string
	statusMsg string
	busy      bool
}

func NewModel(actions Actions, target string) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		actions:  actions,
		target:   target,
		keys:     defaultKeyMap(),
		input:    ti,
		spinner:  sp,
		selected: make(map[string]bool),
	}
}

func (m Model) Init() tea.Cmd {
	m.actions.Refresh()
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ensureCursorVisible()
		return m, nil

	case packagesMsg:
		m.applyDeployment(msg.deployment)
		return m, nil

	case errorMsg:
		m.errTexts = append(m.errTexts, msg.text)
		// an open prompt or confirmation keeps the screen until it is closed
		if m.viewMode == viewNormal {
			m.viewMode = viewError
		}
		return m, nil

	case busyMsg:
		m.busy = msg.busy
		if m.busy {
			return m, m.spinner.Tick
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case searchResultsMsg:
		// a slower search for an older query must not replace newer results
		if msg.query != m.searchQuery {
			return m, nil
		}
		m.results = msg.results
		if m.results == nil {
			m.results = []string{}
		}
		m.cursor = 0
		m.scroll = 0
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// applyDeployment replaces the displayed list. Marks on packages that are no
// longer layered are dropped.
func (m *Model) applyDeployment(d pm.Deployment) {
	m.loaded = true
	m.deployment = d
	m.packages = d.SortedPackages()

	present := make(map[string]bool, len(m.packages))
	for _, name := range m.packages {
		present[name] = true
	}
	for name := range m.selected {
		if !present[name] {
			delete(m.selected, name)
		}
	}

	if n := len(m.visibleItems()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	m.ensureCursorVisible()
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.viewMode {
	case viewSearch, viewInstall:
		return m.handleInputKey(msg)
	case viewConfirm:
		return m.handleConfirmKey(msg)
	case viewError:
		return m.handleErrorKey(msg)
	default:
		return m.handleNormalKey(msg)
	}
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.visibleItems())-1 {
			m.cursor++
			m.ensureCursorVisible()
		}

	case key.Matches(msg, m.keys.Select):
		if m.results == nil && m.cursor < len(m.packages) {
			name := m.packages[m.cursor]
			if m.selected[name] {
				delete(m.selected, name)
			} else {
				m.selected[name] = true
			}
		}

	case key.Matches(msg, m.keys.Search):
		m.viewMode = viewSearch
		m.input.Placeholder = "Search packages..."
		m.input.SetValue(m.searchQuery)
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Install):
		if m.results != nil && m.cursor < len(m.results) {
			name := m.results[m.cursor]
			m.askConfirm(fmt.Sprintf("Install %s?", name), func() { m.actions.Install(name) })
			return m, nil
		}
		m.viewMode = viewInstall
		m.input.Placeholder = "Package name"
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Uninstall):
		names := m.selectedNames()
		if len(names) == 0 {
			m.statusMsg = "Nothing selected; mark packages with space"
			return m, nil
		}
		m.askConfirm(fmt.Sprintf("Uninstall %s?", strings.Join(names, ", ")), func() {
			if m.actions.Uninstall(names) {
				clear(m.selected)
			}
		})

	case key.Matches(msg, m.keys.Upgrade):
		m.askConfirm("Upgrade to the latest deployment?", m.actions.Upgrade)

	case key.Matches(msg, m.keys.ApplyLive):
		m.askConfirm("Apply the pending deployment to the running system?", m.actions.ApplyLive)

	case key.Matches(msg, m.keys.Refresh):
		m.actions.Refresh()

	case key.Matches(msg, m.keys.Escape):
		if m.results != nil {
			m.results = nil
			m.searchQuery = ""
			m.cursor = 0
			m.scroll = 0
		}
	}

	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.closeDialog()
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		value := strings.TrimSpace(m.input.Value())
		mode := m.viewMode
		m.closeDialog()
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		if mode == viewSearch {
			m.searchQuery = value
			m.actions.Search(value)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Installing %s", value)
		m.actions.Install(value)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		do := m.confirmDo
		m.closeDialog()
		m.confirmDo = nil
		m.confirmText = ""
		if do != nil {
			do()
		}
	case key.Matches(msg, m.keys.Cancel):
		m.closeDialog()
		m.confirmDo = nil
		m.confirmText = ""
	}
	return m, nil
}

func (m Model) handleErrorKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Escape, m.keys.Submit, m.keys.Quit) {
		m.errTexts = m.errTexts[1:]
		m.closeDialog()
	}
	return m, nil
}

// closeDialog returns to the package list, or to the next queued error.
func (m *Model) closeDialog() {
	if len(m.errTexts) > 0 {
		m.viewMode = viewError
		return
	}
	m.viewMode = viewNormal
}

func (m *Model) askConfirm(text string, do func()) {
	m.confirmText = text
	m.confirmDo = do
	m.viewMode = viewConfirm
}

func (m Model) selectedNames() []string {
	names := make([]string, 0, len(m.selected))
	for name := range m.selected {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m Model) visibleItems() []string {
	if m.results != nil {
		return m.results
	}
	return m.packages
}

// maxVisibleItems is the number of list rows that fit between the header and
// the help lines.
func (m Model) maxVisibleItems() int {
	available := m.height - 11
	if available < 1 {
		return 1
	}
	return available
}

func (m *Model) ensureCursorVisible() {
	maxVisible := m.maxVisibleItems()
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+maxVisible {
		m.scroll = m.cursor - maxVisible + 1
	}
}

func (m Model) View() string {
	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("ostreegui"),
		targetStyle.Render(fmt.Sprintf("[%s]", m.target)),
	)
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(deploymentStyle.Render(describeDeployment(m.deployment)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", min(max(m.width, 1), 70)))
	b.WriteString("\n")

	switch {
	case m.viewMode == viewSearch:
		b.WriteString(inputStyle.Render("Search: "))
		b.WriteString(m.input.View())
	case m.viewMode == viewInstall:
		b.WriteString(inputStyle.Render("Install: "))
		b.WriteString(m.input.View())
	case m.results != nil:
		b.WriteString(inputStyle.Render("Search: "))
		b.WriteString(m.searchQuery)
		b.WriteString(dimStyle.Render("  (/ to edit, Esc to clear, i to install)"))
	default:
		b.WriteString(dimStyle.Render("Press / to search, i to install by name"))
	}
	b.WriteString("\n")

	items := m.visibleItems()
	maxVisible := m.maxVisibleItems()

	switch {
	case !m.loaded && m.results == nil:
		b.WriteString(headerStyle.Render("LAYERED PACKAGES"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Loading..."))
		b.WriteString("\n")
	default:
		title := "LAYERED PACKAGES"
		if m.results != nil {
			title = "SEARCH RESULTS"
		}
		b.WriteString(headerStyle.Render(title))
		if len(items) > maxVisible {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (%d-%d of %d)", m.scroll+1, min(m.scroll+maxVisible, len(items)), len(items))))
		}
		b.WriteString("\n")
		if len(items) == 0 {
			b.WriteString(dimStyle.Render("  (none)"))
			b.WriteString("\n")
		}
		m.renderItems(&b, items, maxVisible)
	}

	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(m.spinner.View())
		b.WriteString(" Working...")
	case m.statusMsg != "":
		b.WriteString(statusStyle.Render(m.statusMsg))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/k up  ↓/j down  space select  i install  u uninstall"))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("U upgrade  a apply live  r refresh  / search  q quit"))

	switch m.viewMode {
	case viewError:
		title := "Error"
		if n := len(m.errTexts); n > 1 {
			title = fmt.Sprintf("Error (1 of %d)", n)
		}
		return renderWithModal(b.String(), title, errorStyle.Render(strings.TrimRight(m.errTexts[0], "\n")), "Press Esc to close")
	case viewConfirm:
		return renderWithModal(b.String(), "Confirm", m.confirmText, "[y] Yes  [n] No")
	}
	return b.String()
}

func (m Model) renderItems(b *strings.Builder, items []string, maxItems int) {
	rendered := 0
	for i, name := range items {
		if i < m.scroll {
			continue
		}
		if rendered >= maxItems {
			break
		}

		prefix := "  "
		styled := normalStyle.Render(name)
		if i == m.cursor {
			prefix = "> "
			styled = cursorStyle.Render(name)
		}

		mark := ""
		if m.results == nil {
			mark = dimStyle.Render("[ ] ")
			if m.selected[name] {
				mark = markedStyle.Render("[x] ")
			}
		}

		b.WriteString(prefix + mark + styled + "\n")
		rendered++
	}
}

func describeDeployment(d pm.Deployment) string {
	if d.ID == "" && d.Version == "" {
		return ""
	}
	parts := []string{strings.TrimSpace(d.OSName + " " + d.Version)}
	if d.Checksum != "" {
		parts = append(parts, shortChecksum(d.Checksum))
	}
	var flags []string
	if d.Booted {
		flags = append(flags, "booted")
	}
	if d.Staged {
		flags = append(flags, "staged")
	}
	if d.Pinned {
		flags = append(flags, "pinned")
	}
	if len(flags) > 0 {
		parts = append(parts, "("+strings.Join(flags, ", ")+")")
	}
	if d.Timestamp > 0 {
		parts = append(parts, time.Unix(d.Timestamp, 0).UTC().Format("2006-01-02"))
	}
	return strings.Join(parts, "  ")
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func renderWithModal(bg, title, content, footer string) string {
	lines := strings.Split(bg, "\n")

	modal := modalStyle.Render(fmt.Sprintf("%s\n\n%s\n\n%s",
		titleStyle.Render(title),
		content,
		dimStyle.Render(footer),
	))
	modalLines := strings.Split(modal, "\n")

	startY := max((len(lines)-len(modalLines))/2, 0)
	for i, mLine := range modalLines {
		if idx := startY + i; idx < len(lines) {
			lines[idx] = mLine
		} else {
			lines = append(lines, mLine)
		}
	}
	return strings.Join(lines, "\n")
}
