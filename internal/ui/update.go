package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"predictdash/internal/apperr"
	"predictdash/internal/infra/logx"
	"predictdash/internal/panels"
	"predictdash/internal/prefs"
	"predictdash/internal/publish"
	"predictdash/internal/session"
)

// switchMsg asks Update to (re)open the selected panel.
type switchMsg struct{}

// pruneEvery is the number of ticks between cache prunes.
const pruneEvery = 30

var statusCycle = []string{"", "ok", "dry_run", "skipped", "failed"}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(),
		listenGuard(m.app.GuardEvents()),
		listenSession(m.app.Session.Events()),
	}
	if m.state == stateDashboard {
		cmds = append(cmds, func() tea.Msg { return switchMsg{} })
	} else {
		cmds = append(cmds, m.tokenIn.Focus())
	}
	return tea.Batch(cmds...)
}

// ---------- Update ----------
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			m.state = stateQuit
			return m, tea.Quit
		}
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateDashboard:
			return m.handleDashboardKey(msg)
		case stateDetail:
			return m.handleDetailKey(msg)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		const chrome = 16
		m.viewport.Width = max(20, m.width-4)
		m.viewport.Height = max(3, m.height-chrome)

	case switchMsg:
		return m.switchPanel()

	case panelMsg:
		if msg.ticket.Section != m.panel.ticket.Section || !m.app.Panels.IsCurrent(msg.ticket) {
			return m, nil
		}
		if msg.err == nil && !msg.result.Current {
			return m, nil
		}
		m.panel.loading = false
		if msg.err != nil {
			if !apperr.IsCancelled(msg.err) {
				m.panel.err = apperr.Compact(msg.err, 140)
			}
			return m, nil
		}
		m.panel.err = ""
		m.panel.result = msg.result
		m.panel.page = msg.result.Page.Page
		m.panel.cursor = min(m.panel.cursor, max(0, len(msg.result.Page.Items)-1))

	case publishMsg:
		return m.handlePublishMsg(msg)

	case refreshMsg:
		m.detail.snap = m.app.Publish.Snapshot()
		m.statusMsg = "refresh: " + msg.status.String()

	case guardMsg:
		if msg.Held {
			m.busy[msg.Key] = true
		} else {
			delete(m.busy, msg.Key)
		}
		return m, listenGuard(m.app.GuardEvents())

	case sessionMsg:
		next := listenSession(m.app.Session.Events())
		switch msg.Kind {
		case session.LoggedOut:
			m.state = stateLogin
			m.loginErr = msg.Reason
			m.panel = PanelState{page: 1, section: m.panel.section}
			m.detail.snap = publish.State{}
			m.busy = make(map[string]bool)
			m.tokenIn.SetValue("")
			return m, tea.Batch(next, m.tokenIn.Focus())
		case session.LoggedIn:
			m.loginErr = ""
		}
		return m, next

	case tickMsg:
		m.ticks++
		if m.ticks%pruneEvery == 0 {
			if n := m.app.Cache.Prune(); n > 0 {
				logx.Debugw("pruned section cache", "entries", n)
			}
		}
		return m, tickCmd()

	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// loading reports whether anything the spinner stands for is in flight.
func (m Model) loading() bool {
	if m.panel.loading || m.detail.snap.History.Loading {
		return true
	}
	switch m.detail.snap.Phase {
	case publish.PreviewLoading, publish.PostPreviewLoading, publish.Publishing:
		return true
	}
	return false
}

func (m Model) switchPanel() (Model, tea.Cmd) {
	tk, err := m.app.Panels.Switch(m.section())
	if err != nil {
		m.panel.err = err.Error()
		return m, nil
	}
	m.panel.ticket = tk
	m.panel.page = 1
	m.panel.cursor = 0
	m.panel.err = ""
	m.panel.loading = true
	m.panel.result = panels.Result{Section: tk.Section}
	section := tk.Section
	m.app.Prefs.Update(func(p *prefs.Prefs) { p.Panel = section })
	return m, tea.Batch(m.spinner.Tick, loadPanelCmd(m.app, tk, 1, false))
}

func (m Model) loadPage(page int, force bool) (Model, tea.Cmd) {
	m.panel.loading = true
	m.panel.cursor = 0
	return m, tea.Batch(m.spinner.Tick, loadPanelCmd(m.app, m.panel.ticket, page, force))
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateQuit
		return m, tea.Quit
	case "enter":
		if err := m.app.Session.Login(m.tokenIn.Value()); err != nil {
			m.loginErr = err.Error()
			return m, nil
		}
		m.loginErr = ""
		m.tokenIn.Blur()
		m.state = stateDashboard
		return m.switchPanel()
	}
	var cmd tea.Cmd
	m.tokenIn, cmd = m.tokenIn.Update(msg)
	return m, cmd
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.detail.prompting {
		return m.handleFixturePrompt(msg)
	}
	key := msg.String()
	n := len(panels.Sections)
	switch key {
	case "q":
		m.state = stateQuit
		return m, tea.Quit
	case "tab", "right", "l":
		m.panel.section = (m.panel.section + 1) % n
		return m.switchPanel()
	case "shift+tab", "left", "h":
		m.panel.section = (m.panel.section + n - 1) % n
		return m.switchPanel()
	case "1", "2", "3", "4":
		m.panel.section = int(key[0]-'1') % n
		return m.switchPanel()
	case "n":
		if m.panel.result.Page.HasMore() && !m.panel.loading {
			return m.loadPage(m.panel.page+1, false)
		}
	case "p":
		if m.panel.page > 1 && !m.panel.loading {
			return m.loadPage(m.panel.page-1, false)
		}
	case "r":
		return m.loadPage(m.panel.page, true)
	case "j", "down":
		if m.panel.cursor < len(m.panel.result.Page.Items)-1 {
			m.panel.cursor++
		}
	case "k", "up":
		if m.panel.cursor > 0 {
			m.panel.cursor--
		}
	case "enter":
		items := m.panel.result.Page.Items
		if m.section() != panels.Fixtures || m.panel.cursor >= len(items) {
			return m, nil
		}
		if id, ok := itemID(items[m.panel.cursor]); ok {
			return m.openFixture(id)
		}
	case "o":
		m.detail.prompting = true
		m.detail.fixtureErr = ""
		m.detail.fixtureIn.SetValue("")
		return m, m.detail.fixtureIn.Focus()
	case "L":
		m.app.Session.Logout("logged out")
	}
	return m, nil
}

func (m Model) handleFixturePrompt(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.detail.prompting = false
		m.detail.fixtureIn.Blur()
		return m, nil
	case "enter":
		return m.openFixture(m.detail.fixtureIn.Value())
	}
	var cmd tea.Cmd
	m.detail.fixtureIn, cmd = m.detail.fixtureIn.Update(msg)
	return m, cmd
}

// openFixture opens raw in the publish workflow and loads its preview and
// history. An invalid id keeps the prompt open with the error.
func (m Model) openFixture(raw string) (Model, tea.Cmd) {
	if _, err := m.app.Publish.Open(raw); err != nil {
		m.detail.prompting = true
		m.detail.fixtureErr = err.Error()
		return m, nil
	}
	m.detail.prompting = false
	m.detail.fixtureIn.Blur()
	m.detail.fixtureErr = ""
	m.detail.dryRun = false
	m.detail.force = false
	m.detail.snap = m.app.Publish.Snapshot()
	m.viewport.SetContent("")
	m.viewport.GotoTop()
	m.state = stateDetail
	m.statusMsg = ""
	return m, tea.Batch(m.spinner.Tick, previewCmd(m.app), historyCmd(m.app, m.historyLimit()))
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.detail.filtering {
		return m.handleFilterKey(msg)
	}
	switch msg.String() {
	case "q":
		m.state = stateQuit
		return m, tea.Quit
	case "esc", "backspace":
		m.app.Publish.Close()
		m.detail.snap = publish.State{}
		m.state = stateDashboard
		return m, nil
	case "v":
		return m, tea.Batch(m.spinner.Tick, postPreviewCmd(m.app, m.detail.variant))
	case "s":
		m.statusMsg = ""
		return m, tea.Batch(m.spinner.Tick, submitCmd(m.app, publish.SubmitOptions{
			Force:   m.detail.force,
			DryRun:  m.detail.dryRun,
			Variant: m.detail.variant,
		}))
	case "d":
		m.detail.dryRun = !m.detail.dryRun
	case "f":
		m.detail.force = !m.detail.force
	case "r":
		return m, tea.Batch(m.spinner.Tick, refreshCmd(m.app))
	case "h":
		return m, tea.Batch(m.spinner.Tick, historyCmd(m.app, m.historyLimit()))
	case "t":
		cur := m.app.Prefs.Get().Filters.Status
		next := statusCycle[0]
		for i, s := range statusCycle {
			if s == cur {
				next = statusCycle[(i+1)%len(statusCycle)]
			}
		}
		m.app.Prefs.Update(func(p *prefs.Prefs) { p.Filters.Status = next })
	case "/":
		m.detail.filtering = true
		return m, m.detail.filterIn.Focus()
	case "j", "down":
		m.viewport.LineDown(1)
	case "k", "up":
		m.viewport.LineUp(1)
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.detail.filtering = false
		m.detail.filterIn.Blur()
		if msg.String() == "esc" {
			m.detail.filterIn.SetValue("")
			m.app.Prefs.Update(func(p *prefs.Prefs) { p.Filters.Query = "" })
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.detail.filterIn, cmd = m.detail.filterIn.Update(msg)
	q := strings.TrimSpace(m.detail.filterIn.Value())
	m.app.Prefs.Update(func(p *prefs.Prefs) { p.Filters.Query = q })
	return m, cmd
}

func (m Model) handlePublishMsg(msg publishMsg) (Model, tea.Cmd) {
	m.detail.snap = m.app.Publish.Snapshot()
	switch msg.step {
	case "post-preview":
		if msg.err == nil && m.detail.snap.PostPreview.Loaded {
			m.viewport.SetContent(renderPostPreview(m.detail.snap.PostPreview, m.viewport.Width))
			m.viewport.GotoTop()
		}
	case "submit":
		if msg.err != nil || msg.result == nil {
			return m, nil
		}
		m.statusMsg = msg.result.SummaryLine(m.app.Config.Publish.ReasonLimit)
		cmds := []tea.Cmd{historyCmd(m.app, m.historyLimit())}
		if m.section() == panels.Publishing && m.panel.ticket.Section == panels.Publishing {
			m.panel.loading = true
			cmds = append(cmds, loadPanelCmd(m.app, m.panel.ticket, m.panel.page, false))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}
