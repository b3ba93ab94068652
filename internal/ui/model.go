package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"predictdash/internal/app"
	"predictdash/internal/panels"
	"predictdash/internal/publish"
)

// --- Model / State ---
type state int

const (
	stateLogin state = iota
	stateDashboard
	stateDetail
	stateQuit
)

// PanelState is the visible dashboard panel.
type PanelState struct {
	section int // index into panels.Sections
	page    int
	cursor  int
	ticket  panels.Ticket
	result  panels.Result
	err     string
	loading bool
}

// DetailState is the publish view of one fixture.
type DetailState struct {
	snap       publish.State
	dryRun     bool
	force      bool
	prompting  bool
	fixtureIn  textinput.Model
	fixtureErr string
	filtering  bool
	filterIn   textinput.Model
	variant    string
}

type Model struct {
	app           *app.App
	state         state
	width, height int
	statusMsg     string
	ticks         int

	spinner  spinner.Model
	tokenIn  textinput.Model
	loginErr string
	viewport viewport.Model

	panel  PanelState
	detail DetailState
	// busy mirrors the guard: keys currently held disable their controls.
	busy map[string]bool

	filterCfg FilterConfig
}

// New builds the root model. The dashboard opens directly when the app
// already holds a credential.
func New(a *app.App) Model {
	m := Model{
		app:   a,
		state: stateLogin,
		busy:  make(map[string]bool),
		filterCfg: FilterConfig{
			MinCoverage: 0.6,
			MaxSpread:   40,
			MaxResults:  200,
		},
	}

	ti := textinput.New()
	ti.Placeholder = "Admin token"
	ti.Focus()
	ti.EchoMode = textinput.EchoPassword
	ti.CharLimit = 200
	m.tokenIn = ti

	fi := textinput.New()
	fi.Placeholder = "Fixture id (e.g. 501)"
	fi.CharLimit = 20
	fi.Width = 20
	m.detail.fixtureIn = fi

	hi := textinput.New()
	hi.Placeholder = "Filter history…"
	hi.CharLimit = 100
	hi.Width = 40
	m.detail.filterIn = hi
	m.detail.variant = a.Config.Publish.Variant

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = subtleStyle
	m.spinner = sp

	m.viewport = viewport.New(80, 10)

	p := a.Prefs.Get()
	m.detail.filterIn.SetValue(p.Filters.Query)
	for i, s := range panels.Sections {
		if s == p.Panel {
			m.panel.section = i
		}
	}
	m.panel.page = 1

	if a.Session.LoggedIn() {
		m.state = stateDashboard
		m.tokenIn.Blur()
	}
	return m
}

func (m Model) section() string { return panels.Sections[m.panel.section] }

func (m Model) historyLimit() int {
	if n := m.app.Prefs.Get().HistoryLimit; n > 0 {
		return n
	}
	return m.app.Config.Publish.HistoryLimit
}
