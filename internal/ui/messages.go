package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"predictdash/internal/app"
	"predictdash/internal/coord"
	"predictdash/internal/panels"
	"predictdash/internal/publish"
	"predictdash/internal/session"
)

// ---------- Messages / Cmds ----------

type panelMsg struct {
	ticket panels.Ticket
	result panels.Result
	err    error
}

// publishMsg reports the end of one workflow step. The model re-reads the
// coordinator snapshot; the step itself already applied or dropped its
// result.
type publishMsg struct {
	step   string
	result *publish.ResultSet
	err    error
}

type refreshMsg struct {
	status coord.JoinStatus
}

type guardMsg app.GuardEvent

type sessionMsg session.Event

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loadPanelCmd(a *app.App, tk panels.Ticket, page int, force bool) tea.Cmd {
	return func() tea.Msg {
		r, err := a.Panels.Load(context.Background(), tk, page, force)
		return panelMsg{ticket: tk, result: r, err: err}
	}
}

func previewCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		return publishMsg{step: "preview", err: a.Publish.LoadPreview(context.Background())}
	}
}

func postPreviewCmd(a *app.App, variant string) tea.Cmd {
	return func() tea.Msg {
		return publishMsg{step: "post-preview", err: a.Publish.LoadPostPreview(context.Background(), variant)}
	}
}

func submitCmd(a *app.App, opts publish.SubmitOptions) tea.Cmd {
	return func() tea.Msg {
		rs, err := a.Publish.Submit(context.Background(), opts)
		return publishMsg{step: "submit", result: rs, err: err}
	}
}

func historyCmd(a *app.App, limit int) tea.Cmd {
	return func() tea.Msg {
		return publishMsg{step: "history", err: a.Publish.LoadHistory(context.Background(), limit)}
	}
}

func refreshCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		status, _ := a.Publish.Refresh(context.Background())
		return refreshMsg{status: status}
	}
}

// listenGuard reads one guard change and returns it as a message. Update
// schedules it again after each delivery.
func listenGuard(ch <-chan app.GuardEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return guardMsg(ev)
	}
}

func listenSession(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return sessionMsg(ev)
	}
}
