package ui

import (
	"fmt"
	"strings"
	"time"

	"predictdash/internal/api"
	"predictdash/internal/panels"
	"predictdash/internal/publish"
)

func (m Model) View() string {
	if m.state == stateQuit {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Predictions Dashboard"))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", max(10, m.width-2))))
	b.WriteString("\n\n")

	switch m.state {
	case stateLogin:
		b.WriteString(m.viewLogin())
	case stateDashboard:
		b.WriteString(m.viewDashboard())
	case stateDetail:
		b.WriteString(m.viewDetail())
	}

	if t := m.viewToasts(); t != "" {
		b.WriteString("\n")
		b.WriteString(toastBoxStyle.Render(t))
	}
	return b.String()
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString("Admin token for " + subtitleStyle.Render(m.app.Config.API.BaseURL) + "\n\n")
	b.WriteString(m.tokenIn.View())
	if m.loginErr != "" {
		b.WriteString("\n\n" + warnStyle.Render(m.loginErr))
	}
	box := loginBoxStyle.Render(b.String())
	return box + "\n" + renderFooter("", "Enter login  |  Esc quit")
}

func (m Model) viewTabs() string {
	parts := make([]string, 0, len(panels.Sections))
	for i, s := range panels.Sections {
		label := fmt.Sprintf("%d %s", i+1, s)
		if i == m.panel.section {
			parts = append(parts, tabActiveStyle.Render(label))
			continue
		}
		parts = append(parts, tabStyle.Render(label))
	}
	return strings.Join(parts, " ")
}

func (m Model) viewDashboard() string {
	var b strings.Builder
	b.WriteString(m.viewTabs() + "\n\n")

	res := m.panel.result
	switch {
	case m.panel.err != "":
		b.WriteString(errorStyle.Render(m.panel.err) + "\n")
	case m.panel.loading && len(res.Page.Items) == 0:
		b.WriteString(m.spinner.View() + " loading " + m.section() + "…\n")
	case len(res.Page.Items) == 0:
		b.WriteString(subtleStyle.Render("(no items)") + "\n")
	default:
		cols, rows := tableOf(res.Page.Items)
		b.WriteString(renderTable(cols, rows, m.panel.cursor))
	}
	b.WriteString("\n")

	if m.detail.prompting {
		b.WriteString("Open fixture: " + m.detail.fixtureIn.View() + "\n")
		if m.detail.fixtureErr != "" {
			b.WriteString(warnStyle.Render(m.detail.fixtureErr) + "\n")
		}
		b.WriteString("\n")
	}

	status := m.pageLine()
	if m.panel.loading {
		status = m.spinner.View() + " " + status
	}
	help := "Tab/1-4 panel  |  n/p page  |  r reload  |  j/k move  |  o open fixture  |  L logout  |  q quit"
	if m.section() == panels.Fixtures {
		help = "Enter open fixture  |  " + help
	}
	b.WriteString(renderFooter(status+"  "+m.metricsLine(), help))
	return b.String()
}

// pageLine describes the visible page and how old its data is.
func (m Model) pageLine() string {
	res := m.panel.result
	p := res.Page
	line := fmt.Sprintf("page %d", max(1, m.panel.page))
	if p.Total >= 0 && p.Limit > 0 {
		pages := max(1, (p.Total+p.Limit-1)/p.Limit)
		line = fmt.Sprintf("page %d/%d, %d items", max(1, p.Page), pages, p.Total)
	}
	if !res.FetchedAt.IsZero() {
		age := m.app.Clock.Now().Sub(res.FetchedAt).Truncate(time.Second)
		line += fmt.Sprintf(", fetched %s ago", age)
		if res.FromCache {
			line += " (cached)"
		}
	}
	return line
}

func (m Model) metricsLine() string {
	if m.app.Metrics == nil {
		return ""
	}
	s := m.app.Metrics.Snapshot()
	line := fmt.Sprintf("req %d (r%d/w%d)  retry %d  wait %s  cancel %d  4xx %d  5xx %d",
		s.TotalRequests, s.ReadRequests, s.WriteRequests, s.TotalRetries,
		s.Backoff.Round(100*time.Millisecond), s.TotalCancelled, s.Status4xx, s.Status5xx)
	if s.Status429 > 0 {
		line += fmt.Sprintf("  429 %d", s.Status429)
	}
	return line
}

func (m Model) viewDetail() string {
	snap := m.detail.snap
	var b strings.Builder
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Fixture %d", snap.Owner)))
	b.WriteString("  " + subtleStyle.Render(snap.Phase.String()) + "\n\n")

	pv := snap.Preview
	switch {
	case snap.Phase == publish.PreviewLoading && !pv.Loaded:
		b.WriteString(m.spinner.View() + " loading preview…\n")
	case !pv.Loaded:
		b.WriteString(subtleStyle.Render("(no preview)") + "\n")
	default:
		ready := fmt.Sprintf("%d/%d markets ready", pv.Ready, pv.Total)
		if pv.Ready == 0 {
			b.WriteString(warnStyle.Render(ready))
		} else {
			b.WriteString(okStyle.Render(ready))
		}
		if pv.Mode != "" {
			b.WriteString(subtleStyle.Render("  mode " + pv.Mode))
		}
		b.WriteString("\n")
		for _, r := range pv.Reasons {
			b.WriteString("  • " + warnStyle.Render(r) + "\n")
		}
	}

	if snap.PostPreview.Error != "" {
		b.WriteString(errorStyle.Render("rich preview: "+snap.PostPreview.Error) + "\n")
	} else if snap.PostPreview.Loaded {
		b.WriteString("\n" + m.viewport.View() + "\n")
	}

	if snap.Settlement != publish.Unsettled {
		st := settlementStyles[snap.Settlement]
		b.WriteString("\n" + st.Render(snap.Settlement.String()) + "  " + snap.SettleMessage + "\n")
	}
	if snap.LastError != "" {
		b.WriteString(errorStyle.Render(snap.LastError) + "\n")
	}

	b.WriteString("\n" + m.viewHistory())

	owner := snap.Owner
	publishing := snap.Phase == publish.Publishing || m.busy[publish.PublishKey(owner)]
	richBusy := snap.Phase == publish.PostPreviewLoading || m.busy[publish.PostPreviewKey(owner)]
	controls := strings.Join([]string{
		control("s submit", publishing || pv.Ready == 0),
		control("v rich preview", richBusy),
		fmt.Sprintf("d dry-run [%s]", onOff(m.detail.dryRun)),
		fmt.Sprintf("f force [%s]", onOff(m.detail.force)),
		"r refresh",
		"h history",
		"/ filter",
		"t status",
		"Esc back",
	}, "  |  ")
	status := m.statusMsg
	if m.loading() {
		status = strings.TrimSpace(m.spinner.View() + " " + status)
	}
	b.WriteString("\n" + renderFooter(status, controls, m.metricsLine()))
	return b.String()
}

func (m Model) viewHistory() string {
	h := m.detail.snap.History
	f := m.app.Prefs.Get().Filters
	f.Query = m.detail.filterIn.Value()

	var b strings.Builder
	title := "History"
	if h.FromCache {
		title += " (cached)"
	}
	if f.Status != "" {
		title += " status=" + f.Status
	}
	b.WriteString(headerCellStyle.Render(title) + "\n")
	if m.detail.filtering || f.Query != "" {
		b.WriteString(m.detail.filterIn.View() + "\n")
	}
	if h.Error != "" {
		b.WriteString(errorStyle.Render(h.Error) + "\n")
	}
	if len(h.Rows) == 0 {
		if h.Loading {
			b.WriteString(m.spinner.View() + " loading history…\n")
		} else {
			b.WriteString(subtleStyle.Render("(no attempts)") + "\n")
		}
		return b.String()
	}
	idx := filterHistory(h.Rows, f, m.filterCfg)
	if len(idx) == 0 {
		b.WriteString(subtleStyle.Render("(no matches)") + "\n")
	}
	for _, i := range idx {
		b.WriteString(historyRowLine(h.Rows[i]) + "\n")
	}
	return b.String()
}

func historyRowLine(r api.HistoryRow) string {
	line := fmt.Sprintf("%s  %-12s %-3s ", r.CreatedAt.Local().Format("01-02 15:04:05"), r.Market, r.Language)
	status := string(r.Status)
	switch r.Status {
	case api.StatusOK:
		status = okStyle.Render(status)
	case api.StatusSkipped, api.StatusDryRun:
		status = warnStyle.Render(status)
	case api.StatusFailed:
		status = errorStyle.Render(status)
	}
	line += status
	if r.Reason != nil && *r.Reason != "" {
		line += "  " + subtleStyle.Render(*r.Reason)
	}
	if r.Error != nil && *r.Error != "" {
		line += "  " + errorStyle.Render(*r.Error)
	}
	if r.Experimental {
		line += "  " + subtleStyle.Render("(experimental)")
	}
	return line
}

func renderPostPreview(pp publish.PostPreviewState, width int) string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render("variant "+pp.Variant) + "\n")
	for _, mk := range pp.Markets {
		b.WriteString(headerCellStyle.Render(fmt.Sprintf("%s [%s]", mk.Market, mk.Lang)) + "\n")
		b.WriteString(mk.Title + "\n")
		if mk.Body != "" {
			b.WriteString(clip(mk.Body, max(20, width*3)) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewToasts() string {
	active := m.app.Toasts.Active()
	if len(active) == 0 {
		return ""
	}
	lines := make([]string, 0, len(active))
	for _, n := range active {
		lines = append(lines, toastStyle(n.Level).Render(n.Level.String()+": "+n.Text))
	}
	return strings.Join(lines, "\n")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
