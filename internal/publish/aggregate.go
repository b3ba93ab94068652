package publish

import (
	"fmt"
	"sort"
	"strings"

	"predictdash/internal/api"
)

// NoReason labels a skipped or failed row that carries neither a reason
// nor an error.
const NoReason = "no reason"

// ReservationMessage is the settle message for a reservation conflict.
const ReservationMessage = "another process holds the publish reservation for this fixture; nothing was submitted"

// Summary counts rows by status.
type Summary struct {
	OK      int
	DryRun  int
	Skipped int
	Failed  int
}

// ReasonCount is one entry of the reason frequency list.
type ReasonCount struct {
	Reason string
	Count  int
}

// ResultSet is the aggregated outcome of one submission.
type ResultSet struct {
	DryRun            bool
	ReservationLocked bool
	Rows              []api.PublishResultRow
	Summary           Summary
	// Reasons is sorted by count descending; equal counts keep first-seen order.
	Reasons []ReasonCount
}

// Aggregate counts rows by status in one pass and ranks the reasons given
// for skipped and failed rows.
func Aggregate(dryRun bool, rows []api.PublishResultRow) ResultSet {
	rs := ResultSet{DryRun: dryRun, Rows: rows}
	index := make(map[string]int)
	for _, row := range rows {
		switch row.Status {
		case api.StatusOK:
			rs.Summary.OK++
		case api.StatusDryRun:
			rs.Summary.DryRun++
		case api.StatusSkipped:
			rs.Summary.Skipped++
		case api.StatusFailed:
			rs.Summary.Failed++
		}
		if row.Status != api.StatusSkipped && row.Status != api.StatusFailed {
			continue
		}
		key := reasonOf(row)
		if i, ok := index[key]; ok {
			rs.Reasons[i].Count++
			continue
		}
		index[key] = len(rs.Reasons)
		rs.Reasons = append(rs.Reasons, ReasonCount{Reason: key, Count: 1})
	}
	sort.SliceStable(rs.Reasons, func(i, j int) bool { return rs.Reasons[i].Count > rs.Reasons[j].Count })
	return rs
}

func reasonOf(row api.PublishResultRow) string {
	if row.Reason != nil {
		if s := strings.TrimSpace(*row.Reason); s != "" {
			return s
		}
	}
	if row.Error != nil {
		if s := strings.TrimSpace(*row.Error); s != "" {
			return s
		}
	}
	return NoReason
}

// TopReasons returns at most n reasons.
func (rs ResultSet) TopReasons(n int) []ReasonCount {
	if n <= 0 || n >= len(rs.Reasons) {
		return rs.Reasons
	}
	return rs.Reasons[:n]
}

// Settle maps the result set onto a settlement.
func (rs ResultSet) Settle() Settlement {
	total := len(rs.Rows)
	switch {
	case rs.ReservationLocked:
		return SettledPartial
	case total == 0 || rs.Summary.Failed == total:
		return SettledFailed
	case rs.Summary.Failed > 0 || rs.Summary.Skipped > 0:
		return SettledPartial
	default:
		return SettledOK
	}
}

// SummaryLine renders the result for the status area, listing at most
// reasonLimit reasons.
func (rs ResultSet) SummaryLine(reasonLimit int) string {
	if rs.ReservationLocked {
		return ReservationMessage
	}
	var b strings.Builder
	if rs.DryRun {
		b.WriteString("dry run: ")
	}
	s := rs.Summary
	fmt.Fprintf(&b, "ok %d, dry-run %d, skipped %d, failed %d", s.OK, s.DryRun, s.Skipped, s.Failed)
	if top := rs.TopReasons(reasonLimit); len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, r := range top {
			parts = append(parts, fmt.Sprintf("%s (%d)", r.Reason, r.Count))
		}
		b.WriteString("; ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}
