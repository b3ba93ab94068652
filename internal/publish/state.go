package publish

import (
	"predictdash/internal/api"
)

// Phase is the step the publish workflow is in for the open owner.
type Phase int

const (
	Idle Phase = iota
	PreviewLoading
	PreviewReady
	PreviewBlocked
	PostPreviewLoading
	PostPreviewReady
	PostPreviewError
	Publishing
	Settled
)

func (p Phase) String() string {
	switch p {
	case PreviewLoading:
		return "preview-loading"
	case PreviewReady:
		return "preview-ready"
	case PreviewBlocked:
		return "preview-blocked"
	case PostPreviewLoading:
		return "post-preview-loading"
	case PostPreviewReady:
		return "post-preview-ready"
	case PostPreviewError:
		return "post-preview-error"
	case Publishing:
		return "publishing"
	case Settled:
		return "settled"
	default:
		return "idle"
	}
}

// previewResolved reports whether a preview has been applied and no
// exclusive step is running.
func (p Phase) previewResolved() bool {
	switch p {
	case PreviewReady, PreviewBlocked, PostPreviewReady, PostPreviewError:
		return true
	}
	return false
}

// Settlement is the outcome of a submission.
type Settlement int

const (
	Unsettled Settlement = iota
	SettledOK
	SettledPartial
	SettledFailed
)

func (s Settlement) String() string {
	switch s {
	case SettledOK:
		return "ok"
	case SettledPartial:
		return "partial"
	case SettledFailed:
		return "failed"
	default:
		return "-"
	}
}

// PreviewSummary is what the workflow keeps of the last good preview.
type PreviewSummary struct {
	Loaded  bool
	Mode    string
	Ready   int
	Total   int
	Reasons []string
	Markets []api.PreviewMarket
}

// SummarizePreview counts ready markets and collects the distinct blocking
// reasons in first-seen order.
func SummarizePreview(p api.Preview) PreviewSummary {
	s := PreviewSummary{Loaded: true, Mode: p.Mode, Total: len(p.Markets), Markets: p.Markets}
	seen := make(map[string]bool)
	for _, m := range p.Markets {
		if m.Ready() {
			s.Ready++
			continue
		}
		for _, r := range m.Reasons {
			if !seen[r] {
				seen[r] = true
				s.Reasons = append(s.Reasons, r)
			}
		}
	}
	return s
}

type PostPreviewState struct {
	Loaded  bool
	Error   string
	Variant string
	Markets []api.PostPreviewMarket
}

type HistoryState struct {
	Rows      []api.HistoryRow
	Loading   bool
	Error     string
	FromCache bool
}

// State is a snapshot of the workflow for one owner.
type State struct {
	Owner         int64
	Generation    uint64
	Phase         Phase
	Preview       PreviewSummary
	PostPreview   PostPreviewState
	LastResult    *ResultSet
	Settlement    Settlement
	SettleMessage string
	History       HistoryState
	LastError     string
}

// resting is the phase to return to when a step started from prior ends
// without a result. A prior loading phase belonged to another step, so
// the phase is derived from the preview that is held instead.
func (s State) resting(prior Phase) Phase {
	switch prior {
	case PreviewLoading, PostPreviewLoading, Publishing:
	default:
		return prior
	}
	switch {
	case !s.Preview.Loaded:
		return Idle
	case s.Preview.Ready > 0:
		return PreviewReady
	default:
		return PreviewBlocked
	}
}

func (s State) clone() State {
	out := s
	out.Preview.Reasons = append([]string(nil), s.Preview.Reasons...)
	out.Preview.Markets = append([]api.PreviewMarket(nil), s.Preview.Markets...)
	out.PostPreview.Markets = append([]api.PostPreviewMarket(nil), s.PostPreview.Markets...)
	out.History.Rows = append([]api.HistoryRow(nil), s.History.Rows...)
	if s.LastResult != nil {
		rs := *s.LastResult
		out.LastResult = &rs
	}
	return out
}
