package api

import (
	"encoding/json"
	"time"
)

// ResultStatus is the per-market outcome of a publish submission.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusDryRun  ResultStatus = "dry_run"
	StatusSkipped ResultStatus = "skipped"
	StatusFailed  ResultStatus = "failed"
)

// PublishResultRow is one market/language result. Reason and Error are
// nullable on the wire.
type PublishResultRow struct {
	Market string       `json:"market"`
	Lang   string       `json:"lang"`
	Status ResultStatus `json:"status"`
	Reason *string      `json:"reason"`
	Error  *string      `json:"error"`
}

// PublishRequest is the submission body.
type PublishRequest struct {
	OwnerID int64  `json:"ownerId"`
	Force   bool   `json:"force"`
	DryRun  bool   `json:"dryRun"`
	Variant string `json:"variant"`
}

// PublishResponse is the submission result. ReservationLocked is true when
// another process already holds the server-side publish reservation.
type PublishResponse struct {
	DryRun            bool               `json:"dryRun"`
	ReservationLocked bool               `json:"reservationLocked,omitempty"`
	Results           []PublishResultRow `json:"results"`
}

// PreviewMarket is one market in the preview. An empty Reasons list means the
// market is ready to publish.
type PreviewMarket struct {
	Market       string   `json:"market"`
	Headline     string   `json:"headline"`
	Analysis     string   `json:"analysis"`
	Experimental bool     `json:"experimental"`
	Reasons      []string `json:"reasons"`
}

// Ready reports whether the market has no blocking reasons.
func (m PreviewMarket) Ready() bool { return len(m.Reasons) == 0 }

// Preview is the publish preview payload.
type Preview struct {
	Mode    string          `json:"mode"`
	Markets []PreviewMarket `json:"markets"`
}

// PostPreviewMarket is one rendered market in the rich preview.
type PostPreviewMarket struct {
	Market string `json:"market"`
	Lang   string `json:"lang"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// PostPreview is the rich preview payload for a variant.
type PostPreview struct {
	Variant string              `json:"variant"`
	Markets []PostPreviewMarket `json:"markets"`
}

// HistoryRow is one past publish attempt.
type HistoryRow struct {
	CreatedAt    time.Time    `json:"createdAt"`
	Market       string       `json:"market"`
	Language     string       `json:"language"`
	Status       ResultStatus `json:"status"`
	Reason       *string      `json:"reason"`
	Error        *string      `json:"error"`
	Experimental bool         `json:"experimental"`
}

// Page is one page of a list endpoint. Total is -1 when the server did not
// send a total-count header.
type Page struct {
	Section string            `json:"section"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Items   []json.RawMessage `json:"items"`
	Total   int               `json:"total"`
}

// HasMore reports whether more pages might exist.
func (p Page) HasMore() bool {
	if p.Total >= 0 {
		return p.Page*p.Limit < p.Total
	}
	return p.Limit > 0 && len(p.Items) >= p.Limit
}

type errorBody struct {
	Error string `json:"error"`
}
