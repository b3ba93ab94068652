package ui

import (
	"testing"
	"time"

	"predictdash/internal/api"
	"predictdash/internal/prefs"
)

func strp(s string) *string { return &s }

func sampleHistory() []api.HistoryRow {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return []api.HistoryRow{
		{CreatedAt: at, Market: "1x2", Language: "en", Status: api.StatusOK},
		{CreatedAt: at, Market: "btts", Language: "en", Status: api.StatusOK},
		{CreatedAt: at, Market: "ou25", Language: "en", Status: api.StatusSkipped, Reason: strp("low confidence")},
		{CreatedAt: at, Market: "ou25", Language: "es", Status: api.StatusFailed, Error: strp("upstream timeout")},
	}
}

var testFilterCfg = FilterConfig{MinCoverage: 0.6, MaxSpread: 40, MaxResults: 200}

func TestFilterHistoryNoFilter(t *testing.T) {
	got := filterHistory(sampleHistory(), prefs.Filters{}, testFilterCfg)
	if len(got) != 4 {
		t.Fatalf("got %v", got)
	}
}

func TestFilterHistoryStatusAndMarket(t *testing.T) {
	rows := sampleHistory()
	got := filterHistory(rows, prefs.Filters{Status: "ok"}, testFilterCfg)
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("status filter = %v", got)
	}
	got = filterHistory(rows, prefs.Filters{Market: "OU25"}, testFilterCfg)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("market filter = %v", got)
	}
}

func TestFilterHistorySubstringBeforeFuzzy(t *testing.T) {
	got := filterHistory(sampleHistory(), prefs.Filters{Query: "Timeout"}, testFilterCfg)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("substring match = %v", got)
	}
}

func TestFilterHistoryFuzzy(t *testing.T) {
	got := filterHistory(sampleHistory(), prefs.Filters{Query: "lwcnf"}, testFilterCfg)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("fuzzy match = %v", got)
	}
}

func TestFilterHistoryMaxResults(t *testing.T) {
	cfg := testFilterCfg
	cfg.MaxResults = 1
	got := filterHistory(sampleHistory(), prefs.Filters{Query: "en"}, cfg)
	if len(got) != 1 {
		t.Fatalf("got %v", got)
	}
}
