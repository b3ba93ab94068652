package ui

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"predictdash/internal/api"
	"predictdash/internal/prefs"
)

// FilterConfig bundles tuning parameters for filtering and search operations.
type FilterConfig struct {
	MinCoverage float64 // minimal share of the query that must match
	MaxSpread   int     // maximal distance between first and last match index
	MaxResults  int     // upper limit of returned results
}

// historyLine is the searchable text of one history row.
func historyLine(r api.HistoryRow) string {
	parts := []string{r.Market, r.Language, string(r.Status)}
	if r.Reason != nil {
		parts = append(parts, *r.Reason)
	}
	if r.Error != nil {
		parts = append(parts, *r.Error)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// filterHistory returns the indices of rows matching f. Market and status
// are exact (case-insensitive) filters; the query is fuzzy.
func filterHistory(rows []api.HistoryRow, f prefs.Filters, cfg FilterConfig) []int {
	idx := make([]int, 0, len(rows))
	for i, r := range rows {
		if f.Market != "" && !strings.EqualFold(r.Market, f.Market) {
			continue
		}
		if f.Status != "" && !strings.EqualFold(string(r.Status), f.Status) {
			continue
		}
		idx = append(idx, i)
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return idx
	}
	base := make([]string, len(rows))
	for i, r := range rows {
		base[i] = historyLine(r)
	}
	if sub := filterBySubstring(q, base, idx, cfg); len(sub) > 0 {
		return sub
	}
	return filterByFuzzy(q, base, idx, cfg)
}

// filterBySubstring performs a simple substring check against the prepared base
// list and returns matching indices limited by cfg.MaxResults.
func filterBySubstring(q string, base []string, idx []int, cfg FilterConfig) []int {
	sub := make([]int, 0, min(cfg.MaxResults, len(idx)))
	for _, i := range idx {
		if strings.Contains(base[i], q) {
			sub = append(sub, i)
			if len(sub) >= cfg.MaxResults {
				break
			}
		}
	}
	return sub
}

// filterByFuzzy applies fuzzy matching on the subset defined by idx and
// filters results based on coverage and spread thresholds from cfg.
func filterByFuzzy(q string, base []string, idx []int, cfg FilterConfig) []int {
	subset := make([]string, len(idx))
	mapBack := make([]int, len(idx))
	for j, i := range idx {
		subset[j] = base[i]
		mapBack[j] = i
	}
	matches := fuzzy.Find(q, subset)

	pruned := make([]int, 0, len(matches))
	for _, mt := range matches {
		if matchCoverage(q, mt) < cfg.MinCoverage {
			continue
		}
		if matchSpread(mt) > cfg.MaxSpread {
			continue
		}
		pruned = append(pruned, mapBack[mt.Index])
		if len(pruned) >= cfg.MaxResults {
			break
		}
	}
	return pruned
}

// matchCoverage returns the ratio of matched characters to the query length.
func matchCoverage(q string, m fuzzy.Match) float64 {
	if len(q) == 0 {
		return 1
	}
	return float64(len(m.MatchedIndexes)) / float64(len(q))
}

// matchSpread returns the distance between the first and last matched index.
func matchSpread(m fuzzy.Match) int {
	if len(m.MatchedIndexes) == 0 {
		return 0
	}
	return m.MatchedIndexes[len(m.MatchedIndexes)-1] - m.MatchedIndexes[0]
}
