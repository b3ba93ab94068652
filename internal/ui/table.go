package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const maxCell = 24

// tableOf turns list items into a header and rows of cells. Columns come
// from the first item, "id" first and the rest alphabetical.
func tableOf(items []json.RawMessage) ([]string, [][]string) {
	if len(items) == 0 {
		return nil, nil
	}
	var first map[string]any
	if err := json.Unmarshal(items[0], &first); err != nil {
		return []string{"value"}, rawRows(items)
	}
	cols := make([]string, 0, len(first))
	for k := range first {
		if k != "id" {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	if _, ok := first["id"]; ok {
		cols = append([]string{"id"}, cols...)
	}
	rows := make([][]string, 0, len(items))
	for _, raw := range items {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(obj[c])
		}
		rows = append(rows, row)
	}
	return cols, rows
}

func rawRows(items []json.RawMessage) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{clip(string(it), maxCell*3)})
	}
	return rows
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 3, 64)
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.Local().Format("01-02 15:04")
		}
		return clip(x, maxCell)
	default:
		return clip(fmt.Sprint(x), maxCell)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// itemID returns the "id" of a list item.
func itemID(raw json.RawMessage) (string, bool) {
	var obj struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return "", false
	}
	return obj.ID.String(), true
}

// renderTable lays cells out in padded columns.
func renderTable(cols []string, rows [][]string, cursor int) string {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len([]rune(c))
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], len([]rune(c)))
		}
	}
	pad := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-len([]rune(c)))
		}
		return strings.Join(parts, "  ")
	}
	var b strings.Builder
	b.WriteString("  " + headerCellStyle.Render(pad(cols)) + "\n")
	for i, r := range rows {
		line := pad(r)
		if i == cursor {
			b.WriteString(cursorLineStyle.Render("▶ "+line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}
