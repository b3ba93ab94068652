package ui

import (
	"encoding/json"
	"strings"
	"testing"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestTableOfPutsIDFirst(t *testing.T) {
	cols, rows := tableOf([]json.RawMessage{
		raw(`{"status":"done","id":7,"job":"ingest"}`),
		raw(`{"status":"failed","id":8,"job":"settle","extra":true}`),
	})
	if strings.Join(cols, ",") != "id,job,status" {
		t.Fatalf("cols = %v", cols)
	}
	if len(rows) != 2 || rows[1][0] != "8" || rows[1][2] != "failed" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestCellFormatting(t *testing.T) {
	if got := cell(0.198); got != "0.198" {
		t.Fatalf("float cell = %q", got)
	}
	if got := cell(nil); got != "-" {
		t.Fatalf("nil cell = %q", got)
	}
	long := strings.Repeat("x", 40)
	if got := []rune(cell(long)); len(got) != maxCell {
		t.Fatalf("long cell len = %d", len(got))
	}
}

func TestItemID(t *testing.T) {
	if id, ok := itemID(raw(`{"id":501,"home":"East"}`)); !ok || id != "501" {
		t.Fatalf("id = %q, %v", id, ok)
	}
	if _, ok := itemID(raw(`{"name":"elo"}`)); ok {
		t.Fatalf("item without id should report false")
	}
}

func TestRenderTableMarksCursor(t *testing.T) {
	out := renderTable([]string{"id"}, [][]string{{"1"}, {"2"}}, 1)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 3 || !strings.Contains(lines[2], "▶") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}
