package docpipe

import (
	"strings"
	"testing"
)

func TestDetectTables(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		tables int
		header string
		rows   int
	}{
		{"pipe", "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 | 4 |", 1, "a", 2},
		{"tab", "x\ty\tz\n1\t2\t3\n4\t5\t6\n7\t8\t9", 1, "x", 3},
		{"aligned", "Name    Qty\napple   3\npear    5", 1, "Name", 2},
		{"too short", "a  b\n1  2", 0, "", 0},
		{"prose", "Just a sentence.\nAnother one here.", 0, "", 0},
		{"mixed widths split", "a  b\n1  2\n3  4\nx  y  z\n5  6  7", 1, "a", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectTables(tt.text)
			if len(got) != tt.tables {
				t.Fatalf("tables = %d, want %d (%+v)", len(got), tt.tables, got)
			}
			if tt.tables == 0 {
				return
			}
			if got[0].Header[0] != tt.header || len(got[0].Rows) != tt.rows {
				t.Errorf("table = %+v", got[0])
			}
		})
	}
}

func TestTableRender(t *testing.T) {
	tbl := Table{Header: []string{"k", "v"}, Rows: [][]string{{"a", "1"}, {"b", "2"}}}
	want := "| k | v |\n| --- | --- |\n| a | 1 |\n| b | 2 |"
	if got := tbl.Render(); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
	part := tbl.RenderRows(tbl.Rows[1:])
	if !strings.HasPrefix(part, "| k | v |") || strings.Contains(part, "| a |") {
		t.Errorf("partial render = %q", part)
	}
}

func TestGridTables_BreaksOnNilRow(t *testing.T) {
	grid := [][]string{{"h1", "h2"}, {"a", "b"}, nil, {"c", "d"}, {"e", "f"}, {"g", "h"}}
	got := gridTables(grid, 4)
	if len(got) != 1 || got[0].Header[0] != "c" || got[0].Page != 4 {
		t.Fatalf("tables = %+v", got)
	}
}
