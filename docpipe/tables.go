// CLAUDE:SUMMARY Table model, grid rendering and text-grid table detection shared by the positional engine and the pipeline.
// CLAUDE:EXPORTS Table, DetectTables
package docpipe

import (
	"regexp"
	"strings"
)

// Table is a detected header/row grid.
type Table struct {
	Page   int        `json:"page,omitempty"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Render returns the table as a pipe-delimited text grid.
func (t Table) Render() string {
	return t.RenderRows(t.Rows)
}

// RenderRows renders the header followed by the given rows.
func (t Table) RenderRows(rows [][]string) string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString(" |\n")
	}
	writeRow(t.Header)
	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows {
		writeRow(r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

const minTableRows = 3 // header plus two data rows

// gridTables finds runs of consecutive rows sharing the same cell count
// (at least two cells). A nil row breaks a run.
func gridTables(grid [][]string, page int) []Table {
	var tables []Table
	var run [][]string

	flush := func() {
		if len(run) >= minTableRows {
			tables = append(tables, Table{Page: page, Header: run[0], Rows: run[1:]})
		}
		run = nil
	}
	for _, row := range grid {
		if len(row) < 2 || (len(run) > 0 && len(row) != len(run[0])) {
			flush()
			if len(row) >= 2 {
				run = append(run, row)
			}
			continue
		}
		run = append(run, row)
	}
	flush()
	return tables
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	ruleCellRe   = regexp.MustCompile(`^:?-{3,}:?$`)
)

// DetectTables recovers tables from plain text lines: pipe-delimited,
// tab-delimited or column-aligned with runs of two or more spaces.
func DetectTables(text string) []Table {
	var grid [][]string
	for _, line := range strings.Split(text, "\n") {
		cells, rule := splitCells(line)
		if rule {
			continue
		}
		grid = append(grid, cells)
	}
	return gridTables(grid, 0)
}

// splitCells returns the cells of a line and whether it is a markdown
// separator rule.
func splitCells(line string) ([]string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	var parts []string
	switch {
	case strings.Contains(trimmed, "|"):
		parts = strings.Split(strings.Trim(trimmed, "|"), "|")
	case strings.Contains(trimmed, "\t"):
		parts = strings.Split(trimmed, "\t")
	default:
		parts = multiSpaceRe.Split(trimmed, -1)
	}
	var cells []string
	rule := true
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !ruleCellRe.MatchString(p) {
			rule = false
		}
		cells = append(cells, p)
	}
	if len(cells) < 2 {
		return nil, false
	}
	return cells, rule
}
