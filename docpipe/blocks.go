package docpipe

import "strings"

// blocks accumulates the headings, paragraphs and tables of a markup
// document in reading order.
type blocks struct {
	title    string
	sections []Section
	tables   []Table

	text  strings.Builder
	table *tableBuilder
}

func (b *blocks) heading(text string, level int) {
	if text == "" {
		return
	}
	if b.title == "" {
		b.title = text
	}
	b.sections = append(b.sections, Section{Title: text, Level: level, Text: text, Type: "heading"})
}

func (b *blocks) paragraph(text, kind string) {
	if text == "" {
		return
	}
	if b.table != nil {
		b.table.addText(text)
		return
	}
	b.sections = append(b.sections, Section{Text: text, Type: kind})
}

func (b *blocks) flushText() string {
	s := strings.TrimSpace(b.text.String())
	b.text.Reset()
	return s
}

func (b *blocks) endTable() {
	if b.table == nil {
		return
	}
	tbl, ok := b.table.build()
	flat := b.table.flatten()
	b.table = nil
	if !ok {
		if flat != "" {
			b.sections = append(b.sections, Section{Text: flat, Type: "paragraph"})
		}
		return
	}
	b.tables = append(b.tables, tbl)
	b.sections = append(b.sections, Section{Text: tbl.Render(), Type: "table"})
}

// tableBuilder collects rows of a single top-level table. Nested tables
// are flattened into the enclosing cell.
type tableBuilder struct {
	depth int
	rows  [][]string
	row   []string
	cell  []string
}

func (t *tableBuilder) addText(s string) { t.cell = append(t.cell, s) }

func (t *tableBuilder) endCell() {
	t.row = append(t.row, strings.Join(t.cell, " "))
	t.cell = nil
}

func (t *tableBuilder) endRow() {
	if len(t.row) > 0 {
		t.rows = append(t.rows, t.row)
	}
	t.row = nil
}

// build uses the first row as the header and pads short rows. It rejects
// tables with fewer than two rows.
func (t *tableBuilder) build() (Table, bool) {
	if len(t.rows) < 2 {
		return Table{}, false
	}
	width := 0
	for _, r := range t.rows {
		width = max(width, len(r))
	}
	for i, r := range t.rows {
		for len(r) < width {
			r = append(r, "")
		}
		t.rows[i] = r
	}
	return Table{Header: t.rows[0], Rows: t.rows[1:]}, true
}

// flatten renders the collected cells as text lines.
func (t *tableBuilder) flatten() string {
	rows := t.rows
	if len(t.row) > 0 {
		rows = append(rows, t.row)
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, strings.Join(r, " | "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
