// CLAUDE:SUMMARY Table-aware PDF engine on ledongthuc/pdf glyph positions: line rebuild, font-size heading hints, geometric tables.
package docpipe

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type positionalEngine struct {
	maxPages int
}

func (positionalEngine) Name() string         { return "positional" }
func (positionalEngine) SupportsTables() bool { return true }
func (positionalEngine) SupportsOCR() bool    { return false }

// glyphLine is one rebuilt text line of a page.
type glyphLine struct {
	y     float64
	cells []string // text split on wide horizontal gaps
	size  float64  // dominant font size
}

func (l glyphLine) text() string { return strings.Join(l.cells, " ") }

func (e positionalEngine) ExtractText(ctx context.Context, path string) (ext *Extraction, err error) {
	// The parser panics on some malformed objects.
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("positional parser panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	limit := total
	if e.maxPages > 0 && limit > e.maxPages {
		limit = e.maxPages
	}
	ext = &Extraction{
		PageCount: total,
		Truncated: limit < total,
		FontHints: map[int]float64{},
		Metadata:  map[string]string{"page_count": strconv.Itoa(total)},
	}

	var sb strings.Builder
	lineIdx := 0
	sizeChars := map[float64]int{}

	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			ext.Text = sb.String()
			return ext, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			ext.Pages = append(ext.Pages, "")
			continue
		}
		lines := pageLines(page.Content().Text)

		var pageText []string
		var sizes []float64
		var grid [][]string
		for _, l := range lines {
			t := l.text()
			if t == "" {
				continue
			}
			pageText = append(pageText, t)
			sizes = append(sizes, l.size)
			grid = append(grid, l.cells)
			sizeChars[l.size] += len(t)
		}
		ext.Pages = append(ext.Pages, strings.Join(pageText, "\n"))
		ext.Tables = append(ext.Tables, gridTables(grid, i)...)
		if len(pageText) == 0 {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
			lineIdx++ // the blank separator line
		}
		for k, t := range pageText {
			if k > 0 {
				sb.WriteByte('\n')
			}
			ext.FontHints[lineIdx] = sizes[k]
			sb.WriteString(t)
			lineIdx++
		}
	}

	ext.Text = sb.String()
	ext.BodyFontSize = dominantSize(sizeChars)
	ext.Title = firstLine(ext.Text)
	ext.Quality = newQuality(ext.Text, limit, len([]rune(ext.Text)), false)
	if strings.TrimSpace(ext.Text) == "" {
		return ext, fmt.Errorf("%w in PDF", ErrNoText)
	}
	return ext, nil
}

// pageLines groups glyphs into lines by baseline and orders them top-down.
func pageLines(glyphs []pdf.Text) []glyphLine {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(a, b int) bool {
		if math.Abs(sorted[a].Y-sorted[b].Y) > 2 {
			return sorted[a].Y > sorted[b].Y
		}
		return sorted[a].X < sorted[b].X
	})

	var lines []glyphLine
	var cur []pdf.Text
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, buildLine(cur))
			cur = nil
		}
	}
	for _, g := range sorted {
		if len(cur) > 0 && math.Abs(cur[0].Y-g.Y) > 2 {
			flush()
		}
		cur = append(cur, g)
	}
	flush()
	return lines
}

// buildLine joins glyphs, inserting a space for small gaps and starting a
// new cell for gaps wider than two em.
func buildLine(glyphs []pdf.Text) glyphLine {
	sort.SliceStable(glyphs, func(a, b int) bool { return glyphs[a].X < glyphs[b].X })

	line := glyphLine{y: glyphs[0].Y}
	var cell strings.Builder
	sizes := map[float64]int{}
	prevEnd := math.Inf(-1)

	for _, g := range glyphs {
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		gap := g.X - prevEnd
		switch {
		case cell.Len() > 0 && gap > 2*size:
			line.cells = append(line.cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		case cell.Len() > 0 && gap > 0.25*size && !strings.HasSuffix(cell.String(), " ") && g.S != " ":
			cell.WriteByte(' ')
		}
		cell.WriteString(g.S)
		sizes[math.Round(size*2)/2] += len(g.S)
		prevEnd = g.X + g.W
	}
	if s := strings.TrimSpace(cell.String()); s != "" {
		line.cells = append(line.cells, s)
	}
	for i := range line.cells {
		line.cells[i] = strings.Join(strings.Fields(line.cells[i]), " ")
	}
	line.size = dominantSize(sizes)
	return line
}

func dominantSize(counts map[float64]int) float64 {
	best, bestN := 0.0, -1
	for size, n := range counts {
		if n > bestN || (n == bestN && size < best) {
			best, bestN = size, n
		}
	}
	return best
}
