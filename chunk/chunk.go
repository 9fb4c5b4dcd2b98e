// Package chunk turns one extracted document into an ordered sequence of
// bounded, overlapping chunks.
//
// Chunk order:
//  1. One full_content chunk holding the complete text verbatim
//  2. structured chunks accumulated from analyzed sections, or content_part
//     chunks from flat splitting when no usable structure exists
//  3. One table chunk per detected table (split by rows when too long)
//  4. One aggregated references chunk
//
// Oversized units are split on paragraph, then sentence, then word
// boundaries. Within a group, each chunk after the first starts with the
// tail of the previous chunk, cut at a word boundary.
package chunk

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/docflow/docpipe"
)

// Type is the kind of a chunk.
type Type string

const (
	TypeFullContent Type = "full_content"
	TypeStructured  Type = "structured"
	TypeTable       Type = "table"
	TypeReferences  Type = "references"
	TypeContentPart Type = "content_part"
)

// Options configures the chunking engine. Sizes count runes.
type Options struct {
	// MaxChunkSize bounds the body of every chunk except full_content. Default: 4096.
	MaxChunkSize int `json:"max_chunk_size" yaml:"max_chunk_size"`
	// Overlap is the length of the context carried into the next chunk.
	// Default: 200. Negative disables overlap. Clamped to MaxChunkSize/2.
	Overlap int `json:"overlap" yaml:"overlap"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (o *Options) defaults() {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = 4096
	}
	switch {
	case o.Overlap < 0:
		o.Overlap = 0
	case o.Overlap == 0:
		o.Overlap = 200
	}
	if o.Overlap > o.MaxChunkSize/2 {
		o.Overlap = o.MaxChunkSize / 2
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Chunk is one bounded text unit.
type Chunk struct {
	Content       string   `json:"content"`
	Type          Type     `json:"type"`
	Index         int      `json:"chunk_index"`
	Total         int      `json:"total_chunks"`
	SectionTitles []string `json:"section_titles,omitempty"`
	TableIndex    int      `json:"table_index"` // -1 unless Type is table
	TablePage     int      `json:"table_page,omitempty"`
	Overlap       int      `json:"overlap"` // runes of Content copied from the previous chunk
	Backup        bool     `json:"backup,omitempty"`
}

// Engine produces chunks. It holds no per-document state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	opts.defaults()
	return &Engine{opts: opts}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Chunk splits doc. It never fails: missing or inconsistent structure falls
// back to flat splitting of the raw text.
func (e *Engine) Chunk(doc *docpipe.Document) []Chunk {
	text := doc.RawText
	limit := e.opts.MaxChunkSize

	chunks := []Chunk{{Content: text, Type: TypeFullContent, TableIndex: -1}}

	var body []Chunk
	switch {
	case doc.Structure.HasHeadings() && validSections(doc.Structure.Sections, len(text)):
		body = e.structured(text, doc.Structure.Sections)
	case doc.Structure.HasHeadings():
		e.opts.Logger.Warn("section offsets inconsistent, using flat split", "path", doc.Path)
		fallthrough
	default:
		if runeLen(text) > limit {
			body = e.group(TypeContentPart, SplitText(text, limit), nil)
		}
	}
	chunks = append(chunks, body...)
	chunks = append(chunks, e.tables(doc.Tables)...)
	chunks = append(chunks, e.references(doc.References)...)

	chunks = ensureFullContent(chunks, text)
	e.opts.Logger.Debug("chunked document", "path", doc.Path, "chunks", len(chunks), "structured", len(body))
	return chunks
}

// piece is a chunk body before overlap is applied.
type piece struct {
	text   string
	titles []string
}

func (e *Engine) structured(text string, sections []docpipe.Section) []Chunk {
	limit := e.opts.MaxChunkSize
	var pieces []piece

	curStart, curEnd := -1, -1
	var titles []string
	flush := func() {
		if curStart >= 0 {
			pieces = append(pieces, piece{text: text[curStart:curEnd], titles: titles})
		}
		curStart, curEnd, titles = -1, -1, nil
	}

	for _, s := range sections {
		if s.Start == s.End {
			continue
		}
		size := runeLen(text[s.Start:s.End])
		if size > limit {
			flush()
			for _, p := range SplitText(text[s.Start:s.End], limit) {
				pieces = append(pieces, piece{text: p, titles: nonEmpty(s.Title)})
			}
			continue
		}
		if curStart >= 0 && runeLen(text[curStart:curEnd])+size > limit {
			flush()
		}
		if curStart < 0 {
			curStart = s.Start
		}
		curEnd = s.End
		titles = append(titles, nonEmpty(s.Title)...)
	}
	flush()
	return e.apply(TypeStructured, pieces)
}

func (e *Engine) group(t Type, parts []string, titles []string) []Chunk {
	pieces := make([]piece, len(parts))
	for i, p := range parts {
		pieces[i] = piece{text: p, titles: titles}
	}
	return e.apply(t, pieces)
}

// apply prefixes each piece after the first with the overlap tail of its
// predecessor. Whitespace-only pieces are folded into a neighbour when that
// stays within MaxChunkSize, so joining the pieces still yields the text.
func (e *Engine) apply(t Type, pieces []piece) []Chunk {
	limit := e.opts.MaxChunkSize
	fits := func(a, b string) bool { return limit <= 0 || runeLen(a)+runeLen(b) <= limit }

	var out []Chunk
	prev, pending := "", ""
	emit := func(text string, titles []string) {
		c := Chunk{Content: text, Type: t, SectionTitles: titles, TableIndex: -1}
		if prev != "" {
			if tail := overlapTail(prev, e.opts.Overlap); tail != "" {
				c.Content = tail + text
				c.Overlap = runeLen(tail)
			}
		}
		out = append(out, c)
		prev = text
	}
	// settle places the pending whitespace after the previous piece, or on
	// its own when neither neighbour has room.
	settle := func(titles []string) {
		if len(out) > 0 && fits(prev, pending) {
			out[len(out)-1].Content += pending
			prev += pending
		} else {
			emit(pending, titles)
		}
		pending = ""
	}

	for _, p := range pieces {
		if strings.TrimSpace(p.text) == "" {
			pending += p.text
			continue
		}
		text := p.text
		if pending != "" {
			if fits(pending, text) {
				text, pending = pending+text, ""
			} else {
				settle(p.titles)
			}
		}
		emit(text, p.titles)
	}
	if pending != "" && len(out) > 0 {
		settle(out[len(out)-1].SectionTitles)
	}
	return out
}

func (e *Engine) tables(tables []docpipe.Table) []Chunk {
	limit := e.opts.MaxChunkSize
	var out []Chunk
	for i, tbl := range tables {
		for _, part := range splitTable(tbl, limit) {
			out = append(out, Chunk{Content: part, Type: TypeTable, TableIndex: i, TablePage: tbl.Page})
		}
	}
	return out
}

// splitTable renders tbl, packing rows under the repeated header when the
// full grid is too long. A single row too long for any chunk is split as text.
func splitTable(tbl docpipe.Table, limit int) []string {
	full := tbl.Render()
	if runeLen(full) <= limit {
		return []string{full}
	}
	var parts []string
	var rows [][]string
	flush := func() {
		if len(rows) > 0 {
			parts = append(parts, tbl.RenderRows(rows))
			rows = nil
		}
	}
	for _, r := range tbl.Rows {
		if runeLen(tbl.RenderRows([][]string{r})) > limit {
			flush()
			parts = append(parts, SplitText(tbl.RenderRows([][]string{r}), limit)...)
			continue
		}
		if runeLen(tbl.RenderRows(append(rows, r))) > limit {
			flush()
		}
		rows = append(rows, r)
	}
	flush()
	if len(parts) == 0 {
		// Header alone exceeds the limit.
		parts = SplitText(full, limit)
	}
	return parts
}

func (e *Engine) references(refs []string) []Chunk {
	if len(refs) == 0 {
		return nil
	}
	content := "References\n" + strings.Join(refs, "\n")
	return e.group(TypeReferences, SplitText(content, e.opts.MaxChunkSize), []string{"References"})
}

// ensureFullContent guarantees a full_content chunk at position 0 and
// assigns indexes across the whole sequence.
func ensureFullContent(chunks []Chunk, text string) []Chunk {
	found := false
	for _, c := range chunks {
		if c.Type == TypeFullContent {
			found = true
			break
		}
	}
	if !found {
		backup := Chunk{Content: text, Type: TypeFullContent, TableIndex: -1, Backup: true}
		chunks = append([]Chunk{backup}, chunks...)
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// validSections reports whether sections tile [0,n) in order.
func validSections(sections []docpipe.Section, n int) bool {
	pos := 0
	for _, s := range sections {
		if s.Start != pos || s.End < s.Start || s.End > n {
			return false
		}
		pos = s.End
	}
	return len(sections) > 0 && pos == n
}

// overlapTail returns at most n trailing runes of s, starting at a word
// boundary. It returns "" when no boundary falls inside the window.
func overlapTail(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	start := len(s)
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	if start == 0 {
		return s
	}
	if r, _ := utf8.DecodeLastRuneInString(s[:start]); unicode.IsSpace(r) {
		return s[start:]
	}
	i := strings.IndexFunc(s[start:], unicode.IsSpace)
	if i < 0 {
		return ""
	}
	tail := strings.TrimLeftFunc(s[start+i:], unicode.IsSpace)
	return tail
}

func nonEmpty(title string) []string {
	if title == "" {
		return nil
	}
	return []string{title}
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
