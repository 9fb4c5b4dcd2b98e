// CLAUDE:SUMMARY Single-pass structure analyzer: regex and font-size headings, list blocks, paragraph spans, contiguous sections with byte offsets.
// CLAUDE:EXPORTS Analyze
package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/docflow/docpipe"
)

var (
	numberedRe = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3})*)\.?\s+(\S.*)$`)
	chapterHRe = regexp.MustCompile(`^(?i)chapter\s+(?:\d+|[ivxlcdm]+)\b`)
	sectionHRe = regexp.MustCompile(`^(?i)section\s+(\d+(?:\.\d+)*)\b`)
	atxRe      = regexp.MustCompile(`^(#{1,6})\s+(\S.*?)\s*#*$`)

	bulletRe    = regexp.MustCompile(`^\s*[-*+\x{2022}\x{25AA}\x{25E6}\x{2023}\x{00B7}]\s+(\S.*)$`)
	numListRe   = regexp.MustCompile(`^\s*\d{1,3}[.)]\s+(\S.*)$`)
	alphaListRe = regexp.MustCompile(`^\s*[a-zA-Z][.)]\s+(\S.*)$`)
)

const (
	maxHeadingLen    = 120
	maxNumberedWords = 10
	headingFontRatio = 1.2
)

type line struct {
	text  string // trimmed
	start int
	end   int // offset just past the newline
}

func splitLines(text string) []line {
	var lines []line
	for off := 0; off < len(text); {
		end := strings.IndexByte(text[off:], '\n')
		next := len(text)
		raw := text[off:]
		if end >= 0 {
			raw = text[off : off+end]
			next = off + end + 1
		}
		lines = append(lines, line{text: strings.TrimSpace(raw), start: off, end: next})
		off = next
	}
	return lines
}

type heading struct {
	title string
	level int
	start int
}

// Analyze detects headings, sections, list blocks and paragraphs in one pass
// over the lines of text. hints maps line indexes to font sizes; bodySize is
// the dominant body font size. Both may be empty.
//
// Returned sections cover text contiguously: the first starts at offset 0,
// each ends where the next begins, the last ends at len(text). Text before
// the first heading forms an untitled section.
func Analyze(text string, hints map[int]float64, bodySize float64) *docpipe.Structure {
	st := &docpipe.Structure{}
	lines := splitLines(text)
	var heads []heading

	var list *docpipe.ListBlock
	closeList := func() {
		if list != nil {
			st.Lists = append(st.Lists, *list)
			list = nil
		}
	}
	paraStart, paraEnd := -1, -1
	closePara := func() {
		if paraStart >= 0 {
			st.Paragraphs = append(st.Paragraphs, docpipe.Span{Start: paraStart, End: paraEnd})
			paraStart = -1
		}
	}

	prevBlank := true
	for i, ln := range lines {
		if ln.text == "" {
			closeList()
			closePara()
			prevBlank = true
			continue
		}

		if title, level, ok := headingOf(lines, i, prevBlank, hints, bodySize); ok {
			closeList()
			closePara()
			heads = append(heads, heading{title: title, level: level, start: ln.start})
			prevBlank = false
			continue
		}

		if kind, item := listItem(ln.text); kind != "" {
			if list == nil || list.Kind != kind {
				closeList()
				list = &docpipe.ListBlock{Kind: kind, Line: i}
			}
			list.Items = append(list.Items, item)
		} else {
			closeList()
		}

		if paraStart < 0 {
			paraStart = ln.start
		}
		paraEnd = ln.start + len(strings.TrimRight(text[ln.start:ln.end], " \t\r\n"))
		prevBlank = false
	}
	closeList()
	closePara()

	switch {
	case len(heads) == 0:
		st.Sections = append(st.Sections, docpipe.Section{Type: "section", Start: 0, End: len(text)})
		return st
	case strings.TrimSpace(text[:heads[0].start]) == "":
		heads[0].start = 0
	default:
		st.Sections = append(st.Sections, docpipe.Section{Type: "section", Start: 0, End: heads[0].start})
	}
	for i, h := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1].start
		}
		st.Sections = append(st.Sections, docpipe.Section{
			Title: h.title,
			Level: h.level,
			Type:  "section",
			Start: h.start,
			End:   end,
		})
	}
	return st
}

// headingOf reports whether lines[i] is a heading. Regex patterns win over
// font-size hints.
func headingOf(lines []line, i int, prevBlank bool, hints map[int]float64, bodySize float64) (string, int, bool) {
	t := lines[i].text
	if len(t) > maxHeadingLen {
		return "", 0, false
	}

	if m := numberedRe.FindStringSubmatch(t); m != nil {
		depth := strings.Count(m[1], ".") + 1
		if depth > 1 && looksLikeTitle(m[2], true) {
			return t, min(depth, 6), true
		}
		if depth == 1 && prevBlank && looksLikeTitle(m[2], false) && !nextIsNumbered(lines, i) {
			return t, 1, true
		}
	}
	if chapterHRe.MatchString(t) {
		return t, 1, true
	}
	if m := sectionHRe.FindStringSubmatch(t); m != nil {
		return t, min(2+strings.Count(m[1], "."), 6), true
	}
	if m := atxRe.FindStringSubmatch(t); m != nil {
		return m[2], len(m[1]), true
	}

	if bodySize > 0 {
		if size, ok := hints[i]; ok && size >= headingFontRatio*bodySize && looksLikeTitle(t, true) {
			return t, fontLevel(size / bodySize), true
		}
	}
	return "", 0, false
}

func fontLevel(ratio float64) int {
	switch {
	case ratio >= 1.8:
		return 1
	case ratio >= 1.4:
		return 2
	default:
		return 3
	}
}

// looksLikeTitle rejects sentence-like text: too many words, terminal
// punctuation, or a lowercase start. Multi-level numbering is strong enough
// on its own, so loose skips the word cap.
func looksLikeTitle(s string, loose bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
		return false
	}
	if strings.ContainsAny(s[len(s)-1:], ".,;") {
		return false
	}
	if !loose && len(strings.Fields(s)) > maxNumberedWords {
		return false
	}
	return true
}

func nextIsNumbered(lines []line, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		if lines[j].text == "" {
			continue
		}
		return numListRe.MatchString(lines[j].text)
	}
	return false
}

func listItem(t string) (string, string) {
	if m := bulletRe.FindStringSubmatch(t); m != nil {
		return "bullet", m[1]
	}
	if m := numListRe.FindStringSubmatch(t); m != nil {
		return "numbered", m[1]
	}
	if m := alphaListRe.FindStringSubmatch(t); m != nil {
		return "alpha", m[1]
	}
	return "", ""
}
