// CLAUDE:SUMMARY Scores PDF extraction quality: detects pages that need OCR and missing visual content.
// CLAUDE:EXPORTS ExtractionQuality, NeedsOCR, HasVisualGap, Score, computePrintableRatio, computeWordlikeRatio, countVisualRefs
package docpipe

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractionQuality captures metrics about PDF text extraction quality.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

func newQuality(text string, pages, chars int, hasImages bool) *ExtractionQuality {
	q := &ExtractionQuality{
		PageCount:       pages,
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(text),
	}
	if pages > 0 {
		q.CharsPerPage = float64(chars) / float64(pages)
	}
	return q
}

// NeedsOCR returns true if the PDF likely needs OCR to extract text.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap returns true if the text references figures/tables but the PDF has images.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

// Score maps the quality metrics to a confidence value in [0,100] for
// documents whose text came from embedded content rather than OCR.
func (q *ExtractionQuality) Score() float64 {
	if q == nil {
		return 0
	}
	score := 100 * (0.6*q.PrintableRatio + 0.4*q.WordlikeRatio)
	if q.CharsPerPage < 50 && q.PageCount > 0 {
		score *= q.CharsPerPage / 50
	}
	return math.Round(math.Max(0, math.Min(100, score))*100) / 100
}

// computePrintableRatio is the share of runes that are neither garbage nor
// non-printable. Empty text counts as clean.
func computePrintableRatio(text string) float64 {
	var total, good int
	for _, r := range text {
		total++
		if !isGarbageRune(r) && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
			good++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(good) / float64(total)
}

// isGarbageRune flags private-use glyphs, U+FFFD and C0 controls other than
// tab, newline and carriage return. Unmapped CID fonts decode to these.
func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF, r == unicode.ReplacementChar:
		return true
	case r < 0x20:
		return r != '\t' && r != '\n' && r != '\r'
	}
	return false
}

// computeWordlikeRatio is the share of whitespace-separated tokens between 2
// and 15 runes long.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	n := 0
	for _, f := range fields {
		if l := utf8.RuneCountInString(f); l >= 2 && l <= 15 {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(voir|cf\.?|see|refer\s+to)\s+(la\s+)?(figure|fig\.?|tableau|table|sch[eé]ma|schema|image|illustration|graphique|graph|diagramme|diagram)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|tableau|table)\s+\d+`),
}

// countVisualRefs counts references to figures, tables, and diagrams in text.
func countVisualRefs(text string) int {
	n := 0
	for _, re := range visualRefPatterns {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}
