// CLAUDE:SUMMARY Rule-based document type classifier: feature vector from text markers, first-match-wins rule table.
// CLAUDE:EXPORTS Features, Extract, Classify, CitationCount, Annotate
// CLAUDE:DEPENDS docpipe
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/docflow/docpipe"
)

// Features is the input of Classify.
type Features struct {
	PageCount    int     `json:"page_count"`
	CharsPerPage float64 `json:"chars_per_page"`
	ScannedRatio float64 `json:"scanned_ratio"` // OCR-recognized pages / pages

	HasAbstract   bool `json:"has_abstract"`
	HasKeywords   bool `json:"has_keywords"`
	CitationCount int  `json:"citation_count"`
	HasReferences bool `json:"has_references"`

	HasChapters     bool    `json:"has_chapters"`
	HasTOC          bool    `json:"has_toc"`
	HasTables       bool    `json:"has_tables"`
	HasExecSummary  bool    `json:"has_exec_summary"`
	HasThesisMarker bool    `json:"has_thesis_marker"`
	BulletDensity   float64 `json:"bullet_density"` // bullet lines / non-empty lines
}

// Thresholds of the rule table.
const (
	ScanCharsPerPage = 100
	MinCitations     = 3
	BookPages        = 100
	ReportPages      = 10
	SmallDocPages    = 30
	SlidesBullets    = 0.3
)

var (
	abstractRe   = regexp.MustCompile(`(?im)^\s*abstract\b`)
	keywordsRe   = regexp.MustCompile(`(?im)^\s*(?:keywords|key words|index terms)\s*[:.\x{2014}-]`)
	numCiteRe    = regexp.MustCompile(`\[\d{1,3}(?:\s*[,\x{2013}-]\s*\d{1,3})*\]`)
	authorCiteRe = regexp.MustCompile(`\([A-Z][\pL'-]+(?:\s+et al\.?|\s+(?:and|&)\s+[A-Z][\pL'-]+)?,?\s+\d{4}[a-z]?\)`)
	referencesRe = regexp.MustCompile(`(?im)^\s*(?:\d+\.?\s*)?(?:references|bibliography|works cited|literature cited)\s*$`)
	chapterRe    = regexp.MustCompile(`(?im)^\s*chapter\s+(?:\d+|[ivxlc]+|one|two|three)\b`)
	tocRe        = regexp.MustCompile(`(?im)^\s*(?:table of contents|contents)\s*$`)
	dotLeaderRe  = regexp.MustCompile(`(?m)(?:\.\s?){5,}\s*\d+\s*$`)
	execRe       = regexp.MustCompile(`(?i)\bexecutive\s+summary\b`)
	thesisRe     = regexp.MustCompile(`(?i)\b(?:thesis|dissertation|submitted in partial fulfil?lment)\b`)
	bulletLineRe = regexp.MustCompile(`^\s*(?:[-*+\x{2022}\x{25AA}\x{25E6}\x{2023}\x{00B7}]|\d{1,2}[.)]|[a-zA-Z][.)])\s+\S`)
)

// Extract computes the classification features of a document.
func Extract(doc *docpipe.Document) Features {
	text := doc.RawText
	f := Features{
		PageCount:       doc.PageCount,
		HasAbstract:     abstractRe.MatchString(text),
		HasKeywords:     keywordsRe.MatchString(text),
		CitationCount:   CitationCount(text),
		HasReferences:   referencesRe.MatchString(text),
		HasChapters:     chapterRe.MatchString(text),
		HasTOC:          tocRe.MatchString(text) || len(dotLeaderRe.FindAllStringIndex(text, 4)) >= 3,
		HasTables:       len(doc.Tables) > 0,
		HasExecSummary:  execRe.MatchString(text),
		HasThesisMarker: thesisRe.MatchString(text),
		BulletDensity:   bulletDensity(text),
	}
	if doc.PageCount > 0 {
		chars := utf8.RuneCountInString(strings.TrimSpace(text))
		f.CharsPerPage = float64(chars) / float64(doc.PageCount)
		f.ScannedRatio = float64(doc.OCRPages) / float64(doc.PageCount)
	} else if doc.Scanned {
		f.ScannedRatio = 1
	}
	return f
}

// CitationCount counts numeric ("[3]", "[1, 4]") and author-year
// ("(Smith, 2019)") citation markers.
func CitationCount(text string) int {
	return len(numCiteRe.FindAllStringIndex(text, -1)) + len(authorCiteRe.FindAllStringIndex(text, -1))
}

func bulletDensity(text string) float64 {
	var lines, bullets int
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines++
		if bulletLineRe.MatchString(l) {
			bullets++
		}
	}
	if lines == 0 {
		return 0
	}
	return float64(bullets) / float64(lines)
}

// Classify applies the rule table in fixed order; the first matching rule
// decides the type.
func Classify(f Features) docpipe.DocumentType {
	switch {
	case (f.PageCount > 0 && f.CharsPerPage < ScanCharsPerPage) || f.ScannedRatio >= 0.5:
		return docpipe.TypeScan
	case f.HasAbstract && f.HasReferences && f.CitationCount >= MinCitations:
		return docpipe.TypeAcademic
	case f.HasChapters || f.HasTOC || f.PageCount > BookPages:
		return docpipe.TypeBook
	case f.HasTables && f.PageCount > ReportPages && f.HasExecSummary:
		return docpipe.TypeReport
	case f.PageCount <= SmallDocPages && f.HasThesisMarker:
		return docpipe.TypeThesis
	case f.PageCount <= SmallDocPages && f.BulletDensity > SlidesBullets:
		return docpipe.TypeSlides
	default:
		return docpipe.TypeGeneral
	}
}

// Annotate fills the structure, references, language and type of doc.
func Annotate(doc *docpipe.Document) {
	doc.Structure = Analyze(doc.RawText, doc.FontHints, doc.BodyFontSize)
	doc.References = ExtractReferences(doc.RawText)
	doc.Language = DetectLanguage(doc.RawText)
	doc.Type = Classify(Extract(doc))
}
