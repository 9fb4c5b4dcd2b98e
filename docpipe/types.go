// CLAUDE:SUMMARY Defines Format, DocumentType, Section, Structure, Table and Document types for the extraction pipeline.
package docpipe

// Format identifies a source file type.
type Format string

const (
	FormatDocx Format = "docx"
	FormatODT  Format = "odt"
	FormatPDF  Format = "pdf"
	FormatMD   Format = "md"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
	FormatCode Format = "code"
)

// DocumentType is the heuristic class assigned by the classifier.
type DocumentType string

const (
	TypeScan     DocumentType = "scan"
	TypeAcademic DocumentType = "academic_paper"
	TypeBook     DocumentType = "book"
	TypeReport   DocumentType = "report"
	TypeThesis   DocumentType = "thesis"
	TypeSlides   DocumentType = "slides"
	TypeGeneral  DocumentType = "general"
)

// Section is a structural unit of a document.
//
// Extractors fill Title/Level/Text/Type. The structure analyzer also sets
// Start and End, byte offsets of the section inside Document.RawText; its
// sections cover the text contiguously.
type Section struct {
	Title    string            `json:"title,omitempty"`
	Level    int               `json:"level"`              // heading level 1-6, 0 for body
	Text     string            `json:"text,omitempty"`     // extracted text content
	Type     string            `json:"type"`               // heading, paragraph, table, list, page, section
	Metadata map[string]string `json:"metadata,omitempty"` // extra attributes
	Start    int               `json:"start"`
	End      int               `json:"end"`
}

// ListBlock is a run of contiguous list lines of the same kind.
type ListBlock struct {
	Kind  string   `json:"kind"` // bullet, numbered, alpha
	Line  int      `json:"line"` // index of the first item line
	Items []string `json:"items"`
}

// Span is a byte range inside Document.RawText.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Structure is the output of structure analysis.
type Structure struct {
	Sections   []Section   `json:"sections"`
	Lists      []ListBlock `json:"lists,omitempty"`
	Paragraphs []Span      `json:"paragraphs,omitempty"`
}

// HasHeadings reports whether at least one titled section was detected.
func (s *Structure) HasHeadings() bool {
	if s == nil {
		return false
	}
	for _, sec := range s.Sections {
		if sec.Title != "" {
			return true
		}
	}
	return false
}

// Attempt records one engine run inside the extraction chain.
type Attempt struct {
	Engine string `json:"engine"`
	Chars  int    `json:"chars"`
	Err    string `json:"error,omitempty"`
}

// Document is the result of extracting content from a file.
type Document struct {
	Path     string            `json:"path"`
	Format   Format            `json:"format"`
	Title    string            `json:"title"`
	Sections []Section         `json:"sections,omitempty"` // extractor-native sections
	RawText  string            `json:"raw_text"`           // complete extracted text
	Metadata map[string]string `json:"metadata,omitempty"`

	PageCount int      `json:"page_count"`
	Pages     []string `json:"-"` // per-page text, PDF only

	// FontHints maps a line index of RawText to the dominant font size on
	// that line. BodyFontSize is the most common size. Only the positional
	// PDF engine fills them.
	FontHints    map[int]float64 `json:"-"`
	BodyFontSize float64         `json:"-"`

	Structure  *Structure   `json:"structure,omitempty"`
	Tables     []Table      `json:"tables,omitempty"`
	References []string     `json:"references,omitempty"`
	Type       DocumentType `json:"document_type"`
	Language   string       `json:"language"`

	Fingerprint string    `json:"fingerprint"`
	Method      string    `json:"method"` // engine that produced RawText
	Attempts    []Attempt `json:"attempts,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`

	Quality *ExtractionQuality `json:"quality,omitempty"` // PDF extraction quality metrics

	Scanned          bool    `json:"has_scanned_content"`
	OCRApplied       bool    `json:"ocr_applied"`
	OCRPages         int     `json:"ocr_pages,omitempty"`
	OCRSkippedPages  int     `json:"ocr_skipped_pages,omitempty"`
	Confidence       float64 `json:"confidence"`
	MedianConfidence float64 `json:"median_confidence,omitempty"`
}
