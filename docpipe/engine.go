// CLAUDE:SUMMARY TextExtractor interface, engine result type, startup capability probe and typed extraction errors.
// CLAUDE:EXPORTS TextExtractor, Extraction, Capabilities, DetectCapabilities, ExtractError, ErrorKind
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hazyhaar/docflow/ocr"
)

// TextExtractor is one extraction engine in the fallback chain.
type TextExtractor interface {
	Name() string
	SupportsTables() bool
	SupportsOCR() bool
	ExtractText(ctx context.Context, path string) (*Extraction, error)
}

// Extraction is what a single engine produces for a file.
type Extraction struct {
	Title     string
	Text      string
	Sections  []Section
	Pages     []string
	PageCount int
	Metadata  map[string]string
	Tables    []Table

	FontHints    map[int]float64
	BodyFontSize float64

	Quality   *ExtractionQuality
	Truncated bool
}

func (e *Extraction) strippedLen() int {
	if e == nil {
		return 0
	}
	return len([]rune(strings.TrimSpace(e.Text)))
}

// Capabilities lists what the host can run. Built once at startup and
// passed by value; engines are selected from it when a Pipeline is created.
type Capabilities struct {
	Pdftotext bool `json:"pdftotext"`
	Pdftoppm  bool `json:"pdftoppm"`
	OCR       bool `json:"ocr"`
}

// DetectCapabilities probes PATH for the poppler tools and reports whether
// a recognizer was compiled in.
func DetectCapabilities() Capabilities {
	return Capabilities{
		Pdftotext: hasBinary("pdftotext"),
		Pdftoppm:  hasBinary("pdftoppm"),
		OCR:       ocr.Available(),
	}
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Sentinel errors checked with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrBinaryFile        = errors.New("binary file")
	ErrTooLarge          = errors.New("file too large")
	ErrNoText            = errors.New("no text content")
)

// ErrorKind classifies a total extraction failure.
type ErrorKind string

const (
	KindUnsupported ErrorKind = "unsupported_format"
	KindBinary      ErrorKind = "binary_file"
	KindTooLarge    ErrorKind = "file_too_large"
	KindMetadata    ErrorKind = "metadata_extraction_failed"
	KindExtraction  ErrorKind = "extraction_failed"
)

// ExtractError is returned when no engine produced acceptable text.
type ExtractError struct {
	Kind     ErrorKind
	Path     string
	Attempts []Attempt
	Err      error
}

func (e *ExtractError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "extract %s: %s", e.Path, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if len(e.Attempts) > 0 {
		sb.WriteString(" [")
		for i, a := range e.Attempts {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(a.Engine)
			if a.Err != "" {
				sb.WriteString(": ")
				sb.WriteString(a.Err)
			}
		}
		sb.WriteString("]")
	}
	return sb.String()
}

func (e *ExtractError) Unwrap() error { return e.Err }
