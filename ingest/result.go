package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/docflow/docpipe"
)

// Status is the outcome of processing one file.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// FailureKind classifies why a file produced no complete result.
type FailureKind string

const (
	FailBinary     FailureKind = "binary_file"
	FailTooLarge   FailureKind = "file_too_large"
	FailMetadata   FailureKind = "metadata_extraction_failed"
	FailExtraction FailureKind = "extraction_failed"
	FailOCR        FailureKind = "ocr_failed"
	FailTable      FailureKind = "table_extraction_failed"
	FailTimeout    FailureKind = "timeout"
	FailCancelled  FailureKind = "cancelled"
	FailUnchanged  FailureKind = "unchanged"
	FailFiltered   FailureKind = "filtered"
	FailOther      FailureKind = "other"
)

// Sentinel causes used on the per-file context.
var (
	ErrFileTimeout = errors.New("file processing timed out")
	ErrCancelled   = errors.New("processing cancelled")
)

// Failure describes a file that produced no complete result.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

// FileResult is the tagged outcome of ProcessFile. Per-file problems are
// reported here and never as a Go error.
type FileResult struct {
	Path     string
	GroupKey string
	Status   Status
	Failure  *Failure
	Docs     []DocData
	Stats    Stats

	// Partial is set on timeouts that kept the text extracted so far.
	Partial bool
	// Recovered lists engine failures the chain fell back from. They do
	// not change Status.
	Recovered []*Failure

	ModTime time.Time
	Size    int64
}

// PDFResult is the outcome of ProcessPDF. Callers branch on Status.
type PDFResult struct {
	Status   Status         `json:"status"`
	DocsData []DocData      `json:"docsData"`
	Metadata map[string]any `json:"metadata"`
	Message  string         `json:"message,omitempty"`
}

// RunResult is the outcome of ProcessAllFiles.
type RunResult struct {
	RunID      string            `json:"runId"`
	Stats      Stats             `json:"stats"`
	Data       map[string]*Group `json:"-"`
	Status     string            `json:"status"` // success, partial, cancelled
	Message    string            `json:"message"`
	OutputTier Tier              `json:"outputTier"`
}

// Run status values.
const (
	RunSuccess   = "success"
	RunPartial   = "partial"
	RunCancelled = "cancelled"
)

// failureOf maps a total extraction error to a failure and the status it
// implies. Unsupported, binary, oversized and unreadable files are skips.
func failureOf(err error) (Status, *Failure) {
	var xe *docpipe.ExtractError
	if !errors.As(err, &xe) {
		return StatusError, &Failure{Kind: FailOther, Detail: err.Error(), Err: err}
	}
	f := &Failure{Detail: xe.Error(), Err: err}
	switch xe.Kind {
	case docpipe.KindBinary:
		f.Kind = FailBinary
		return StatusSkipped, f
	case docpipe.KindTooLarge:
		f.Kind = FailTooLarge
		return StatusSkipped, f
	case docpipe.KindMetadata:
		f.Kind = FailMetadata
		return StatusSkipped, f
	case docpipe.KindUnsupported:
		f.Kind = FailFiltered
		return StatusSkipped, f
	}
	f.Kind = FailExtraction
	return StatusError, f
}

// recoveredFailures lists the engine failures of a document that was
// still extracted. Threshold misses are not failures.
func recoveredFailures(doc *docpipe.Document) []*Failure {
	var out []*Failure
	for _, a := range doc.Attempts {
		if a.Err == "" || strings.HasPrefix(a.Err, "below threshold") {
			continue
		}
		kind := FailExtraction
		switch a.Engine {
		case "ocr":
			kind = FailOCR
		case "positional":
			kind = FailTable
		}
		out = append(out, &Failure{Kind: kind, Detail: a.Engine + ": " + a.Err})
	}
	return out
}
