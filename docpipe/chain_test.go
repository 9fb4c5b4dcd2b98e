package docpipe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/docflow/ocr"
)

type fakeEngine struct {
	name   string
	ext    *Extraction
	err    error
	tables bool
	calls  int
	onCall func()
}

func (f *fakeEngine) Name() string         { return f.name }
func (f *fakeEngine) SupportsTables() bool { return f.tables }
func (f *fakeEngine) SupportsOCR() bool    { return false }

func (f *fakeEngine) ExtractText(context.Context, string) (*Extraction, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	return f.ext, f.err
}

type fakeOCR struct {
	res   *ocr.Result
	err   error
	calls int
	pages int
}

func (f *fakeOCR) Process(_ context.Context, _ string, direct []string, pageCount int) (*ocr.Result, error) {
	f.calls++
	f.pages = pageCount
	return f.res, f.err
}

var bodyText = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 4)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestChain_FirstAcceptedWins(t *testing.T) {
	// WHAT: Engines run in order and the first result above threshold is kept.
	// WHY: Later engines are slower or less accurate and must not run needlessly.
	primary := &fakeEngine{name: "primary", err: errors.New("broken xref")}
	secondary := &fakeEngine{name: "secondary", ext: &Extraction{Text: "too short", PageCount: 2}}
	tertiary := &fakeEngine{name: "tertiary", ext: &Extraction{Text: bodyText, PageCount: 2}}
	last := &fakeEngine{name: "last", ext: &Extraction{Text: bodyText}}

	path := writeFile(t, "doc.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, primary, secondary, tertiary, last))

	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Method != "tertiary" {
		t.Fatalf("method = %q, want tertiary", doc.Method)
	}
	if last.calls != 0 {
		t.Error("engine after the accepted one must not run")
	}
	if len(doc.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(doc.Attempts))
	}
	if !strings.Contains(doc.Attempts[0].Err, "broken xref") {
		t.Errorf("attempt 0 err = %q", doc.Attempts[0].Err)
	}
	if !strings.Contains(doc.Attempts[1].Err, "below threshold") {
		t.Errorf("attempt 1 err = %q", doc.Attempts[1].Err)
	}
	if doc.PageCount != 2 {
		t.Errorf("page count = %d", doc.PageCount)
	}
	if doc.Fingerprint != Fingerprint(bodyText) {
		t.Error("fingerprint must hash the full text")
	}
}

func TestChain_TotalFailure(t *testing.T) {
	// WHAT: When every engine and the raw fallback fail, a structured error lists all attempts.
	// WHY: Callers report a descriptive failure instead of crashing or writing garbage.
	a := &fakeEngine{name: "a", err: errors.New("nope")}
	b := &fakeEngine{name: "b", ext: &Extraction{Text: ""}}
	path := writeFile(t, "corrupt.pdf", "garbage bytes")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, a, b))

	doc, err := pipe.Extract(context.Background(), path)
	if doc != nil {
		t.Fatal("expected nil document")
	}
	var xe *ExtractError
	if !errors.As(err, &xe) {
		t.Fatalf("err = %v, want *ExtractError", err)
	}
	if xe.Kind != KindExtraction || !errors.Is(err, ErrNoText) {
		t.Errorf("kind = %s err = %v", xe.Kind, err)
	}
	if len(xe.Attempts) != 3 || xe.Attempts[2].Engine != "raw" {
		t.Errorf("attempts = %+v", xe.Attempts)
	}
	if !strings.Contains(err.Error(), "a: nope") {
		t.Errorf("message lacks engine detail: %v", err)
	}
}

func TestChain_TextFormatsAcceptAnyContent(t *testing.T) {
	path := writeFile(t, "short.txt", "hi")
	pipe := New(Config{}, Capabilities{})
	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.RawText != "hi" || doc.Confidence != 100 {
		t.Errorf("text=%q confidence=%v", doc.RawText, doc.Confidence)
	}
}

func TestChain_LegacyEncodingFallsBackToRaw(t *testing.T) {
	// WHAT: A Windows-1252 text file fails the UTF-8 engine and is decoded by the raw engine.
	path := writeFile(t, "legacy.txt", "caf\xe9  cr\xe8me\n\n\n\nbr\xfbl\xe9e")
	pipe := New(Config{}, Capabilities{})
	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Method != "raw" {
		t.Fatalf("method = %q, want raw", doc.Method)
	}
	if doc.RawText != "café crème\n\nbrûlée" {
		t.Errorf("text = %q", doc.RawText)
	}
	if doc.Metadata["encoding"] != "windows-1252" {
		t.Errorf("encoding = %q", doc.Metadata["encoding"])
	}
}

func TestChain_LegacyEncodingCRLF(t *testing.T) {
	// WHAT: Windows line endings in a legacy-encoded file stay single line breaks.
	// WHY: A doubled break turns every line into its own paragraph for the structure pass.
	path := writeFile(t, "dos.txt", "caf\xe9 line one\r\nline two\r\nline three\r\n\r\nnext\rpara")
	doc, err := New(Config{}, Capabilities{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Method != "raw" {
		t.Fatalf("method = %q, want raw", doc.Method)
	}
	if want := "café line one\nline two\nline three\n\nnext\npara"; doc.RawText != want {
		t.Errorf("text = %q, want %q", doc.RawText, want)
	}
}

func TestChain_BinaryFileRejected(t *testing.T) {
	path := writeFile(t, "blob.txt", "ab\x00\x01\x02cd")
	pipe := New(Config{}, Capabilities{})
	_, err := pipe.Extract(context.Background(), path)
	var xe *ExtractError
	if !errors.As(err, &xe) || xe.Kind != KindBinary || !errors.Is(err, ErrBinaryFile) {
		t.Fatalf("err = %v, want binary file error", err)
	}
}

func TestChain_TooLarge(t *testing.T) {
	path := writeFile(t, "big.txt", strings.Repeat("a", 200))
	pipe := New(Config{MaxFileSize: 100}, Capabilities{})
	_, err := pipe.Extract(context.Background(), path)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestChain_OCRReplacesSparseText(t *testing.T) {
	// WHAT: An accepted result that needs OCR is replaced by recognized text.
	// WHY: Image-only pages carry no embedded text; OCR is the only source.
	garbled := &Extraction{
		Text:      strings.Repeat(" ", 40),
		Pages:     []string{"", "", ""},
		PageCount: 3,
	}
	eng := &fakeEngine{name: "pdfcpu", ext: garbled}
	o := &fakeOCR{res: &ocr.Result{
		Pages: []ocr.PageResult{
			{Page: 1, State: ocr.StateOCR, Text: bodyText, Confidence: 80},
			{Page: 2, State: ocr.StateOCR, Text: bodyText, Confidence: 90},
			{Page: 3, State: ocr.StateOCR, Text: bodyText, Confidence: 70},
		},
		Text: bodyText + "\n\n" + bodyText + "\n\n" + bodyText, OCRPages: 3, ScannedPages: 3,
		MeanConfidence: 80, MedianConfidence: 80, Method: ocr.MethodOCR, Success: true,
	}}
	path := writeFile(t, "scan.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, eng), WithOCR(o))

	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if o.calls != 1 || o.pages != 3 {
		t.Fatalf("ocr calls=%d pages=%d", o.calls, o.pages)
	}
	if !doc.OCRApplied || !doc.Scanned {
		t.Errorf("ocrApplied=%v scanned=%v", doc.OCRApplied, doc.Scanned)
	}
	if doc.Confidence != 80 || doc.MedianConfidence != 80 {
		t.Errorf("confidence=%v median=%v", doc.Confidence, doc.MedianConfidence)
	}
	if doc.Method != ocr.MethodOCR || len(doc.Pages) != 3 {
		t.Errorf("method=%q pages=%d", doc.Method, len(doc.Pages))
	}
}

func TestChain_OCRSkippedForGoodText(t *testing.T) {
	eng := &fakeEngine{name: "pdfcpu", ext: &Extraction{Text: bodyText, PageCount: 1,
		Quality: &ExtractionQuality{PageCount: 1, CharsPerPage: 180, PrintableRatio: 1, WordlikeRatio: 1}}}
	o := &fakeOCR{}
	path := writeFile(t, "text.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, eng), WithOCR(o))

	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if o.calls != 0 {
		t.Error("OCR must not run when embedded text is good")
	}
	if doc.OCRApplied || doc.Scanned {
		t.Error("no OCR flags expected")
	}
	if doc.Confidence != 100 {
		t.Errorf("confidence = %v, want quality score 100", doc.Confidence)
	}
}

func TestChain_OCRUnavailableKeepsDirectText(t *testing.T) {
	// WHAT: An unsuccessful OCR result leaves the accepted embedded text in place.
	// WHY: Hosts without a recognizer still index what the PDF carries.
	eng := &fakeEngine{name: "pdfcpu", ext: &Extraction{Text: bodyText, Pages: []string{bodyText}, PageCount: 1,
		Quality: &ExtractionQuality{PageCount: 1, CharsPerPage: 10, PrintableRatio: 1, WordlikeRatio: 1, HasImageStreams: true}}}
	o := &fakeOCR{res: &ocr.Result{Text: bodyText, Method: ocr.MethodUnavailable, ScannedPages: 1}}
	path := writeFile(t, "sparse.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, eng), WithOCR(o))

	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if o.calls != 1 {
		t.Fatalf("ocr calls = %d", o.calls)
	}
	if doc.OCRApplied {
		t.Error("OCR must not be reported as applied")
	}
	if !doc.Scanned || doc.RawText != bodyText || doc.Method != "pdfcpu" {
		t.Errorf("scanned=%v method=%q", doc.Scanned, doc.Method)
	}
	last := doc.Attempts[len(doc.Attempts)-1]
	if last.Engine != "ocr" || !strings.Contains(last.Err, "ocr unsuccessful") {
		t.Errorf("last attempt = %+v", last)
	}
}

func TestChain_ContextExpiryReturnsPartial(t *testing.T) {
	// WHAT: A context cancelled mid-chain yields the best partial document and ctx.Err().
	// WHY: Timeouts keep whatever text was already extracted.
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeEngine{name: "first", ext: &Extraction{Text: "partial text"}, onCall: cancel}
	second := &fakeEngine{name: "second", ext: &Extraction{Text: bodyText}}
	path := writeFile(t, "slow.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, first, second))

	doc, err := pipe.Extract(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if doc == nil || doc.RawText != "partial text" {
		t.Fatalf("partial doc = %+v", doc)
	}
	if second.calls != 0 {
		t.Error("no engine may run after cancellation")
	}
}

func TestChain_TruncationWarning(t *testing.T) {
	eng := &fakeEngine{name: "pdfcpu", ext: &Extraction{Text: bodyText, PageCount: 5000, Truncated: true,
		Quality: &ExtractionQuality{PageCount: 1000, CharsPerPage: 100, PrintableRatio: 1, WordlikeRatio: 1}}}
	path := writeFile(t, "huge.pdf", "%PDF-1.4")
	pipe := New(Config{}, Capabilities{}, WithEngines(FormatPDF, eng))
	doc, err := pipe.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Truncated || len(doc.Warnings) != 1 || !strings.Contains(doc.Warnings[0], "first 1000 of 5000") {
		t.Errorf("truncated=%v warnings=%v", doc.Truncated, doc.Warnings)
	}
}

func TestChain_TablesFromTextWhenEngineLacksSupport(t *testing.T) {
	text := "Results\n\nName  Score  Rank\nalpha  10  1\nbeta  8  2\n"
	plain := &fakeEngine{name: "plain", ext: &Extraction{Text: text + bodyText}}
	path := writeFile(t, "t.pdf", "%PDF-1.4")
	doc, err := New(Config{}, Capabilities{}, WithEngines(FormatPDF, plain)).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tables) != 1 || doc.Tables[0].Header[0] != "Name" {
		t.Fatalf("tables = %+v", doc.Tables)
	}

	aware := &fakeEngine{name: "aware", tables: true, ext: &Extraction{Text: text + bodyText}}
	doc, err = New(Config{}, Capabilities{}, WithEngines(FormatPDF, aware)).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tables) != 0 {
		t.Errorf("table-aware engine result must not be re-scanned, got %d tables", len(doc.Tables))
	}
}

func TestDefaultChains_CapabilityGated(t *testing.T) {
	without := New(Config{}, Capabilities{})
	if got := strings.Join(without.Engines(FormatPDF), ","); got != "pdfcpu,positional,raw" {
		t.Errorf("engines = %s", got)
	}
	with := New(Config{}, Capabilities{Pdftotext: true}, WithOCR(&fakeOCR{}))
	if got := strings.Join(with.Engines(FormatPDF), ","); got != "pdfcpu,pdftotext,positional,ocr,raw" {
		t.Errorf("engines = %s", got)
	}
}
