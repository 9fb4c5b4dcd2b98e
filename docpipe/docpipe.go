// CLAUDE:SUMMARY Core pipeline engine: format detection, capability-gated extraction chain with OCR and raw fallbacks.
// Package docpipe extracts text, metadata, tables and structure hints from document files.
//
// Supported formats:
//   - .pdf:   pdfcpu content streams, pdftotext (docconv), positional glyph engine, OCR, raw literals
//   - .docx:  Microsoft Word (word/document.xml, tables, docProps/core.xml)
//   - .odt:   OpenDocument Text (content.xml, tables, meta.xml)
//   - .md:    Markdown (parsed with heading detection)
//   - .txt:   Plain text (lines preserved, legacy encodings via the raw engine)
//   - .html:  HTML (headings, paragraphs, lists, tables; hidden text dropped)
//   - source code files, read as plain text
//
// Engines for each format are tried strictly in order. The first result that
// passes the minimum-content threshold wins; every failure is recorded as an
// Attempt and the next engine runs. Total failure is an *ExtractError.
//
// Usage:
//
//	caps := docpipe.DetectCapabilities()
//	pipe := docpipe.New(docpipe.Config{}, caps)
//	doc, err := pipe.Extract(ctx, "/path/to/file.pdf")
//	fmt.Println(doc.Method, doc.PageCount, len(doc.Tables))
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/docflow/ocr"
)

// PageOCR recognizes the pages of a PDF whose embedded text is too sparse.
// *ocr.Processor implements it.
type PageOCR interface {
	Process(ctx context.Context, pdfPath string, direct []string, pageCount int) (*ocr.Result, error)
}

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	caps   Capabilities
	logger *slog.Logger

	chains map[Format][]TextExtractor
	raw    map[Format]TextExtractor
	ocr    PageOCR
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOCR enables the OCR step for PDFs.
func WithOCR(o PageOCR) Option {
	return func(p *Pipeline) { p.ocr = o }
}

// WithEngines replaces the ordered engine list for one format.
func WithEngines(f Format, engines ...TextExtractor) Option {
	return func(p *Pipeline) { p.chains[f] = engines }
}

// New creates a Pipeline. Engines are chosen once from caps.
func New(cfg Config, caps Capabilities, opts ...Option) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:    cfg,
		caps:   caps,
		logger: cfg.Logger,
		chains: defaultChains(cfg, caps),
		raw: map[Format]TextExtractor{
			FormatPDF:  rawEngine{pdf: true},
			FormatTXT:  rawEngine{},
			FormatCode: rawEngine{},
			FormatMD:   rawEngine{},
			FormatHTML: rawEngine{},
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func defaultChains(cfg Config, caps Capabilities) map[Format][]TextExtractor {
	pdf := []TextExtractor{pdfcpuEngine{maxPages: cfg.MaxPages}}
	if caps.Pdftotext {
		pdf = append(pdf, pdftotextEngine{maxPages: cfg.MaxPages})
	}
	pdf = append(pdf, positionalEngine{maxPages: cfg.MaxPages})

	return map[Format][]TextExtractor{
		FormatPDF:  pdf,
		FormatDocx: {officeEngine{format: FormatDocx}},
		FormatODT:  {officeEngine{format: FormatODT}},
		FormatHTML: {htmlEngine{}},
		FormatMD:   {markdownEngine{}},
		FormatTXT:  {textEngine{}},
		FormatCode: {textEngine{}},
	}
}

// Capabilities returns the capability set the pipeline was built with.
func (p *Pipeline) Capabilities() Capabilities { return p.caps }

// Engines returns the engine names tried for a format, in order.
func (p *Pipeline) Engines(f Format) []string {
	var names []string
	for _, e := range p.chains[f] {
		names = append(names, e.Name())
	}
	if p.ocr != nil && f == FormatPDF {
		names = append(names, "ocr")
	}
	if r, ok := p.raw[f]; ok {
		names = append(names, r.Name())
	}
	return names
}

var codeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true,
	".rs": true, ".rb": true, ".php": true, ".sh": true, ".sql": true, ".cs": true,
	".kt": true, ".swift": true, ".scala": true, ".lua": true, ".r": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".css": true, ".ini": true, ".cfg": true,
}

// Detect returns the document format based on file extension.
func (p *Pipeline) Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".docx":
		return FormatDocx, nil
	case ".odt":
		return FormatODT, nil
	case ".pdf":
		return FormatPDF, nil
	case ".md", ".markdown":
		return FormatMD, nil
	case ".txt", ".text", ".rst", ".log", ".csv", ".tsv":
		return FormatTXT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	}
	if codeExts[ext] {
		return FormatCode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func (p *Pipeline) minChars(f Format) int {
	if f == FormatPDF {
		return p.cfg.MinContentChars
	}
	return 1
}

// Extract runs the engine chain for path.
//
// On context expiry the best partial Document gathered so far is returned
// together with ctx.Err(); callers decide whether to keep it.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractError{Kind: KindMetadata, Path: path, Err: fmt.Errorf("stat: %w", err)}
	}
	if info.IsDir() {
		return nil, &ExtractError{Kind: KindMetadata, Path: path, Err: errors.New("is a directory")}
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, &ExtractError{Kind: KindTooLarge, Path: path,
			Err: fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), p.cfg.MaxFileSize)}
	}

	format, err := p.Detect(path)
	if err != nil {
		return nil, &ExtractError{Kind: KindUnsupported, Path: path, Err: err}
	}
	if isTextual(format) {
		binary, err := sniffBinary(path)
		if err != nil {
			return nil, &ExtractError{Kind: KindMetadata, Path: path, Err: err}
		}
		if binary {
			return nil, &ExtractError{Kind: KindBinary, Path: path, Err: ErrBinaryFile}
		}
	}

	p.logger.Debug("extracting document", "path", path, "format", format)

	r := p.runChain(ctx, path, format)
	if r.ctxErr != nil {
		return p.buildDocument(path, format, r), r.ctxErr
	}
	if r.accepted == nil {
		return nil, &ExtractError{Kind: KindExtraction, Path: path, Attempts: r.attempts, Err: ErrNoText}
	}
	return p.buildDocument(path, format, r), nil
}

// chainRun accumulates the state of one pass over the engine chain.
type chainRun struct {
	accepted  *Extraction
	engine    TextExtractor
	method    string
	exts      []*Extraction
	attempts  []Attempt
	pageCount int
	ocr       *ocr.Result
	ctxErr    error
}

func (r *chainRun) record(ext *Extraction, a Attempt) {
	r.attempts = append(r.attempts, a)
	if ext == nil {
		return
	}
	r.exts = append(r.exts, ext)
	if ext.PageCount > r.pageCount {
		r.pageCount = ext.PageCount
	}
}

// best returns the longest extraction seen, accepted or not.
func (r *chainRun) best() *Extraction {
	if r.accepted != nil {
		return r.accepted
	}
	var best *Extraction
	for _, e := range r.exts {
		if best == nil || e.strippedLen() > best.strippedLen() {
			best = e
		}
	}
	return best
}

// directPages returns per-page embedded text from the first engine that
// produced page boundaries.
func (r *chainRun) directPages() []string {
	for _, e := range r.exts {
		if len(e.Pages) > 0 {
			return e.Pages
		}
	}
	return nil
}

func (p *Pipeline) runChain(ctx context.Context, path string, format Format) *chainRun {
	r := &chainRun{}
	min := p.minChars(format)

	p.tryEngines(ctx, r, path, p.chains[format], min)
	if r.ctxErr != nil {
		return r
	}

	if format == FormatPDF && p.ocr != nil && p.needsOCR(r.accepted) {
		p.runOCR(ctx, r, path, min)
		if r.ctxErr != nil {
			return r
		}
	}

	if r.accepted == nil {
		if raw, ok := p.raw[format]; ok {
			p.tryEngines(ctx, r, path, []TextExtractor{raw}, min)
		}
	}
	return r
}

func (p *Pipeline) tryEngines(ctx context.Context, r *chainRun, path string, engines []TextExtractor, min int) {
	for _, eng := range engines {
		if err := ctx.Err(); err != nil {
			r.ctxErr = err
			return
		}
		ext, err := eng.ExtractText(ctx, path)
		a := Attempt{Engine: eng.Name(), Chars: ext.strippedLen()}
		if err != nil {
			a.Err = err.Error()
			r.record(ext, a)
			if cerr := ctx.Err(); cerr != nil {
				r.ctxErr = cerr
				return
			}
			p.logger.Warn("extraction engine failed", "engine", eng.Name(), "path", path, "error", err)
			continue
		}
		if a.Chars < min {
			a.Err = fmt.Sprintf("below threshold (%d < %d chars)", a.Chars, min)
			r.record(ext, a)
			p.logger.Debug("extraction engine below threshold", "engine", eng.Name(), "path", path, "chars", a.Chars)
			continue
		}
		r.record(ext, a)
		r.accepted, r.engine, r.method = ext, eng, eng.Name()
		return
	}
}

func (p *Pipeline) needsOCR(accepted *Extraction) bool {
	if accepted == nil {
		return true
	}
	if accepted.Quality == nil {
		accepted.Quality = newQuality(accepted.Text, accepted.PageCount, accepted.strippedLen(), false)
	}
	return accepted.Quality.NeedsOCR()
}

func (p *Pipeline) runOCR(ctx context.Context, r *chainRun, path string, min int) {
	res, err := p.ocr.Process(ctx, path, r.directPages(), r.pageCount)
	if res != nil {
		r.ocr = res
	}
	if err != nil {
		r.attempts = append(r.attempts, Attempt{Engine: "ocr", Err: err.Error()})
		if cerr := ctx.Err(); cerr != nil {
			r.ctxErr = cerr
			return
		}
		p.logger.Warn("extraction engine failed", "engine", "ocr", "path", path, "error", err)
		return
	}

	chars := len([]rune(strings.TrimSpace(res.Text)))
	a := Attempt{Engine: "ocr", Chars: chars}
	switch {
	case res.Success && chars >= min:
		ext := &Extraction{
			Text:      res.Text,
			Pages:     res.PageTexts(),
			PageCount: r.pageCount,
		}
		if b := r.best(); b != nil {
			ext.Title, ext.Metadata, ext.Truncated = b.Title, b.Metadata, b.Truncated
		}
		r.record(ext, a)
		r.accepted, r.engine, r.method = ext, ocrEngine{}, res.Method
	case r.accepted == nil && chars >= min:
		// Recognizer gave nothing usable; keep the direct text it fell back to.
		a.Err = "degraded: " + res.Method
		ext := &Extraction{Text: res.Text, Pages: res.PageTexts(), PageCount: r.pageCount}
		r.record(ext, a)
		r.accepted, r.engine, r.method = ext, ocrEngine{}, res.Method
	default:
		a.Err = fmt.Sprintf("ocr unsuccessful (%s, %d chars)", res.Method, chars)
		r.attempts = append(r.attempts, a)
	}
}

func (p *Pipeline) buildDocument(path string, format Format, r *chainRun) *Document {
	ext := r.best()
	if ext == nil {
		ext = &Extraction{}
	}
	doc := &Document{
		Path:         path,
		Format:       format,
		Title:        ext.Title,
		Sections:     ext.Sections,
		RawText:      ext.Text,
		Metadata:     mergeMetadata(r.exts),
		PageCount:    ext.PageCount,
		Pages:        ext.Pages,
		FontHints:    ext.FontHints,
		BodyFontSize: ext.BodyFontSize,
		Tables:       ext.Tables,
		Quality:      ext.Quality,
		Truncated:    ext.Truncated,
		Method:       r.method,
		Attempts:     r.attempts,
	}
	if doc.PageCount < r.pageCount {
		doc.PageCount = r.pageCount
	}
	if doc.Title == "" {
		doc.Title = firstLine(doc.RawText)
	}
	if doc.Truncated {
		w := fmt.Sprintf("truncated to first %d of %d pages", p.cfg.MaxPages, doc.PageCount)
		doc.Warnings = append(doc.Warnings, w)
		p.logger.Warn("document truncated", "path", path, "pages", doc.PageCount, "max_pages", p.cfg.MaxPages)
	}
	if r.engine == nil || !r.engine.SupportsTables() {
		if len(doc.Tables) == 0 {
			doc.Tables = DetectTables(doc.RawText)
		}
	}

	if format == FormatPDF {
		if doc.Quality == nil {
			doc.Quality = newQuality(doc.RawText, doc.PageCount, len([]rune(doc.RawText)), false)
		}
		doc.Confidence = doc.Quality.Score()
	} else {
		doc.Confidence = 100
	}

	if res := r.ocr; res != nil {
		doc.Scanned = res.ScannedPages > 0
		doc.OCRPages = res.OCRPages
		doc.OCRSkippedPages = res.SkippedPages
		if r.accepted != nil && r.engine != nil && r.engine.SupportsOCR() && res.Success {
			doc.OCRApplied = true
			doc.Confidence = res.MeanConfidence
			doc.MedianConfidence = res.MedianConfidence
		}
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata["method"] = doc.Method
	doc.Fingerprint = Fingerprint(doc.RawText)
	return doc
}

// mergeMetadata folds engine metadata together; earlier engines win.
func mergeMetadata(exts []*Extraction) map[string]string {
	md := map[string]string{}
	for _, e := range exts {
		for k, v := range e.Metadata {
			if _, ok := md[k]; !ok && v != "" {
				md[k] = v
			}
		}
	}
	return md
}

// ocrEngine stands in for the OCR step inside chainRun.
type ocrEngine struct{}

func (ocrEngine) Name() string         { return "ocr" }
func (ocrEngine) SupportsTables() bool { return false }
func (ocrEngine) SupportsOCR() bool    { return true }
func (ocrEngine) ExtractText(context.Context, string) (*Extraction, error) {
	return nil, errors.New("ocr runs through PageOCR")
}

// SupportedFormats returns all supported format names.
func SupportedFormats() []string {
	return []string{"docx", "odt", "pdf", "md", "txt", "html", "code"}
}
