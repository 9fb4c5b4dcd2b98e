// CLAUDE:SUMMARY Batch orchestrator: per-file pipeline (extract, analyze, chunk, tag) under a deadline with cooperative cancellation.
// CLAUDE:DEPENDS docpipe, ocr, classify, chunk, tags
// CLAUDE:EXPORTS Processor, New, Option, ProgressFunc, Diagnostics, ProcessFile, ProcessPDF, ProcessAllFiles
//
// Package ingest walks a directory, runs every file through extraction,
// classification, chunking and tagging, and writes one aggregated JSON
// output keyed by group (the first path segment under the root).
//
// Per-file problems never surface as Go errors: ProcessFile returns a
// tagged FileResult whose Status is success, skipped, error, timeout or
// cancelled. Cancellation and the per-file deadline are observed at fixed
// checkpoints: before and after extraction, before and after chunking, and
// once per OCR page inside the extraction chain.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/hazyhaar/docflow/chunk"
	"github.com/hazyhaar/docflow/classify"
	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/ocr"
	"github.com/hazyhaar/docflow/tags"
)

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(current, total int, stage string)

// Diagnostics records failures and run metrics. Implementations must not
// fail the caller; *observability.Diagnostics implements it.
type Diagnostics interface {
	RecordFailure(ctx context.Context, path, group, kind, detail string)
	RecordRun(ctx context.Context, status string, metrics map[string]float64)
}

// Processor runs the ingestion pipeline. Safe for concurrent use.
type Processor struct {
	cfg    Config
	caps   docpipe.Capabilities
	logger *slog.Logger
	runID  string

	pipe    *docpipe.Pipeline
	chunker *chunk.Engine
	tagger  *tags.Generator
	writer  *writer

	progress ProgressFunc
	signal   CancellationSignal
	diag     Diagnostics

	pipeOpts []docpipe.Option
	pageOCR  docpipe.PageOCR
	closers  []func() error

	memUsage func() uint64
}

// Option configures a Processor.
type Option func(*Processor)

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Processor) { p.progress = fn }
}

// WithCancellation sets the cancellation signal polled at every checkpoint.
func WithCancellation(sig CancellationSignal) Option {
	return func(p *Processor) { p.signal = sig }
}

// WithDiagnostics records per-file failures and run metrics.
func WithDiagnostics(d Diagnostics) Option {
	return func(p *Processor) { p.diag = d }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(p *Processor) { p.runID = id }
}

// WithOCR replaces the OCR processor built from the configuration.
func WithOCR(o docpipe.PageOCR) Option {
	return func(p *Processor) { p.pageOCR = o }
}

// WithPipelineOptions passes options to the extraction pipeline.
func WithPipelineOptions(opts ...docpipe.Option) Option {
	return func(p *Processor) { p.pipeOpts = append(p.pipeOpts, opts...) }
}

// New creates a Processor. An OCR processor is built when OCR is enabled
// and caps reports a recognizer; failing to build one only disables OCR.
func New(cfg Config, caps docpipe.Capabilities, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	p := &Processor{
		cfg:      cfg,
		caps:     caps,
		logger:   cfg.Logger,
		memUsage: heapAlloc,
	}
	for _, o := range opts {
		o(p)
	}
	if p.runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		p.runID = id.String()
	}

	if p.pageOCR == nil && cfg.OCR.Enabled && caps.OCR {
		if err := p.buildOCR(); err != nil {
			p.logger.Warn("ocr disabled", "error", err)
		}
	}
	pipeOpts := p.pipeOpts
	if p.pageOCR != nil {
		pipeOpts = append([]docpipe.Option{docpipe.WithOCR(p.pageOCR)}, pipeOpts...)
	}

	p.pipe = docpipe.New(docpipe.Config{
		MaxFileSize:     cfg.MaxFileBytes(),
		MaxPages:        cfg.MaxPages,
		MinContentChars: cfg.MinContentChars,
		Logger:          cfg.Logger,
	}, caps, pipeOpts...)
	p.chunker = chunk.New(cfg.Chunk)
	p.tagger = tags.New(cfg.Tags)

	marshal := json.Marshal
	if cfg.Output.Indent {
		marshal = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
	}
	p.writer = &writer{marshal: marshal, logger: cfg.Logger}
	return p, nil
}

func (p *Processor) buildOCR() error {
	rec, err := ocr.NewTesseract(p.cfg.OCR.Language)
	if err != nil {
		return err
	}
	var renderers []ocr.Renderer
	if p.caps.Pdftoppm {
		if r, err := ocr.NewPdftoppmRenderer(); err == nil {
			renderers = append(renderers, r)
		}
	}
	renderers = append(renderers, ocr.NewEmbeddedImageRenderer())

	proc, err := ocr.New(p.cfg.OCR.Config, rec, renderers...)
	if err != nil {
		rec.Close()
		return err
	}
	p.pageOCR = proc
	p.closers = append(p.closers, proc.Close, rec.Close)
	return nil
}

// RunID returns the run identifier.
func (p *Processor) RunID() string { return p.runID }

// Engines returns the extraction engine names tried for a format.
func (p *Processor) Engines(f docpipe.Format) []string { return p.pipe.Engines(f) }

// Close releases the OCR processor and waits for pending scratch cleanup.
func (p *Processor) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// ProcessFile runs one file through the pipeline. root only determines the
// group key.
func (p *Processor) ProcessFile(ctx context.Context, root, path string) *FileResult {
	return p.processFile(ctx, root, path, func(int, string) {})
}

func (p *Processor) processFile(ctx context.Context, root, path string, stage func(step int, name string)) (res *FileResult) {
	res = &FileResult{Path: path, GroupKey: GroupKey(root, path)}
	defer res.count()
	defer release(p.signal, path)

	if ctx.Err() != nil || stopped(p.signal, path) {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ErrCancelled
		}
		res.Status = StatusCancelled
		res.Failure = &Failure{Kind: FailCancelled, Detail: "cancelled before start", Err: cause}
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Status = StatusSkipped
		res.Failure = &Failure{Kind: FailMetadata, Detail: err.Error(), Err: err}
		return res
	}
	res.ModTime, res.Size = info.ModTime(), info.Size()
	fi := fileInfo{path: path, size: info.Size(), modTime: info.ModTime()}

	fctx, done := p.fileContext(ctx, path)
	defer done()

	stage(1, "extract")
	doc, err := p.pipe.Extract(fctx, path)
	if p.interrupted(fctx, res, doc, fi) {
		return res
	}
	if err != nil {
		res.Status, res.Failure = failureOf(err)
		p.logger.Warn("file not extracted", "path", path, "kind", res.Failure.Kind, "error", err)
		return res
	}
	res.Recovered = recoveredFailures(doc)

	stage(2, "analyze")
	classify.Annotate(doc)
	if p.interrupted(fctx, res, doc, fi) {
		return res
	}

	stage(3, "chunk")
	chunks := p.chunker.Chunk(doc)
	if p.interrupted(fctx, res, doc, fi) {
		return res
	}

	res.Docs = buildDocData(doc, chunks, fi, p.tagger, false)
	res.Status = StatusSuccess
	st := &res.Stats
	st.TotalBytes = fi.size
	st.TotalChunks = len(res.Docs)
	st.Tables = len(doc.Tables)
	st.References = len(doc.References)
	st.DocumentTypes = map[string]int{string(doc.Type): 1}
	if doc.OCRApplied {
		st.OCRFiles = 1
	}
	st.OCRPages = doc.OCRPages
	if doc.Scanned {
		st.ScannedFiles = 1
	}
	stage(4, "done")
	p.logger.Debug("file processed", "path", path, "type", doc.Type, "method", doc.Method, "chunks", len(res.Docs))
	return res
}

// fileContext derives the per-file context: the file deadline plus a
// watcher that turns the cancellation signal into context cancellation.
func (p *Processor) fileContext(ctx context.Context, path string) (context.Context, func()) {
	cctx, stop := context.WithCancelCause(ctx)
	tctx, cancel := context.WithTimeoutCause(cctx, p.cfg.FileTimeout, ErrFileTimeout)
	if p.signal != nil {
		all, one := p.signal.Done(), p.signal.FileDone(path)
		go func() {
			select {
			case <-all:
				stop(ErrCancelled)
			case <-one:
				stop(ErrCancelled)
			case <-tctx.Done():
			}
		}()
	}
	return tctx, func() {
		cancel()
		stop(context.Canceled)
	}
}

// interrupted is a checkpoint. When fctx is done it fills res with a
// timeout or cancelled outcome and reports true. Timeouts keep the text
// extracted so far as a single full_content chunk.
func (p *Processor) interrupted(fctx context.Context, res *FileResult, doc *docpipe.Document, fi fileInfo) bool {
	var cause error
	switch {
	case fctx.Err() != nil:
		cause = context.Cause(fctx)
	case stopped(p.signal, res.Path):
		cause = ErrCancelled
	default:
		return false
	}
	if !errors.Is(cause, ErrFileTimeout) {
		res.Status = StatusCancelled
		res.Failure = &Failure{Kind: FailCancelled, Detail: cause.Error(), Err: cause}
		p.logger.Info("file cancelled", "path", res.Path)
		return true
	}

	res.Status = StatusTimeout
	res.Failure = &Failure{Kind: FailTimeout, Detail: "exceeded " + p.cfg.FileTimeout.String(), Err: cause}
	if doc != nil && strings.TrimSpace(doc.RawText) != "" {
		full := []chunk.Chunk{{
			Content:    doc.RawText,
			Type:       chunk.TypeFullContent,
			Total:      1,
			TableIndex: -1,
		}}
		res.Docs = buildDocData(doc, full, fi, p.tagger, true)
		res.Partial = true
		res.Stats.TotalBytes = fi.size
		res.Stats.TotalChunks = 1
	}
	p.logger.Warn("file timed out", "path", res.Path, "kind", FailTimeout, "partial", res.Partial)
	return true
}

// ProcessPDF processes a single PDF. Progress reports the four stages
// extract, analyze, chunk and done; it stops at the first checkpoint that
// observes cancellation.
func (p *Processor) ProcessPDF(ctx context.Context, path string) *PDFResult {
	out := &PDFResult{DocsData: []DocData{}, Metadata: map[string]any{"filePath": path}}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		out.Status = StatusError
		out.Message = "not a pdf file: " + path
		return out
	}

	stage := func(step int, name string) {
		if p.progress != nil {
			p.progress(step, 4, name)
		}
	}
	r := p.processFile(ctx, filepath.Dir(path), path, stage)

	out.Status = r.Status
	if r.Status == StatusSkipped {
		out.Status = StatusError
	}
	if r.Failure != nil {
		out.Message = r.Failure.Error()
	}
	if r.Docs != nil {
		out.DocsData = r.Docs
	}
	out.Metadata["fileSize"] = r.Size
	out.Metadata["chunkCount"] = len(out.DocsData)
	out.Metadata["partial"] = r.Partial
	if len(out.DocsData) > 0 {
		lead := out.DocsData[0]
		out.Metadata["documentType"] = lead.DocumentType
		out.Metadata["language"] = lead.Language
		out.Metadata["confidenceScore"] = lead.ConfidenceScore
		out.Metadata["contentHash"] = lead.ContentHash
		for _, k := range []string{"pageCount", "method", "title", "ocrApplied", "hasScannedContent"} {
			if v, ok := lead.Metadata[k]; ok {
				out.Metadata[k] = v
			}
		}
	}
	return out
}

func heapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
