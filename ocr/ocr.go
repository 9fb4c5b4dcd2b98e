// CLAUDE:SUMMARY OCR subsystem: per-page skip/render/preprocess/recognize state machine with document-level confidence.
// CLAUDE:DEPENDS ocr/render.go, ocr/preprocess.go, ocr/scratch.go
// CLAUDE:EXPORTS Processor, Config, Result, PageResult, Recognizer, Renderer
//
// Package ocr recognizes PDF pages whose embedded text is missing or too
// sparse. Pages with enough direct text are never rendered. Every job works
// inside its own scratch directory; intermediate images are deleted as soon
// as they are consumed and the directory itself is removed after a grace
// period.
//
// The Tesseract binding is compiled only with the "ocr" build tag. Without
// it, Available reports false and NewTesseract returns ErrOCRNotEnabled; the
// Processor then degrades to the direct text it was given.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrOCRNotEnabled is returned when the binary was built without the ocr tag.
var ErrOCRNotEnabled = errors.New("ocr: built without the ocr tag (tesseract) support")

// Recognition is the recognizer output for one page image.
type Recognition struct {
	Text       string
	Confidence float64 // 0-100, mean over recognized words
	Words      int
}

// Recognizer turns a preprocessed page image into text. Implementations
// must keep every temporary file inside job.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, job *Scratch) (Recognition, error)
}

// Renderer rasterizes one PDF page (1-based) at the given zoom factor.
// Intermediate files go to job and are removed before returning.
type Renderer interface {
	Name() string
	Render(ctx context.Context, pdfPath string, page int, zoom float64, job *Scratch) (image.Image, error)
}

// Config configures a Processor.
type Config struct {
	// ScratchDir is the root for per-job directories (default: os.TempDir()).
	ScratchDir string `yaml:"scratch_dir"`

	// Zoom is the rasterization factor over 72 dpi (default: 2.0).
	Zoom float64 `yaml:"zoom"`

	// Language is the recognizer language, "+" separated (default: "eng").
	Language string `yaml:"language"`

	// MinPageChars is the direct text length at which a page skips OCR (default: 50).
	MinPageChars int `yaml:"min_page_chars"`

	// MinDocumentChars is the OCR output length below which the job falls
	// back to direct text (default: 50).
	MinDocumentChars int `yaml:"min_document_chars"`

	// PageTimeout bounds render plus recognition of one page (default: 60s).
	PageTimeout time.Duration `yaml:"page_timeout"`

	// CleanupDelay is the grace period before a job directory is removed
	// (default: 30s). Negative removes it immediately.
	CleanupDelay time.Duration `yaml:"cleanup_delay"`

	// StaleAfter is the age at which leftover job directories are swept when
	// a Processor starts (default: 1h).
	StaleAfter time.Duration `yaml:"stale_after"`

	// SkipDenoise disables the median filter.
	SkipDenoise bool `yaml:"skip_denoise"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Zoom <= 0 {
		c.Zoom = 2.0
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.MinPageChars <= 0 {
		c.MinPageChars = 50
	}
	if c.MinDocumentChars <= 0 {
		c.MinDocumentChars = 50
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.CleanupDelay == 0 {
		c.CleanupDelay = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PageState is the terminal state of one page.
type PageState string

const (
	StateDirect   PageState = "direct"   // enough embedded text, OCR skipped
	StateOCR      PageState = "ocr"      // recognized text accepted
	StateFallback PageState = "fallback" // render or recognition failed, direct text kept
)

// Methods reported in Result.Method.
const (
	MethodOCR         = "ocr"
	MethodFallback    = "ocr_direct_fallback"
	MethodUnavailable = "ocr_unavailable"
)

// PageResult is the outcome for one page.
type PageResult struct {
	Page       int       `json:"page"`
	State      PageState `json:"state"`
	Text       string    `json:"-"`
	Confidence float64   `json:"confidence,omitempty"`
	Renderer   string    `json:"renderer,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Result is the document-level OCR outcome.
type Result struct {
	Text  string       `json:"-"`
	Pages []PageResult `json:"pages"`

	OCRPages      int `json:"ocr_pages"`
	SkippedPages  int `json:"skipped_pages"`  // had direct text
	FallbackPages int `json:"fallback_pages"` // OCR attempted, direct text kept
	ScannedPages  int `json:"scanned_pages"`  // lacked direct text

	MeanConfidence   float64 `json:"mean_confidence"`
	MedianConfidence float64 `json:"median_confidence"`

	Method   string `json:"method"`
	Success  bool   `json:"success"`
	Degraded bool   `json:"degraded"`
}

// PageTexts returns the per-page texts in page order.
func (r *Result) PageTexts() []string {
	out := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Text
	}
	return out
}

// Processor runs OCR jobs. Safe for concurrent use when its Recognizer is.
type Processor struct {
	cfg       Config
	rec       Recognizer
	renderers []Renderer
	logger    *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending sync.WaitGroup
}

// New creates a Processor. rec may be nil when no recognizer is available;
// Process then returns the direct text with Success=false. Stale job
// directories under cfg.ScratchDir are swept.
func New(cfg Config, rec Recognizer, renderers ...Renderer) (*Processor, error) {
	cfg.defaults()
	p := &Processor{
		cfg:       cfg,
		rec:       rec,
		renderers: renderers,
		logger:    cfg.Logger,
		timers:    make(map[string]*time.Timer),
	}
	if cfg.ScratchDir != "" {
		n, err := SweepStale(cfg.ScratchDir, cfg.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("ocr: sweep scratch: %w", err)
		}
		if n > 0 {
			p.logger.Info("ocr: removed stale scratch dirs", "count", n, "root", cfg.ScratchDir)
		}
	}
	return p, nil
}

// Available reports whether the processor can recognize anything.
func (p *Processor) Available() bool { return p.rec != nil && len(p.renderers) > 0 }

// Process runs the per-page state machine over max(pageCount, len(direct))
// pages. direct holds embedded text per page and may be shorter than the
// page count. The context is checked once per page; on expiry the pages
// done so far are returned with ctx.Err().
func (p *Processor) Process(ctx context.Context, pdfPath string, direct []string, pageCount int) (*Result, error) {
	n := pageCount
	if len(direct) > n {
		n = len(direct)
	}
	directText := func(i int) string {
		if i < len(direct) {
			return direct[i]
		}
		return ""
	}

	res := &Result{Pages: make([]PageResult, 0, n)}

	if !p.Available() {
		for i := 0; i < n; i++ {
			st := StateFallback
			if p.hasDirectText(directText(i)) {
				st = StateDirect
			}
			res.Pages = append(res.Pages, PageResult{Page: i + 1, State: st, Text: directText(i)})
		}
		p.finish(res)
		res.Method = MethodUnavailable
		return res, nil
	}

	job, err := NewScratch(p.cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	defer p.release(job)
	defer p.forget(pdfPath)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			p.finish(res)
			return res, err
		}
		pr := p.processPage(ctx, job, pdfPath, i+1, directText(i))
		if pr.Err != "" {
			p.logger.Debug("ocr: page fell back to direct text", "path", pdfPath, "page", pr.Page, "error", pr.Err)
		}
		res.Pages = append(res.Pages, pr)
	}
	p.finish(res)
	p.logger.Debug("ocr: job done", "path", pdfPath, "ocr_pages", res.OCRPages,
		"skipped", res.SkippedPages, "confidence", res.MeanConfidence, "method", res.Method)
	return res, nil
}

// forget lets renderers that cache parsed documents drop pdfPath.
func (p *Processor) forget(pdfPath string) {
	for _, r := range p.renderers {
		if f, ok := r.(interface{ Forget(string) }); ok {
			f.Forget(pdfPath)
		}
	}
}

func (p *Processor) hasDirectText(s string) bool {
	return len([]rune(strings.TrimSpace(s))) >= p.cfg.MinPageChars
}

func (p *Processor) processPage(ctx context.Context, job *Scratch, pdfPath string, page int, direct string) PageResult {
	pr := PageResult{Page: page, State: StateDirect, Text: direct}
	if p.hasDirectText(direct) {
		return pr
	}
	pr.State = StateFallback

	pctx, cancel := context.WithTimeout(ctx, p.cfg.PageTimeout)
	defer cancel()

	img, renderer, err := p.render(pctx, pdfPath, page, job)
	if err != nil {
		pr.Err = "render: " + err.Error()
		return pr
	}
	pr.Renderer = renderer

	gray := Preprocess(img, PreprocessOptions{Denoise: !p.cfg.SkipDenoise})
	rec, err := p.rec.Recognize(pctx, gray, job)
	if err != nil {
		pr.Err = "recognize: " + err.Error()
		return pr
	}
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		pr.Err = "recognize: empty output"
		return pr
	}
	pr.State = StateOCR
	pr.Text = text
	pr.Confidence = math.Max(0, math.Min(100, rec.Confidence))
	return pr
}

func (p *Processor) render(ctx context.Context, pdfPath string, page int, job *Scratch) (image.Image, string, error) {
	var errs []error
	for _, r := range p.renderers {
		img, err := r.Render(ctx, pdfPath, page, p.cfg.Zoom, job)
		if err == nil {
			return img, r.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}

// finish computes counters, confidence statistics and the document text.
func (p *Processor) finish(res *Result) {
	var confs []float64
	var texts, directs []string
	for _, pr := range res.Pages {
		switch pr.State {
		case StateOCR:
			res.OCRPages++
			confs = append(confs, pr.Confidence)
		case StateDirect:
			res.SkippedPages++
		case StateFallback:
			res.FallbackPages++
		}
		if pr.State != StateDirect {
			res.ScannedPages++
		}
		if t := strings.TrimSpace(pr.Text); t != "" {
			texts = append(texts, t)
		}
		if pr.State != StateOCR {
			if t := strings.TrimSpace(pr.Text); t != "" {
				directs = append(directs, t)
			}
		}
	}
	res.MeanConfidence, res.MedianConfidence = meanMedian(confs)
	res.Text = strings.Join(texts, "\n\n")

	if res.OCRPages > 0 && len([]rune(res.Text)) >= p.cfg.MinDocumentChars {
		res.Success = true
		res.Method = MethodOCR
		return
	}
	// Too little recognized; hand back whatever direct text exists.
	res.Degraded = res.OCRPages > 0 || res.FallbackPages > 0
	res.Method = MethodFallback
	res.Text = strings.Join(directs, "\n\n")
}

func meanMedian(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return round2(mean), round2(median)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// release schedules removal of the job directory after CleanupDelay.
func (p *Processor) release(job *Scratch) {
	if p.cfg.CleanupDelay < 0 {
		p.removeJob(job.Dir())
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Add(1)
	dir := job.Dir()
	p.timers[dir] = time.AfterFunc(p.cfg.CleanupDelay, func() {
		defer p.pending.Done()
		p.mu.Lock()
		delete(p.timers, dir)
		p.mu.Unlock()
		p.removeJob(dir)
	})
}

func (p *Processor) removeJob(dir string) {
	if err := removeAll(dir); err != nil {
		p.logger.Warn("ocr: scratch cleanup failed", "dir", dir, "error", err)
	}
}

// Close removes every job directory still waiting for its grace period and
// waits for in-flight removals.
func (p *Processor) Close() error {
	p.mu.Lock()
	var now []string
	for dir, t := range p.timers {
		if t.Stop() {
			now = append(now, dir)
			p.pending.Done()
		}
		delete(p.timers, dir)
	}
	p.mu.Unlock()
	for _, dir := range now {
		p.removeJob(dir)
	}
	p.pending.Wait()
	return nil
}
