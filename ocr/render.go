// CLAUDE:SUMMARY Page renderers: poppler pdftoppm at zoom*72 dpi, and pdfcpu embedded page images scaled with x/image/draw.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// PdftoppmRenderer shells out to poppler's pdftoppm.
type PdftoppmRenderer struct {
	Binary string // default: "pdftoppm"
}

// NewPdftoppmRenderer returns a renderer, or an error when pdftoppm is not on PATH.
func NewPdftoppmRenderer() (*PdftoppmRenderer, error) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("ocr: pdftoppm: %w", err)
	}
	return &PdftoppmRenderer{Binary: bin}, nil
}

func (r *PdftoppmRenderer) Name() string { return "pdftoppm" }

func (r *PdftoppmRenderer) Render(ctx context.Context, pdfPath string, page int, zoom float64, job *Scratch) (image.Image, error) {
	bin := r.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	prefix := job.File("page_" + strconv.Itoa(page))
	dpi := strconv.Itoa(int(72 * zoom))
	n := strconv.Itoa(page)

	cmd := exec.CommandContext(ctx, bin, "-png", "-r", dpi, "-f", n, "-l", n, "-singlefile", pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, out)
	}

	out := prefix + ".png"
	defer job.Remove(out)
	f, err := os.Open(out)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}

// EmbeddedImageRenderer uses the largest image XObject on a page as the
// page raster. Typical scanners produce exactly one full-page image.
// Parsed documents are cached per path so concurrent jobs do not evict each
// other; Forget drops a path once its job is done.
type EmbeddedImageRenderer struct {
	mu   sync.Mutex
	docs map[string]*parsedPDF
}

// parsedPDF serializes access to one pdfcpu context, which is not safe for
// concurrent use.
type parsedPDF struct {
	mu  sync.Mutex
	ctx *model.Context
	err error
}

// NewEmbeddedImageRenderer returns a pure-Go renderer.
func NewEmbeddedImageRenderer() *EmbeddedImageRenderer {
	return &EmbeddedImageRenderer{docs: map[string]*parsedPDF{}}
}

func (r *EmbeddedImageRenderer) Name() string { return "embedded" }

func (r *EmbeddedImageRenderer) Render(ctx context.Context, pdfPath string, page int, zoom float64, _ *Scratch) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("pdfcpu panic: %v", rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images, err := r.doc(pdfPath).pageImages(pdfPath, page)
	if err != nil {
		return nil, err
	}

	var best image.Image
	for _, pi := range images {
		if pi.Reader == nil {
			continue
		}
		decoded, _, err := image.Decode(pi.Reader)
		if err != nil {
			continue
		}
		if best == nil || area(decoded) > area(best) {
			best = decoded
		}
	}
	if best == nil {
		return nil, errors.New("no decodable page image")
	}
	return scale(best, zoom), nil
}

func (r *EmbeddedImageRenderer) doc(pdfPath string) *parsedPDF {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = map[string]*parsedPDF{}
	}
	d, ok := r.docs[pdfPath]
	if !ok {
		d = &parsedPDF{}
		r.docs[pdfPath] = d
	}
	return d
}

func (d *parsedPDF) pageImages(pdfPath string, page int) (map[int]model.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil && d.err == nil {
		d.ctx, d.err = readPDF(pdfPath)
	}
	if d.err != nil {
		return nil, d.err
	}
	images, err := pdfcpu.ExtractPageImages(d.ctx, page, false)
	if err != nil {
		return nil, fmt.Errorf("extract page %d images: %w", page, err)
	}
	return images, nil
}

// Forget releases the parsed document cached for pdfPath.
func (r *EmbeddedImageRenderer) Forget(pdfPath string) {
	r.mu.Lock()
	delete(r.docs, pdfPath)
	r.mu.Unlock()
}

// cached reports how many parsed documents are held.
func (r *EmbeddedImageRenderer) cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func readPDF(pdfPath string) (*model.Context, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pctx, nil
}

func area(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

// scale resizes img by zoom with Catmull-Rom resampling. Images already
// wider than 3000px are left alone.
func scale(img image.Image, zoom float64) image.Image {
	b := img.Bounds()
	if zoom == 1 || b.Dx() == 0 || b.Dx() >= 3000 {
		return img
	}
	w, h := int(float64(b.Dx())*zoom), int(float64(b.Dy())*zoom)
	if w < 1 || h < 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
