//go:build ocr

// CLAUDE:SUMMARY Tesseract recognizer via gosseract; compiled only with the ocr build tag.
package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/otiai10/gosseract/v2"
)

// Available reports whether a recognizer was compiled in.
func Available() bool { return true }

// Tesseract wraps one gosseract client. The client is not safe for
// concurrent use, so calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a recognizer for lang ("eng", "eng+fra", ...).
// Close it when done.
func NewTesseract(lang string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if lang != "" {
		if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("ocr: set language: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: set page seg mode: %w", err)
	}
	return &Tesseract{client: client}, nil
}

// Recognize writes img as PNG into the job directory, runs recognition on it and
// removes it. The engine itself is given a file path and nothing else, so
// it never needs a temp directory of its own.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, job *Scratch) (Recognition, error) {
	path := job.File("rec_" + uuid.NewString() + ".png")
	if err := writePNG(path, img); err != nil {
		return Recognition{}, err
	}

	type outcome struct {
		rec Recognition
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer job.Remove(path)
		rec, err := t.run(path)
		done <- outcome{rec, err}
	}()

	select {
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	case o := <-done:
		return o.rec, o.err
	}
}

func (t *Tesseract) run(path string) (Recognition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImage(path); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract: %w", err)
	}
	rec := Recognition{Text: strings.TrimSpace(text)}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return rec, nil
	}
	sum := 0.0
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		sum += b.Confidence
		rec.Words++
	}
	if rec.Words > 0 {
		rec.Confidence = sum / float64(rec.Words)
	}
	return rec, nil
}

// Close releases the client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode page image: %w", err)
	}
	return f.Close()
}
