//go:build !ocr

package ocr

import (
	"context"
	"image"
)

// Available reports whether a recognizer was compiled in.
func Available() bool { return false }

// Tesseract is a placeholder when built without the ocr tag.
type Tesseract struct{}

// NewTesseract always fails without the ocr tag.
func NewTesseract(string) (*Tesseract, error) { return nil, ErrOCRNotEnabled }

func (*Tesseract) Recognize(context.Context, image.Image, *Scratch) (Recognition, error) {
	return Recognition{}, ErrOCRNotEnabled
}

func (*Tesseract) Close() error { return nil }
