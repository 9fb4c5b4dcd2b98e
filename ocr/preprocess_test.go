package ocr

import (
	"image"
	"image/color"
	"testing"
)

func TestPreprocess_BinarizesAndPads(t *testing.T) {
	src := testPage(40, 20)
	out := Preprocess(src, PreprocessOptions{Denoise: true})

	if out.Bounds().Dx() != 60 || out.Bounds().Dy() != 40 {
		t.Fatalf("size = %v, want 60x40", out.Bounds())
	}
	for _, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("non-binary pixel %d", v)
		}
	}
	if out.GrayAt(0, 0).Y != 255 || out.GrayAt(59, 39).Y != 255 {
		t.Error("border must be white")
	}
	// Left edge of the dark block (x=10) sits next to the light background.
	if out.GrayAt(10+10, 10+10).Y != 0 {
		t.Error("dark block edge should binarize to black")
	}
	if out.GrayAt(10+2, 10+2).Y != 255 {
		t.Error("background should binarize to white")
	}
}

func TestMedian3_RemovesSpeck(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 5, 5))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	g.SetGray(2, 2, color.Gray{Y: 0})
	out := median3(g)
	if out.GrayAt(2, 2).Y != 255 {
		t.Error("isolated speck should be removed")
	}
}

func TestToGray_RGBA(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(5, 5, 15, 10))
	g := toGray(rgba)
	if g.Rect.Min != (image.Point{}) || g.Rect.Dx() != 10 || g.Rect.Dy() != 5 {
		t.Fatalf("rect = %v", g.Rect)
	}
}
