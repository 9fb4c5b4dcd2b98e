// CLAUDE:SUMMARY Page image preprocessing for recognition: grayscale, 3x3 median denoise, Bradley adaptive threshold, white border.
package ocr

import (
	"image"
	"image/color"
	"image/draw"
)

// PreprocessOptions tunes Preprocess. Zero values select defaults.
type PreprocessOptions struct {
	Denoise   bool
	Window    int     // threshold window in pixels (default: width/8)
	Threshold float64 // fraction below the local mean that turns black (default: 0.15)
	Border    int     // white padding in pixels (default: 10)
}

// Preprocess converts img into the binarized grayscale image fed to the
// recognizer.
func Preprocess(img image.Image, o PreprocessOptions) *image.Gray {
	if o.Threshold <= 0 {
		o.Threshold = 0.15
	}
	if o.Border <= 0 {
		o.Border = 10
	}
	gray := toGray(img)
	if o.Denoise {
		gray = median3(gray)
	}
	gray = bradley(gray, o.Window, o.Threshold)
	return pad(gray, o.Border)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		out := image.NewGray(g.Rect)
		copy(out.Pix, g.Pix)
		return out
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// median3 applies a 3x3 median filter; edge pixels use the clamped
// neighborhood.
func median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clamp(x+dx, 0, w-1)
					win[k] = g.Pix[yy*g.Stride+xx]
					k++
				}
			}
			// insertion sort; nine values
			for i := 1; i < len(win); i++ {
				for j := i; j > 0 && win[j-1] > win[j]; j-- {
					win[j-1], win[j] = win[j], win[j-1]
				}
			}
			out.Pix[y*out.Stride+x] = win[4]
		}
	}
	return out
}

// bradley binarizes with the Bradley-Roth local mean threshold computed on
// an integral image.
func bradley(g *image.Gray, window int, t float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return g
	}
	if window <= 0 {
		window = w / 8
	}
	if window < 3 {
		window = 3
	}
	half := window / 2

	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row uint64
		for x := 0; x < w; x++ {
			row += uint64(g.Pix[y*g.Stride+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h-1), clamp(y+half, 0, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w-1), clamp(x+half, 0, w-1)
			count := uint64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			v := uint64(g.Pix[y*g.Stride+x])
			if float64(v*count) <= float64(sum)*(1-t) {
				out.Pix[y*out.Stride+x] = 0
			} else {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

func pad(g *image.Gray, border int) *image.Gray {
	b := g.Rect
	out := image.NewGray(image.Rect(0, 0, b.Dx()+2*border, b.Dy()+2*border))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.Gray{Y: 255}}, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(border, border, border+b.Dx(), border+b.Dy()), g, b.Min, draw.Src)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
