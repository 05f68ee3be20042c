// transforms.go - Pixel-level transforms used to prepare launch-monitor photos for OCR

package processor

import (
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ITU-R BT.601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114

	contrastMidpoint = 128.0

	// A pixel darker than this fraction of its neighbourhood mean is ink.
	adaptiveThresholdRatio = 0.9
)

// edgeKernel is a Laplacian-style kernel: centre +8, neighbours -1.
var edgeKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// ResizeUpscale enlarges the image by factor to thicken character strokes.
// Output dimensions are round-half-up(input * factor).
func ResizeUpscale(img RasterImage, factor float64) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	if factor <= 1 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return RasterImage{}, fmt.Errorf("upscale factor must be > 1, got %v", factor)
	}
	w := roundHalfUp(float64(img.Width()) * factor)
	h := roundHalfUp(float64(img.Height()) * factor)
	return RasterImage{NRGBA: imaging.Resize(img.NRGBA, w, h, imaging.Lanczos)}, nil
}

// GrayscaleAndContrast converts to BT.601 luma and stretches values away from
// the 128 midpoint by boost, clamping to [0,255].
func GrayscaleAndContrast(img RasterImage, boost float64) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	gray := imaging.Grayscale(img.NRGBA)
	out := imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := clampByte((float64(c.R)-contrastMidpoint)*boost + contrastMidpoint)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
	return RasterImage{NRGBA: out}, nil
}

// GaussianBlur smooths the image; radius is the gaussian sigma in pixels.
// A non-positive radius returns an unmodified copy.
func GaussianBlur(img RasterImage, radius float64) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	if radius <= 0 {
		return img.Clone(), nil
	}
	return RasterImage{NRGBA: imaging.Blur(img.NRGBA, radius)}, nil
}

// EdgeEnhance convolves every colour channel with edgeKernel.
func EdgeEnhance(img RasterImage) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	return RasterImage{NRGBA: imaging.Convolve3x3(img.NRGBA, edgeKernel, nil)}, nil
}

// AdaptiveThreshold binarizes against the mean luma of a (2r+1)x(2r+1)
// window around each pixel, clipped at the borders. The input is expected to
// be grayscale already; colour input is reduced to luma first.
func AdaptiveThreshold(img RasterImage, windowRadius int) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	if windowRadius < 1 {
		return RasterImage{}, fmt.Errorf("threshold window radius must be >= 1, got %d", windowRadius)
	}

	w, h := img.Width(), img.Height()
	luma := lumaPlane(img)

	// Summed-area table with a zero row/column so window sums need no branches.
	integral := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum float64
		for x := 0; x < w; x++ {
			rowSum += luma[y*w+x]
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	out := imaging.New(w, h, color.NRGBA{A: 255})
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-windowRadius), minInt(h-1, y+windowRadius)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-windowRadius), minInt(w-1, x+windowRadius)
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / float64((x1-x0+1)*(y1-y0+1))

			var v uint8 = 255
			if luma[y*w+x] < mean*adaptiveThresholdRatio {
				v = 0
			}
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = v, v, v
			out.Pix[i+3] = img.Pix[y*img.Stride+x*4+3]
		}
	}
	return RasterImage{NRGBA: out}, nil
}

// MorphologicalOpen erodes (3x3 minimum) then dilates (3x3 maximum) to drop
// isolated specks left by thresholding.
func MorphologicalOpen(img RasterImage) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	eroded := rankFilter3x3(img, func(a, b uint8) bool { return a < b })
	return rankFilter3x3(eroded, func(a, b uint8) bool { return a > b }), nil
}

// rankFilter3x3 replaces each colour channel with the neighbourhood extreme
// chosen by better. Alpha is carried over unchanged.
func rankFilter3x3(img RasterImage, better func(a, b uint8) bool) RasterImage {
	w, h := img.Width(), img.Height()
	out := imaging.New(w, h, color.NRGBA{})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := y*img.Stride + x*4
			best := [3]uint8{img.Pix[src], img.Pix[src+1], img.Pix[src+2]}
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					n := ny*img.Stride + nx*4
					for c := 0; c < 3; c++ {
						if better(img.Pix[n+c], best[c]) {
							best[c] = img.Pix[n+c]
						}
					}
				}
			}
			dst := y*out.Stride + x*4
			out.Pix[dst], out.Pix[dst+1], out.Pix[dst+2] = best[0], best[1], best[2]
			out.Pix[dst+3] = img.Pix[src+3]
		}
	}
	return RasterImage{NRGBA: out}
}

func lumaPlane(img RasterImage) []float64 {
	w, h := img.Width(), img.Height()
	plane := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			plane[y*w+x] = lumaR*float64(p[0]) + lumaG*float64(p[1]) + lumaB*float64(p[2])
		}
	}
	return plane
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
