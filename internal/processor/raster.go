// raster.go - In-memory pixel buffer exchanged between preprocessing steps

package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for undecodable or zero-size input.
var ErrInvalidImage = errors.New("invalid image")

// RasterImage is an owned RGBA pixel grid. Transforms never modify their
// input; each returns a new RasterImage.
type RasterImage struct {
	*image.NRGBA
}

// NewRasterImage copies any image.Image into a fresh NRGBA buffer.
func NewRasterImage(img image.Image) (RasterImage, error) {
	if img == nil {
		return RasterImage{}, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return RasterImage{}, fmt.Errorf("%w: zero-size image %dx%d", ErrInvalidImage, b.Dx(), b.Dy())
	}
	return RasterImage{NRGBA: imaging.Clone(img)}, nil
}

// DecodeRaster decodes PNG, JPEG, GIF or WebP bytes, applying EXIF orientation
// so phone photos of the launch monitor come out upright.
func DecodeRaster(data []byte) (RasterImage, error) {
	if len(data) == 0 {
		return RasterImage{}, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return RasterImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return NewRasterImage(img)
}

// Width returns the image width in pixels.
func (r RasterImage) Width() int {
	if r.NRGBA == nil {
		return 0
	}
	return r.Bounds().Dx()
}

// Height returns the image height in pixels.
func (r RasterImage) Height() int {
	if r.NRGBA == nil {
		return 0
	}
	return r.Bounds().Dy()
}

// Clone returns a deep copy rebased at the origin.
func (r RasterImage) Clone() RasterImage {
	return RasterImage{NRGBA: imaging.Clone(r.NRGBA)}
}

func (r RasterImage) validate() error {
	if r.NRGBA == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidImage)
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return fmt.Errorf("%w: zero-size image %dx%d", ErrInvalidImage, r.Width(), r.Height())
	}
	if len(r.Pix) < r.Stride*(r.Height()-1)+4*r.Width() {
		return fmt.Errorf("%w: truncated pixel buffer", ErrInvalidImage)
	}
	return nil
}

// Format selects the transport encoding handed to recognition engines.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Encode serializes the raster for submission to an engine and returns the
// bytes together with their MIME type.
func Encode(r RasterImage, format Format) ([]byte, string, error) {
	if err := r.validate(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	var err error
	mimeType := "image/png"

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, r.NRGBA, &jpeg.Options{Quality: 95})
		mimeType = "image/jpeg"
	default:
		err = png.Encode(&buf, r.NRGBA)
	}

	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}

	return buf.Bytes(), mimeType, nil
}
