// Package onnx runs a salient-object segmentation model through OpenCV's DNN
// module and implements segment.Segmenter.
package onnx

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/bosocmputer/swing_ocr/internal/segment"
	"gocv.io/x/gocv"
)

// Options describe the model's input contract. Defaults fit U²-Net style
// models: 320x320 RGB, ImageNet mean, one sigmoid output channel.
type Options struct {
	InputSize  int
	Scale      float64
	Mean       gocv.Scalar
	SwapRB     bool
	OutputName string
	// Normalize min-max stretches the raw output to [0,1].
	Normalize bool
}

func DefaultOptions() Options {
	return Options{
		InputSize: 320,
		Scale:     1.0 / 255.0,
		Mean:      gocv.NewScalar(123.675, 116.28, 103.53, 0),
		SwapRB:    true,
		Normalize: true,
	}
}

// Segmenter wraps a loaded network. gocv.Net is not safe for concurrent use,
// so inference is serialized.
type Segmenter struct {
	mu   sync.Mutex
	net  gocv.Net
	opts Options
}

// Load resolves the model file through segment.EnsureModel and reads it.
func Load(ctx context.Context, cfg segment.Config, opts Options) (*Segmenter, error) {
	path, err := segment.EnsureModel(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("%w: could not read ONNX model %s", segment.ErrModelUnavailable, path)
	}
	if opts.InputSize <= 0 {
		opts = DefaultOptions()
	}
	return &Segmenter{net: net, opts: opts}, nil
}

// Close releases the network.
func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

// Segment returns a foreground probability mask resized to img's bounds.
func (s *Segmenter) Segment(ctx context.Context, img *image.NRGBA) (segment.Mask, error) {
	if err := ctx.Err(); err != nil {
		return segment.Mask{}, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return segment.Mask{}, fmt.Errorf("wrap image: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)

	size := image.Pt(s.opts.InputSize, s.opts.InputSize)
	blob := gocv.BlobFromImage(bgr, s.opts.Scale, size, s.opts.Mean, s.opts.SwapRB, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	out := s.net.Forward(s.opts.OutputName)
	s.mu.Unlock()
	defer out.Close()

	plane, ph, pw, err := foregroundPlane(out)
	if err != nil {
		return segment.Mask{}, err
	}
	if s.opts.Normalize {
		minMaxNormalize(plane)
	}

	small := gocv.NewMatWithSize(ph, pw, gocv.MatTypeCV32F)
	defer small.Close()
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			small.SetFloatAt(y, x, plane[y*pw+x])
		}
	}

	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(small, &full, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	values, err := full.DataPtrFloat32()
	if err != nil {
		return segment.Mask{}, fmt.Errorf("read mask: %w", err)
	}
	if len(values) != w*h {
		return segment.Mask{}, fmt.Errorf("resized mask has %d values, want %d", len(values), w*h)
	}
	return segment.Mask{Width: w, Height: h, Values: append([]float32(nil), values...)}, nil
}

// foregroundPlane extracts the last channel of an NCHW (or NHW) output.
func foregroundPlane(out gocv.Mat) ([]float32, int, int, error) {
	dims := out.Size()
	var c, h, w int
	switch len(dims) {
	case 4:
		c, h, w = dims[1], dims[2], dims[3]
	case 3:
		c, h, w = 1, dims[1], dims[2]
	default:
		return nil, 0, 0, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read model output: %w", err)
	}
	if len(data) < c*h*w {
		return nil, 0, 0, fmt.Errorf("model output has %d values, want %d", len(data), c*h*w)
	}
	offset := (c - 1) * h * w
	return append([]float32(nil), data[offset:offset+h*w]...), h, w, nil
}

func minMaxNormalize(v []float32) {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, x := range v {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if hi-lo <= 0 {
		return
	}
	for i := range v {
		v[i] = (v[i] - lo) / (hi - lo)
	}
}
