package onnx

import (
	"context"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/bosocmputer/swing_ocr/internal/segment"
)

func TestMinMaxNormalize(t *testing.T) {
	v := []float32{2, 4, 6}
	minMaxNormalize(v)
	if v[0] != 0 || v[1] != 0.5 || v[2] != 1 {
		t.Fatalf("normalized = %v", v)
	}
	flat := []float32{3, 3}
	minMaxNormalize(flat)
	if flat[0] != 3 {
		t.Fatalf("flat input should be left alone, got %v", flat)
	}
}

func TestSegmentWithModel(t *testing.T) {
	path := os.Getenv("SEGMENTATION_TEST_MODEL")
	if path == "" {
		t.Skip("SEGMENTATION_TEST_MODEL not set")
	}
	cfg := segment.DefaultConfig()
	cfg.ModelPath = path
	seg, err := Load(context.Background(), cfg, DefaultOptions())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer seg.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 120, 80))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 240, 240, 240, 255
	}
	for y := 30; y < 50; y++ {
		for x := 40; x < 80; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}

	m, err := seg.Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if m.Width != 120 || m.Height != 80 || len(m.Values) != 120*80 {
		t.Fatalf("mask %dx%d with %d values", m.Width, m.Height, len(m.Values))
	}
}

func TestLoadWithoutModel(t *testing.T) {
	cfg := segment.DefaultConfig()
	cfg.ModelPath = t.TempDir() + "/missing.onnx"
	if _, err := Load(context.Background(), cfg, DefaultOptions()); err == nil {
		t.Fatalf("expected error for missing model with downloads disabled")
	}
}
