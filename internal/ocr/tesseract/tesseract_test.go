package tesseract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderPNG(t *testing.T, text string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if text != "" {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.Black,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(60, 150),
		}
		d.DrawString(text)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRunnerReadsRenderedMetric(t *testing.T) {
	ensureTesseractAvailable(t)

	eng := New([]string{"eng"})
	if !eng.Available() {
		t.Skip("tesseract language data not installed")
	}
	r := ocr.NewRunner(ocr.RunnerConfig{Engines: []ocr.Engine{eng}})

	res, err := r.Run(context.Background(), renderPNG(t, "CLUB SPEED 95.2 mph"), ocr.DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := strings.Join(strings.Fields(res.Text()), " ")
	if !strings.Contains(got, "95.2") {
		t.Fatalf("winning text %q does not contain 95.2", got)
	}
}

func TestRunnerBlankImage(t *testing.T) {
	ensureTesseractAvailable(t)

	eng := New([]string{"eng"})
	r := ocr.NewRunner(ocr.RunnerConfig{Engines: []ocr.Engine{eng}})

	res, err := r.Run(context.Background(), renderPNG(t, ""), ocr.DefaultOptions())
	if err != nil {
		var all *ocr.AllEnginesFailedError
		if !errors.As(err, &all) {
			t.Fatalf("Run() error = %v, want nil or AllEnginesFailedError", err)
		}
		return
	}
	if strings.TrimSpace(res.Text()) != "" {
		t.Logf("blank image produced %q", res.Text())
	}
}

func TestRecognizeHonoursCancelledContext(t *testing.T) {
	ensureTesseractAvailable(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Recognize(ctx, ocr.EncodedImage{Data: renderPNG(t, "x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Recognize() error = %v, want context.Canceled", err)
	}
}
