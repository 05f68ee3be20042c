package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/processor"
)

type fakeEngine struct {
	id        EngineID
	available bool
	fn        func(ctx context.Context, img EncodedImage) (Recognition, error)

	calls     atomic.Int32
	mu        sync.Mutex
	pipelines []string
}

func newFake(id EngineID, fn func(context.Context, EncodedImage) (Recognition, error)) *fakeEngine {
	return &fakeEngine{id: id, available: true, fn: fn}
}

func (f *fakeEngine) ID() EngineID    { return f.id }
func (f *fakeEngine) Available() bool { return f.available }

func (f *fakeEngine) Recognize(ctx context.Context, img EncodedImage) (Recognition, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.pipelines = append(f.pipelines, img.Pipeline)
	f.mu.Unlock()
	return f.fn(ctx, img)
}

type structuredFake struct {
	*fakeEngine
}

func (s structuredFake) RecognizeStructured(ctx context.Context, img EncodedImage) (Recognition, error) {
	s.calls.Add(1)
	return Recognition{Text: `[{"title":"Club Speed","value":"95.2","descriptor":"mph"}]`}, nil
}

func text(s string) func(context.Context, EncodedImage) (Recognition, error) {
	return func(context.Context, EncodedImage) (Recognition, error) { return Recognition{Text: s}, nil }
}

func failing(context.Context, EncodedImage) (Recognition, error) {
	return Recognition{}, errors.New("backend exploded")
}

type countingIsolator struct {
	calls atomic.Int32
}

func (c *countingIsolator) Isolate(_ context.Context, img processor.RasterImage) (processor.RasterImage, bool) {
	c.calls.Add(1)
	return img, true
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(200)
			if x > 10 && x < 14 {
				v = 30
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestRunFullCrossProduct(t *testing.T) {
	a := newFake(EngineLocalOCR, text("CLUB SPEED 95.2"))
	b := newFake(EngineCloudVision, text("95.2"))
	r := NewRunner(RunnerConfig{Engines: []Engine{a, b}})

	res, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	variants := 1 + len(processor.AdvancedPipelines())
	if len(res.Ranked) != variants*2 {
		t.Fatalf("results = %d, want %d", len(res.Ranked), variants*2)
	}
	seen := map[string]int{}
	for _, r := range res.Ranked {
		seen[string(r.Engine)+"/"+r.Pipeline]++
	}
	for key, n := range seen {
		if n != 1 {
			t.Fatalf("%s attempted %d times", key, n)
		}
	}
	if int(a.calls.Load()) != variants || int(b.calls.Load()) != variants {
		t.Fatalf("calls a=%d b=%d, want %d each", a.calls.Load(), b.calls.Load(), variants)
	}
	if res.Best.Engine != EngineLocalOCR {
		t.Fatalf("winner = %s, want %s", res.Best.Engine, EngineLocalOCR)
	}
	if len(res.Variants) != variants {
		t.Fatalf("variant reports = %d", len(res.Variants))
	}
}

func TestRunBaselineOnlyWithoutAdvanced(t *testing.T) {
	a := newFake(EngineLocalOCR, text("x"))
	iso := &countingIsolator{}
	r := NewRunner(RunnerConfig{Engines: []Engine{a}, Isolator: iso})

	opts := DefaultOptions()
	opts.EnableAdvancedPreprocessing = false
	res, err := r.Run(context.Background(), testPNG(t), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Ranked) != 1 || res.Best.Pipeline != processor.PipelineBaseline {
		t.Fatalf("results = %+v", res.Ranked)
	}
	if iso.calls.Load() != 0 {
		t.Fatalf("isolator ran with advanced preprocessing off")
	}
	if res.BackgroundIsolated {
		t.Fatalf("BackgroundIsolated should be false")
	}
}

func TestRunIsolatesOnceWhenAdvanced(t *testing.T) {
	iso := &countingIsolator{}
	r := NewRunner(RunnerConfig{Engines: []Engine{newFake(EngineLocalOCR, text("x"))}, Isolator: iso})
	res, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if iso.calls.Load() != 1 {
		t.Fatalf("isolator calls = %d, want 1", iso.calls.Load())
	}
	if !res.BackgroundIsolated {
		t.Fatalf("BackgroundIsolated not reported")
	}
}

func TestRunFailingEngineDoesNotAbortSiblings(t *testing.T) {
	bad := newFake(EngineCloudVision, failing)
	good := newFake(EngineLocalOCR, text("SMASH 1.48"))
	r := NewRunner(RunnerConfig{Engines: []Engine{bad, good}})

	res, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Best.Engine != EngineLocalOCR || res.Text() != "SMASH 1.48" {
		t.Fatalf("winner = %+v", res.Best)
	}
	if len(res.Failures) != int(bad.calls.Load()) {
		t.Fatalf("failures = %d, want %d", len(res.Failures), bad.calls.Load())
	}
	for _, f := range res.Failures {
		if f.Engine != EngineCloudVision || f.TimedOut {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
}

func TestRunSkipsUnavailableEngine(t *testing.T) {
	alt := newFake(EngineCloudOCRAlt, text("never"))
	alt.available = false
	r := NewRunner(RunnerConfig{Engines: []Engine{newFake(EngineLocalOCR, text("ok")), alt}})

	res, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if alt.calls.Load() != 0 {
		t.Fatalf("unavailable engine was invoked %d times", alt.calls.Load())
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Engine != EngineCloudOCRAlt {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
}

func TestRunRespectsEnabledEngines(t *testing.T) {
	a := newFake(EngineLocalOCR, text("a"))
	b := newFake(EngineCloudVision, text("bb"))
	r := NewRunner(RunnerConfig{Engines: []Engine{a, b}})

	opts := DefaultOptions()
	opts.EnabledEngines = []EngineID{EngineLocalOCR}
	if _, err := r.Run(context.Background(), testPNG(t), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if b.calls.Load() != 0 {
		t.Fatalf("disabled engine invoked")
	}
}

func TestRunAllEnginesFailed(t *testing.T) {
	r := NewRunner(RunnerConfig{Engines: []Engine{newFake(EngineLocalOCR, failing), newFake(EngineCloudVision, failing)}})

	_, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	var all *AllEnginesFailedError
	if !errors.As(err, &all) {
		t.Fatalf("error = %v, want AllEnginesFailedError", err)
	}
	want := 2 * (1 + len(processor.AdvancedPipelines()))
	if len(all.Failures) != want {
		t.Fatalf("failures = %d, want %d", len(all.Failures), want)
	}
	if CodeOf(err) != ErrorAllEnginesFailed || UserMessage(err) != UserFacingMessage {
		t.Fatalf("code=%s message=%q", CodeOf(err), UserMessage(err))
	}
}

func TestRunNoAvailableEngines(t *testing.T) {
	alt := newFake(EngineCloudOCRAlt, text("x"))
	alt.available = false
	r := NewRunner(RunnerConfig{Engines: []Engine{alt}})

	_, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	var all *AllEnginesFailedError
	if !errors.As(err, &all) {
		t.Fatalf("error = %v, want AllEnginesFailedError", err)
	}
	if len(all.Skipped) != 1 {
		t.Fatalf("skipped = %+v", all.Skipped)
	}
}

func TestRunEmptyTextIsAResult(t *testing.T) {
	r := NewRunner(RunnerConfig{Engines: []Engine{newFake(EngineLocalOCR, text(""))}})
	res, err := r.Run(context.Background(), testPNG(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Text() != "" || res.Best.Engine != EngineLocalOCR {
		t.Fatalf("winner = %+v", res.Best)
	}
}

func TestRunInvalidImage(t *testing.T) {
	a := newFake(EngineLocalOCR, text("x"))
	r := NewRunner(RunnerConfig{Engines: []Engine{a}})
	_, err := r.Run(context.Background(), []byte("definitely not a png"), DefaultOptions())
	var inv *InvalidImageError
	if !errors.As(err, &inv) {
		t.Fatalf("error = %v, want InvalidImageError", err)
	}
	if !errors.Is(err, processor.ErrInvalidImage) {
		t.Fatalf("InvalidImageError should wrap processor.ErrInvalidImage")
	}
	if a.calls.Load() != 0 {
		t.Fatalf("engine invoked for undecodable input")
	}
}

func TestRunTimesOutHungEngine(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	hung := newFake(EngineCloudVision, func(context.Context, EncodedImage) (Recognition, error) {
		<-release
		return Recognition{Text: "too late"}, nil
	})
	fast := newFake(EngineLocalOCR, text("LAUNCH 12.4"))
	r := NewRunner(RunnerConfig{Engines: []Engine{hung, fast}, EngineTimeout: 50 * time.Millisecond})

	start := time.Now()
	opts := DefaultOptions()
	opts.EnableAdvancedPreprocessing = false
	res, err := r.Run(context.Background(), testPNG(t), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("hung engine stalled the batch")
	}
	if res.Best.Engine != EngineLocalOCR {
		t.Fatalf("winner = %s", res.Best.Engine)
	}
	if len(res.Failures) != 1 || !res.Failures[0].TimedOut {
		t.Fatalf("failures = %+v", res.Failures)
	}
}

func TestRunContainsEnginePanic(t *testing.T) {
	boom := newFake(EngineCloudVision, func(context.Context, EncodedImage) (Recognition, error) {
		panic("nil map")
	})
	r := NewRunner(RunnerConfig{Engines: []Engine{boom, newFake(EngineLocalOCR, text("ok"))}})
	opts := DefaultOptions()
	opts.EnableAdvancedPreprocessing = false
	res, err := r.Run(context.Background(), testPNG(t), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Best.Engine != EngineLocalOCR || len(res.Failures) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestRunPreferredEngine(t *testing.T) {
	a := newFake(EngineLocalOCR, text("a much longer transcription"))
	b := newFake(EngineCloudVision, text("short"))
	r := NewRunner(RunnerConfig{Engines: []Engine{a, b}})

	opts := DefaultOptions()
	opts.PreferredEngine = EngineCloudVision
	res, err := r.Run(context.Background(), testPNG(t), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Best.Engine != EngineCloudVision {
		t.Fatalf("winner = %s, want preferred %s", res.Best.Engine, EngineCloudVision)
	}
}

func TestRunStructuredModeUsesStructuredEngines(t *testing.T) {
	plain := newFake(EngineLocalOCR, text("plain"))
	vision := structuredFake{newFake(EngineCloudVision, text("unused"))}
	r := NewRunner(RunnerConfig{Engines: []Engine{plain, vision}, MaxConcurrency: 2})

	opts := DefaultOptions()
	opts.Mode = ModeStructured
	opts.EnableAdvancedPreprocessing = false
	res, err := r.Run(context.Background(), testPNG(t), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if plain.calls.Load() != 0 {
		t.Fatalf("text-only engine invoked in structured mode")
	}
	if res.Best.Engine != EngineCloudVision || res.Best.Text[0] != '[' {
		t.Fatalf("winner = %+v", res.Best)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Engine != EngineLocalOCR {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	r := NewRunner(RunnerConfig{Engines: []Engine{newFake(EngineLocalOCR, text("x"))}})
	opts := DefaultOptions()
	opts.Mode = "poetry"
	if _, err := r.Run(context.Background(), testPNG(t), opts); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
