// isolator.go - Best-effort background removal ahead of OCR

package segment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/processor"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxDimension  = 1024
	DefaultMaskThreshold = 0.3
	DefaultCacheTTL      = 30 * time.Minute
)

// Config is passed explicitly to NewIsolator and the model loader; nothing
// here is read from process globals.
type Config struct {
	AllowRemoteModelDownload bool
	CacheInferenceResults    bool
	ModelPath                string
	ModelURL                 string
	MaxDimension             int
	MaskThreshold            float32
	CacheTTL                 time.Duration
}

// DefaultConfig returns the 1024px / 0.3 settings with downloads and caching off.
func DefaultConfig() Config {
	return Config{
		MaxDimension:  DefaultMaxDimension,
		MaskThreshold: DefaultMaskThreshold,
		CacheTTL:      DefaultCacheTTL,
	}
}

// Mask holds per-pixel foreground probabilities in row-major order.
type Mask struct {
	Width  int
	Height int
	Values []float32
}

// Segmenter produces a foreground mask the same size as img.
type Segmenter interface {
	Segment(ctx context.Context, img *image.NRGBA) (Mask, error)
}

// MaskCache stores masks by content hash.
type MaskCache interface {
	Get(ctx context.Context, key string) (Mask, bool)
	Set(ctx context.Context, key string, m Mask, ttl time.Duration)
}

// Stats counts isolator outcomes since construction.
type Stats struct {
	Attempts  int64 `json:"attempts"`
	Applied   int64 `json:"applied"`
	Fallbacks int64 `json:"fallbacks"`
	CacheHits int64 `json:"cache_hits"`
}

// Isolator whitens background pixels. It never returns an error.
type Isolator struct {
	cfg       Config
	segmenter Segmenter
	cache     MaskCache

	attempts  atomic.Int64
	applied   atomic.Int64
	fallbacks atomic.Int64
	cacheHits atomic.Int64
}

// NewIsolator builds an isolator. A nil segmenter makes Isolate an identity;
// cache is only consulted when cfg.CacheInferenceResults is set. A negative
// MaskThreshold selects the default; zero whitens nothing.
func NewIsolator(cfg Config, segmenter Segmenter, cache MaskCache) *Isolator {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.MaskThreshold < 0 {
		cfg.MaskThreshold = DefaultMaskThreshold
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if !cfg.CacheInferenceResults {
		cache = nil
	}
	return &Isolator{cfg: cfg, segmenter: segmenter, cache: cache}
}

// Stats returns a snapshot of the counters.
func (i *Isolator) Stats() Stats {
	return Stats{
		Attempts:  i.attempts.Load(),
		Applied:   i.applied.Load(),
		Fallbacks: i.fallbacks.Load(),
		CacheHits: i.cacheHits.Load(),
	}
}

var errNoSegmenter = errors.New("no segmentation model loaded")

// Isolate downsizes img to MaxDimension, segments it and paints every pixel
// whose mask value is below MaskThreshold opaque white. On any failure the
// input is returned untouched with applied=false.
func (i *Isolator) Isolate(ctx context.Context, img processor.RasterImage) (out processor.RasterImage, applied bool) {
	i.attempts.Add(1)
	log := common.EntryFrom(ctx)

	defer func() {
		if p := recover(); p != nil {
			i.fallback(log, fmt.Errorf("segmentation panic: %v", p))
			out, applied = img, false
		}
	}()

	result, err := i.isolate(ctx, img, log)
	if err != nil {
		i.fallback(log, err)
		return img, false
	}
	i.applied.Add(1)
	return result, true
}

func (i *Isolator) isolate(ctx context.Context, img processor.RasterImage, log *logrus.Entry) (processor.RasterImage, error) {
	if i.segmenter == nil {
		return processor.RasterImage{}, errNoSegmenter
	}
	fitted, err := processor.FitWithin(img, i.cfg.MaxDimension)
	if err != nil {
		return processor.RasterImage{}, err
	}

	mask, err := i.mask(ctx, fitted, log)
	if err != nil {
		return processor.RasterImage{}, err
	}
	if err := ApplyMask(fitted, mask, i.cfg.MaskThreshold); err != nil {
		return processor.RasterImage{}, err
	}
	return fitted, nil
}

func (i *Isolator) mask(ctx context.Context, fitted processor.RasterImage, log *logrus.Entry) (Mask, error) {
	var key string
	if i.cache != nil {
		key = cacheKey(fitted)
		if m, ok := i.cache.Get(ctx, key); ok {
			i.cacheHits.Add(1)
			log.WithField("key", key[:12]).Debug("segmentation mask cache hit")
			return m, nil
		}
	}

	start := time.Now()
	m, err := i.segmenter.Segment(ctx, fitted.NRGBA)
	if err != nil {
		return Mask{}, fmt.Errorf("segment: %w", err)
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("segmentation finished")

	if i.cache != nil {
		i.cache.Set(ctx, key, m, i.cfg.CacheTTL)
	}
	return m, nil
}

func (i *Isolator) fallback(log *logrus.Entry, err error) {
	n := i.fallbacks.Add(1)
	log.WithError(err).WithField("fallbacks_total", n).Warn("background isolation skipped, using original image")
}

// ApplyMask whitens pixels of img in place where the mask is below threshold.
func ApplyMask(img processor.RasterImage, m Mask, threshold float32) error {
	w, h := img.Width(), img.Height()
	if m.Width != w || m.Height != h || len(m.Values) != w*h {
		return fmt.Errorf("mask %dx%d (%d values) does not match image %dx%d", m.Width, m.Height, len(m.Values), w, h)
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			if m.Values[y*w+x] < threshold {
				p := row[x*4 : x*4+4]
				p[0], p[1], p[2], p[3] = 255, 255, 255, 255
			}
		}
	}
	return nil
}

func cacheKey(img processor.RasterImage) string {
	h := sha256.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(img.Width()))
	binary.LittleEndian.PutUint32(dims[4:], uint32(img.Height()))
	h.Write(dims[:])
	for y := 0; y < img.Height(); y++ {
		h.Write(img.Pix[y*img.Stride : y*img.Stride+img.Width()*4])
	}
	return hex.EncodeToString(h.Sum(nil))
}
