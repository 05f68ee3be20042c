// Package tesseract is the local-ocr engine backed by libtesseract via gosseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Config is one way of asking tesseract to read the image.
type Config struct {
	Name        string
	PageSegMode gosseract.PageSegMode
	Whitelist   string
}

// DefaultConfigs reads the screen as one block, then as sparse metric tokens.
func DefaultConfigs() []Config {
	return []Config{
		{Name: "single-block", PageSegMode: gosseract.PSM_SINGLE_BLOCK},
		{Name: "sparse", PageSegMode: gosseract.PSM_SPARSE_TEXT},
	}
}

// Engine implements ocr.Engine. Each recognition uses its own client since a
// gosseract.Client is not safe for concurrent use.
type Engine struct {
	languages     []string
	configs       []Config
	clientFactory func() *gosseract.Client

	probeOnce sync.Once
	probeErr  error
}

// New builds the engine. With no configs DefaultConfigs is used.
func New(languages []string, configs ...Config) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	if len(configs) == 0 {
		configs = DefaultConfigs()
	}
	return &Engine{
		languages:     append([]string(nil), languages...),
		configs:       append([]Config(nil), configs...),
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) ID() ocr.EngineID { return ocr.EngineLocalOCR }

// Available loads the language data once against a blank image. A missing
// tessdata directory or language pack makes the engine unavailable.
func (e *Engine) Available() bool {
	e.probeOnce.Do(func() {
		c := e.clientFactory()
		defer c.Close()
		if err := c.SetLanguage(e.languages...); err != nil {
			e.probeErr = err
			return
		}
		if err := c.SetImageFromBytes(blankPNG()); err != nil {
			e.probeErr = err
			return
		}
		_, e.probeErr = c.Text()
		if e.probeErr != nil {
			common.Logger().WithError(e.probeErr).Warn("tesseract unavailable")
		}
	})
	return e.probeErr == nil
}

// Recognize runs every configuration in order and keeps the one with the
// highest information score; the earlier configuration wins ties.
func (e *Engine) Recognize(ctx context.Context, img ocr.EncodedImage) (ocr.Recognition, error) {
	var (
		best      ocr.Recognition
		bestScore = -1.0
		lastErr   error
	)
	for _, cfg := range e.configs {
		if err := ctx.Err(); err != nil {
			return ocr.Recognition{}, err
		}
		rec, err := e.recognizeWith(cfg, img.Data)
		if err != nil {
			lastErr = fmt.Errorf("config %s: %w", cfg.Name, err)
			common.EntryFrom(ctx).WithError(err).WithField("config", cfg.Name).Debug("tesseract configuration failed")
			continue
		}
		if score := ocr.InformationScore(rec.Text, rec.Confidence); score > bestScore {
			best, bestScore = rec, score
		}
	}
	if bestScore < 0 {
		return ocr.Recognition{}, lastErr
	}
	return best, nil
}

func (e *Engine) recognizeWith(cfg Config, data []byte) (ocr.Recognition, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.languages...); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(cfg.PageSegMode); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if cfg.Whitelist != "" {
		if err := c.SetWhitelist(cfg.Whitelist); err != nil {
			return ocr.Recognition{}, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	return ocr.Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: meanWordConfidence(c),
		Detail:     cfg.Name,
	}, nil
}

// meanWordConfidence averages word confidences into [0,1]; nil when tesseract
// reports no words.
func meanWordConfidence(c *gosseract.Client) *float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	mean := sum / float64(len(boxes)) / 100.0
	return &mean
}

var (
	blankOnce sync.Once
	blank     []byte
)

func blankPNG() []byte {
	blankOnce.Do(func() {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for i := range img.Pix {
			img.Pix[i] = uint8(color.White.Y >> 8)
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		blank = buf.Bytes()
	})
	return blank
}
