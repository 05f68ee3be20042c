// engines.go - Builds the recognition engines from configuration

package bootstrap

import (
	"context"
	"time"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/bosocmputer/swing_ocr/internal/ai"
	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/ocr/tesseract"
	"github.com/bosocmputer/swing_ocr/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// EngineSettings is everything needed to construct the engines.
type EngineSettings struct {
	TesseractLanguages []string

	GeminiAPIKey string
	GeminiModel  string
	// RateLimitBurst requests may be made at once, then one per RateLimitInterval.
	RateLimitBurst    int
	RateLimitInterval time.Duration

	MistralAPIKey  string
	MistralModel   string
	MistralEnabled bool
}

// EngineSettingsFromConfig reads EngineSettings from the loaded configuration.
func EngineSettingsFromConfig() EngineSettings {
	return EngineSettings{
		TesseractLanguages: configs.TESSERACT_LANGUAGES,
		GeminiAPIKey:       configs.GEMINI_API_KEY,
		GeminiModel:        configs.OCR_MODEL_NAME,
		RateLimitBurst:     configs.GEMINI_RATE_LIMIT_BURST,
		RateLimitInterval:  configs.GEMINI_RATE_LIMIT_INTERVAL,
		MistralAPIKey:      configs.MISTRAL_API_KEY,
		MistralModel:       configs.MISTRAL_MODEL_NAME,
		MistralEnabled:     configs.MISTRAL_ENABLED,
	}
}

// Engines owns the constructed engines.
type Engines struct {
	List   []ocr.Engine
	gemini *ai.GeminiEngine
}

// Close releases client connections.
func (e *Engines) Close() error {
	if e.gemini != nil {
		return e.gemini.Close()
	}
	return nil
}

// BuildEngines constructs local-ocr, cloud-vision and cloud-ocr-alt in that
// order. Engines that cannot be used here are still returned; the runner
// skips them through Available().
func BuildEngines(ctx context.Context, s EngineSettings) (*Engines, error) {
	log := common.Logger()

	limiter := ratelimit.NewRateLimiter(s.RateLimitBurst, s.RateLimitInterval)
	gemini, err := ai.NewGeminiEngine(ctx, s.GeminiAPIKey, s.GeminiModel, limiter)
	if err != nil {
		return nil, err
	}

	engines := &Engines{
		List: []ocr.Engine{
			tesseract.New(s.TesseractLanguages),
			gemini,
			ai.NewMistralEngine(s.MistralAPIKey, s.MistralModel, ai.WithMistralEnabled(s.MistralEnabled)),
		},
		gemini: gemini,
	}

	for _, eng := range engines.List {
		log.WithFields(logrus.Fields{
			"engine":    eng.ID(),
			"available": eng.Available(),
		}).Info("recognition engine registered")
	}
	return engines, nil
}
