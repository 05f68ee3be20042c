// gemini.go - cloud-vision engine backed by the Gemini API

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/metrics"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// maxOutputTokens is set explicitly to avoid silent truncation.
const maxOutputTokens = 8192

type modelKind int

const (
	modelText modelKind = iota
	modelStructured
)

// GeminiEngine implements ocr.StructuredEngine. It reports no confidence.
type GeminiEngine struct {
	modelName string
	client    *genai.Client
	limiter   *ratelimit.RateLimiter
	retry     RetryConfig
	models    func(modelKind) contentGenerator
}

// NewGeminiEngine creates the client. Without an API key the engine is
// returned unavailable rather than failing startup.
func NewGeminiEngine(ctx context.Context, apiKey, modelName string, limiter *ratelimit.RateLimiter) (*GeminiEngine, error) {
	e := &GeminiEngine{modelName: modelName, limiter: limiter, retry: DefaultRetryConfig}
	if apiKey == "" {
		return e, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	e.client = client
	e.models = e.newModel
	return e, nil
}

func (e *GeminiEngine) newModel(kind modelKind) contentGenerator {
	model := e.client.GenerativeModel(e.modelName)
	model.SetMaxOutputTokens(maxOutputTokens)
	model.SetTemperature(0)
	if kind == modelStructured {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = metricListSchema()
	}
	return model
}

// Close releases the underlying client.
func (e *GeminiEngine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *GeminiEngine) ID() ocr.EngineID { return ocr.EngineCloudVision }

func (e *GeminiEngine) Available() bool { return e.models != nil }

// Recognize transcribes the screen as free text.
func (e *GeminiEngine) Recognize(ctx context.Context, img ocr.EncodedImage) (ocr.Recognition, error) {
	text, truncated, err := e.generate(ctx, modelText, transcriptionPrompt, img)
	if err != nil {
		return ocr.Recognition{}, err
	}
	rec := ocr.Recognition{Text: strings.TrimSpace(text)}
	if truncated {
		rec.Detail = "truncated at output token limit"
	}
	return rec, nil
}

// RecognizeStructured asks for [{title,value,descriptor}] and returns the
// normalized JSON array as the recognition text. When the model's JSON cannot
// be parsed the image is transcribed as plain text instead.
func (e *GeminiEngine) RecognizeStructured(ctx context.Context, img ocr.EncodedImage) (ocr.Recognition, error) {
	payload, truncated, err := e.generate(ctx, modelStructured, structuredPrompt, img)
	if err != nil {
		return ocr.Recognition{}, err
	}

	parsed, parseErr := metrics.ParseJSON(payload)
	if parseErr == nil {
		normalized, err := json.Marshal(parsed)
		if err != nil {
			return ocr.Recognition{}, fmt.Errorf("encode metrics: %w", err)
		}
		rec := ocr.Recognition{Text: string(normalized)}
		if truncated {
			rec.Detail = "truncated at output token limit"
		}
		return rec, nil
	}

	common.EntryFrom(ctx).WithError(parseErr).WithField("pipeline", img.Pipeline).
		Warn("structured response could not be parsed, falling back to plain text")

	text, truncated, err := e.generate(ctx, modelText, transcriptionPrompt, img)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("JSON parse failed and fallback failed: %w (original error: %v)", err, parseErr)
	}
	rec := ocr.Recognition{Text: strings.TrimSpace(text), Detail: "plain-text fallback"}
	if truncated {
		rec.Detail += ", truncated at output token limit"
	}
	return rec, nil
}

func (e *GeminiEngine) generate(ctx context.Context, kind modelKind, prompt string, img ocr.EncodedImage) (string, bool, error) {
	if e.models == nil {
		return "", false, &ocr.EngineUnavailableError{Engine: e.ID(), Reason: "no API key configured"}
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", false, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	log := common.EntryFrom(ctx).WithFields(logrus.Fields{
		"engine":   e.ID(),
		"pipeline": img.Pipeline,
		"model":    e.modelName,
	})

	resp, err := callWithRetry(ctx, e.models(kind), e.retry, log,
		genai.Text(prompt),
		genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
	)
	if err != nil {
		return "", false, err
	}
	recordUsage(ctx, resp)

	text, truncated, err := responseText(resp)
	if err != nil {
		return "", false, err
	}
	if truncated {
		log.Warn("response truncated (FinishReason: MAX_TOKENS)")
	}
	log.WithField("chars", len(text)).Debug("gemini response received")
	return text, truncated, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, bool, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false, errors.New("no response from Gemini API")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", false, fmt.Errorf("no content in Gemini response (finish reason %s)", cand.FinishReason)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), cand.FinishReason == genai.FinishReasonMaxTokens, nil
}

func recordUsage(ctx context.Context, resp *genai.GenerateContentResponse) {
	rc := common.RequestContextFrom(ctx)
	if rc == nil || resp == nil || resp.UsageMetadata == nil {
		return
	}
	rc.AddTokens(common.CalculateTokenCost(
		int(resp.UsageMetadata.PromptTokenCount),
		int(resp.UsageMetadata.CandidatesTokenCount),
	))
}

// metricListSchema is the response schema for structured mode.
func metricListSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {
					Type:        genai.TypeString,
					Description: "Metric label as printed on the screen",
				},
				"value": {
					Type:        genai.TypeString,
					Description: "Numeric value as printed, including sign",
				},
				"descriptor": {
					Type:        genai.TypeString,
					Description: "Unit and L/R marker, empty when none is shown",
				},
			},
			Required: []string{"title", "value"},
		},
	}
}
