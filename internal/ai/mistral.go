// mistral.go - cloud-ocr-alt engine backed by the Mistral OCR API

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/sirupsen/logrus"
)

// DefaultMistralBaseURL is the public API root.
const DefaultMistralBaseURL = "https://api.mistral.ai"

// mistralCostPerPage is $2 per 1,000 pages.
const mistralCostPerPage = 0.002

// MistralEngine implements ocr.Engine. It is modelled but off unless enabled.
type MistralEngine struct {
	apiKey    string
	modelName string
	baseURL   string
	enabled   bool
	client    *http.Client
}

// MistralOption customizes a MistralEngine.
type MistralOption func(*MistralEngine)

// WithMistralBaseURL points the engine at another API root.
func WithMistralBaseURL(url string) MistralOption {
	return func(m *MistralEngine) { m.baseURL = strings.TrimRight(url, "/") }
}

// WithMistralEnabled turns the engine on.
func WithMistralEnabled(enabled bool) MistralOption {
	return func(m *MistralEngine) { m.enabled = enabled }
}

// NewMistralEngine creates the engine.
func NewMistralEngine(apiKey, modelName string, opts ...MistralOption) *MistralEngine {
	m := &MistralEngine{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   DefaultMistralBaseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MistralEngine) ID() ocr.EngineID { return ocr.EngineCloudOCRAlt }

func (m *MistralEngine) Available() bool { return m.enabled && m.apiKey != "" }

type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRUsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes,omitempty"`
}

type mistralOCRResponse struct {
	Model     string              `json:"model"`
	Pages     []mistralOCRPage    `json:"pages"`
	UsageInfo mistralOCRUsageInfo `json:"usage_info"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Recognize sends the image as a base64 data URL and joins the returned pages.
func (m *MistralEngine) Recognize(ctx context.Context, img ocr.EncodedImage) (ocr.Recognition, error) {
	if !m.Available() {
		return ocr.Recognition{}, &ocr.EngineUnavailableError{Engine: m.ID(), Reason: "disabled in this deployment"}
	}

	request := mistralOCRRequest{
		Model: m.modelName,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)),
		},
	}

	response, err := m.callOCRAPI(ctx, request)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("mistral OCR API call failed: %w", err)
	}
	if len(response.Pages) == 0 {
		return ocr.Recognition{}, fmt.Errorf("no pages returned from Mistral OCR API")
	}

	var text strings.Builder
	for i, page := range response.Pages {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Markdown)
	}

	pages := response.UsageInfo.PagesProcessed
	if rc := common.RequestContextFrom(ctx); rc != nil {
		rc.AddTokens(common.TokenUsage{
			InputTokens: pages,
			TotalTokens: pages,
			CostUSD:     float64(pages) * mistralCostPerPage,
		})
	}
	common.EntryFrom(ctx).WithFields(logrus.Fields{
		"engine":   m.ID(),
		"pipeline": img.Pipeline,
		"pages":    len(response.Pages),
		"chars":    text.Len(),
	}).Debug("mistral response received")

	return ocr.Recognition{Text: strings.TrimSpace(text.String())}, nil
}

func (m *MistralEngine) callOCRAPI(ctx context.Context, request mistralOCRRequest) (*mistralOCRResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/ocr", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp mistralErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("mistral OCR API error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}
		return nil, fmt.Errorf("mistral OCR API error (%d): %s", resp.StatusCode, string(body))
	}

	var response mistralOCRResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	return &response, nil
}
