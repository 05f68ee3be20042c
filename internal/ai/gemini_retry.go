// gemini_retry.go - Retry logic and error handling for Gemini API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for Gemini API calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// GeminiError represents a categorized Gemini API error
type GeminiError struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *GeminiError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *GeminiError) Unwrap() error { return e.OriginalError }

// contentGenerator is the slice of *genai.GenerativeModel the engine uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// categorizeGeminiError analyzes error and determines retry strategy
func categorizeGeminiError(err error) *GeminiError {
	if err == nil {
		return nil
	}

	geminiErr := &GeminiError{
		OriginalError: err,
		Category:      "unknown",
		Message:       err.Error(),
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		geminiErr.StatusCode = apiErr.Code

		switch apiErr.Code {
		case 400:
			geminiErr.Category = "bad_request"
			geminiErr.Message = "Invalid request format or parameters"
		case 401:
			geminiErr.Category = "unauthorized"
			geminiErr.Message = "Invalid API key or authentication failed"
		case 403:
			geminiErr.Category = "forbidden"
			geminiErr.Message = "API key lacks required permissions"
		case 404:
			geminiErr.Category = "not_found"
			geminiErr.Message = "Model not found or invalid endpoint"
		case 413:
			geminiErr.Category = "payload_too_large"
			geminiErr.Message = "Request size exceeds limit"
		case 429:
			geminiErr.Category = "rate_limit"
			geminiErr.Message = "Rate limit exceeded"
			geminiErr.Retryable = true
		case 500, 502, 503, 504:
			geminiErr.Category = "server_error"
			geminiErr.Message = fmt.Sprintf("Gemini server error (%d)", apiErr.Code)
			geminiErr.Retryable = true
		default:
			geminiErr.Category = "unknown_api_error"
			geminiErr.Message = fmt.Sprintf("API error: %s", apiErr.Message)
			geminiErr.Retryable = apiErr.Code >= 500
		}
		return geminiErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		geminiErr.Category = "timeout"
		geminiErr.Message = "Request timeout"
		geminiErr.Retryable = true
		return geminiErr
	case errors.Is(err, context.Canceled):
		geminiErr.Category = "canceled"
		geminiErr.Message = "Request was canceled"
		return geminiErr
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "quota"):
		geminiErr.Category = "quota_exceeded"
		geminiErr.Message = "API quota exceeded"
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		geminiErr.Category = "timeout"
		geminiErr.Message = "Request timeout"
		geminiErr.Retryable = true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		geminiErr.Category = "network_error"
		geminiErr.Message = "Network connection error"
		geminiErr.Retryable = true
	}
	return geminiErr
}

// callWithRetry executes a Gemini call, backing off between retryable failures.
// The caller's context cancels both the call and the wait between attempts.
func callWithRetry(ctx context.Context, gen contentGenerator, config RetryConfig, log *logrus.Entry, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastGeminiErr *GeminiError
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Infof("retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		resp, err := gen.GenerateContent(ctx, parts...)
		if err == nil {
			if attempt > 1 {
				log.Infof("retry succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastGeminiErr = categorizeGeminiError(err)
		log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"category":  lastGeminiErr.Category,
			"status":    lastGeminiErr.StatusCode,
			"retryable": lastGeminiErr.Retryable,
		}).Warn("gemini call failed")

		if !lastGeminiErr.Retryable {
			return nil, lastGeminiErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)
		// Rate limits need a longer pause than transient server errors.
		if lastGeminiErr.Category == "rate_limit" {
			delay *= 2
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("gemini API call failed after %d attempts: %w", config.MaxAttempts, lastGeminiErr)
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
