// request_context.go - Request tracking and logging system

package common

import (
	"fmt"
	"sync"
	"time"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestContext tracks the entire request lifecycle with timing and costs.
// Step tracking is meant for the request goroutine; AddTokens and the Log*
// helpers are safe to call from concurrent OCR attempts.
type RequestContext struct {
	RequestID        string
	UserID           string
	StartTime        time.Time
	Steps            []StepLog
	CurrentStep      string
	CurrentStepStart time.Time
	CurrentSubSteps  []SubStepLog

	currentSubStep      string
	currentSubStepStart time.Time

	mu          sync.Mutex
	totalTokens TokenUsage
	entry       *logrus.Entry
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name" bson:"name"`
	StartTime time.Time    `json:"start_time" bson:"start_time"`
	Duration  int64        `json:"duration_ms" bson:"duration_ms"`
	Status    string       `json:"status" bson:"status"` // "success", "failed", "skipped"
	Error     string       `json:"error,omitempty" bson:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty" bson:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name" bson:"name"`
	StartTime time.Time `json:"start_time" bson:"start_time"`
	Duration  int64     `json:"duration_ms" bson:"duration_ms"`
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
}

// TokenUsage tracks cloud model token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int     `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int     `json:"total_tokens" bson:"total_tokens"`
	CostUSD      float64 `json:"cost_usd" bson:"cost_usd"`
}

// NewRequestContext creates a new request tracking context
func NewRequestContext(userID string) *RequestContext {
	return NewRequestContextWithID(uuid.New().String(), userID)
}

// NewRequestContextWithID is used by the worker, which reuses the id the API
// assigned when the job was queued.
func NewRequestContextWithID(requestID, userID string) *RequestContext {
	now := time.Now()
	entry := log.WithFields(logrus.Fields{"request_id": requestID})
	if userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	entry.Info("request started")

	return &RequestContext{
		RequestID: requestID,
		UserID:    userID,
		StartTime: now,
		Steps:     []StepLog{},
		entry:     entry,
	}
}

// Entry returns the request-scoped log entry.
func (rc *RequestContext) Entry() *logrus.Entry {
	return rc.entry
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()
	rc.entry.WithField("step", stepName).Debug("step started")
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, err error) {
	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		SubSteps:  rc.CurrentSubSteps,
	}

	fields := logrus.Fields{
		"step":        rc.CurrentStep,
		"status":      status,
		"duration_ms": duration,
	}
	if len(rc.CurrentSubSteps) > 0 {
		fields["sub_steps"] = len(rc.CurrentSubSteps)
	}

	if err != nil {
		stepLog.Error = err.Error()
		rc.entry.WithFields(fields).WithError(err).Error("step failed")
	} else {
		rc.entry.WithFields(fields).Info("step finished")
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = nil
}

// StartSubStep begins tracking a detailed sub-operation
func (rc *RequestContext) StartSubStep(subStepName string) {
	rc.currentSubStep = subStepName
	rc.currentSubStepStart = time.Now()
}

// EndSubStep completes the current sub-step and records timing
func (rc *RequestContext) EndSubStep(details string) {
	if rc.currentSubStep == "" {
		return
	}

	duration := time.Since(rc.currentSubStepStart).Milliseconds()
	rc.CurrentSubSteps = append(rc.CurrentSubSteps, SubStepLog{
		Name:      rc.currentSubStep,
		StartTime: rc.currentSubStepStart,
		Duration:  duration,
		Details:   details,
	})

	rc.entry.WithFields(logrus.Fields{
		"sub_step":    rc.currentSubStep,
		"duration_ms": duration,
		"details":     details,
	}).Debug("sub-step finished")

	rc.currentSubStep = ""
}

// AddTokens accumulates model usage from any goroutine.
func (rc *RequestContext) AddTokens(u TokenUsage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.totalTokens.InputTokens += u.InputTokens
	rc.totalTokens.OutputTokens += u.OutputTokens
	rc.totalTokens.TotalTokens += u.TotalTokens
	rc.totalTokens.CostUSD += u.CostUSD
}

// TotalTokens returns the accumulated usage so far.
func (rc *RequestContext) TotalTokens() TokenUsage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.totalTokens
}

// CalculateTokenCost computes USD cost from token counts using the configured
// cloud-vision pricing.
func CalculateTokenCost(inputTokens, outputTokens int) TokenUsage {
	inputCost := float64(inputTokens) * configs.GEMINI_INPUT_PRICE_PER_MILLION / 1_000_000
	outputCost := float64(outputTokens) * configs.GEMINI_OUTPUT_PRICE_PER_MILLION / 1_000_000

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      inputCost + outputCost,
	}
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()
	tokens := rc.TotalTokens()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}

	rc.entry.WithFields(logrus.Fields{
		"total_duration_ms": totalDuration,
		"steps":             len(rc.Steps),
		"total_tokens":      tokens.TotalTokens,
		"cost_usd":          tokens.CostUSD,
	}).Info("request finished")

	return map[string]interface{}{
		"request_id":         rc.RequestID,
		"user_id":            rc.UserID,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  tokens.InputTokens,
			"output_tokens": tokens.OutputTokens,
			"total_tokens":  tokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", tokens.CostUSD),
		},
	}
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	rc.entry.Infof(format, args...)
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	rc.entry.Warnf(format, args...)
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	rc.entry.Errorf(format, args...)
}
