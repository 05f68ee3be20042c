// Package queue carries swing analyses through Redis so uploads can return
// before recognition finishes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/hibiken/asynq"
)

// TypeAnalyzeSwing is the asynq task type.
const TypeAnalyzeSwing = "swing:analyze"

// AnalyzeOptions is the JSON form of ocr.Options.
type AnalyzeOptions struct {
	EnableAdvancedPreprocessing bool           `json:"enable_advanced_preprocessing"`
	EnabledEngines              []ocr.EngineID `json:"enabled_engines,omitempty"`
	PreferredEngine             ocr.EngineID   `json:"preferred_engine,omitempty"`
	Mode                        ocr.Mode       `json:"mode,omitempty"`
}

// FromOptions converts ocr.Options for the wire.
func FromOptions(o ocr.Options) AnalyzeOptions {
	return AnalyzeOptions{
		EnableAdvancedPreprocessing: o.EnableAdvancedPreprocessing,
		EnabledEngines:              o.EnabledEngines,
		PreferredEngine:             o.PreferredEngine,
		Mode:                        o.Mode,
	}
}

// Options converts back to ocr.Options.
func (a AnalyzeOptions) Options() ocr.Options {
	return ocr.Options{
		EnableAdvancedPreprocessing: a.EnableAdvancedPreprocessing,
		EnabledEngines:              a.EnabledEngines,
		PreferredEngine:             a.PreferredEngine,
		Mode:                        a.Mode,
	}
}

// AnalyzePayload is the task body. Image is base64 encoded by encoding/json.
type AnalyzePayload struct {
	RunID    string         `json:"run_id"`
	UserID   string         `json:"user_id"`
	Filename string         `json:"filename"`
	Image    []byte         `json:"image"`
	Options  AnalyzeOptions `json:"options"`
}

// NewAnalyzeTask builds a task whose id is the run id, so a run is queued once.
func NewAnalyzeTask(p AnalyzePayload, queueName string) (*asynq.Task, error) {
	if p.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeAnalyzeSwing, body,
		asynq.TaskID(p.RunID),
		asynq.Queue(queueName),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}

// Enqueuer submits analyze tasks.
type Enqueuer struct {
	client    *asynq.Client
	queueName string
}

// NewEnqueuer connects a client to the Redis at redisURL.
func NewEnqueuer(redisURL, queueName string) (*Enqueuer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(redisOpt), queueName: queueName}, nil
}

// Enqueue submits p and returns the task id.
func (e *Enqueuer) Enqueue(ctx context.Context, p AnalyzePayload) (string, error) {
	task, err := NewAnalyzeTask(p, e.queueName)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue analysis: %w", err)
	}
	return info.ID, nil
}

// Close closes the client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
