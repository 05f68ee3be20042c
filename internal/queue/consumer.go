package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/extraction"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Analyzer is satisfied by *extraction.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req extraction.AnalyzeRequest) (*extraction.Analysis, error)
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Analyzer    Analyzer
}

// Consumer runs analyze tasks from Redis.
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	cfg    ConsumerConfig
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("Analyzer is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	log := common.Logger()
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			// 5s, 10s, 20s ... capped at a minute
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.WithFields(logrus.Fields{"task_type": task.Type()}).WithError(err).Error("task processing error")
		}),
		Logger: log,
	})

	c := &Consumer{server: server, mux: asynq.NewServeMux(), cfg: cfg}
	c.mux.HandleFunc(TypeAnalyzeSwing, c.HandleAnalyze)
	return c, nil
}

// Run blocks processing tasks until SIGINT or SIGTERM, then shuts down.
func (c *Consumer) Run() error {
	common.Logger().WithFields(logrus.Fields{
		"concurrency": c.cfg.Concurrency,
		"queue":       c.cfg.QueueName,
	}).Info("starting queue consumer")
	return c.server.Run(c.mux)
}

// HandleAnalyze decodes the payload and runs the analysis. Bad payloads and
// undecodable images are not retried; every other failure is.
func (c *Consumer) HandleAnalyze(ctx context.Context, task *asynq.Task) error {
	return handleAnalyze(ctx, c.cfg.Analyzer, task)
}

func handleAnalyze(ctx context.Context, analyzer Analyzer, task *asynq.Task) error {
	var p AnalyzePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	rc := common.NewRequestContextWithID(p.RunID, p.UserID)
	ctx = common.WithRequestContext(ctx, rc)
	rc.Entry().WithField("filename", p.Filename).Info("processing queued analysis")

	a, err := analyzer.Analyze(ctx, extraction.AnalyzeRequest{
		RunID:    p.RunID,
		Image:    p.Image,
		Filename: p.Filename,
		UserID:   p.UserID,
		Options:  p.Options.Options(),
	})
	if err != nil {
		var invalid *ocr.InvalidImageError
		var allFailed *ocr.AllEnginesFailedError
		if errors.As(err, &invalid) || errors.As(err, &allFailed) {
			rc.LogError("analysis failed permanently: %v", err)
			return fmt.Errorf("%s: %v: %w", ocr.CodeOf(err), err, asynq.SkipRetry)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	rc.Entry().WithFields(logrus.Fields{
		"metrics":    len(a.Metrics),
		"engine":     a.Result.Best.Engine,
		"confidence": a.Confidence.OverallScore,
	}).Info("queued analysis finished")
	return nil
}
