// Package extraction turns an uploaded launch monitor photo into swing metrics.
package extraction

import (
	"context"
	"errors"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/metrics"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/storage"
	"github.com/google/uuid"
)

// Recognizer is satisfied by *ocr.Runner.
type Recognizer interface {
	Run(ctx context.Context, data []byte, opts ocr.Options) (*ocr.RunResult, error)
}

// RunStore persists run diagnostics.
type RunStore interface {
	SaveRun(ctx context.Context, rec *storage.RunRecord) error
	GetRun(ctx context.Context, runID string) (*storage.RunRecord, error)
	RecentRuns(ctx context.Context, userID string, limit int64) ([]storage.RunRecord, error)
}

// MetricStore persists extracted metric rows.
type MetricStore interface {
	SaveMetrics(ctx context.Context, runID, userID string, ms []metrics.StructuredMetric) error
	LoadMetrics(ctx context.Context, runID string) ([]metrics.StructuredMetric, error)
}

// ErrStoreDisabled is returned by lookups when the backing store is not configured.
var ErrStoreDisabled = errors.New("run store disabled")

// AnalyzeRequest is one photo to analyze.
type AnalyzeRequest struct {
	// RunID is generated when empty.
	RunID    string
	Image    []byte
	Filename string
	UserID   string
	Options  ocr.Options
}

// Analysis is the outcome of a successful request.
type Analysis struct {
	RunID      string
	Result     *ocr.RunResult
	Metrics    []metrics.StructuredMetric
	Confidence metrics.ConfidenceResult
	Tokens     common.TokenUsage
}

// Service runs recognition and stores what it found. Either store may be nil.
type Service struct {
	recognizer Recognizer
	runs       RunStore
	metrics    MetricStore
}

// NewService creates a Service.
func NewService(recognizer Recognizer, runs RunStore, metricStore MetricStore) *Service {
	return &Service{recognizer: recognizer, runs: runs, metrics: metricStore}
}

// Analyze recognizes the image, parses metrics and scores the result.
// Storage failures are logged and never fail the analysis.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	rc := common.RequestContextFrom(ctx)
	if rc == nil {
		rc = common.NewRequestContextWithID(req.RunID, req.UserID)
		ctx = common.WithRequestContext(ctx, rc)
	}

	rc.StartStep("ocr_run")
	res, err := s.recognizer.Run(ctx, req.Image, req.Options)
	if err != nil {
		rc.EndStep("failed", err)
		s.saveFailure(ctx, rc, req, err)
		return nil, err
	}
	rc.EndStep("success", nil)

	rc.StartStep("parse_metrics")
	parsed := ParseMetrics(res)
	rc.EndStep("success", nil)
	rc.LogInfo("extracted %d metrics from %s/%s", len(parsed), res.Best.Engine, res.Best.Pipeline)

	rc.StartStep("confidence")
	conf := metrics.CalculateConfidence(res.Best, res.Ranked, parsed, rc)
	rc.EndStep("success", nil)

	a := &Analysis{
		RunID:      req.RunID,
		Result:     res,
		Metrics:    parsed,
		Confidence: conf,
		Tokens:     rc.TotalTokens(),
	}

	rc.StartStep("persist")
	s.save(ctx, rc, req, a)
	rc.EndStep("success", nil)

	rc.GetSummary()
	return a, nil
}

// ParseMetrics reads the winning text: JSON in structured mode (falling back
// to text parsing when the engine returned plain text), text otherwise.
func ParseMetrics(res *ocr.RunResult) []metrics.StructuredMetric {
	if res.Mode == ocr.ModeStructured {
		if ms, err := metrics.ParseJSON(res.Best.Text); err == nil {
			return ms
		}
	}
	return metrics.ParseText(res.Best.Text)
}

// Run returns a stored run.
func (s *Service) Run(ctx context.Context, runID string) (*storage.RunRecord, error) {
	if s.runs == nil {
		return nil, ErrStoreDisabled
	}
	return s.runs.GetRun(ctx, runID)
}

// RunMetrics returns the metric rows stored for a run, in extraction order.
// A run without rows is reported as storage.ErrNotFound.
func (s *Service) RunMetrics(ctx context.Context, runID string) ([]metrics.StructuredMetric, error) {
	if s.metrics == nil {
		return nil, ErrStoreDisabled
	}
	ms, err := s.metrics.LoadMetrics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, storage.ErrNotFound
	}
	return ms, nil
}

// RecentRuns lists a user's latest runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, userID string, limit int64) ([]storage.RunRecord, error) {
	if s.runs == nil {
		return nil, ErrStoreDisabled
	}
	return s.runs.RecentRuns(ctx, userID, limit)
}

func (s *Service) save(ctx context.Context, rc *common.RequestContext, req AnalyzeRequest, a *Analysis) {
	if s.runs != nil {
		rec := storage.NewRunRecord(req.RunID, req.UserID, req.Filename, a.Result)
		rec.Metrics = a.Metrics
		conf := a.Confidence
		rec.Confidence = &conf
		rec.Steps = rc.Steps
		rec.Tokens = a.Tokens
		if err := s.runs.SaveRun(ctx, rec); err != nil {
			rc.LogError("failed to save run diagnostics: %v", err)
		}
	}
	if s.metrics != nil && len(a.Metrics) > 0 {
		if err := s.metrics.SaveMetrics(ctx, req.RunID, req.UserID, a.Metrics); err != nil {
			rc.LogError("failed to save metrics: %v", err)
		}
	}
}

func (s *Service) saveFailure(ctx context.Context, rc *common.RequestContext, req AnalyzeRequest, runErr error) {
	if s.runs == nil {
		return
	}
	rec := storage.NewRunRecord(req.RunID, req.UserID, req.Filename, nil)
	rec.Status = "failed"
	rec.Mode = string(req.Options.Mode)
	rec.ErrorCode = string(ocr.CodeOf(runErr))
	var all *ocr.AllEnginesFailedError
	if errors.As(runErr, &all) {
		rec.AddFailures(all.Failures, all.Skipped)
	}
	rec.Steps = rc.Steps
	rec.Tokens = rc.TotalTokens()
	if err := s.runs.SaveRun(ctx, rec); err != nil {
		rc.LogError("failed to save failed run: %v", err)
	}
}
