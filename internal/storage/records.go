// records.go - Documents persisted for each analysis

package storage

import (
	"errors"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/metrics"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// AttemptFailure is one failed (pipeline, engine) attempt.
type AttemptFailure struct {
	Engine   ocr.EngineID `json:"engine" bson:"engine"`
	Pipeline string       `json:"pipeline" bson:"pipeline"`
	TimedOut bool         `json:"timed_out" bson:"timed_out"`
	Error    string       `json:"error" bson:"error"`
}

// SkippedEngine is an engine that was never invoked.
type SkippedEngine struct {
	Engine ocr.EngineID `json:"engine" bson:"engine"`
	Reason string       `json:"reason" bson:"reason"`
}

// RunRecord is the diagnostics document stored for every analysis.
type RunRecord struct {
	RunID    string `json:"run_id" bson:"_id"`
	UserID   string `json:"user_id" bson:"user_id"`
	Filename string `json:"filename" bson:"filename"`
	Mode     string `json:"mode" bson:"mode"`
	Status   string `json:"status" bson:"status"`
	// ErrorCode is set when Status is "failed".
	ErrorCode string `json:"error_code,omitempty" bson:"error_code,omitempty"`

	Winner             *ocr.OcrResult      `json:"winner,omitempty" bson:"winner,omitempty"`
	Attempts           []ocr.OcrResult     `json:"attempts" bson:"attempts"`
	Failures           []AttemptFailure    `json:"failures,omitempty" bson:"failures,omitempty"`
	Skipped            []SkippedEngine     `json:"skipped,omitempty" bson:"skipped,omitempty"`
	Variants           []ocr.VariantReport `json:"variants,omitempty" bson:"variants,omitempty"`
	BackgroundIsolated bool                `json:"background_isolated" bson:"background_isolated"`
	SourceWidth        int                 `json:"source_width" bson:"source_width"`
	SourceHeight       int                 `json:"source_height" bson:"source_height"`
	SourceQuality      float64             `json:"source_quality" bson:"source_quality"`

	Metrics    []metrics.StructuredMetric `json:"metrics,omitempty" bson:"metrics,omitempty"`
	Confidence *metrics.ConfidenceResult  `json:"confidence,omitempty" bson:"confidence,omitempty"`

	Steps      []common.StepLog  `json:"steps,omitempty" bson:"steps,omitempty"`
	Tokens     common.TokenUsage `json:"tokens" bson:"tokens"`
	DurationMs int64             `json:"duration_ms" bson:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}

// NewRunRecord copies the diagnostics of a finished run. res may be nil
// when the run failed before any attempt.
func NewRunRecord(runID, userID, filename string, res *ocr.RunResult) *RunRecord {
	rec := &RunRecord{
		RunID:     runID,
		UserID:    userID,
		Filename:  filename,
		Status:    "success",
		CreatedAt: time.Now().UTC(),
	}
	if res == nil {
		return rec
	}

	best := res.Best
	rec.Winner = &best
	rec.Mode = string(res.Mode)
	rec.Attempts = append([]ocr.OcrResult(nil), res.Ranked...)
	rec.Variants = append([]ocr.VariantReport(nil), res.Variants...)
	rec.BackgroundIsolated = res.BackgroundIsolated
	rec.SourceWidth = res.SourceWidth
	rec.SourceHeight = res.SourceHeight
	rec.SourceQuality = res.SourceQuality
	rec.DurationMs = res.DurationMs
	rec.AddFailures(res.Failures, res.Skipped)
	return rec
}

// AddFailures records failed attempts and skipped engines.
func (r *RunRecord) AddFailures(failures []*ocr.EngineExecutionError, skipped []*ocr.EngineUnavailableError) {
	for _, f := range failures {
		r.Failures = append(r.Failures, AttemptFailure{
			Engine:   f.Engine,
			Pipeline: f.Pipeline,
			TimedOut: f.TimedOut,
			Error:    f.Error(),
		})
	}
	for _, s := range skipped {
		r.Skipped = append(r.Skipped, SkippedEngine{Engine: s.Engine, Reason: s.Reason})
	}
}
