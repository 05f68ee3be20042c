// handlers.go - HTTP handlers for swing photo uploads and run lookups.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/extraction"
	"github.com/bosocmputer/swing_ocr/internal/metrics"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/queue"
	"github.com/bosocmputer/swing_ocr/internal/segment"
	"github.com/bosocmputer/swing_ocr/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Analyzer is satisfied by *extraction.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req extraction.AnalyzeRequest) (*extraction.Analysis, error)
	Run(ctx context.Context, runID string) (*storage.RunRecord, error)
	RecentRuns(ctx context.Context, userID string, limit int64) ([]storage.RunRecord, error)
	RunMetrics(ctx context.Context, runID string) ([]metrics.StructuredMetric, error)
}

// IsolatorStats is satisfied by *segment.Isolator.
type IsolatorStats interface {
	Stats() segment.Stats
}

// Enqueuer is satisfied by *queue.Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.AnalyzePayload) (string, error)
}

// Config configures the handlers. Enqueuer may be nil, which disables async uploads.
type Config struct {
	Analyzer Analyzer
	Enqueuer Enqueuer
	// Isolator, when set, reports background isolation counters on /health.
	Isolator       IsolatorStats
	Defaults       ocr.Options
	MaxUploadBytes int64
	// UploadDir keeps a copy of every upload when set.
	UploadDir      string
	RequestTimeout time.Duration
}

// Handler serves the swing OCR API.
type Handler struct {
	cfg Config
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	return &Handler{cfg: cfg}
}

// AnalyzeSwingHandler handles POST /api/v1/analyze-swing.
func (h *Handler) AnalyzeSwingHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+1<<20)

	// Step 1: read the upload
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":   "error",
			"error":    "image file is required",
			"expected": "multipart form with an image field",
		})
		return
	}
	if file.Size > h.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"status": "error",
			"error":  fmt.Sprintf("image exceeds %d bytes", h.cfg.MaxUploadBytes),
		})
		return
	}
	data, err := readUpload(file.Open, h.cfg.MaxUploadBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	// Step 2: per-request options
	opts, err := h.optionsFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	async, _ := strconv.ParseBool(c.PostForm("async"))

	runID := uuid.NewString()
	userID := c.PostForm("user_id")
	rc := common.NewRequestContextWithID(runID, userID)
	rc.LogInfo("received %s (%d bytes), mode=%s async=%v", file.Filename, len(data), opts.Mode, async)
	h.archive(rc, runID, file.Filename, data)

	if async {
		h.enqueue(c, rc, queue.AnalyzePayload{
			RunID:    runID,
			UserID:   userID,
			Filename: file.Filename,
			Image:    data,
			Options:  queue.FromOptions(opts),
		})
		return
	}

	// Step 3: run the analysis inline
	ctx, cancel := context.WithTimeout(common.WithRequestContext(c.Request.Context(), rc), h.cfg.RequestTimeout)
	defer cancel()

	a, err := h.cfg.Analyzer.Analyze(ctx, extraction.AnalyzeRequest{
		RunID:    runID,
		Image:    data,
		Filename: file.Filename,
		UserID:   userID,
		Options:  opts,
	})
	if err != nil {
		rc.LogError("analysis failed: %v", err)
		c.JSON(statusFor(err), gin.H{
			"status":     "error",
			"error":      ocr.UserMessage(err),
			"code":       ocr.CodeOf(err),
			"request_id": runID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"request_id": a.RunID,
		"text":       a.Result.Best.Text,
		"engine":     a.Result.Best.Engine,
		"pipeline":   a.Result.Best.Pipeline,
		"metrics":    a.Metrics,
		"confidence": a.Confidence,
		"attempts":   a.Result.Ranked,
		"skipped":    skippedEngines(a.Result.Skipped),
		"metadata": gin.H{
			"processed_at":        time.Now().Format(time.RFC3339),
			"duration_ms":         a.Result.DurationMs,
			"background_isolated": a.Result.BackgroundIsolated,
			"failed_attempts":     len(a.Result.Failures),
			"tokens":              a.Tokens,
		},
	})
}

// GetRunHandler handles GET /api/v1/runs/:id.
func (h *Handler) GetRunHandler(c *gin.Context) {
	rec, err := h.cfg.Analyzer.Run(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, extraction.ErrStoreDisabled):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "run not found"})
	default:
		common.EntryFrom(c.Request.Context()).WithError(err).Error("failed to load run")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to load run"})
	}
}

// RunMetricsHandler handles GET /api/v1/runs/:id/metrics, serving the rows
// kept in the metric table.
func (h *Handler) RunMetricsHandler(c *gin.Context) {
	runID := c.Param("id")
	ms, err := h.cfg.Analyzer.RunMetrics(c.Request.Context(), runID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success", "run_id": runID, "metrics": ms})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, extraction.ErrStoreDisabled):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "no metrics stored for run"})
	default:
		common.EntryFrom(c.Request.Context()).WithError(err).Error("failed to load metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to load metrics"})
	}
}

// ListRunsHandler handles GET /api/v1/runs?user_id=&limit=.
func (h *Handler) ListRunsHandler(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "limit must be between 1 and 100"})
		return
	}

	runs, err := h.cfg.Analyzer.RecentRuns(c.Request.Context(), userID, limit)
	switch {
	case err == nil:
		if runs == nil {
			runs = []storage.RunRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": userID, "runs": runs})
	case errors.Is(err, extraction.ErrStoreDisabled):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "run history is not available"})
	default:
		common.EntryFrom(c.Request.Context()).WithError(err).Error("failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to list runs"})
	}
}

// HealthHandler handles GET /health.
func (h *Handler) HealthHandler(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "swing-ocr",
		"version": "1.0.0",
		"async":   h.cfg.Enqueuer != nil,
	}
	if h.cfg.Isolator != nil {
		body["background_isolation"] = h.cfg.Isolator.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) enqueue(c *gin.Context, rc *common.RequestContext, p queue.AnalyzePayload) {
	if h.cfg.Enqueuer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "async processing is not configured"})
		return
	}
	taskID, err := h.cfg.Enqueuer.Enqueue(c.Request.Context(), p)
	if err != nil {
		rc.LogError("enqueue failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "could not queue image"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "task_id": taskID, "request_id": p.RunID})
}

func (h *Handler) optionsFromForm(c *gin.Context) (ocr.Options, error) {
	opts := h.cfg.Defaults
	if opts.Mode == "" {
		opts.Mode = ocr.ModeText
	}

	if v := strings.TrimSpace(c.PostForm("mode")); v != "" {
		switch ocr.Mode(strings.ToLower(v)) {
		case ocr.ModeText:
			opts.Mode = ocr.ModeText
		case ocr.ModeStructured:
			opts.Mode = ocr.ModeStructured
		default:
			return ocr.Options{}, fmt.Errorf("unknown mode %q", v)
		}
	}
	if v, ok := c.GetPostForm("engines"); ok && strings.TrimSpace(v) != "" {
		engines, err := ocr.ParseEngineList(v)
		if err != nil {
			return ocr.Options{}, err
		}
		opts.EnabledEngines = engines
	}
	if v := c.PostForm("preferred_engine"); v != "" {
		id, err := ocr.ParseEngineID(v)
		if err != nil {
			return ocr.Options{}, err
		}
		opts.PreferredEngine = id
	}
	if v := c.PostForm("advanced"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ocr.Options{}, fmt.Errorf("advanced must be true or false")
		}
		opts.EnableAdvancedPreprocessing = b
	}
	return opts, nil
}

// archive keeps the upload under UploadDir; failures only log.
func (h *Handler) archive(rc *common.RequestContext, runID, filename string, data []byte) {
	if h.cfg.UploadDir == "" {
		return
	}
	path := filepath.Join(h.cfg.UploadDir, runID+strings.ToLower(filepath.Ext(filename)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		rc.LogWarning("failed to archive upload: %v", err)
	}
}

func readUpload(open func() (multipart.File, error), limit int64) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return data, nil
}

func statusFor(err error) int {
	switch ocr.CodeOf(err) {
	case ocr.ErrorInvalidImage:
		return http.StatusBadRequest
	case ocr.ErrorAllEnginesFailed:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func skippedEngines(skipped []*ocr.EngineUnavailableError) []gin.H {
	out := make([]gin.H, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, gin.H{"engine": s.Engine, "reason": s.Reason})
	}
	return out
}
