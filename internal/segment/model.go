// model.go - Locate or fetch the segmentation model file

package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
)

// ErrModelUnavailable means no model file exists and downloading is not allowed.
var ErrModelUnavailable = errors.New("segmentation model unavailable")

// EnsureModel returns cfg.ModelPath, downloading it from cfg.ModelURL first
// when it is missing and remote downloads are allowed.
func EnsureModel(ctx context.Context, cfg Config, client *http.Client) (string, error) {
	if cfg.ModelPath == "" {
		return "", fmt.Errorf("%w: no model path configured", ErrModelUnavailable)
	}
	if _, err := os.Stat(cfg.ModelPath); err == nil {
		return cfg.ModelPath, nil
	}
	if !cfg.AllowRemoteModelDownload {
		return "", fmt.Errorf("%w: %s not found and remote download disabled", ErrModelUnavailable, cfg.ModelPath)
	}
	if cfg.ModelURL == "" {
		return "", fmt.Errorf("%w: %s not found and no model URL configured", ErrModelUnavailable, cfg.ModelPath)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	common.Logger().WithField("url", cfg.ModelURL).Info("downloading segmentation model")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ModelURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ModelPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(cfg.ModelPath), ".model-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), cfg.ModelPath); err != nil {
		return "", fmt.Errorf("failed to install model: %w", err)
	}
	return cfg.ModelPath, nil
}
