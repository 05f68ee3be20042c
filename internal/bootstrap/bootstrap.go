// Package bootstrap assembles the recognition service from loaded settings.
// Both the API server and the queue worker start through Build.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/extraction"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/segment"
	"github.com/bosocmputer/swing_ocr/internal/segment/onnx"
	"github.com/bosocmputer/swing_ocr/internal/storage"
	"github.com/sirupsen/logrus"
)

// App owns every long-lived client.
type App struct {
	Service  *extraction.Service
	Defaults ocr.Options
	Isolator *segment.Isolator

	closers []func(context.Context) error
	stop    chan struct{}
}

// Build loads nothing itself: configs.LoadConfig must already have run.
func Build(ctx context.Context) (*App, error) {
	if err := configs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := common.Logger()
	app := &App{stop: make(chan struct{})}

	defaults, err := extraction.DefaultOptionsFrom(configs.RunnerSettings())
	if err != nil {
		return nil, err
	}
	app.Defaults = defaults

	engines, err := BuildEngines(ctx, EngineSettingsFromConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build engines: %w", err)
	}
	app.onClose(func(context.Context) error { return engines.Close() })

	app.Isolator = app.buildIsolator(ctx)

	var runs extraction.RunStore
	if configs.MONGO_URI != "" {
		store, err := storage.ConnectMongo(ctx, configs.MONGO_URI, configs.MONGO_DB_NAME)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.onClose(store.Close)
		runs = store
	} else {
		log.Warn("MONGO_URI not set, run diagnostics will not be stored")
	}

	var metricRows extraction.MetricStore
	if configs.DATABASE_URL != "" {
		store, err := storage.OpenPostgres(ctx, configs.DATABASE_URL)
		if err == nil {
			err = store.EnsureSchema(ctx)
		}
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.onClose(func(context.Context) error { return store.Close() })
		metricRows = store
	} else {
		log.Warn("DATABASE_URL not set, metric rows will not be stored")
	}

	runnerCfg, err := extraction.RunnerConfigFrom(configs.RunnerSettings(), engines.List, app.Isolator)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	runner := ocr.NewRunner(runnerCfg)
	log.WithFields(logrus.Fields{
		"engines":  runner.Engines(),
		"defaults": fmt.Sprintf("%+v", app.Defaults),
	}).Info("recognition runner ready")
	app.Service = extraction.NewService(runner, runs, metricRows)
	return app, nil
}

// buildIsolator loads the segmentation model. Without one, isolation is an
// identity and the run continues on the unmasked image.
func (a *App) buildIsolator(ctx context.Context) *segment.Isolator {
	log := common.Logger()
	cfg := extraction.IsolatorConfigFrom(configs.IsolatorSettings())

	var seg segment.Segmenter
	if cfg.ModelPath != "" || cfg.ModelURL != "" {
		s, err := onnx.Load(ctx, cfg, onnx.DefaultOptions())
		if err != nil {
			log.WithError(err).Warn("segmentation model unavailable, background isolation disabled")
		} else {
			a.onClose(func(context.Context) error { return s.Close() })
			seg = s
		}
	}

	var cache segment.MaskCache
	if cfg.CacheInferenceResults {
		cache = a.maskCache(ctx, cfg.CacheTTL)
	}
	return segment.NewIsolator(cfg, seg, cache)
}

func (a *App) maskCache(ctx context.Context, ttl time.Duration) segment.MaskCache {
	if configs.REDIS_URL != "" {
		c, err := storage.NewRedisMaskCache(ctx, configs.REDIS_URL)
		if err == nil {
			a.onClose(func(context.Context) error { return c.Close() })
			return c
		}
		common.Logger().WithError(err).Warn("redis mask cache unavailable, using memory cache")
	}

	c := storage.NewMemoryMaskCache()
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Purge(); n > 0 {
					common.Logger().WithField("purged", n).Debug("mask cache purged")
				}
			case <-a.stop:
				return
			}
		}
	}()
	return c
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	select {
	case <-a.stop:
		return nil
	default:
		close(a.stop)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
