package extraction

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
	"github.com/bosocmputer/swing_ocr/internal/processor"
	"github.com/bosocmputer/swing_ocr/internal/segment"
)

// RunnerConfigFrom maps loaded settings onto the runner.
func RunnerConfigFrom(s configs.RunnerOptions, engines []ocr.Engine, isolator ocr.Isolator) (ocr.RunnerConfig, error) {
	pipelines, err := pipelinesFrom(s.Pipelines)
	if err != nil {
		return ocr.RunnerConfig{}, fmt.Errorf("PREPROCESSING_PIPELINES: %w", err)
	}
	return ocr.RunnerConfig{
		Engines:            engines,
		Isolator:           isolator,
		Pipelines:          pipelines,
		EngineTimeout:      s.EngineTimeout,
		MaxConcurrency:     s.MaxConcurrency,
		MaxSourceDimension: s.MaxSourceDimension,
	}, nil
}

// pipelinesFrom resolves a comma list of preset names. Empty keeps the
// runner default; baseline always runs and is not accepted here.
func pipelinesFrom(list string) ([]processor.ProcessingPipeline, error) {
	var out []processor.ProcessingPipeline
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == processor.PipelineBaseline {
			return nil, fmt.Errorf("%q always runs and cannot be listed", name)
		}
		p, ok := processor.PresetByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown preprocessing pipeline %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// DefaultOptionsFrom builds the per-call defaults from loaded settings.
func DefaultOptionsFrom(s configs.RunnerOptions) (ocr.Options, error) {
	opts := ocr.DefaultOptions()
	opts.EnableAdvancedPreprocessing = s.EnableAdvancedPreprocessing

	enabled, err := ocr.ParseEngineList(s.EnabledEngines)
	if err != nil {
		return ocr.Options{}, fmt.Errorf("ENABLED_ENGINES: %w", err)
	}
	opts.EnabledEngines = enabled

	if s.PreferredEngine != "" && s.PreferredEngine != string(ocr.PreferAuto) {
		id, err := ocr.ParseEngineID(s.PreferredEngine)
		if err != nil {
			return ocr.Options{}, fmt.Errorf("PREFERRED_ENGINE: %w", err)
		}
		opts.PreferredEngine = id
	}
	return opts, nil
}

// IsolatorConfigFrom maps loaded settings onto the isolator.
func IsolatorConfigFrom(s configs.IsolatorOptions) segment.Config {
	cfg := segment.DefaultConfig()
	cfg.ModelPath = s.ModelPath
	cfg.ModelURL = s.ModelURL
	cfg.AllowRemoteModelDownload = s.AllowRemoteModelDownload
	cfg.CacheInferenceResults = s.CacheInferenceResults
	cfg.MaskThreshold = float32(s.MaskThreshold)
	if s.CacheTTL > 0 {
		cfg.CacheTTL = s.CacheTTL
	}
	return cfg
}
