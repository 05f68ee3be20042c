// runner.go - Fan out preprocessing variants across recognition engines and pick a winner

package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/processor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultEngineTimeout      = 30 * time.Second
	DefaultMaxSourceDimension = 2000
)

// Isolator flattens background pixels to white. It never fails: when it
// cannot segment it returns its input and applied=false.
type Isolator interface {
	Isolate(ctx context.Context, img processor.RasterImage) (out processor.RasterImage, applied bool)
}

// RunnerConfig wires engines and preprocessing. Zero values get defaults.
type RunnerConfig struct {
	Engines  []Engine
	Isolator Isolator
	// Pipelines are the advanced variants; nil uses processor.AdvancedPipelines.
	// The baseline variant always runs in addition.
	Pipelines          []processor.ProcessingPipeline
	EngineTimeout      time.Duration
	MaxConcurrency     int
	MaxSourceDimension int
	Format             processor.Format
	Logger             *logrus.Entry
}

// Runner executes every enabled variant against every enabled engine.
type Runner struct {
	cfg RunnerConfig
}

// VariantReport describes one preprocessing variant.
type VariantReport struct {
	Pipeline string `json:"pipeline" bson:"pipeline"`
	Steps    string `json:"steps" bson:"steps"`
	Width    int    `json:"width" bson:"width"`
	Height   int    `json:"height" bson:"height"`
	PrepMs   int64  `json:"prep_ms" bson:"prep_ms"`
	Error    string `json:"error,omitempty" bson:"error,omitempty"`
}

// RunResult is the winner plus diagnostics for every attempt.
type RunResult struct {
	Best               OcrResult
	Ranked             []OcrResult
	Failures           []*EngineExecutionError
	Skipped            []*EngineUnavailableError
	Variants           []VariantReport
	Mode               Mode
	BackgroundIsolated bool
	SourceWidth        int
	SourceHeight       int
	SourceQuality      float64
	DurationMs         int64
}

// Text returns the winning transcription.
func (r *RunResult) Text() string { return r.Best.Text }

// NewRunner applies defaults to cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = DefaultEngineTimeout
	}
	if cfg.MaxSourceDimension <= 0 {
		cfg.MaxSourceDimension = DefaultMaxSourceDimension
	}
	if cfg.Pipelines == nil {
		cfg.Pipelines = processor.AdvancedPipelines()
	}
	if cfg.Format == "" {
		cfg.Format = processor.FormatPNG
	}
	cfg.Engines = append([]Engine(nil), cfg.Engines...)
	return &Runner{cfg: cfg}
}

// Engines returns the configured engine ids in attempt order.
func (r *Runner) Engines() []EngineID {
	ids := make([]EngineID, len(r.cfg.Engines))
	for i, e := range r.cfg.Engines {
		ids[i] = e.ID()
	}
	return ids
}

type attemptOutcome struct {
	order  int
	result OcrResult
	err    *EngineExecutionError
}

// Run decodes data and returns the best transcription. Only an undecodable
// image (*InvalidImageError) or a run with zero successful attempts
// (*AllEnginesFailedError) is reported as an error.
func (r *Runner) Run(ctx context.Context, data []byte, opts Options) (*RunResult, error) {
	start := time.Now()
	log := r.logger(ctx)

	if opts.Mode == "" {
		opts.Mode = ModeText
	}
	if opts.Mode != ModeText && opts.Mode != ModeStructured {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	src, err := processor.DecodeRaster(data)
	if err != nil {
		return nil, &InvalidImageError{Cause: err}
	}
	if src, err = processor.FitWithin(src, r.cfg.MaxSourceDimension); err != nil {
		return nil, &InvalidImageError{Cause: err}
	}

	res := &RunResult{
		Mode:          opts.Mode,
		SourceWidth:   src.Width(),
		SourceHeight:  src.Height(),
		SourceQuality: processor.AnalyzeQuality(src),
	}

	engines, skipped := r.selectEngines(opts)
	res.Skipped = skipped
	for _, s := range skipped {
		log.WithField("engine", s.Engine).Info(s.Error())
	}
	if len(engines) == 0 {
		return nil, &AllEnginesFailedError{Skipped: skipped}
	}

	variants := []processor.ProcessingPipeline{processor.BaselinePipeline()}
	if opts.EnableAdvancedPreprocessing {
		variants = append(variants, r.cfg.Pipelines...)
	}
	res.Variants = make([]VariantReport, len(variants))

	var (
		mu       sync.Mutex
		outcomes []attemptOutcome
		g        errgroup.Group
	)
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}

	launch := func(variantIdx int, img EncodedImage) {
		for engineIdx, eng := range engines {
			order := variantIdx*len(engines) + engineIdx
			g.Go(func() error {
				out := r.attempt(ctx, eng, img, opts.Mode)
				out.order = order
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
				return nil
			})
		}
	}

	prepare := func(idx int, p processor.ProcessingPipeline, base processor.RasterImage) {
		t := time.Now()
		report := VariantReport{Pipeline: p.Name(), Steps: p.Describe()}
		defer func() { res.Variants[idx] = report }()

		out, err := p.Apply(base)
		var (
			encoded []byte
			mime    string
		)
		if err == nil {
			report.Width, report.Height = out.Width(), out.Height()
			encoded, mime, err = processor.Encode(out, r.cfg.Format)
		}
		report.PrepMs = time.Since(t).Milliseconds()
		if err != nil {
			report.Error = err.Error()
			log.WithField("pipeline", p.Name()).WithError(err).Warn("preprocessing variant dropped")
			return
		}
		launch(idx, EncodedImage{Data: encoded, MIMEType: mime, Pipeline: p.Name()})
	}

	var prep sync.WaitGroup
	prep.Add(1)
	go func() {
		defer prep.Done()
		prepare(0, variants[0], src)
	}()

	if len(variants) > 1 {
		prep.Add(1)
		go func() {
			defer prep.Done()
			isolated := src
			if r.cfg.Isolator != nil {
				isolated, res.BackgroundIsolated = r.cfg.Isolator.Isolate(ctx, src.Clone())
			}
			var inner sync.WaitGroup
			for i, p := range variants[1:] {
				inner.Add(1)
				go func() {
					defer inner.Done()
					prepare(i+1, p, isolated)
				}()
			}
			inner.Wait()
		}()
	}

	// Every g.Go call happens inside prepare, so Wait is safe once prep is done.
	prep.Wait()
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].order < outcomes[j].order })
	var results []OcrResult
	for _, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, o.err)
			continue
		}
		results = append(results, o.result)
	}

	res.DurationMs = time.Since(start).Milliseconds()
	if len(results) == 0 {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ocr run aborted: %w", ctx.Err())
		}
		return nil, &AllEnginesFailedError{Failures: res.Failures, Skipped: skipped}
	}

	ids := make([]EngineID, len(engines))
	for i, e := range engines {
		ids[i] = e.ID()
	}
	res.Best, _ = chooseWinner(results, ids, opts.preferred())
	res.Ranked = Rank(results)

	log.WithFields(logrus.Fields{
		"engine":      res.Best.Engine,
		"pipeline":    res.Best.Pipeline,
		"chars":       utf8.RuneCountInString(res.Best.Text),
		"attempts":    len(outcomes),
		"failures":    len(res.Failures),
		"skipped":     len(skipped),
		"duration_ms": res.DurationMs,
	}).Info("ocr run finished")

	return res, nil
}

func (r *Runner) selectEngines(opts Options) (selected []Engine, skipped []*EngineUnavailableError) {
	for _, e := range r.cfg.Engines {
		if !opts.engineEnabled(e.ID()) {
			continue
		}
		if !e.Available() {
			skipped = append(skipped, &EngineUnavailableError{Engine: e.ID(), Reason: "availability probe returned false"})
			continue
		}
		if opts.Mode == ModeStructured {
			if _, ok := e.(StructuredEngine); !ok {
				skipped = append(skipped, &EngineUnavailableError{Engine: e.ID(), Reason: "structured extraction not supported"})
				continue
			}
		}
		selected = append(selected, e)
	}
	return selected, skipped
}

// attempt runs one engine on one variant under its own deadline. The engine
// call is raced against the deadline so a backend that ignores ctx cannot
// hold up the batch.
func (r *Runner) attempt(ctx context.Context, eng Engine, img EncodedImage, mode Mode) attemptOutcome {
	log := r.logger(ctx).WithFields(logrus.Fields{"engine": eng.ID(), "pipeline": img.Pipeline})

	actx, cancel := context.WithTimeout(ctx, r.cfg.EngineTimeout)
	defer cancel()

	type reply struct {
		rec Recognition
		err error
	}
	done := make(chan reply, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		var rep reply
		if se, ok := eng.(StructuredEngine); ok && mode == ModeStructured {
			rep.rec, rep.err = se.RecognizeStructured(actx, img)
		} else {
			rep.rec, rep.err = eng.Recognize(actx, img)
		}
		done <- rep
	}()

	var rep reply
	select {
	case rep = <-done:
	case <-actx.Done():
		rep.err = actx.Err()
	}
	elapsed := time.Since(start).Milliseconds()

	if rep.err != nil {
		execErr := &EngineExecutionError{
			Engine:   eng.ID(),
			Pipeline: img.Pipeline,
			TimedOut: errors.Is(rep.err, context.DeadlineExceeded),
			Cause:    rep.err,
		}
		log.WithField("duration_ms", elapsed).WithError(rep.err).Warn("ocr attempt failed")
		return attemptOutcome{err: execErr}
	}

	log.WithFields(logrus.Fields{
		"chars":       utf8.RuneCountInString(rep.rec.Text),
		"duration_ms": elapsed,
	}).Info("ocr attempt finished")

	return attemptOutcome{result: OcrResult{
		Engine:           eng.ID(),
		Pipeline:         img.Pipeline,
		Text:             rep.rec.Text,
		Confidence:       rep.rec.Confidence,
		ProcessingTimeMs: elapsed,
		Detail:           rep.rec.Detail,
	}}
}

func (r *Runner) logger(ctx context.Context) *logrus.Entry {
	if common.RequestContextFrom(ctx) != nil || r.cfg.Logger == nil {
		return common.EntryFrom(ctx)
	}
	return r.cfg.Logger
}
