// pipeline.go - Named, ordered preprocessing pipelines

package processor

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Step is a single named transform in a pipeline.
type Step struct {
	Name  string
	Apply func(RasterImage) (RasterImage, error)
}

// ProcessingPipeline is an ordered list of transforms. It is a value: the
// step list is copied on construction and never mutated afterwards.
type ProcessingPipeline struct {
	name  string
	steps []Step
}

// NewPipeline builds a pipeline from the given steps.
func NewPipeline(name string, steps ...Step) ProcessingPipeline {
	return ProcessingPipeline{name: name, steps: append([]Step(nil), steps...)}
}

// Name returns the pipeline identifier used in diagnostics.
func (p ProcessingPipeline) Name() string { return p.name }

// Describe renders the step chain, e.g. "blur→threshold→morphology".
func (p ProcessingPipeline) Describe() string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return strings.Join(names, "→")
}

// Apply runs every step in order on a private copy of img.
func (p ProcessingPipeline) Apply(img RasterImage) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	cur := img.Clone()
	for _, s := range p.steps {
		next, err := s.Apply(cur)
		if err != nil {
			return RasterImage{}, fmt.Errorf("pipeline %s step %s: %w", p.name, s.Name, err)
		}
		cur = next
	}
	return cur, nil
}

// Step constructors.

func UpscaleStep(factor float64) Step {
	return Step{Name: "upscale", Apply: func(r RasterImage) (RasterImage, error) {
		return upscaleWithin(r, factor, maxUpscaledDimension)
	}}
}

func GrayscaleContrastStep(boost float64) Step {
	return Step{Name: "grayscale", Apply: func(r RasterImage) (RasterImage, error) { return GrayscaleAndContrast(r, boost) }}
}

func BlurStep(radius float64) Step {
	return Step{Name: "blur", Apply: func(r RasterImage) (RasterImage, error) { return GaussianBlur(r, radius) }}
}

func EdgeStep() Step {
	return Step{Name: "edge", Apply: EdgeEnhance}
}

func ThresholdStep(windowRadius int) Step {
	return Step{Name: "threshold", Apply: func(r RasterImage) (RasterImage, error) { return AdaptiveThreshold(r, windowRadius) }}
}

func MorphologyStep() Step {
	return Step{Name: "morphology", Apply: MorphologicalOpen}
}

// upscaleWithin enlarges img by factor, reduced so the longest side stays
// within maxDim. An image already at or above maxDim is returned as a copy.
func upscaleWithin(img RasterImage, factor float64, maxDim int) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	if limit := float64(maxDim) / float64(max(img.Width(), img.Height())); factor > limit {
		factor = limit
	}
	if factor <= 1 {
		return img.Clone(), nil
	}
	return ResizeUpscale(img, factor)
}

// Preset names.
const (
	PipelineBaseline                = "baseline"
	PipelineThresholdOnly           = "threshold-only"
	PipelineEdgeThreshold           = "edge-threshold"
	PipelineBlurThresholdMorphology = "blur-threshold-morphology"
	PipelineFull                    = "full"
)

const (
	// Longest side an upscale step may produce. Threshold and morphology
	// buffers scale with the pixel count, and several variants run at once.
	maxUpscaledDimension = 3000

	defaultUpscale        = 2.0
	defaultContrastBoost  = 1.5
	defaultThresholdRange = 15
	defaultBlurRadius     = 0.8
)

// BaselinePipeline is the plain grayscale+contrast pass that is always run.
func BaselinePipeline() ProcessingPipeline {
	return NewPipeline(PipelineBaseline, GrayscaleContrastStep(defaultContrastBoost))
}

// AdvancedPipelines returns the canvas-style variants. No single one is best
// for every photograph, so all of them are attempted.
func AdvancedPipelines() []ProcessingPipeline {
	return []ProcessingPipeline{
		NewPipeline(PipelineThresholdOnly,
			UpscaleStep(defaultUpscale),
			GrayscaleContrastStep(defaultContrastBoost),
			ThresholdStep(defaultThresholdRange),
		),
		NewPipeline(PipelineEdgeThreshold,
			UpscaleStep(defaultUpscale),
			EdgeStep(),
			GrayscaleContrastStep(defaultContrastBoost),
			ThresholdStep(defaultThresholdRange),
		),
		NewPipeline(PipelineBlurThresholdMorphology,
			UpscaleStep(defaultUpscale),
			GrayscaleContrastStep(defaultContrastBoost),
			BlurStep(defaultBlurRadius),
			ThresholdStep(defaultThresholdRange),
			MorphologyStep(),
		),
		NewPipeline(PipelineFull,
			UpscaleStep(defaultUpscale),
			GrayscaleContrastStep(defaultContrastBoost),
			BlurStep(defaultBlurRadius/2),
			EdgeStep(),
			ThresholdStep(defaultThresholdRange),
			MorphologyStep(),
		),
	}
}

// PresetByName looks up a preset, including the baseline.
func PresetByName(name string) (ProcessingPipeline, bool) {
	if name == PipelineBaseline {
		return BaselinePipeline(), true
	}
	for _, p := range AdvancedPipelines() {
		if p.Name() == name {
			return p, true
		}
	}
	return ProcessingPipeline{}, false
}

// FitWithin shrinks the image so neither side exceeds maxDimension, keeping
// the aspect ratio. Smaller images are returned as a copy.
func FitWithin(img RasterImage, maxDimension int) (RasterImage, error) {
	if err := img.validate(); err != nil {
		return RasterImage{}, err
	}
	if maxDimension <= 0 || (img.Width() <= maxDimension && img.Height() <= maxDimension) {
		return img.Clone(), nil
	}
	if img.Width() > img.Height() {
		return RasterImage{NRGBA: imaging.Resize(img.NRGBA, maxDimension, 0, imaging.Lanczos)}, nil
	}
	return RasterImage{NRGBA: imaging.Resize(img.NRGBA, 0, maxDimension, imaging.Lanczos)}, nil
}
