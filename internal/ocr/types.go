// types.go - Engine contract and result types shared by the recognition pipeline

package ocr

import (
	"context"
	"fmt"
	"strings"
)

// EngineID names a recognition backend.
type EngineID string

const (
	EngineLocalOCR    EngineID = "local-ocr"
	EngineCloudVision EngineID = "cloud-vision"
	EngineCloudOCRAlt EngineID = "cloud-ocr-alt"

	// PreferAuto lets the scoring heuristic pick the winner.
	PreferAuto EngineID = "auto"
)

// KnownEngines lists every backend the runner understands, in default order.
func KnownEngines() []EngineID {
	return []EngineID{EngineLocalOCR, EngineCloudVision, EngineCloudOCRAlt}
}

// ParseEngineID validates a user supplied engine name.
func ParseEngineID(s string) (EngineID, error) {
	id := EngineID(strings.ToLower(strings.TrimSpace(s)))
	if id == PreferAuto {
		return id, nil
	}
	for _, known := range KnownEngines() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// ParseEngineList parses a comma separated list, ignoring blanks. An empty
// list returns nil, meaning "all available".
func ParseEngineList(s string) ([]EngineID, error) {
	var out []EngineID
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseEngineID(part)
		if err != nil {
			return nil, err
		}
		if id == PreferAuto {
			return nil, fmt.Errorf("%q is not an engine", part)
		}
		out = append(out, id)
	}
	return out, nil
}

// Mode selects free-text transcription or structured metric extraction.
type Mode string

const (
	ModeText       Mode = "text"
	ModeStructured Mode = "structured"
)

// EncodedImage is a processed variant serialized for submission to an engine.
type EncodedImage struct {
	Data     []byte
	MIMEType string
	// Pipeline is the preprocessing variant that produced Data.
	Pipeline string
}

// Recognition is what an engine returns for one image.
type Recognition struct {
	Text string
	// Confidence in [0,1]; nil when the backend does not report one.
	Confidence *float64
	// Detail is a short engine specific note, e.g. the winning tesseract config.
	Detail string
}

// Engine is a recognition backend. Implementations must be safe for
// concurrent use and must honour ctx cancellation where the backend allows.
type Engine interface {
	ID() EngineID
	Available() bool
	Recognize(ctx context.Context, img EncodedImage) (Recognition, error)
}

// StructuredEngine can also return a JSON array of {title,value,descriptor}.
type StructuredEngine interface {
	Engine
	RecognizeStructured(ctx context.Context, img EncodedImage) (Recognition, error)
}

// OcrResult is one successful (pipeline, engine) attempt.
type OcrResult struct {
	Engine           EngineID `json:"engine" bson:"engine"`
	Pipeline         string   `json:"pipeline" bson:"pipeline"`
	Text             string   `json:"text" bson:"text"`
	Confidence       *float64 `json:"confidence,omitempty" bson:"confidence,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms" bson:"processing_time_ms"`
	Detail           string   `json:"detail,omitempty" bson:"detail,omitempty"`
}

// Options are the per-call knobs.
type Options struct {
	EnableAdvancedPreprocessing bool
	// EnabledEngines restricts the attempt set; nil means every available engine.
	EnabledEngines []EngineID
	// PreferredEngine is a hint; "" or "auto" uses the scoring heuristic.
	PreferredEngine EngineID
	Mode            Mode
}

// DefaultOptions returns advanced preprocessing on, all engines, auto, text.
func DefaultOptions() Options {
	return Options{
		EnableAdvancedPreprocessing: true,
		PreferredEngine:             PreferAuto,
		Mode:                        ModeText,
	}
}

func (o Options) engineEnabled(id EngineID) bool {
	if len(o.EnabledEngines) == 0 {
		return true
	}
	for _, e := range o.EnabledEngines {
		if e == id {
			return true
		}
	}
	return false
}

func (o Options) preferred() EngineID {
	if o.PreferredEngine == "" {
		return PreferAuto
	}
	return o.PreferredEngine
}
