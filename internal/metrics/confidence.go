// confidence.go - Weighted confidence score for an extracted swing
//
// Combines what the engine reported with cross-checks on the extracted
// values so that a reviewer knows which uploads need a second look.

package metrics

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/ocr"
)

// ConfidenceFactors are each scored 0-100.
type ConfidenceFactors struct {
	EngineConfidence float64 `json:"engine_confidence" bson:"engine_confidence"`
	EngineAgreement  float64 `json:"engine_agreement" bson:"engine_agreement"`
	Completeness     float64 `json:"completeness" bson:"completeness"`
	ValueValidity    float64 `json:"value_validity" bson:"value_validity"`
}

// ConfidenceWeights must sum to 1.0.
type ConfidenceWeights struct {
	EngineConfidence float64
	EngineAgreement  float64
	Completeness     float64
	ValueValidity    float64
}

var DefaultWeights = ConfidenceWeights{
	EngineConfidence: 0.30,
	EngineAgreement:  0.30,
	Completeness:     0.25,
	ValueValidity:    0.15,
}

// unscoredEngineConfidence is assumed for engines that report no confidence.
const unscoredEngineConfidence = 70.0

// coreMetrics are the numbers every launch monitor screen shows.
var coreMetrics = []string{"club_speed", "ball_speed", "smash_factor", "launch_angle", "spin_rate", "carry"}

// plausible ranges for validation; keys without a range only need to parse.
var plausible = map[string][2]float64{
	"club_speed":       {20, 160},
	"ball_speed":       {10, 220},
	"smash_factor":     {0.5, 1.6},
	"attack_angle":     {-15, 15},
	"club_path":        {-20, 20},
	"face_angle":       {-20, 20},
	"face_to_path":     {-20, 20},
	"dynamic_loft":     {-5, 70},
	"launch_angle":     {-10, 70},
	"launch_direction": {-45, 45},
	"spin_rate":        {0, 15000},
	"spin_axis":        {-90, 90},
	"carry":            {0, 420},
	"total":            {0, 450},
	"height":           {0, 200},
	"land_angle":       {0, 90},
}

// ConfidenceResult is the scored outcome.
type ConfidenceResult struct {
	OverallScore   float64           `json:"overall_score" bson:"overall_score"`
	OverallLevel   string            `json:"overall_level" bson:"overall_level"`
	RequiresReview bool              `json:"requires_review" bson:"requires_review"`
	Factors        ConfidenceFactors `json:"factors" bson:"factors"`
	Breakdown      map[string]string `json:"breakdown" bson:"breakdown"`
}

// CalculateConfidence scores the winning transcription against the rest of
// the run and the metrics parsed from it. reqCtx may be nil.
func CalculateConfidence(winner ocr.OcrResult, all []ocr.OcrResult, parsed []StructuredMetric, reqCtx *common.RequestContext) ConfidenceResult {
	factors := ConfidenceFactors{
		EngineConfidence: engineConfidenceScore(winner),
		EngineAgreement:  agreementScore(winner, all, parsed),
		Completeness:     completenessScore(parsed),
		ValueValidity:    validityScore(parsed),
	}

	overall := factors.EngineConfidence*DefaultWeights.EngineConfidence +
		factors.EngineAgreement*DefaultWeights.EngineAgreement +
		factors.Completeness*DefaultWeights.Completeness +
		factors.ValueValidity*DefaultWeights.ValueValidity
	overall = math.Round(overall*100) / 100

	level := determineConfidenceLevel(overall)
	review := overall < 70 || factors.Completeness < 50 || factors.ValueValidity < 80

	if reqCtx != nil {
		reqCtx.LogInfo("confidence: engine=%.1f agreement=%.1f completeness=%.1f validity=%.1f overall=%.1f (%s) review=%v",
			factors.EngineConfidence, factors.EngineAgreement, factors.Completeness, factors.ValueValidity, overall, level, review)
	}

	return ConfidenceResult{
		OverallScore:   overall,
		OverallLevel:   level,
		RequiresReview: review,
		Factors:        factors,
		Breakdown:      breakdown(factors, len(parsed)),
	}
}

func engineConfidenceScore(r ocr.OcrResult) float64 {
	if r.Confidence == nil {
		return unscoredEngineConfidence
	}
	return math.Round(math.Max(0, math.Min(1, *r.Confidence))*1000) / 10
}

var numberToken = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// agreementScore is the share of the winner's metric values that some other
// attempt also read. With nothing to compare against it is neutral (50).
func agreementScore(winner ocr.OcrResult, all []ocr.OcrResult, parsed []StructuredMetric) float64 {
	if len(parsed) == 0 {
		return 0
	}
	var others []map[string]bool
	for _, r := range all {
		if r.Engine == winner.Engine && r.Pipeline == winner.Pipeline {
			continue
		}
		seen := map[string]bool{}
		for _, tok := range numberToken.FindAllString(r.Text, -1) {
			if n, ok := numberOf(tok); ok {
				seen[n] = true
			}
		}
		others = append(others, seen)
	}
	if len(others) == 0 {
		return 50
	}

	agreed := 0
	for _, m := range parsed {
		n, ok := numberOf(m.Value)
		if !ok {
			continue
		}
		for _, seen := range others {
			if seen[n] {
				agreed++
				break
			}
		}
	}
	return math.Round(float64(agreed)/float64(len(parsed))*1000) / 10
}

func completenessScore(parsed []StructuredMetric) float64 {
	have := map[string]bool{}
	for _, m := range parsed {
		if k, ok := Canonicalize(m.Title); ok {
			have[k] = true
		}
	}
	n := 0
	for _, k := range coreMetrics {
		if have[k] {
			n++
		}
	}
	return math.Round(float64(n)/float64(len(coreMetrics))*1000) / 10
}

func validityScore(parsed []StructuredMetric) float64 {
	if len(parsed) == 0 {
		return 0
	}
	valid := 0
	for _, m := range parsed {
		n, ok := numberOf(m.Value)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(n, 64)
		if err != nil {
			continue
		}
		k, known := Canonicalize(m.Title)
		if r, ranged := plausible[k]; known && ranged && (v < r[0] || v > r[1]) {
			continue
		}
		valid++
	}
	return math.Round(float64(valid)/float64(len(parsed))*1000) / 10
}

func determineConfidenceLevel(score float64) string {
	switch {
	case score >= 95:
		return "very_high"
	case score >= 85:
		return "high"
	case score >= 70:
		return "medium"
	case score >= 50:
		return "low"
	default:
		return "very_low"
	}
}

func breakdown(f ConfidenceFactors, metricCount int) map[string]string {
	b := map[string]string{}

	if f.EngineAgreement >= 80 {
		b["engine_agreement"] = "other attempts read the same values"
	} else if f.EngineAgreement >= 50 {
		b["engine_agreement"] = "some values were only read once"
	} else {
		b["engine_agreement"] = "attempts disagree on most values"
	}

	b["completeness"] = fmt.Sprintf("%d metrics extracted, %.0f%% of core metrics present", metricCount, f.Completeness)

	if f.ValueValidity >= 90 {
		b["value_validity"] = "all values within expected ranges"
	} else {
		b["value_validity"] = "some values are outside expected ranges"
	}
	return b
}
