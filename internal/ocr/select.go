// select.go - Winner selection heuristics

package ocr

import (
	"sort"
	"unicode/utf8"
)

// QualityScore is text length in characters minus one point per second of
// processing time.
func QualityScore(r OcrResult) float64 {
	return float64(utf8.RuneCountInString(r.Text)) - float64(r.ProcessingTimeMs)/1000
}

// SelectBest returns the result with the highest QualityScore. Ties keep the
// earliest result in input order. ok is false for an empty slice.
func SelectBest(results []OcrResult) (best OcrResult, ok bool) {
	for i, r := range results {
		if i == 0 || QualityScore(r) > QualityScore(best) {
			best = r
		}
	}
	return best, len(results) > 0
}

// SelectLongest returns the result with the most characters, first wins on ties.
func SelectLongest(results []OcrResult) (best OcrResult, ok bool) {
	bestLen := -1
	for _, r := range results {
		if n := utf8.RuneCountInString(r.Text); n > bestLen {
			best, bestLen = r, n
		}
	}
	return best, len(results) > 0
}

// Rank returns a copy of results ordered by QualityScore, highest first.
// Equal scores keep their input order.
func Rank(results []OcrResult) []OcrResult {
	ranked := append([]OcrResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return QualityScore(ranked[i]) > QualityScore(ranked[j])
	})
	return ranked
}

// chooseWinner applies the two stage policy: the longest text per engine
// across pipelines, then the best quality score across engines. A preferred
// engine that produced anything wins outright.
func chooseWinner(results []OcrResult, engineOrder []EngineID, preferred EngineID) (OcrResult, bool) {
	perEngine := make([]OcrResult, 0, len(engineOrder))
	for _, id := range engineOrder {
		var mine []OcrResult
		for _, r := range results {
			if r.Engine == id {
				mine = append(mine, r)
			}
		}
		best, ok := SelectLongest(mine)
		if !ok {
			continue
		}
		if id == preferred {
			return best, true
		}
		perEngine = append(perEngine, best)
	}
	return SelectBest(perEngine)
}

// InformationScore is characters × confidence, used to compare configurations
// of a single engine. A nil confidence counts as 1, so unscored output is
// ranked on length alone.
func InformationScore(text string, confidence *float64) float64 {
	c := 1.0
	if confidence != nil {
		c = *confidence
	}
	return float64(utf8.RuneCountInString(text)) * c
}
