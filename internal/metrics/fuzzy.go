// fuzzy.go - Edit-distance matching for labels OCR got slightly wrong

package metrics

import "math"

// fuzzyThreshold is the minimum similarity for a near-miss label to count.
const fuzzyThreshold = 0.8

// minFuzzyLength keeps short labels like "side" exact-match only.
const minFuzzyLength = 5

// closestAlias returns the definition whose alias is most similar to name
// ("carrv" -> carry, "bal speed" -> ball speed). name must be normalized.
func closestAlias(name string) (*Definition, float64) {
	if len([]rune(name)) < minFuzzyLength {
		return nil, 0
	}
	var best *Definition
	bestScore := 0.0
	for _, e := range aliasesLongestFirst {
		if score := similarity(name, e.alias); score > bestScore {
			best, bestScore = e.def, score
		}
	}
	if bestScore < fuzzyThreshold {
		return nil, bestScore
	}
	return best, bestScore
}

// similarity is 1 - levenshtein/maxLen over runes, in [0,1].
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	return math.Max(0, 1-float64(levenshtein(ra, rb))/float64(maxLen))
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
