// parse.go - Turn OCR text or model JSON into metric triples

package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// units recognised after a value, longest first.
var units = []struct{ token, canonical string }{
	{"km/h", "km/h"}, {"m/s", "m/s"}, {"mph", "mph"}, {"kph", "km/h"}, {"rpm", "rpm"},
	{"yds", "yds"}, {"deg", "deg"}, {"yd", "yds"}, {"ft", "ft"}, {"in", "in"},
	{"°", "deg"}, {"m", "m"}, {"s", "s"},
}

// ParseText scans whitespace-normalized OCR text for known metric names each
// followed by a signed number and an optional unit. Each metric is reported
// once, at its first occurrence; output is in text order.
func ParseText(text string) []StructuredMetric {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	claimed := make([]bool, len(norm)+1)

	type hit struct {
		pos int
		m   StructuredMetric
	}
	var hits []hit
	found := map[string]bool{}

	for _, ae := range aliasesLongestFirst {
		if found[ae.def.Key] {
			continue
		}
		for from := 0; from < len(norm); {
			idx := strings.Index(norm[from:], ae.alias)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(ae.alias)
			from = start + 1
			if !isBoundary(norm, start-1) || !isBoundary(norm, end) || isClaimed(claimed, start, end) {
				continue
			}

			value, unit, consumed, ok := readValue(norm[end:])
			if !ok {
				continue
			}
			for i := start; i < end+consumed; i++ {
				claimed[i] = true
			}
			hits = append(hits, hit{pos: start, m: StructuredMetric{
				Title:      ae.def.Title,
				Value:      value,
				Descriptor: descriptorFor(ae.def, unit),
			}})
			found[ae.def.Key] = true
			break
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]StructuredMetric, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

// readValue reads "[:=] [unit] number [unit] [L|R]" from the start of s.
func readValue(s string) (value, unit string, consumed int, ok bool) {
	i := skipSeparators(s, 0)

	// Some screens print the unit between the label and the number.
	if u, n := matchUnit(s[i:]); n > 0 {
		unit = u
		i = skipSeparators(s, i+n)
	}

	num, rest, found := leadingNumber(s[i:])
	if !found {
		return "", "", 0, false
	}
	i += len(s[i:]) - len(rest)

	j := skipSpaces(s, i)
	if u, n := matchUnit(s[j:]); n > 0 {
		unit = u
		i = j + n
	}

	j = skipSpaces(s, i)
	if j < len(s) && (s[j] == 'l' || s[j] == 'r') && isBoundary(s, j+1) {
		unit = strings.TrimSpace(unit + " " + strings.ToUpper(s[j:j+1]))
		i = j + 1
	}
	return num, unit, i, true
}

// leadingNumber parses an optionally signed decimal at the start of s.
// Decimal commas and unicode minus signs are normalized.
func leadingNumber(s string) (num, rest string, ok bool) {
	var b strings.Builder
	i := 0
	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "+"):
		if s[0] == '-' {
			b.WriteByte('-')
		}
		i = 1
	case strings.HasPrefix(s, "−"):
		b.WriteByte('-')
		i = len("−")
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		b.WriteByte(s[i])
		i++
		digits++
	}
	if digits == 0 {
		return "", s, false
	}
	if i+1 < len(s) && (s[i] == '.' || s[i] == ',') && s[i+1] >= '0' && s[i+1] <= '9' {
		b.WriteByte('.')
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), s[i:], true
}

// matchUnit returns the canonical unit at the start of s (optionally wrapped
// in brackets) and the bytes it spans.
func matchUnit(s string) (string, int) {
	open := 0
	if strings.HasPrefix(s, "(") || strings.HasPrefix(s, "[") {
		open = 1
	}
	for _, u := range units {
		if !strings.HasPrefix(s[open:], u.token) {
			continue
		}
		n := open + len(u.token)
		if u.token != "°" && !isBoundary(s, n) {
			continue
		}
		if open == 1 && n < len(s) && (s[n] == ')' || s[n] == ']') {
			n++
		}
		return u.canonical, n
	}
	return "", 0
}

func descriptorFor(d *Definition, unit string) string {
	switch {
	case unit == "":
		return d.Unit
	case unit == "L" || unit == "R":
		return strings.TrimSpace(d.Unit + " " + unit)
	}
	return unit
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}

func isClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

func skipSeparators(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == ':' || s[i] == '=') {
		i++
	}
	return i
}

type jsonMetric struct {
	Title      flexString `json:"title"`
	Value      flexString `json:"value"`
	Descriptor flexString `json:"descriptor"`
}

// ParseJSON reads the cloud model's [{title,value,descriptor}] payload,
// tolerating markdown code fences, leading prose, a {"metrics": [...]}
// wrapper and unescaped control characters inside strings.
func ParseJSON(payload string) ([]StructuredMetric, error) {
	body := extractJSON(payload)
	if body == "" {
		return nil, fmt.Errorf("no JSON found in model output")
	}

	items, err := decodeMetricList(body)
	if err != nil {
		repaired := RepairJSONEscapes(body)
		if items, err = decodeMetricList(repaired); err != nil {
			return nil, fmt.Errorf("failed to parse metrics JSON: %w", err)
		}
	}

	list := make(StructuredTripleList, 0, len(items))
	for _, it := range items {
		list = append(list, StructuredMetric{Title: string(it.Title), Value: string(it.Value), Descriptor: string(it.Descriptor)})
	}
	return ToStructured(list)
}

func decodeMetricList(body string) ([]jsonMetric, error) {
	var items []jsonMetric
	if strings.HasPrefix(body, "{") {
		var wrapper struct {
			Metrics []jsonMetric `json:"metrics"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, err
		}
		return wrapper.Metrics, nil
	}
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start := strings.IndexByte(s, '['); start >= 0 && (strings.IndexByte(s, '{') < 0 || start < strings.IndexByte(s, '{')) {
		if end := strings.LastIndexByte(s, ']'); end > start {
			return s[start : end+1]
		}
	}
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			return s[start : end+1]
		}
	}
	return ""
}

// numberOf returns the normalized number a value string starts with.
func numberOf(s string) (string, bool) {
	n, _, ok := leadingNumber(strings.TrimSpace(s))
	return n, ok
}
