// types.go - Metric triples and the raw input variants they are built from

package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StructuredMetric is the normalized shape every consumer expects.
type StructuredMetric struct {
	Title      string `json:"title" bson:"title"`
	Value      string `json:"value" bson:"value"`
	Descriptor string `json:"descriptor" bson:"descriptor"`
}

// RawMetricInput is either a LegacyKeyedRecord or a StructuredTripleList.
type RawMetricInput interface {
	rawMetricInput()
}

// LegacyKeyedRecord is the older free-form shape, e.g.
// {"clubSpeed": 95.2, "ballSpeed": "140.1 mph"}.
type LegacyKeyedRecord map[string]any

// StructuredTripleList is already in {title, value, descriptor} form.
type StructuredTripleList []StructuredMetric

func (LegacyKeyedRecord) rawMetricInput()    {}
func (StructuredTripleList) rawMetricInput() {}

// ToStructured converts either input variant into metric triples.
func ToStructured(in RawMetricInput) ([]StructuredMetric, error) {
	switch v := in.(type) {
	case StructuredTripleList:
		out := make([]StructuredMetric, 0, len(v))
		for _, m := range v {
			m.Title = strings.TrimSpace(m.Title)
			if m.Title == "" {
				continue
			}
			m.Value = strings.TrimSpace(m.Value)
			m.Descriptor = strings.TrimSpace(m.Descriptor)
			out = append(out, m)
		}
		return out, nil
	case LegacyKeyedRecord:
		return fromLegacy(v), nil
	case nil:
		return nil, errors.New("nil metric input")
	default:
		return nil, fmt.Errorf("unsupported metric input %T", in)
	}
}

func fromLegacy(rec LegacyKeyedRecord) []StructuredMetric {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// Known metrics in display order, then unknown names alphabetically.
	rank := func(k string) int {
		if ck, ok := Canonicalize(k); ok {
			for i, d := range definitions {
				if d.Key == ck {
					return i
				}
			}
		}
		return len(definitions)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	out := make([]StructuredMetric, 0, len(keys))
	for _, k := range keys {
		value, unit, ok := legacyValue(rec[k])
		if !ok {
			continue
		}
		m := StructuredMetric{Title: humanize(k), Value: value, Descriptor: unit}
		if ck, known := Canonicalize(k); known {
			d := byKey[ck]
			m.Title = d.Title
			if m.Descriptor == "" {
				m.Descriptor = d.Unit
			}
		}
		out = append(out, m)
	}
	return out
}

func legacyValue(v any) (value, unit string, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", "", false
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", "", false
		}
		if n, rest, found := leadingNumber(s); found {
			u, _ := matchUnit(strings.ToLower(strings.TrimSpace(rest)))
			return n, u, true
		}
		return s, "", true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), "", true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), "", true
	case int:
		return strconv.Itoa(x), "", true
	case int64:
		return strconv.FormatInt(x, 10), "", true
	case json.Number:
		return x.String(), "", true
	default:
		return fmt.Sprintf("%v", x), "", true
	}
}

func humanize(key string) string {
	words := strings.Fields(normalizeName(key))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexString(v)
	case json.Number:
		*f = flexString(v.String())
	default:
		*f = flexString(fmt.Sprintf("%v", v))
	}
	return nil
}
