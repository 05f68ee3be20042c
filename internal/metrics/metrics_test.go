package metrics

import (
	"testing"

	"github.com/bosocmputer/swing_ocr/internal/ocr"
)

func metricMap(ms []StructuredMetric) map[string]StructuredMetric {
	out := map[string]StructuredMetric{}
	for _, m := range ms {
		out[m.Title] = m
	}
	return out
}

func TestParseTextLaunchMonitorScreen(t *testing.T) {
	text := "CLUB SPEED 95.2 mph\nBALL SPEED 140.1 mph  SMASH FACTOR 1.48\nTOTAL SPIN 2650 rpm TOTAL 260 yds\nSIDE 5.1 R"
	got := ParseText(text)

	wantOrder := []string{"Club Speed", "Ball Speed", "Smash Factor", "Spin Rate", "Total", "Side"}
	if len(got) != len(wantOrder) {
		t.Fatalf("ParseText returned %d metrics (%+v), want %d", len(got), got, len(wantOrder))
	}
	for i, title := range wantOrder {
		if got[i].Title != title {
			t.Fatalf("metric %d title = %q, want %q", i, got[i].Title, title)
		}
	}

	m := metricMap(got)
	checks := []struct{ title, value, desc string }{
		{"Club Speed", "95.2", "mph"},
		{"Ball Speed", "140.1", "mph"},
		{"Smash Factor", "1.48", ""},
		{"Spin Rate", "2650", "rpm"},
		{"Total", "260", "yds"},
		{"Side", "5.1", "yds R"},
	}
	for _, c := range checks {
		if m[c.title].Value != c.value || m[c.title].Descriptor != c.desc {
			t.Fatalf("%s = %+v, want value %q descriptor %q", c.title, m[c.title], c.value, c.desc)
		}
	}
}

func TestParseTextUnitBeforeNumberAndDecimalComma(t *testing.T) {
	got := metricMap(ParseText("Carry (m) 182,4  Launch Angle: −2.5°"))
	if c := got["Carry"]; c.Value != "182.4" || c.Descriptor != "m" {
		t.Fatalf("Carry = %+v", c)
	}
	if l := got["Launch Angle"]; l.Value != "-2.5" || l.Descriptor != "deg" {
		t.Fatalf("Launch Angle = %+v", l)
	}
}

func TestParseTextFirstOccurrenceWins(t *testing.T) {
	got := ParseText("carry 200 yds carry 210 yds")
	if len(got) != 1 || got[0].Value != "200" {
		t.Fatalf("ParseText = %+v, want single carry 200", got)
	}
}

func TestParseTextIgnoresLabelsWithoutValues(t *testing.T) {
	if got := ParseText("CLUB SPEED BALL SPEED -- SMASH"); len(got) != 0 {
		t.Fatalf("ParseText = %+v, want none", got)
	}
	if got := ParseText(""); len(got) != 0 {
		t.Fatalf("ParseText(\"\") = %+v", got)
	}
}

func TestParseJSONVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"plain", `[{"title":"Carry","value":"250.5","descriptor":"yds"}]`},
		{"fenced", "```json\n[{\"title\":\"Carry\",\"value\":\"250.5\",\"descriptor\":\"yds\"}]\n```"},
		{"prose", `Here are the numbers: [{"title":"Carry","value":"250.5","descriptor":"yds"}] hope it helps`},
		{"wrapper", `{"metrics":[{"title":"Carry","value":"250.5","descriptor":"yds"}]}`},
		{"numeric", `[{"title":"Carry","value":250.5,"descriptor":"yds"}]`},
		{"raw newline", "[{\"title\":\"Carry\",\"value\":\"250.5\",\"descriptor\":\"yds\n\"}]"},
	}
	for _, tc := range cases {
		got, err := ParseJSON(tc.payload)
		if err != nil {
			t.Fatalf("%s: ParseJSON error = %v", tc.name, err)
		}
		if len(got) != 1 || got[0] != (StructuredMetric{Title: "Carry", Value: "250.5", Descriptor: "yds"}) {
			t.Fatalf("%s: ParseJSON = %+v", tc.name, got)
		}
	}
}

func TestParseJSONRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "no json here", `[{"title": }]`} {
		if _, err := ParseJSON(payload); err == nil {
			t.Fatalf("ParseJSON(%q) expected error", payload)
		}
	}
}

func TestParseJSONNullsAndEmptyTitles(t *testing.T) {
	got, err := ParseJSON(`[{"title":"","value":"1"},{"title":" Smash ","value":null,"descriptor":null}]`)
	if err != nil {
		t.Fatalf("ParseJSON error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Smash" || got[0].Value != "" {
		t.Fatalf("ParseJSON = %+v", got)
	}
}

func TestToStructuredLegacyRecord(t *testing.T) {
	rec := LegacyKeyedRecord{
		"ballSpeed":   "140.1 mph",
		"clubSpeed":   95.2,
		"customThing": "abc",
		"empty":       nil,
	}
	got, err := ToStructured(rec)
	if err != nil {
		t.Fatalf("ToStructured error = %v", err)
	}
	want := []StructuredMetric{
		{Title: "Club Speed", Value: "95.2", Descriptor: "mph"},
		{Title: "Ball Speed", Value: "140.1", Descriptor: "mph"},
		{Title: "Custom Thing", Value: "abc"},
	}
	if len(got) != len(want) {
		t.Fatalf("ToStructured = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("metric %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestToStructuredTripleListAndNil(t *testing.T) {
	got, err := ToStructured(StructuredTripleList{{Title: "  Carry ", Value: " 250 ", Descriptor: " yds "}, {Title: "   "}})
	if err != nil {
		t.Fatalf("ToStructured error = %v", err)
	}
	if len(got) != 1 || got[0] != (StructuredMetric{Title: "Carry", Value: "250", Descriptor: "yds"}) {
		t.Fatalf("ToStructured = %+v", got)
	}
	if _, err := ToStructured(nil); err == nil {
		t.Fatalf("ToStructured(nil) expected error")
	}
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"Club Speed":      "club_speed",
		"clubSpeed":       "club_speed",
		"CLUB_SPEED":      "club_speed",
		"Angle of attack": "attack_angle",
		"launch_angle":    "launch_angle",
		"Total Spin":      "spin_rate",
		"apex":            "height",
	}
	for in, want := range cases {
		got, ok := Canonicalize(in)
		if !ok || got != want {
			t.Fatalf("Canonicalize(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := Canonicalize("favourite colour"); ok {
		t.Fatalf("Canonicalize accepted an unknown name")
	}
	if d, ok := Lookup("carry"); !ok || d.Unit != "yds" {
		t.Fatalf("Lookup(carry) = %+v, %v", d, ok)
	}
}

func TestRepairJSONEscapes(t *testing.T) {
	got := RepairJSONEscapes("{\"a\":\"x\ty\"}")
	if got != `{"a":"x\ty"}` {
		t.Fatalf("RepairJSONEscapes = %q", got)
	}
}

func TestCalculateConfidenceAgreeingRun(t *testing.T) {
	conf := 0.9
	text := "club speed 95.2 ball speed 140.1 smash factor 1.47 launch angle 12.5 spin 2650 carry 250"
	winner := ocr.OcrResult{Engine: ocr.EngineLocalOCR, Pipeline: "baseline", Text: text, Confidence: &conf}
	other := ocr.OcrResult{Engine: ocr.EngineCloudVision, Pipeline: "baseline", Text: text}
	parsed := ParseText(text)

	res := CalculateConfidence(winner, []ocr.OcrResult{winner, other}, parsed, nil)
	if res.Factors.EngineConfidence != 90 || res.Factors.EngineAgreement != 100 ||
		res.Factors.Completeness != 100 || res.Factors.ValueValidity != 100 {
		t.Fatalf("factors = %+v", res.Factors)
	}
	if res.OverallScore != 97 || res.OverallLevel != "very_high" || res.RequiresReview {
		t.Fatalf("result = %+v", res)
	}
}

func TestCalculateConfidenceEmptyNeedsReview(t *testing.T) {
	winner := ocr.OcrResult{Engine: ocr.EngineLocalOCR, Text: "???"}
	res := CalculateConfidence(winner, []ocr.OcrResult{winner}, nil, nil)
	if res.Factors.EngineConfidence != unscoredEngineConfidence {
		t.Fatalf("engine confidence = %v", res.Factors.EngineConfidence)
	}
	if !res.RequiresReview || res.OverallLevel != "very_low" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCalculateConfidenceOutOfRangeValue(t *testing.T) {
	parsed := []StructuredMetric{{Title: "Smash Factor", Value: "4.8"}, {Title: "Carry", Value: "250"}}
	res := CalculateConfidence(ocr.OcrResult{}, nil, parsed, nil)
	if res.Factors.ValueValidity != 50 {
		t.Fatalf("validity = %v, want 50", res.Factors.ValueValidity)
	}
	if res.Factors.EngineAgreement != 50 {
		t.Fatalf("agreement without peers = %v, want 50", res.Factors.EngineAgreement)
	}
	if !res.RequiresReview {
		t.Fatalf("out of range value should require review")
	}
}

func TestCanonicalizeNearMisses(t *testing.T) {
	cases := map[string]string{
		"Carrv":       "carry",
		"Bal Speed":   "ball_speed",
		"Lanch Angle": "launch_angle",
		"Spin Rale":   "spin_rate",
	}
	for in, want := range cases {
		if got, ok := Canonicalize(in); !ok || got != want {
			t.Fatalf("Canonicalize(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	// Short labels must match exactly.
	if got, ok := Canonicalize("size"); ok {
		t.Fatalf("Canonicalize(size) = %q", got)
	}
}

func TestSimilarity(t *testing.T) {
	if s := similarity("carry", "carry"); s != 1 {
		t.Fatalf("identical = %v", s)
	}
	if s := similarity("", ""); s != 0 {
		t.Fatalf("empty = %v", s)
	}
	if d := levenshtein([]rune("kitten"), []rune("sitting")); d != 3 {
		t.Fatalf("levenshtein = %d", d)
	}
}
