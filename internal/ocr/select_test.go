package ocr

import (
	"errors"
	"testing"
)

func TestSelectBestScore(t *testing.T) {
	results := []OcrResult{
		{Engine: EngineLocalOCR, Text: "0123456789", ProcessingTimeMs: 4000},
		{Engine: EngineCloudVision, Text: "01234567", ProcessingTimeMs: 1000},
		{Engine: EngineCloudVision, Text: "0123456789ab", ProcessingTimeMs: 9000},
	}
	best, ok := SelectBest(results)
	if !ok || best.Text != "01234567" {
		t.Fatalf("SelectBest = %+v, want the 8 char / 1s result", best)
	}
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	results := []OcrResult{
		{Pipeline: "first", Text: "abcd", ProcessingTimeMs: 1000},
		{Pipeline: "second", Text: "abcde", ProcessingTimeMs: 2000},
		{Pipeline: "third", Text: "abc", ProcessingTimeMs: 0},
	}
	best, _ := SelectBest(results)
	if best.Pipeline != "first" {
		t.Fatalf("tie broken to %s, want first", best.Pipeline)
	}
}

func TestSelectEmpty(t *testing.T) {
	if _, ok := SelectBest(nil); ok {
		t.Fatalf("SelectBest(nil) ok")
	}
	if _, ok := SelectLongest(nil); ok {
		t.Fatalf("SelectLongest(nil) ok")
	}
}

func TestSelectLongest(t *testing.T) {
	results := []OcrResult{
		{Pipeline: "a", Text: "95.2", ProcessingTimeMs: 1},
		{Pipeline: "b", Text: "95.2 mph", ProcessingTimeMs: 60000},
		{Pipeline: "c", Text: "95.2 mpx", ProcessingTimeMs: 1},
	}
	best, _ := SelectLongest(results)
	if best.Pipeline != "b" {
		t.Fatalf("SelectLongest = %s, want b", best.Pipeline)
	}
}

func TestSelectCountsCharactersNotBytes(t *testing.T) {
	results := []OcrResult{
		{Pipeline: "deg", Text: "3.1°°"},
		{Pipeline: "ascii", Text: "3.1 in"},
	}
	best, _ := SelectLongest(results)
	if best.Pipeline != "ascii" {
		t.Fatalf("SelectLongest = %s, want ascii", best.Pipeline)
	}
}

func TestRankIsStable(t *testing.T) {
	results := []OcrResult{
		{Pipeline: "x", Text: "aa"},
		{Pipeline: "y", Text: "aaa"},
		{Pipeline: "z", Text: "aa"},
	}
	ranked := Rank(results)
	got := ranked[0].Pipeline + ranked[1].Pipeline + ranked[2].Pipeline
	if got != "yxz" {
		t.Fatalf("Rank order = %s, want yxz", got)
	}
	if results[0].Pipeline != "x" {
		t.Fatalf("Rank mutated its input")
	}
}

func TestChooseWinnerTwoStage(t *testing.T) {
	results := []OcrResult{
		{Engine: EngineLocalOCR, Pipeline: "baseline", Text: "CLUB 95", ProcessingTimeMs: 100},
		{Engine: EngineLocalOCR, Pipeline: "full", Text: "CLUB SPEED 95.2", ProcessingTimeMs: 20000},
		{Engine: EngineCloudVision, Pipeline: "baseline", Text: "CLUB SPEED 95.2 mph", ProcessingTimeMs: 3000},
	}
	order := []EngineID{EngineLocalOCR, EngineCloudVision}

	best, ok := chooseWinner(results, order, PreferAuto)
	if !ok || best.Engine != EngineCloudVision {
		t.Fatalf("auto winner = %+v", best)
	}

	best, _ = chooseWinner(results, order, EngineLocalOCR)
	if best.Engine != EngineLocalOCR || best.Pipeline != "full" {
		t.Fatalf("preferred winner = %+v", best)
	}

	best, _ = chooseWinner(results, order, EngineCloudOCRAlt)
	if best.Engine != EngineCloudVision {
		t.Fatalf("preferring an engine with no results should fall back to scoring, got %+v", best)
	}
}

func TestParseEngineList(t *testing.T) {
	ids, err := ParseEngineList(" local-ocr, CLOUD-VISION ,, ")
	if err != nil {
		t.Fatalf("ParseEngineList() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != EngineLocalOCR || ids[1] != EngineCloudVision {
		t.Fatalf("ids = %v", ids)
	}
	if ids, _ := ParseEngineList(""); ids != nil {
		t.Fatalf("empty list should be nil, got %v", ids)
	}
	if _, err := ParseEngineList("paddle"); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
	if _, err := ParseEngineList("auto"); err == nil {
		t.Fatalf("auto is not a concrete engine")
	}
}

func TestErrorChains(t *testing.T) {
	cause := errors.New("connection reset")
	exec := &EngineExecutionError{Engine: EngineCloudVision, Pipeline: "baseline", Cause: cause}
	all := &AllEnginesFailedError{Failures: []*EngineExecutionError{exec}}
	if !errors.Is(all, cause) {
		t.Fatalf("AllEnginesFailedError should unwrap to the attempt cause")
	}
	var got *EngineExecutionError
	if !errors.As(all, &got) || got.Engine != EngineCloudVision {
		t.Fatalf("errors.As did not find the execution error")
	}
	if CodeOf(exec) != ErrorEngineExecution {
		t.Fatalf("CodeOf(exec) = %s", CodeOf(exec))
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestInformationScore(t *testing.T) {
	half := 0.5
	if got := InformationScore("abcdef", &half); got != 3 {
		t.Fatalf("InformationScore = %v, want 3", got)
	}
	if got := InformationScore("abcdef", nil); got != 6 {
		t.Fatalf("unscored InformationScore = %v, want 6", got)
	}
}
