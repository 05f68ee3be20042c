package common

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRequestContextSteps(t *testing.T) {
	rc := NewRequestContext("golfer-1")
	if rc.RequestID == "" {
		t.Fatalf("request id not assigned")
	}

	rc.StartStep("decode")
	rc.StartSubStep("fit")
	rc.EndSubStep("1024x768")
	rc.EndStep("success", nil)

	rc.StartStep("run_engines")
	rc.EndStep("failed", errors.New("boom"))

	if len(rc.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(rc.Steps))
	}
	if len(rc.Steps[0].SubSteps) != 1 || rc.Steps[0].SubSteps[0].Details != "1024x768" {
		t.Fatalf("sub-steps not captured: %+v", rc.Steps[0].SubSteps)
	}
	if rc.Steps[1].Error != "boom" || rc.Steps[1].Status != "failed" {
		t.Fatalf("failed step = %+v", rc.Steps[1])
	}
	if len(rc.CurrentSubSteps) != 0 {
		t.Fatalf("sub-steps leaked into next step")
	}

	summary := rc.GetSummary()
	if summary["total_steps"] != 2 {
		t.Fatalf("summary total_steps = %v", summary["total_steps"])
	}
}

func TestAddTokensConcurrent(t *testing.T) {
	rc := NewRequestContext("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.AddTokens(TokenUsage{InputTokens: 2, OutputTokens: 1, TotalTokens: 3})
		}()
	}
	wg.Wait()
	if got := rc.TotalTokens().TotalTokens; got != 150 {
		t.Fatalf("total tokens = %d, want 150", got)
	}
}

func TestEntryFromContext(t *testing.T) {
	if EntryFrom(context.Background()) == nil {
		t.Fatalf("expected fallback entry")
	}
	rc := NewRequestContextWithID("run-42", "")
	ctx := WithRequestContext(context.Background(), rc)
	if RequestContextFrom(ctx) != rc {
		t.Fatalf("request context not recovered")
	}
	if got := EntryFrom(ctx).Data["request_id"]; got != "run-42" {
		t.Fatalf("entry request_id = %v", got)
	}
}
