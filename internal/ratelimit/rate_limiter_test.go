package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBurstThenEmpty(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("token %d not available", i)
		}
	}
	if rl.TryAcquire() {
		t.Fatalf("bucket should be empty")
	}
}

func TestRefillCapsAtMax(t *testing.T) {
	clock := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return clock }
	rl.lastRefillTime = clock

	rl.TryAcquire()
	rl.TryAcquire()
	if rl.Available() != 0 {
		t.Fatalf("Available = %d, want 0", rl.Available())
	}

	clock = clock.Add(1500 * time.Millisecond)
	if got := rl.Available(); got != 1 {
		t.Fatalf("after 1.5s Available = %d, want 1", got)
	}
	clock = clock.Add(time.Hour)
	if got := rl.Available(); got != 2 {
		t.Fatalf("after 1h Available = %d, want 2", got)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Wait ignored the deadline")
	}
}

func TestWaitGetsRefilledToken(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	rl.TryAcquire()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait error = %v", err)
	}
}
