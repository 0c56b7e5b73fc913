package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStaticBackoffWaitsFixedInterval(t *testing.T) {
	b := StaticBackoff(time.Millisecond)
	start := time.Now()
	if err := b(context.Background()); err != nil {
		t.Fatalf("backoff: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Millisecond {
		t.Fatalf("expected at least 1ms, got %s", elapsed)
	}
}

func TestExponentialBackoffGrows(t *testing.T) {
	b := ExponentialBackoff(time.Millisecond, 2)
	ctx := context.Background()
	first := time.Now()
	b(ctx)
	firstElapsed := time.Since(first)

	second := time.Now()
	b(ctx)
	secondElapsed := time.Since(second)

	if secondElapsed <= firstElapsed {
		t.Fatalf("expected growing interval, got %s then %s", firstElapsed, secondElapsed)
	}
}

func TestBackoffAbandonsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := StaticBackoff(time.Hour)
	if err := b(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBoundedGivesUpAfterMaxAttempts(t *testing.T) {
	b := Bounded(StaticBackoff(time.Microsecond), 2)
	ctx := context.Background()

	if err := b(ctx); err != nil {
		t.Fatalf("attempt 1: %v", err)
	}
	if err := b(ctx); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
	if err := b(ctx); err == nil {
		t.Fatal("expected attempt 3 to be exhausted")
	}
}

func TestBlockingRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	f := func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, ErrRetry
		}
		return 42, nil
	}

	got, err := Blocking(context.Background(), StaticBackoff(time.Microsecond), f)
	if err != nil {
		t.Fatalf("Blocking: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestBlockingReturnsNonRetryErrorImmediately(t *testing.T) {
	boom := errors.New("boom")
	f := func() (int, error) { return 0, boom }

	_, err := Blocking(context.Background(), StaticBackoff(time.Microsecond), f)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
