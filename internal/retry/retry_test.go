package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestDoStopsAtRetryCap(t *testing.T) {
	calls := 0
	retries := 0
	boom := errors.New("rate limited")
	err := Do(context.Background(), Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return boom
	}, func(int, time.Duration, error) { retries++ })
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls=%d retries=%d", calls, retries)
	}
}

func TestDoPermanentNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad input")
	err := Do(context.Background(), Policy{MaxRetries: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(boom)
	}, nil)
	if err != boom {
		t.Fatalf("expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls-1)
	}
}

func TestDoCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxRetries: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestDoDelayCapped(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), Policy{MaxRetries: 4, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}, func(context.Context) error {
		return errors.New("timeout")
	}, func(_ int, d time.Duration, _ error) { delays = append(delays, d) })

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays mismatch: %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: %v != %v", i, delays[i], want[i])
		}
	}
}
