package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingObserver struct {
	opens     []string
	closes    []string
	halfOpens []string
	fallbacks []string
}

func (r *recordingObserver) OnOpen(name string)     { r.opens = append(r.opens, name) }
func (r *recordingObserver) OnClose(name string)    { r.closes = append(r.closes, name) }
func (r *recordingObserver) OnHalfOpen(name string) { r.halfOpens = append(r.halfOpens, name) }
func (r *recordingObserver) OnFallback(name string) { r.fallbacks = append(r.fallbacks, name) }

var errBoom = errors.New("boom")

func success(ctx context.Context) (any, error) { return "ok", nil }
func failure(ctx context.Context) (any, error) { return nil, errBoom }

// With threshold=30% and volume=10: after 10 calls of which 4 fail
// (40%), state transitions to open; the next call returns the fallback
// without invoking the underlying call; after reset_timeout the breaker
// goes half-open and one success closes it.
func TestCircuitBreakerOpensFallsBackAndRecovers(t *testing.T) {
	obs := &recordingObserver{}
	b := New(Config{
		Name:              "suggestion_service",
		Timeout:           50 * time.Millisecond,
		ErrorThresholdPct: 30,
		VolumeThreshold:   10,
		ResetTimeout:      50 * time.Millisecond, // shortened for the test
	}, obs)
	fixedNow := time.Now()
	b.now = func() time.Time { return fixedNow }

	calls := []func(context.Context) (any, error){
		success, success, success, success, success, success,
		failure, failure, failure, failure,
	}
	for _, fn := range calls {
		_, _ = b.Execute(context.Background(), fn, nil)
	}

	if b.State() != Open {
		t.Fatalf("state after 4/10 failures = %v, want Open", b.State())
	}
	if len(obs.opens) != 1 {
		t.Fatalf("expected exactly one OnOpen callback, got %d", len(obs.opens))
	}

	invoked := false
	fallback := func(ctx context.Context) (any, error) {
		return "fallback-empty", nil
	}
	v, err := b.Execute(context.Background(), func(ctx context.Context) (any, error) {
		invoked = true
		return success(ctx)
	}, fallback)
	if err != nil {
		t.Fatalf("expected fallback to suppress the error, got %v", err)
	}
	if invoked {
		t.Fatalf("underlying call must not run while circuit is open")
	}
	if v != "fallback-empty" {
		t.Fatalf("expected fallback value, got %v", v)
	}

	// advance past reset_timeout
	fixedNow = fixedNow.Add(60 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("state after reset_timeout = %v, want HalfOpen", b.State())
	}

	_, err = b.Execute(context.Background(), success, nil)
	if err != nil {
		t.Fatalf("half-open probe success should not error: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state after successful half-open probe = %v, want Closed", b.State())
	}
}

func TestCircuitBreakerStaysClosedBelowVolumeThreshold(t *testing.T) {
	b := New(Config{
		Name:              "db",
		Timeout:           time.Second,
		ErrorThresholdPct: 10,
		VolumeThreshold:   10,
		ResetTimeout:      time.Second,
	}, nil)

	for i := 0; i < 5; i++ {
		_, _ = b.Execute(context.Background(), failure, nil)
	}
	if b.State() != Closed {
		t.Fatalf("breaker with volume < volume_threshold must remain closed regardless of failure ratio, got %v", b.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	obs := &recordingObserver{}
	b := New(Config{
		Name:              "db",
		Timeout:           time.Second,
		ErrorThresholdPct: 1,
		VolumeThreshold:   2,
		ResetTimeout:      10 * time.Millisecond,
	}, obs)
	fixedNow := time.Now()
	b.now = func() time.Time { return fixedNow }

	_, _ = b.Execute(context.Background(), failure, nil)
	_, _ = b.Execute(context.Background(), failure, nil)
	if b.State() != Open {
		t.Fatalf("expected open after exceeding threshold, got %v", b.State())
	}

	fixedNow = fixedNow.Add(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after reset_timeout, got %v", b.State())
	}

	_, _ = b.Execute(context.Background(), failure, nil)
	if b.State() != Open {
		t.Fatalf("failed half-open probe must reopen the circuit, got %v", b.State())
	}
	if len(obs.opens) != 2 {
		t.Fatalf("expected OnOpen to fire twice (initial + reopen), got %d", len(obs.opens))
	}
}
