// Package breaker implements a per-dependency circuit breaker: closed,
// open and half-open states with threshold-plus-volume gating over a
// rolling window. Each named breaker reports its lifecycle events to a
// single Observer so the owning component can forward them to metrics
// and audit logs.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// ErrOpen is returned when a call is short-circuited and no fallback ran.
var ErrOpen = errors.New("breaker: circuit open")

// Observer receives breaker lifecycle events. The component owning the
// breakers registers a single observer that forwards to metrics and
// audit logs.
type Observer interface {
	OnOpen(name string)
	OnClose(name string)
	OnHalfOpen(name string)
	OnFallback(name string)
}

// Config is one breaker's tuning.
type Config struct {
	Name              string
	Timeout           time.Duration
	ErrorThresholdPct int
	VolumeThreshold   int
	ResetTimeout      time.Duration
}

// window is the rolling volume/failure counters over the most recent
// window, sized to max(ResetTimeout, 10s).
type window struct {
	volume   int64
	failures int64
	start    time.Time
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	cfg      Config
	observer Observer
	now      func() time.Time

	mu            sync.Mutex
	state         State
	cur           window
	openedAt      time.Time
	probeInFlight bool
}

// windowSize is max(ResetTimeout, 10s): stale volume/failure counts age
// out so a burst of failures from minutes ago can't trip the circuit on
// its own.
func (b *Breaker) windowSize() time.Duration {
	if b.cfg.ResetTimeout > 10*time.Second {
		return b.cfg.ResetTimeout
	}
	return 10 * time.Second
}

// New constructs a Breaker in the closed state.
func New(cfg Config, observer Observer) *Breaker {
	return &Breaker{cfg: cfg, observer: observer, now: time.Now}
}

// State reports the current state, for the stats admin endpoint and the
// circuit_breaker_state{name} gauge.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeTransitionToHalfOpenLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.probeInFlight = false
		if b.observer != nil {
			b.observer.OnHalfOpen(b.cfg.Name)
		}
	}
}

// Execute runs fn under the breaker's timeout and state machine. On open
// (or a rejected half-open probe) it calls fallback if non-nil and
// returns its result; with no fallback it returns ErrOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error), fallback func(context.Context) (any, error)) (any, error) {
	b.mu.Lock()
	b.maybeTransitionToHalfOpenLocked()
	switch b.state {
	case Open:
		b.mu.Unlock()
		return b.runFallback(ctx, fallback)
	case HalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			return b.runFallback(ctx, fallback)
		}
		b.probeInFlight = true
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	result, err := fn(callCtx)
	timedOut := callCtx.Err() != nil
	b.recordResult(err == nil && !timedOut)

	if err != nil || timedOut {
		if timedOut && err == nil {
			err = context.DeadlineExceeded
		}
		if fallback != nil {
			if fv, ferr := fallback(ctx); ferr == nil {
				if b.observer != nil {
					b.observer.OnFallback(b.cfg.Name)
				}
				return fv, nil
			}
		}
		return result, err
	}
	return result, nil
}

// recordResult updates rolling counters and drives state transitions:
// closed goes open on volume-plus-error-rate gating, and a half-open
// probe's result decides between closed and open.
func (b *Breaker) recordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		if success {
			b.state = Closed
			b.cur = window{}
			if b.observer != nil {
				b.observer.OnClose(b.cfg.Name)
			}
		} else {
			b.state = Open
			b.openedAt = b.now()
			if b.observer != nil {
				b.observer.OnOpen(b.cfg.Name)
			}
		}
		return
	case Open:
		return
	}

	now := b.now()
	if b.cur.start.IsZero() || now.Sub(b.cur.start) >= b.windowSize() {
		b.cur = window{start: now}
	}

	b.cur.volume++
	if success {
		// Saturating decrement on success, so a healthy dependency
		// works its failure count back down.
		if b.cur.failures > 0 {
			b.cur.failures--
		}
	} else {
		b.cur.failures++
	}

	if b.cur.volume >= int64(b.cfg.VolumeThreshold) {
		errPct := int(b.cur.failures * 100 / b.cur.volume)
		if errPct >= b.cfg.ErrorThresholdPct {
			b.state = Open
			b.openedAt = b.now()
			if b.observer != nil {
				b.observer.OnOpen(b.cfg.Name)
			}
		}
	}
}

func (b *Breaker) runFallback(ctx context.Context, fallback func(context.Context) (any, error)) (any, error) {
	if fallback == nil {
		return nil, ErrOpen
	}
	v, err := fallback(ctx)
	if err == nil && b.observer != nil {
		b.observer.OnFallback(b.cfg.Name)
	}
	return v, err
}
