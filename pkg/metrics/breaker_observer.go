package metrics

import (
	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
)

// BreakerObserver forwards breaker lifecycle events to Prometheus and to
// the structured log, one shared observer for every registered breaker.
type BreakerObserver struct {
	reg *Registry
	log *log.Logger
}

// NewBreakerObserver constructs a breaker.Observer backed by reg. logger
// may be nil, in which case log.Default() is used.
func NewBreakerObserver(reg *Registry, logger *log.Logger) *BreakerObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &BreakerObserver{reg: reg, log: logger}
}

func (o *BreakerObserver) OnOpen(name string) {
	o.reg.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(int(breaker.Open)))
	o.reg.CircuitBreakerFailures.WithLabelValues(name).Inc()
	o.log.Warnf("circuit breaker %q opened", name)
}

func (o *BreakerObserver) OnClose(name string) {
	o.reg.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(int(breaker.Closed)))
	o.log.Infof("circuit breaker %q closed", name)
}

func (o *BreakerObserver) OnHalfOpen(name string) {
	o.reg.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(int(breaker.HalfOpen)))
	o.log.Infof("circuit breaker %q half-open, probing", name)
}

func (o *BreakerObserver) OnFallback(name string) {
	o.reg.CircuitBreakerFallbacks.WithLabelValues(name).Inc()
	o.log.Debugf("circuit breaker %q served fallback", name)
}

var _ breaker.Observer = (*BreakerObserver)(nil)
