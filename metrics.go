package bootstage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kinds of usage errors, used as metric label values.
const (
	usageUnknownStage    = "unknown_stage"
	usageDuplicateBegin  = "duplicate_begin"
	usageSelfReference   = "self_reference"
	usageCyclicReference = "cyclic_reference"
)

// metrics holds the collectors of a single Coordinator. Aggregation stages
// created by WaitFor are not recorded.
type metrics struct {
	begins      *prometheus.CounterVec
	finishes    *prometheus.CounterVec
	outstanding *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
	timeouts    *prometheus.CounterVec
	usageErrors *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, log Logger) *metrics {
	m := &metrics{
		begins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bootstage",
				Subsystem: "stage",
				Name:      "begins_total",
				Help:      "Total number of stages that began",
			},
			[]string{"stage"},
		),
		finishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bootstage",
				Subsystem: "stage",
				Name:      "finishes_total",
				Help:      "Total number of stages that finished",
			},
			[]string{"stage"},
		),
		outstanding: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bootstage",
				Subsystem: "stage",
				Name:      "outstanding_waiters",
				Help:      "Waiters that have not called back yet",
			},
			[]string{"stage"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bootstage",
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Time from the beginning of a stage until it finished",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bootstage",
				Subsystem: "stage",
				Name:      "timeouts_total",
				Help:      "Total number of stage timeout warnings",
			},
			[]string{"stage"},
		),
		usageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bootstage",
				Name:      "usage_errors_total",
				Help:      "Total number of usage errors reported by the coordinator",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		m.begins = register(reg, log, m.begins)
		m.finishes = register(reg, log, m.finishes)
		m.outstanding = register(reg, log, m.outstanding)
		m.duration = register(reg, log, m.duration)
		m.timeouts = register(reg, log, m.timeouts)
		m.usageErrors = register(reg, log, m.usageErrors)
	}

	return m
}

// register adds c to reg. Coordinators sharing a registry share the
// collectors registered first. Any other failure leaves c unexported.
func register[T prometheus.Collector](reg prometheus.Registerer, log Logger, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	log.Warn(fmt.Sprintf("Metrics are not exported: %s", err))
	return c
}

func (m *metrics) begin(s *Stage) {
	if s.private {
		return
	}
	m.begins.WithLabelValues(s.name).Inc()
}

// setOutstanding must be called with the coordinator lock held.
func (m *metrics) setOutstanding(s *Stage) {
	if s.private {
		return
	}
	m.outstanding.WithLabelValues(s.name).Set(float64(s.waiters - s.callers))
}

// finish must be called with the coordinator lock held.
func (m *metrics) finish(s *Stage) {
	if s.private {
		return
	}
	m.finishes.WithLabelValues(s.name).Inc()
	if !s.beganAt.IsZero() {
		m.duration.WithLabelValues(s.name).Observe(time.Since(s.beganAt).Seconds())
	}
}

func (m *metrics) timeout(s *Stage) {
	if s.private {
		return
	}
	m.timeouts.WithLabelValues(s.name).Inc()
}

func (m *metrics) usageError(kind string) {
	m.usageErrors.WithLabelValues(kind).Inc()
}
