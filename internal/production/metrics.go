package production

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/comalice/hsm/internal/core"
	"github.com/comalice/hsm/internal/primitives"
)

const (
	namespace = "hsm"
	subsystem = "machine"
)

// Event outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeUnhandled = "unhandled"
	OutcomeFault     = "fault"
	OutcomeInvalid   = "invalid"
)

// MetricsObserver is a core.Observer exporting Prometheus metrics.
type MetricsObserver struct {
	events     *prometheus.CounterVec
	entries    *prometheus.CounterVec
	swallowed  *prometheus.CounterVec
	active     *prometheus.GaugeVec
	settleTime *prometheus.HistogramVec
}

// NewMetricsObserver registers the collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	f := promauto.With(reg)
	return &MetricsObserver{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_total",
				Help:      "Total number of dispatched events by outcome",
			},
			[]string{"machine", "event", "outcome"},
		),
		entries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "state_entries_total",
				Help:      "Total number of times a state became active",
			},
			[]string{"machine", "state"},
		),
		swallowed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "swallowed_faults_total",
				Help:      "Total number of guard, entry and exit faults that were logged and ignored",
			},
			[]string{"machine", "kind"},
		),
		active: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "state_active",
				Help:      "Whether a state is active (0=inactive, 1=active)",
			},
			[]string{"machine", "state"},
		),
		settleTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "settle_duration_seconds",
				Help:      "Time spent settling one event",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"machine"},
		),
	}
}

// Settled implements core.Observer.
func (o *MetricsObserver) Settled(rec core.Record) {
	o.events.WithLabelValues(rec.Machine, rec.Event, Outcome(rec.Err)).Inc()
	o.settleTime.WithLabelValues(rec.Machine).Observe(rec.Duration.Seconds())
	for _, s := range rec.Exited {
		o.active.WithLabelValues(rec.Machine, s).Set(0)
	}
	for _, s := range rec.Entered {
		o.entries.WithLabelValues(rec.Machine, s).Inc()
		o.active.WithLabelValues(rec.Machine, s).Set(1)
	}
}

// Swallowed implements core.Observer.
func (o *MetricsObserver) Swallowed(f core.Fault) {
	o.swallowed.WithLabelValues(f.Machine, string(f.Err.Kind)).Inc()
}

// Outcome classifies the error returned by Machine.Handle.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, primitives.ErrUnhandledEvent):
		return OutcomeUnhandled
	case errors.Is(err, primitives.ErrInvalidEvent):
		return OutcomeInvalid
	default:
		return OutcomeFault
	}
}
