// Package metrics exposes the coordinator's Prometheus surface, grounded
// on the teacher's MetricsRegistry shape (field-per-metric struct built
// with prometheus.New*Vec + prometheus.MustRegister, served through
// promhttp.Handler), generalized from trading-pipeline metrics to the
// four series SPEC_FULL.md §5 calls for: queue depth per venue,
// notification channel success rate, breaker state, sweep run duration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the coordinator emits.
type Registry struct {
	QueueDepth *prometheus.GaugeVec

	NotificationAttempts *prometheus.CounterVec
	NotificationSuccess  *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	SweepDuration *prometheus.HistogramVec
	SweepEntries  *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "queuecoord_queue_depth",
				Help: "Number of active (non-terminal) queue entries per venue",
			},
			[]string{"venue_id"},
		),
		NotificationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuecoord_notification_attempts_total",
				Help: "Total notification dispatch attempts per channel",
			},
			[]string{"channel"},
		),
		NotificationSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuecoord_notification_success_total",
				Help: "Total notification dispatch successes per channel",
			},
			[]string{"channel"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "queuecoord_breaker_state",
				Help: "Circuit breaker state per channel (0=closed, 1=half-open, 2=open)",
			},
			[]string{"channel"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queuecoord_sweep_duration_seconds",
				Help:    "Duration of a sweeper run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"sweeper"},
		),
		SweepEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuecoord_sweep_entries_total",
				Help: "Total entries transitioned by a sweeper run",
			},
			[]string{"sweeper"},
		),
	}

	reg.MustRegister(
		r.QueueDepth,
		r.NotificationAttempts,
		r.NotificationSuccess,
		r.BreakerState,
		r.SweepDuration,
		r.SweepEntries,
	)
	return r
}

// ObserveSweepDuration implements sweeper.MetricsRecorder.
func (r *Registry) ObserveSweepDuration(name string, d time.Duration) {
	r.SweepDuration.WithLabelValues(name).Observe(d.Seconds())
}

// AddSweptEntries increments the per-sweeper entries-transitioned
// counter, for sweepers that know how many entries a run touched.
func (r *Registry) AddSweptEntries(name string, n int) {
	r.SweepEntries.WithLabelValues(name).Add(float64(n))
}

// BreakerStateValue maps gobreaker's state names onto the gauge's scale.
func BreakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
