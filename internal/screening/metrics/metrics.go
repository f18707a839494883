// Package metrics holds the Prometheus instruments for the screening ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics registers and exposes all ledger instruments. A nil *Metrics is
// valid and records nothing, so unit tests do not fight the global registry.
type Metrics struct {
	entriesSubmitted prometheus.Counter
	revealsRequested prometheus.Counter
	revealsCompleted *prometheus.CounterVec
	revealFailures   *prometheus.CounterVec
	countReveals     prometheus.Counter
	staleExpired     prometheus.Counter
	categoryCount    *prometheus.GaugeVec
	callbackDuration prometheus.Histogram
}

// New creates and registers all ledger metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		entriesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veilscreen_entries_submitted_total",
			Help: "Total number of encrypted screening entries submitted",
		}),
		revealsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veilscreen_reveals_requested_total",
			Help: "Total number of entry reveal requests issued to the oracle",
		}),
		revealsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veilscreen_reveals_completed_total",
			Help: "Total number of entries revealed, by risk level",
		}, []string{"risk_level"}),
		revealFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veilscreen_reveal_failures_total",
			Help: "Total number of rejected oracle callbacks, by reason",
		}, []string{"reason"}),
		countReveals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veilscreen_category_count_reveals_total",
			Help: "Total number of category counter reveals completed",
		}),
		staleExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veilscreen_stale_requests_expired_total",
			Help: "Total number of outstanding reveal requests abandoned by the expiry sweep",
		}),
		categoryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veilscreen_category_count_revealed",
			Help: "Last revealed per-category record count",
		}, []string{"category"}),
		callbackDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veilscreen_callback_duration_seconds",
			Help:    "Latency of oracle callback processing",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncEntriesSubmitted() {
	if m == nil {
		return
	}
	m.entriesSubmitted.Inc()
}

func (m *Metrics) IncRevealsRequested() {
	if m == nil {
		return
	}
	m.revealsRequested.Inc()
}

func (m *Metrics) IncRevealsCompleted(riskLevel string) {
	if m == nil {
		return
	}
	m.revealsCompleted.WithLabelValues(riskLevel).Inc()
}

func (m *Metrics) IncRevealFailures(reason string) {
	if m == nil {
		return
	}
	m.revealFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCountReveals() {
	if m == nil {
		return
	}
	m.countReveals.Inc()
}

func (m *Metrics) AddStaleExpired(n int) {
	if m == nil {
		return
	}
	m.staleExpired.Add(float64(n))
}

func (m *Metrics) SetCategoryCount(category string, count uint64) {
	if m == nil {
		return
	}
	m.categoryCount.WithLabelValues(category).Set(float64(count))
}

func (m *Metrics) ObserveCallbackDuration(seconds float64) {
	if m == nil {
		return
	}
	m.callbackDuration.Observe(seconds)
}
