// Package metrics exposes collection counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "buybox"

type Metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	products     *prometheus.CounterVec
	offers       prometheus.Counter
	transitions  prometheus.Counter
	insights     *prometheus.CounterVec
	rateLimited  prometheus.Counter
	purged       *prometheus.CounterVec
	collecting   prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Scheduled passes by type and final status.",
		}, []string{"type", "status"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of scheduled passes.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_collected_total",
			Help:      "Per-product collection attempts by outcome.",
		}, []string{"outcome"}),
		offers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_recorded_total",
			Help:      "Offer rows appended to the ledger.",
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buy_box_transitions_total",
			Help:      "Detected Buy Box holder changes.",
		}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_created_total",
			Help:      "Insights created by type.",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Upstream rate limit signals that paused a pass.",
		}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_rows_total",
			Help:      "Rows removed by the cleanup pass by table.",
		}, []string{"table"}),
		collecting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collecting",
			Help:      "1 while a collection pass holds the scheduler.",
		}),
	}
	reg.MustRegister(
		m.passes,
		m.passDuration,
		m.products,
		m.offers,
		m.transitions,
		m.insights,
		m.rateLimited,
		m.purged,
		m.collecting,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePass(passType, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(passType, status).Inc()
	m.passDuration.WithLabelValues(passType).Observe(took.Seconds())
}

func (m *Metrics) ProductCollected(outcome string, offers int, transition bool) {
	if m == nil {
		return
	}
	m.products.WithLabelValues(outcome).Inc()
	m.offers.Add(float64(offers))
	if transition {
		m.transitions.Inc()
	}
}

func (m *Metrics) InsightCreated(insightType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.insights.WithLabelValues(insightType).Add(float64(n))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Purged(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) SetCollecting(on bool) {
	if m == nil {
		return
	}
	if on {
		m.collecting.Set(1)
		return
	}
	m.collecting.Set(0)
}

// TrackTokens exports the tokens left in a rate limit bucket, read at scrape
// time.
func (m *Metrics) TrackTokens(limiter string, tokens func() float64) error {
	if m == nil || tokens == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "rate_limit_tokens",
		Help:        "Tokens currently available in a request bucket.",
		ConstLabels: prometheus.Labels{"limiter": limiter},
	}, tokens))
}
