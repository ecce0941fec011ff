// Package metrics holds the Prometheus collectors shared by the web server
// and the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Searches       *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec
	ImagesResolved prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	BotUpdates   *prometheus.CounterVec
	AuthRequests *prometheus.CounterVec
	AuditErrors  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_searches_total",
			Help: "Searches executed, labeled by channel and outcome",
		}, []string{"channel", "outcome"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "padron_search_latency_seconds",
			Help:    "Latency of person searches in seconds, including enrichment",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"channel"}),
		SearchResults: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "padron_search_results",
			Help:    "Distribution of result counts per search",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
		}, []string{"channel"}),
		ImagesResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "padron_images_resolved_total",
			Help: "Results for which an identity image was found",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_http_requests_total",
			Help: "HTTP requests, labeled by route and status code",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "padron_http_request_latency_seconds",
			Help:    "Latency of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		BotUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_bot_updates_total",
			Help: "Bot commands handled, labeled by command",
		}, []string{"command"}),
		AuthRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_bot_access_total",
			Help: "Access gate decisions: allowed, requested, approved, denied, error",
		}, []string{"decision"}),
		AuditErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "padron_audit_errors_total",
			Help: "Search log rows that could not be written",
		}),
	}
}

func (m *Metrics) ObserveSearch(channel string, results int, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case results == 0:
		outcome = OutcomeEmpty
	}
	m.Searches.WithLabelValues(channel, outcome).Inc()
	m.SearchLatency.WithLabelValues(channel).Observe(d.Seconds())
	if err == nil {
		m.SearchResults.WithLabelValues(channel).Observe(float64(results))
	}
}

func (m *Metrics) IncImagesResolved() {
	if m == nil {
		return
	}
	m.ImagesResolved.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) IncBotUpdate(command string) {
	if m == nil {
		return
	}
	m.BotUpdates.WithLabelValues(command).Inc()
}

func (m *Metrics) IncAccess(decision string) {
	if m == nil {
		return
	}
	m.AuthRequests.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncAuditError() {
	if m == nil {
		return
	}
	m.AuditErrors.Inc()
}
