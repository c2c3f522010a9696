package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roast"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	roasts         *prometheus.CounterVec
	modelAttempts  *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	creditsSpent   *prometheus.CounterVec
	creditsGranted *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		roasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Roast requests by analysis type and outcome.",
		}, []string{"analysis_type", "outcome"}),
		modelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Fallback chain attempts by model and outcome.",
		}, []string{"model", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_seconds",
			Help:      "Latency of one model attempt.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"model"}),
		creditsSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Credits deducted for roasts.",
		}, []string{"analysis_type"}),
		creditsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Credits granted by source.",
		}, []string{"source"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and result.",
		}, []string{"event_type", "result"}),
		gatherer: reg,
	}
	reg.MustRegister(m.roasts, m.modelAttempts, m.modelLatency, m.creditsSpent, m.creditsGranted, m.webhookEvents)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RoastCompleted(analysisType, outcome string) {
	m.roasts.WithLabelValues(analysisType, outcome).Inc()
}

func (m *Metrics) CreditsSpent(analysisType string, amount int) {
	m.creditsSpent.WithLabelValues(analysisType).Add(float64(amount))
}

func (m *Metrics) CreditsGranted(source string, amount int) {
	m.creditsGranted.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObserveAttempt satisfies llm.Observer.
func (m *Metrics) ObserveAttempt(model, outcome string, took time.Duration) {
	m.modelAttempts.WithLabelValues(model, outcome).Inc()
	m.modelLatency.WithLabelValues(model).Observe(took.Seconds())
}
