// Package observability exports provider call metrics to Prometheus. The
// collectors are fed by the logging.CallLogger hooks, so every wrapper built
// with those hooks is measured without further wiring.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llmwrapper/internal/core"
	"llmwrapper/internal/logging"
)

const namespace = "llmwrapper"

// Metrics holds the collectors.
type Metrics struct {
	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	inFlight       *prometheus.GaugeVec
	tokens         *prometheus.CounterVec
	securityEvents *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of provider calls by outcome",
		}, []string{"provider", "model", "status", "error_type"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Wall-clock duration of provider calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_calls_in_flight",
			Help:      "Provider calls currently awaiting a response",
		}, []string{"provider"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by providers",
		}, []string{"provider", "model", "kind"}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events by kind",
		}, []string{"event"}),
	}
}

// Hooks returns CallLogger hooks that update the collectors.
func (m *Metrics) Hooks() logging.Hooks {
	return logging.Hooks{
		OnCallStart:     m.callStarted,
		OnCallEnd:       m.callEnded,
		OnTokenUsage:    m.tokensUsed,
		OnSecurityEvent: m.securityEvent,
	}
}

func (m *Metrics) callStarted(_ context.Context, c logging.CallMarker) {
	m.inFlight.WithLabelValues(c.Provider).Inc()
}

func (m *Metrics) callEnded(_ context.Context, c logging.CallMarker, elapsed time.Duration, err error) {
	m.inFlight.WithLabelValues(c.Provider).Dec()
	m.callDuration.WithLabelValues(c.Provider, c.Model).Observe(elapsed.Seconds())

	status, errType := "success", ""
	if err != nil {
		status, errType = "error", core.TypeOf(err)
	}
	m.calls.WithLabelValues(c.Provider, c.Model, status, errType).Inc()
}

func (m *Metrics) tokensUsed(_ context.Context, c logging.CallMarker, u core.Usage) {
	m.tokens.WithLabelValues(c.Provider, c.Model, "prompt").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues(c.Provider, c.Model, "completion").Add(float64(u.CompletionTokens))
}

func (m *Metrics) securityEvent(kind string) {
	m.securityEvents.WithLabelValues(kind).Inc()
}
