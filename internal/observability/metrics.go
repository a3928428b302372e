package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	agentSendTotal    *prometheus.CounterVec
	agentSendDuration prometheus.Histogram
	agentRetriesTotal prometheus.Counter
	agentPollsTotal   prometheus.Counter
	agentToolCalls    *prometheus.CounterVec

	tokenRequestsTotal *prometheus.CounterVec

	mapsRequestsTotal   *prometheus.CounterVec
	mapsRequestDuration *prometheus.HistogramVec

	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter
	rejectedSends   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentSendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zombinator_agent_send_total",
					Help: "Agent sends by outcome (success, timeout, run_error, response_error, unavailable, auth_error, error).",
				},
				[]string{"outcome"},
			),
			agentSendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "zombinator_agent_send_duration_seconds",
					Help:    "Wall time of one agent send, including polling and retries.",
					Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
				},
			),
			agentRetriesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zombinator_agent_retries_total",
					Help: "Transient failures that were retried.",
				},
			),
			agentPollsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zombinator_agent_polls_total",
					Help: "Run status polls issued.",
				},
			),
			agentToolCalls: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zombinator_agent_tool_calls_total",
					Help: "Client-side tool calls requested by the agent, by tool and status.",
				},
				[]string{"tool", "status"},
			),
			tokenRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zombinator_token_requests_total",
					Help: "Access token acquisitions by strategy and status.",
				},
				[]string{"strategy", "status"},
			),
			mapsRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zombinator_maps_requests_total",
					Help: "Azure Maps requests by operation and status.",
				},
				[]string{"operation", "status"},
			),
			mapsRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "zombinator_maps_request_duration_seconds",
					Help:    "Azure Maps request duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "zombinator_active_sessions",
					Help: "Current chat session count.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zombinator_sessions_created_total",
					Help: "Chat sessions created.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zombinator_sessions_expired_total",
					Help: "Chat sessions dropped after the idle TTL.",
				},
			),
			rejectedSends: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zombinator_rejected_sends_total",
					Help: "Sends rejected before reaching the agent, by reason.",
				},
				[]string{"reason"},
			),
		}

		prometheus.MustRegister(
			m.agentSendTotal,
			m.agentSendDuration,
			m.agentRetriesTotal,
			m.agentPollsTotal,
			m.agentToolCalls,
			m.tokenRequestsTotal,
			m.mapsRequestsTotal,
			m.mapsRequestDuration,
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsExpired,
			m.rejectedSends,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordAgentSend(outcome string, duration time.Duration) {
	m := getMetrics()
	m.agentSendTotal.WithLabelValues(outcome).Inc()
	m.agentSendDuration.Observe(duration.Seconds())
}

func RecordAgentRetry() {
	getMetrics().agentRetriesTotal.Inc()
}

func RecordAgentPoll() {
	getMetrics().agentPollsTotal.Inc()
}

func RecordToolCall(tool string, success bool) {
	getMetrics().agentToolCalls.WithLabelValues(tool, status(success)).Inc()
}

func RecordTokenRequest(strategy string, success bool) {
	getMetrics().tokenRequestsTotal.WithLabelValues(strategy, status(success)).Inc()
}

func RecordMapsRequest(operation string, duration time.Duration, success bool) {
	m := getMetrics()
	m.mapsRequestsTotal.WithLabelValues(operation, status(success)).Inc()
	m.mapsRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordSessionExpired(n int) {
	getMetrics().sessionsExpired.Add(float64(n))
}

func RecordRejectedSend(reason string) {
	getMetrics().rejectedSends.WithLabelValues(reason).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
