// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks model call duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Language model call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// ToolInvocationsTotal counts dispatched tool calls.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tool_invocations_total",
			Help: "Tool calls dispatched by the assistant",
		},
		[]string{"tool", "outcome"},
	)

	// AppointmentTransitionsTotal counts appointment status changes.
	AppointmentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_transitions_total",
			Help: "Appointment lifecycle transitions",
		},
		[]string{"event"},
	)

	// AssistantSessionsActive tracks open assistant sessions.
	AssistantSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_sessions_active",
			Help: "Number of open assistant sessions",
		},
	)

	// AssistantTurnsTotal counts user messages handled by the assistant.
	AssistantTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Assistant turns by outcome",
		},
		[]string{"language", "outcome"},
	)

	// EventPublishFailures counts lifecycle events that could not be published.
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Lifecycle events dropped because publishing failed",
		},
		[]string{"kind"},
	)

	// EventBusConnected is 1 while the lifecycle event bus is reachable.
	EventBusConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_bus_connected",
			Help: "Whether the lifecycle event bus connection is up",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for one model call.
func RecordLLMCall(provider, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordToolInvocation records the outcome of a tool call. Outcome is "ok"
// or the error tag.
func RecordToolInvocation(tool, outcome string) {
	ToolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordAppointmentTransition records an appointment lifecycle event.
func RecordAppointmentTransition(event string) {
	AppointmentTransitionsTotal.WithLabelValues(event).Inc()
}

// RecordAssistantTurn records the outcome of an assistant turn.
func RecordAssistantTurn(language, outcome string) {
	AssistantTurnsTotal.WithLabelValues(language, outcome).Inc()
}

// IncrementSessions increments the open session count.
func IncrementSessions() {
	AssistantSessionsActive.Inc()
}

// DecrementSessions decrements the open session count.
func DecrementSessions() {
	AssistantSessionsActive.Dec()
}

// SetEventBusConnected records the event bus connection state.
func SetEventBusConnected(up bool) {
	if up {
		EventBusConnected.Set(1)
		return
	}
	EventBusConnected.Set(0)
}
