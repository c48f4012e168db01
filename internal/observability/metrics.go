package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the application's Prometheus metrics.
//
// Metrics are registered against the registerer passed to NewMetrics so that
// tests can use a private registry:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordTurn("ok", time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter counts conversation turns.
	// Labels: status (ok|error|rejected)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures producer lifetime in seconds.
	TurnDuration prometheus.Histogram

	// AgentSteps counts finished agent loops by finish reason.
	// Labels: finish_reason (stop|step_limit|error|canceled)
	AgentSteps *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|auth_required|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// AuthRequests counts authorization initiations.
	// Labels: integration, result (created|reused|error)
	AuthRequests *prometheus.CounterVec

	// StreamEvents counts events written to the output channel.
	// Labels: mode (durable|passthrough)
	StreamEvents *prometheus.CounterVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (chat|agent|tool|auth|stream|storage), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_turns_total",
				Help: "Total number of conversation turns by status",
			},
			[]string{"status"},
		),

		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conductor_turn_duration_seconds",
				Help:    "Duration of conversation turns in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),

		AgentSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_agent_steps_total",
				Help: "Total number of agent steps by loop finish reason",
			},
			[]string{"finish_reason"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		AuthRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_auth_requests_total",
				Help: "Total number of integration authorization initiations",
			},
			[]string{"integration", "result"},
		),

		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_stream_events_total",
				Help: "Total number of output channel events by channel mode",
			},
			[]string{"mode"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		m.TurnDuration.Observe(durationSeconds)
	}
}

// RecordAgentSteps adds the step count of a finished loop.
func (m *Metrics) RecordAgentSteps(finishReason string, steps int) {
	if m == nil || steps <= 0 {
		return
	}
	m.AgentSteps.WithLabelValues(finishReason).Add(float64(steps))
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("GMAIL_SEND_EMAIL", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordAuthRequest counts an authorization initiation.
func (m *Metrics) RecordAuthRequest(integration, result string) {
	if m == nil {
		return
	}
	m.AuthRequests.WithLabelValues(integration, result).Inc()
}

// RecordStreamEvent counts an event written to the output channel.
func (m *Metrics) RecordStreamEvent(mode string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(mode).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
