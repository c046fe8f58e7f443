package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrEndpoint = "endpoint"
	attrResult   = "result"
	attrReason   = "reason"
	attrTool     = "tool"
)

// Metrics records the server's metrics. The zero value and a nil *Metrics are
// both valid no-op recorders.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	rateLimitedTotal    metric.Int64Counter
	authRejectionsTotal metric.Int64Counter

	activeSessions        metric.Int64UpDownCounter
	sessionsCreatedTotal  metric.Int64Counter
	sessionsReleasedTotal metric.Int64Counter
	streamsOpenedTotal    metric.Int64Counter
	eventsStoredTotal     metric.Int64Counter
	eventsReplayedTotal   metric.Int64Counter

	fitbitRequestsTotal   metric.Int64Counter
	fitbitRequestDuration metric.Float64Histogram

	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.rateLimitedTotal, "http_rate_limited_total", "Requests rejected by the per-IP rate limiter", "{request}"},
		{&m.authRejectionsTotal, "mcp_auth_rejections_total", "Requests rejected by the API key gate", "{request}"},
		{&m.sessionsCreatedTotal, "mcp_sessions_created_total", "MCP sessions created", "{session}"},
		{&m.sessionsReleasedTotal, "mcp_sessions_released_total", "MCP sessions released, by reason", "{session}"},
		{&m.streamsOpenedTotal, "mcp_streams_opened_total", "SSE streams opened, fresh or resumed", "{stream}"},
		{&m.eventsStoredTotal, "mcp_events_stored_total", "Events appended to session event logs", "{event}"},
		{&m.eventsReplayedTotal, "mcp_events_replayed_total", "Events replayed to resuming clients", "{event}"},
		{&m.fitbitRequestsTotal, "fitbit_api_requests_total", "Total number of Fitbit Web API requests", "{request}"},
		{&m.oauthAuthTotal, "oauth_auth_total", "Fitbit authorization code exchanges", "{attempt}"},
		{&m.oauthTokenRefreshTotal, "oauth_token_refresh_total", "Fitbit token refresh attempts", "{attempt}"},
		{&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.fitbitRequestDuration, err = meter.Float64Histogram(
		"fitbit_api_request_duration_seconds",
		metric.WithDescription("Fitbit Web API request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fitbit_api_request_duration_seconds histogram: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"mcp_active_sessions",
		metric.WithDescription("Number of live MCP sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_active_sessions gauge: %w", err)
	}

	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, PathLabel(path)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}
	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitedTotal, 1, attribute.String(attrPath, PathLabel(path)))
}

// RecordAuthRejection records a request rejected by the API key gate.
func (m *Metrics) RecordAuthRejection(r *http.Request) {
	if m == nil {
		return
	}
	m.add(r.Context(), m.authRejectionsTotal, 1,
		attribute.String(attrMethod, r.Method),
		attribute.String(attrPath, PathLabel(r.URL.Path)))
}

// RecordSessionCreated counts a new session and raises the active gauge.
func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.add(ctx, m.sessionsCreatedTotal, 1)
	m.activeSessions.Add(ctx, 1)
}

// RecordSessionReleased counts a released session and lowers the active gauge.
func (m *Metrics) RecordSessionReleased(ctx context.Context, reason string) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.add(ctx, m.sessionsReleasedTotal, 1, attribute.String(attrReason, reason))
	m.activeSessions.Add(ctx, -1)
}

// RecordStreamOpened records an SSE stream being attached. result is
// StreamFresh or StreamResumed; replayed is the backlog size delivered.
func (m *Metrics) RecordStreamOpened(ctx context.Context, result string, replayed int) {
	if m == nil {
		return
	}
	m.add(ctx, m.streamsOpenedTotal, 1, attribute.String(attrResult, result))
	if replayed > 0 {
		m.add(ctx, m.eventsReplayedTotal, int64(replayed))
	}
}

// RecordEventStored counts one event appended to an event log.
func (m *Metrics) RecordEventStored(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.eventsStoredTotal, 1)
}

// RecordFitbitRequest records one Fitbit Web API call.
//
// Parameters:
//   - endpoint: API path, normalized with EndpointLabel
//   - status: HTTP status code, or 0 when the request never completed
//   - duration: time taken for the call
func (m *Metrics) RecordFitbitRequest(ctx context.Context, endpoint string, status int, duration time.Duration) {
	if m == nil || m.fitbitRequestsTotal == nil || m.fitbitRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrEndpoint, EndpointLabel(endpoint)),
		attribute.String(attrStatus, strconv.Itoa(status)),
	}
	m.fitbitRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fitbitRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an authorization code exchange with result.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.add(ctx, m.oauthAuthTotal, 1, attribute.String(attrResult, result))
}

// RecordOAuthTokenRefresh records a token refresh attempt with result.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.add(ctx, m.oauthTokenRefreshTotal, 1, attribute.String(attrResult, result))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
