// Package instrumentation wires OpenTelemetry metrics and tracing into the
// Fitbit MCP server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds (method, path, status)
//   - http_rate_limited_total (path)
//
// Sessions and streams:
//   - mcp_active_sessions
//   - mcp_sessions_created_total, mcp_sessions_released_total (reason)
//   - mcp_streams_opened_total (result: fresh, resumed)
//   - mcp_events_stored_total, mcp_events_replayed_total
//   - mcp_auth_rejections_total (method, path)
//
// Fitbit:
//   - fitbit_api_requests_total, fitbit_api_request_duration_seconds (endpoint, status)
//   - oauth_auth_total, oauth_token_refresh_total (result)
//
// Tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds (tool, status)
//
// Path and endpoint labels are normalised by PathLabel and EndpointLabel.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: fitbit-mcp)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_SESSION (default: true)
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordToolInvocation(ctx, "get_profile", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
