package instrumentation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// ToolInvocation is one audit record for an MCP tool call.
type ToolInvocation struct {
	Tool      string
	SessionID string

	// Fitbit API paths the tool touched, normalized. Tools may fetch
	// concurrently, so appends go through mu.
	mu        sync.Mutex
	endpoints []string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing an invocation of tool.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSession records the MCP session the call arrived on.
func (ti *ToolInvocation) WithSession(sessionID string) *ToolInvocation {
	ti.SessionID = sessionID
	return ti
}

// WithEndpoint appends a Fitbit endpoint. Paths are normalized with
// EndpointLabel. Safe for concurrent use.
func (ti *ToolInvocation) WithEndpoint(path string) *ToolInvocation {
	label := EndpointLabel(path)
	ti.mu.Lock()
	ti.endpoints = append(ti.endpoints, label)
	ti.mu.Unlock()
	return ti
}

// Endpoints returns a copy of the recorded endpoints in call order.
func (ti *ToolInvocation) Endpoints() []string {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return slices.Clone(ti.endpoints)
}

// WithSpanContext copies trace and span ids from the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete stops the clock and records the outcome.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the structured fields for ti. The session id is only
// included when includeSession is set.
func (ti *ToolInvocation) LogAttrs(includeSession bool) []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if includeSession && ti.SessionID != "" {
		attrs = append(attrs, logging.SessionID(ti.SessionID))
	}
	if endpoints := ti.Endpoints(); len(endpoints) > 0 {
		attrs = append(attrs, slog.Any("endpoints", endpoints))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// AuditLogger writes one record per tool invocation.
type AuditLogger struct {
	logger         *slog.Logger
	enabled        bool
	includeSession bool
}

// NewAuditLogger creates an AuditLogger from config. A nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:         logger,
		enabled:        config.Enabled,
		includeSession: config.IncludeSessionID,
	}
}

// LogToolInvocation logs ti at Info on success and Warn on failure. Safe on a nil receiver.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	level := slog.LevelInfo
	msg := "tool.executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool.failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.LogAttrs(al.includeSession)...)
}
