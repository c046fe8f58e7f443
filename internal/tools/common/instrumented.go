package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type invocationKey struct{}

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics and
// audit logging. Fitbit endpoints fetched through FitbitGet during the call
// are attached to the audit record.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		sessionID := ""
		if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
			sessionID = session.SessionID()
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			attribute.String(instrumentation.SpanAttrSession, sessionID))
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSession(sessionID).
			WithSpanContext(ctx)
		ctx = context.WithValue(ctx, invocationKey{}, invocation)

		result, err := handler(ctx, request)
		duration := time.Since(start)

		switch {
		case err != nil:
			invocation.Complete(false, err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			toolErr := errors.New(resultText(result))
			invocation.Complete(false, toolErr)
			instrumentation.SetSpanError(span, toolErr)
		default:
			invocation.Complete(true, nil)
			instrumentation.SetSpanSuccess(span)
		}
		span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, invocation.Status()))

		metrics.RecordToolInvocation(ctx, toolName, invocation.Status(), duration)
		auditLogger.LogToolInvocation(ctx, invocation)

		return result, err
	}
}

// invocationFrom returns the audit record of the tool call running in ctx.
func invocationFrom(ctx context.Context) *instrumentation.ToolInvocation {
	ti, _ := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation)
	return ti
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool error"
}
