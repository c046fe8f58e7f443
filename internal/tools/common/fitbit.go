package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
)

// FitbitGet fetches path from the Fitbit API and records the endpoint on the
// running tool invocation.
func FitbitGet(ctx context.Context, sc *server.ServerContext, path string, query url.Values) (json.RawMessage, error) {
	if ti := invocationFrom(ctx); ti != nil {
		ti.WithEndpoint(path)
	}
	client := sc.FitbitClient()
	if client == nil {
		return nil, fitbit.ErrNotConfigured
	}
	return client.Get(ctx, path, query)
}

// FetchResult runs FitbitGet and turns the outcome into a tool result: the
// pretty-printed JSON body, or a tool error from ErrorResult.
func FetchResult(ctx context.Context, sc *server.ServerContext, path string, query url.Values) *mcp.CallToolResult {
	body, err := FitbitGet(ctx, sc, path, query)
	if err != nil {
		return ErrorResult(sc, err)
	}
	return JSONResult(body)
}

// JSONResult returns raw as indented JSON text.
func JSONResult(raw json.RawMessage) *mcp.CallToolResult {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return mcp.NewToolResultText(string(raw))
	}
	return mcp.NewToolResultText(buf.String())
}

// ArgumentError reports an invalid tool argument.
func ArgumentError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Invalid arguments: " + err.Error())
}

// ErrorResult maps a Fitbit failure to a tool error the user can act on.
func ErrorResult(sc *server.ServerContext, err error) *mcp.CallToolResult {
	var apiErr *fitbit.APIError

	switch {
	case errors.Is(err, fitbit.ErrNotAuthorized):
		return mcp.NewToolResultError(fmt.Sprintf(
			"Fitbit access is not authorized or has expired. Visit %s in a browser to connect your Fitbit account, then retry.",
			sc.AuthURL()))
	case errors.Is(err, fitbit.ErrNotConfigured):
		return mcp.NewToolResultError("Fitbit credentials are not configured on this server.")
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		msg := "Fitbit API rate limit reached."
		if apiErr.RetryAfter > 0 {
			msg += fmt.Sprintf(" Retry in %s.", apiErr.RetryAfter)
		}
		return mcp.NewToolResultError(msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return mcp.NewToolResultError("Fitbit request was cancelled: " + err.Error())
	default:
		return mcp.NewToolResultError("Fitbit request failed: " + err.Error())
	}
}
