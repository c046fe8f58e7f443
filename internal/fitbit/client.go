package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// DefaultAPIBaseURL is the Fitbit Web API root.
const DefaultAPIBaseURL = "https://api.fitbit.com"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// maxResponseBody bounds a successful response.
const maxResponseBody = 10 << 20

// AccessTokenSource supplies bearer tokens for API calls.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client performs authenticated GET requests against the Fitbit Web API.
type Client struct {
	tokens AccessTokenSource
	s      settings
}

// NewClient creates a client that authenticates with tokens.
func NewClient(tokens AccessTokenSource, opts ...Option) *Client {
	s := newSettings(opts)
	s.baseURL = strings.TrimRight(s.baseURL, "/")
	return &Client{tokens: tokens, s: s}
}

// Get fetches path (for example "/1/user/-/profile.json") with query and
// returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	ctx, span := instrumentation.StartFitbitAPISpan(ctx, path)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		c.s.metrics.RecordFitbitRequest(ctx, path, status, time.Since(start))
	}()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	u := c.s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.s.httpClient.Do(req)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("fitbit API %s: %w", path, err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrHTTPStatus, status))

	if status < 200 || status >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: status,
			Endpoint:   path,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header),
		}
		instrumentation.SetSpanError(span, apiErr)
		c.s.logger.Warn("fitbit.api.error",
			logging.Operation(instrumentation.EndpointLabel(path)),
			logging.Status(strconv.Itoa(status)))
		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("reading fitbit response: %w", err)
	}
	if !json.Valid(body) {
		err := errors.New("fitbit returned a non-JSON body")
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return body, nil
}

// GetInto fetches path and decodes the body into v.
func (c *Client) GetInto(ctx context.Context, path string, query url.Values, v any) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// retryAfter reads Retry-After, falling back to Fitbit's own reset header
// (seconds until the hourly quota resets).
func retryAfter(h http.Header) time.Duration {
	for _, name := range []string{"Retry-After", "Fitbit-Rate-Limit-Reset"} {
		if v := h.Get(name); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}
