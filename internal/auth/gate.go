// Package auth implements the API-key gate in front of the MCP endpoint.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// Header names carrying the caller's credential.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-Api-Key"

	bearerPrefix = "Bearer "
)

// RejectionRecorder is notified about rejected requests. *instrumentation.Metrics
// satisfies it.
type RejectionRecorder interface {
	RecordAuthRejection(r *http.Request)
}

// Gate validates API keys against a fixed set resolved at startup.
// A Gate with no keys authorizes every request.
type Gate struct {
	keys     [][]byte
	logger   *slog.Logger
	recorder RejectionRecorder
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder sets a recorder for rejected requests.
func WithRecorder(rec RejectionRecorder) Option {
	return func(g *Gate) { g.recorder = rec }
}

// NewGate builds a Gate accepting exactly the given keys. Empty entries and
// duplicates are ignored.
func NewGate(keys []string, opts ...Option) *Gate {
	g := &Gate{logger: slog.Default()}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		g.keys = append(g.keys, []byte(k))
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// KeysFromEnv resolves the accepted key set from the single-key and
// comma-separated list settings. A non-empty list wins over the single key.
func KeysFromEnv(single, list string) []string {
	var keys []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		return keys
	}
	if single = strings.TrimSpace(single); single != "" {
		return []string{single}
	}
	return nil
}

// Enabled reports whether at least one key is configured.
func (g *Gate) Enabled() bool {
	return len(g.keys) > 0
}

// Credential extracts the caller's credential from r. A bearer Authorization
// header takes precedence over the API key header.
func Credential(r *http.Request) string {
	if h := r.Header.Get(HeaderAuthorization); strings.HasPrefix(h, bearerPrefix) {
		return h[len(bearerPrefix):]
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}

// Authorize reports whether r carries an accepted credential.
func (g *Gate) Authorize(r *http.Request) bool {
	if !g.Enabled() {
		return true
	}
	provided := Credential(r)
	if provided == "" {
		return false
	}
	return g.match([]byte(provided))
}

// match compares against every key so the time taken does not reveal which
// key, if any, matched.
func (g *Gate) match(provided []byte) bool {
	matched := 0
	for _, k := range g.keys {
		matched |= subtle.ConstantTimeCompare(provided, k)
	}
	return matched == 1
}

// Middleware rejects unauthorized requests with a JSON-RPC error envelope.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(r) {
			g.logger.Warn("auth.rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				logging.RemoteIP(r))
			if g.recorder != nil {
				g.recorder.RecordAuthRejection(r)
			}
			jsonrpc.WriteError(w, http.StatusUnauthorized, jsonrpc.CodeUnauthorized, jsonrpc.MessageUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
