package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

const (
	// DefaultLimiterIdle is how long an IP's limiter survives without traffic.
	DefaultLimiterIdle = 10 * time.Minute

	defaultLimiterSweep = 5 * time.Minute
)

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	clock      clockwork.Clock
	metrics    *instrumentation.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterOptions configures NewRateLimiter.
type RateLimiterOptions struct {
	// RPS is the sustained requests per second allowed per IP.
	RPS float64
	// Burst is the bucket size.
	Burst int
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	Clock   clockwork.Clock
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// NewRateLimiter creates a per-IP rate limiter.
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RateLimiter{
		limit:      rate.Limit(opts.RPS),
		burst:      opts.Burst,
		trustProxy: opts.TrustProxy,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		limiters:   make(map[string]*ipLimiter),
	}
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastSeen = now
	rl.mu.Unlock()

	return l.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, l := range rl.limiters {
		if now.Sub(l.lastSeen) > maxIdle {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps idle limiters until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := rl.clock.NewTicker(defaultLimiterSweep)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				rl.Sweep(DefaultLimiterIdle)
			}
		}
	}()
}

// Middleware answers 429 with Retry-After: 1 once an IP exceeds its budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil || rl.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.trustProxy)
		if !rl.Allow(ip) {
			rl.logger.Warn("ratelimit.exceeded", slog.String(logging.KeyRemoteIP, ip), slog.String("path", r.URL.Path))
			rl.metrics.RecordRateLimited(r.Context(), instrumentation.PathLabel(r.URL.Path))
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the caller's IP. Proxy headers are only honoured with
// trustProxy, and then the last X-Forwarded-For hop is used since it is the
// one appended by the trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
