package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// SessionStats is the view of the session registry the health endpoints need.
type SessionStats interface {
	Len() int
	IdleTimeout() time.Duration
}

// HealthChecker serves /healthz, /readyz and /healthz/detailed.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	sessions  SessionStats
	startTime time.Time
	version   string
}

// NewHealthChecker returns a checker that starts out ready. sc and sessions
// may be nil.
func NewHealthChecker(sc *ServerContext, sessions SessionStats, version string) *HealthChecker {
	h := &HealthChecker{
		sc:        sc,
		sessions:  sessions,
		startTime: time.Now(),
		version:   version,
	}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness. Shutdown clears it before draining connections.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

// status returns the overall state and whether traffic should be accepted.
func (h *HealthChecker) status() (string, bool) {
	switch {
	case !h.ready.Load():
		return healthStatusNotReady, false
	case h.shuttingDown():
		return healthStatusShuttingDown, false
	default:
		return healthStatusOK, true
	}
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version,omitempty"`
	Uptime             string `json:"uptime"`
	ActiveSessions     int    `json:"activeSessions"`
	SessionIdleTimeout string `json:"sessionIdleTimeout,omitempty"`
	FitbitAuthorized   bool   `json:"fitbitAuthorized"`
}

func writeHealth(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers 200 while the process can serve HTTP at all.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers 503 once shutdown has begun.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
		}
		if h.shuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
		}

		_, ok := h.status()
		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		if !ok {
			resp.Status = healthStatusNotReady
		}
		writeHealth(w, ok, resp)
	})
}

// DetailedHealthHandler adds the version, uptime, session figures and Fitbit
// authorization state to the readiness verdict.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := h.status()
		resp := DetailedHealthResponse{
			Status:  status,
			Version: h.version,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.sessions != nil {
			resp.ActiveSessions = h.sessions.Len()
			if idle := h.sessions.IdleTimeout(); idle > 0 {
				resp.SessionIdleTimeout = idle.String()
			}
		}
		if h.sc != nil && h.sc.Tokens() != nil {
			resp.FitbitAuthorized = h.sc.Tokens().Authorized(r.Context())
		}
		writeHealth(w, ok, resp)
	})
}

// RegisterHealthEndpoints mounts the three health routes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
