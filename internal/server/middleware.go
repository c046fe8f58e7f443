package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// statusRecorder remembers the status code and whether anything was written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}

// Flush keeps SSE responses streaming through the recorder.
func (s *statusRecorder) Flush() {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// Recovery turns a panic into a -32603 envelope when nothing has been written
// yet. After the first byte the panic is only logged.
func Recovery(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(w)
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Error("http.panic",
				slog.Any("panic", v),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("response_started", rec.wroteHeader),
				slog.String("stack", string(debug.Stack())))
			if !rec.wroteHeader {
				jsonrpc.WriteError(rec, http.StatusInternalServerError, jsonrpc.CodeInternalError, jsonrpc.MessageInternal)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// HTTPMetrics records request count and latency per method, route and status.
func HTTPMetrics(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, instrumentation.PathLabel(r.URL.Path), rec.status, time.Since(start))
	})
}

// AccessLog logs one debug line per request.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Debug("http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			logging.RemoteIP(r))
	})
}
