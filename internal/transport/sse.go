package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/elnormous/contenttype"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

	// Order matters: JSON wins when a client accepts both equally.
	responseMediaTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// lockedWriteFlusher serializes writes and flushes to one response and stops
// writing once ctx is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEEvent writes one id/data frame and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, eventID string, payload []byte) error {
	if eventID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}

func writeSSEComment(wf *lockedWriteFlusher, comment string) error {
	if _, err := fmt.Fprintf(wf, ": %s\n\n", comment); err != nil {
		return err
	}
	wf.Flush()
	return nil
}

// prefersEventStream reports whether the request's Accept header ranks SSE
// above JSON. A missing or unsatisfiable Accept header means JSON.
func prefersEventStream(r *http.Request) bool {
	mt, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes)
	if err != nil {
		return false
	}
	return mt.Matches(eventStreamMediaType)
}

// acceptsEventStream reports whether the request accepts SSE at all.
func acceptsEventStream(r *http.Request) bool {
	_, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes)
	return err == nil
}

// IsJSONContent reports whether the request body is declared as JSON.
func IsJSONContent(r *http.Request) bool {
	ct, err := contenttype.GetMediaType(r)
	return err == nil && ct.Matches(jsonMediaType)
}
