package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/transport"
)

// Reap closes every session idle for longer than the idle timeout that has
// no attached stream, and returns how many it closed.
func (r *Registry) Reap() int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}

	r.mu.RLock()
	candidates := make(map[string]*transport.Transport)
	for id, t := range r.sessions {
		if r.idle(t) {
			candidates[id] = t
		}
	}
	r.mu.RUnlock()

	n := 0
	for id, t := range candidates {
		// A request may have arrived since the snapshot.
		if !r.idle(t) {
			continue
		}
		if r.release(id, instrumentation.ReleaseReasonIdle) {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("session.reaped", slog.Int("count", n))
	}
	return n
}

func (r *Registry) idle(t *transport.Transport) bool {
	return r.clock.Since(t.LastActivity()) > r.opts.IdleTimeout && !t.StreamOpen()
}

// StartReaper runs Reap every ReapInterval until ctx is done. It returns
// immediately when reaping is disabled.
func (r *Registry) StartReaper(ctx context.Context) {
	if r.opts.IdleTimeout <= 0 {
		return
	}

	ticker := r.clock.NewTicker(r.opts.ReapInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.Reap()
			}
		}
	}()
}

// IdleTimeout returns the configured idle timeout; zero means reaping is off.
func (r *Registry) IdleTimeout() time.Duration { return r.opts.IdleTimeout }
