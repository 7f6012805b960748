package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReportInterval is how often the registry logs traffic statistics
// while at least one session is active.
const DefaultReportInterval = 60 * time.Second

// Registry owns all live sessions. It is an injected dependency of the
// websocket server, not a package global, so tests can run isolated
// instances. All methods are safe for concurrent use.
type Registry struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithReportInterval overrides the reporting cadence.
func WithReportInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.interval = d }
}

// withClock overrides time for tests.
func withClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   slog.Default(),
		interval: DefaultReportInterval,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create registers a new session for id.
func (r *Registry) Create(id, remoteAddr string) *Session {
	now := r.now()
	s := &Session{
		ID:           id,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActivity: now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session connected",
		"session_id", id,
		"remote_addr", remoteAddr,
		"active_sessions", count,
	)
	return s
}

// Touch records an inbound frame of n bytes for id. Unknown ids are a
// no-op: the frame may race the session's removal.
func (r *Registry) Touch(id string, n int) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.LastActivity = now
	s.Stats.TotalUtterances++
	s.Stats.TotalBytes += int64(n)
	s.Stats.LastChunkAt = now
}

// Remove deletes the session for id and logs its traffic summary. Removing
// an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	now := r.now()
	r.logger.Info("session disconnected",
		"session_id", id,
		"remote_addr", s.RemoteAddr,
		"uptime", s.Uptime(now),
		"total_utterances", s.Stats.TotalUtterances,
		"total_bytes", s.Stats.TotalBytes,
		"avg_chunk_size", s.Stats.AverageChunkSize(),
		"chunks_per_second", s.Stats.ChunksPerSecond(s.ConnectedAt, now),
		"active_sessions", count,
	)
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns copies of all active sessions.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Report logs one statistics line per active session. It does nothing when
// the registry is empty.
func (r *Registry) Report() {
	now := r.now()
	for _, s := range r.Snapshot() {
		r.logger.Info("session stats",
			"session_id", s.ID,
			"uptime", s.Uptime(now),
			"total_utterances", s.Stats.TotalUtterances,
			"total_bytes", s.Stats.TotalBytes,
			"avg_chunk_size", s.Stats.AverageChunkSize(),
			"chunks_per_second", s.Stats.ChunksPerSecond(s.ConnectedAt, now),
		)
	}
}

// Run reports statistics on the configured interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// CloseAll removes every session and logs an aggregate shutdown summary.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	if len(sessions) == 0 {
		return
	}

	now := r.now()
	var utterances, bytes int64
	var oldest time.Time
	for _, s := range sessions {
		utterances += s.Stats.TotalUtterances
		bytes += s.Stats.TotalBytes
		if oldest.IsZero() || s.ConnectedAt.Before(oldest) {
			oldest = s.ConnectedAt
		}
	}
	r.logger.Info("closing all sessions",
		"count", len(sessions),
		"total_utterances", utterances,
		"total_bytes", bytes,
		"oldest_uptime", now.Sub(oldest),
	)
}
