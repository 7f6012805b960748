package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Config holds the session's connection parameters.
type Config struct {
	// URL is the websocket endpoint (ws://host:port/ws).
	URL string

	// RequestTimeout bounds the wait for one reply. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ReconnectInterval is the fixed delay between reconnect attempts.
	// Zero means DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds the reconnect loop. Zero means
	// DefaultMaxReconnectAttempts.
	MaxReconnectAttempts int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a persistent client connection to the voice server. All methods
// are safe for concurrent use.
type Session struct {
	cfg    Config
	logger *slog.Logger

	results chan Result
	status  chan StatusEvent

	mu       sync.Mutex
	conn     *websocket.Conn
	gen      int // connection generation, guards stale read loops
	inFlight bool
	reqGen   uint64 // request counter, guards stale watchdogs
	watchdog *time.Timer
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSession creates a Session. Call Open to connect.
func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: URL must not be empty")
	}
	cfg.applyDefaults()
	return &Session{
		cfg:     cfg,
		logger:  cfg.Logger,
		results: make(chan Result, 4),
		status:  make(chan StatusEvent, 16),
	}, nil
}

// Results returns the outcome channel. Exactly one Result is delivered per
// accepted Send.
func (s *Session) Results() <-chan Result { return s.results }

// Status returns the lifecycle event channel. Events are dropped, not
// blocked on, if the caller falls behind.
func (s *Session) Status() <-chan StatusEvent { return s.status }

// Open dials the server and starts the read loop. It may be called again
// after reconnect exhaustion to start a fresh connect cycle.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("transport: already connected")
	}
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", s.cfg.URL, err)
	}
	conn.SetReadLimit(32 << 20)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "session closed")
		return ErrClosed
	}
	s.conn = conn
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.emit(StatusEvent{Kind: StatusConnected})
	go s.readLoop(conn, gen)
	return nil
}

// Send ships one utterance as a binary frame and arms the watchdog. It
// returns ErrRequestInFlight while a previous request is outstanding; the
// caller should drop the utterance rather than queue it.
func (s *Session) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrRequestInFlight
	}
	conn := s.conn
	s.inFlight = true
	s.reqGen++
	req := s.reqGen
	s.watchdog = time.AfterFunc(s.cfg.RequestTimeout, func() {
		s.resolve(req, Result{Err: ErrRequestTimeout})
	})
	s.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		// The write failed before the request was truly outstanding; free
		// the slot without emitting a Result.
		s.mu.Lock()
		if s.reqGen == req && s.inFlight {
			s.inFlight = false
			if s.watchdog != nil {
				s.watchdog.Stop()
				s.watchdog = nil
			}
		}
		s.mu.Unlock()
		return fmt.Errorf("transport: send utterance: %w", err)
	}
	return nil
}

// resolve delivers the outcome for request req and frees the flight slot.
// Late calls (a reply racing the watchdog, or vice versa) are no-ops.
func (s *Session) resolve(req uint64, res Result) {
	s.mu.Lock()
	if !s.inFlight || s.reqGen != req {
		s.mu.Unlock()
		return
	}
	s.inFlight = false
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.mu.Unlock()

	s.results <- res
}

// resolveCurrent resolves whatever request is outstanding, if any.
func (s *Session) resolveCurrent(res Result) {
	s.mu.Lock()
	req := s.reqGen
	pending := s.inFlight
	s.mu.Unlock()
	if pending {
		s.resolve(req, res)
	}
}

// fallbackMessage is the server's text frame for a failed synthesis.
type fallbackMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			s.handleDisconnect(conn, gen, err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if len(data) == 0 {
				s.resolveCurrent(Result{Err: ErrEmptyReply})
				continue
			}
			s.resolveCurrent(Result{Audio: data})
		case websocket.MessageText:
			var msg fallbackMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn("unparseable text frame", "err", err)
				continue
			}
			if msg.Type != "transcription" {
				s.logger.Debug("ignoring text frame", "type", msg.Type)
				continue
			}
			s.resolveCurrent(Result{FallbackText: msg.Text})
		}
	}
}

// handleDisconnect resolves any pending request, then either reports a
// caller-initiated close or starts the reconnect loop.
func (s *Session) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		// A newer connection superseded this loop.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.closed
	s.mu.Unlock()

	s.resolveCurrent(Result{Err: ErrConnectionLost})
	conn.Close(websocket.StatusNormalClosure, "")

	if closed {
		return
	}

	s.logger.Warn("connection lost", "err", cause)
	s.emit(StatusEvent{Kind: StatusDisconnected, Err: cause})
	go s.reconnectLoop()
}

// reconnectLoop retries the dial at a fixed interval up to the configured
// attempt limit. Exhaustion is terminal until the caller opens the session
// again.
func (s *Session) reconnectLoop() {
	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}

		s.mu.Lock()
		superseded := s.closed || s.conn != nil
		s.mu.Unlock()
		if superseded {
			// The caller closed the session or reopened it with Open while
			// this loop was waiting.
			return
		}

		s.emit(StatusEvent{Kind: StatusReconnecting, Attempt: attempt})
		s.logger.Info("reconnecting",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxReconnectAttempts,
		)

		conn, _, err := websocket.Dial(s.ctx, s.cfg.URL, nil)
		if err == nil {
			conn.SetReadLimit(32 << 20)

			s.mu.Lock()
			if s.closed || s.conn != nil {
				// A concurrent Open won the race while this dial was in
				// flight; its connection stays, ours goes.
				s.mu.Unlock()
				conn.Close(websocket.StatusNormalClosure, "superseded")
				return
			}
			s.conn = conn
			s.gen++
			gen := s.gen
			s.mu.Unlock()

			s.logger.Info("reconnected", "attempt", attempt)
			s.emit(StatusEvent{Kind: StatusConnected})
			go s.readLoop(conn, gen)
			return
		}

		s.logger.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
	}

	s.logger.Error("reconnect attempts exhausted", "attempts", s.cfg.MaxReconnectAttempts)
	s.emit(StatusEvent{Kind: StatusReconnectFailed,
		Err: fmt.Errorf("transport: %d reconnect attempts failed", s.cfg.MaxReconnectAttempts)})
}

// Close shuts the session down. Any pending request resolves with
// ErrConnectionLost; no reconnect is attempted. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	s.mu.Unlock()

	s.resolveCurrent(Result{Err: ErrConnectionLost})
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	s.emit(StatusEvent{Kind: StatusClosed})
	return nil
}

// emit delivers a status event without blocking; slow consumers lose
// events rather than stalling the socket.
func (s *Session) emit(ev StatusEvent) {
	select {
	case s.status <- ev:
	default:
		s.logger.Debug("status event dropped", "kind", ev.Kind.String())
	}
}
