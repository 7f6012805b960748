// Package transport implements the client side of the voice socket: a
// persistent websocket session that ships one utterance at a time and
// correlates it with exactly one outcome.
//
// The session enforces a single-flight discipline: while one utterance is
// outstanding, further sends are rejected with ErrRequestInFlight instead of
// silently replacing the pending request. A per-request watchdog bounds the
// wait for a reply; a lost connection resolves the pending request with
// ErrConnectionLost and triggers a bounded reconnect loop.
package transport

import (
	"errors"
	"time"
)

// Defaults for the session's timers.
const (
	DefaultRequestTimeout       = 15 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
)

var (
	// ErrRequestInFlight is returned by Send while a previous utterance is
	// still awaiting its outcome.
	ErrRequestInFlight = errors.New("transport: request already in flight")

	// ErrNotConnected is returned by Send when the socket is not open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed is returned after the session has been closed by the caller.
	ErrClosed = errors.New("transport: session closed")

	// ErrRequestTimeout resolves a request whose watchdog expired before a
	// reply arrived. The audio is not re-sent; a retry would duplicate the
	// user's speech.
	ErrRequestTimeout = errors.New("transport: request timed out")

	// ErrEmptyReply resolves a request answered with a zero-length binary
	// frame. Empty synthesis means there is nothing to play, so callers
	// treat it like a timeout.
	ErrEmptyReply = errors.New("transport: empty reply")

	// ErrConnectionLost resolves a request that was outstanding when the
	// socket dropped.
	ErrConnectionLost = errors.New("transport: connection lost")
)

// Result is the single outcome of one accepted Send. Exactly one of Audio,
// FallbackText, or Err is meaningful.
type Result struct {
	// Audio is the synthesized reply, ready for playback.
	Audio []byte

	// FallbackText is the server's text-only answer, delivered when speech
	// synthesis failed upstream.
	FallbackText string

	// Err reports timeout, empty reply, or connection loss.
	Err error
}

// StatusKind enumerates session lifecycle events.
type StatusKind int

const (
	// StatusConnected fires after a successful dial, initial or reconnect.
	StatusConnected StatusKind = iota
	// StatusDisconnected fires when the socket drops unexpectedly.
	StatusDisconnected
	// StatusReconnecting fires before each reconnect attempt.
	StatusReconnecting
	// StatusReconnectFailed fires when all reconnect attempts are
	// exhausted; the session stays down until Open is called again.
	StatusReconnectFailed
	// StatusClosed fires when the caller closes the session.
	StatusClosed
)

// String implements fmt.Stringer.
func (k StatusKind) String() string {
	switch k {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusReconnectFailed:
		return "reconnect_failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatusEvent is one lifecycle notification.
type StatusEvent struct {
	Kind StatusKind

	// Attempt is the reconnect attempt number, set for StatusReconnecting.
	Attempt int

	// Err carries the triggering error for StatusDisconnected and
	// StatusReconnectFailed.
	Err error
}
