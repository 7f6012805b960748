// Package session tracks server-side connection sessions and their audio
// statistics. A Session is created when a client connects, touched by the
// owning connection's message handler, and removed on disconnect; nothing
// survives the connection.
package session

import (
	"time"
)

// Stats accumulates audio traffic counters for one connection.
type Stats struct {
	// TotalUtterances is the number of binary frames received.
	TotalUtterances int64

	// TotalBytes is the sum of frame sizes.
	TotalBytes int64

	// LastChunkAt is the arrival time of the most recent frame.
	LastChunkAt time.Time
}

// AverageChunkSize returns the mean frame size in bytes, zero when no
// frames arrived.
func (s Stats) AverageChunkSize() float64 {
	if s.TotalUtterances == 0 {
		return 0
	}
	return float64(s.TotalBytes) / float64(s.TotalUtterances)
}

// ChunksPerSecond returns the frame rate since start. A non-positive
// elapsed time clamps to zero.
func (s Stats) ChunksPerSecond(since time.Time, now time.Time) float64 {
	elapsed := now.Sub(since).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalUtterances) / elapsed
}

// Session is one connected client.
type Session struct {
	// ID is the server-assigned opaque connection id.
	ID string

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// ConnectedAt is the accept time.
	ConnectedAt time.Time

	// LastActivity is updated on every received frame.
	LastActivity time.Time

	// Stats holds the audio traffic counters.
	Stats Stats
}

// Uptime returns how long the session has been connected.
func (s *Session) Uptime(now time.Time) time.Duration {
	return now.Sub(s.ConnectedAt)
}
