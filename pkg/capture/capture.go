// Package capture provides PCM audio sources for the client. A Source
// delivers fixed-duration 16-bit little-endian PCM frames on a channel;
// the voice activity detector consumes one frame per tick.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lumivoice/lumi/pkg/audio"
)

// DefaultFrameDuration is the PCM frame length a Source emits per tick.
const DefaultFrameDuration = 200 * time.Millisecond

// Source is a stream of fixed-duration PCM16 frames. Start must be called
// exactly once; Frames is closed when the source ends or Close is called.
type Source interface {
	// Start begins capture. Device or permission failures are reported here,
	// before any frame is delivered.
	Start(ctx context.Context) error

	// Frames returns the channel of PCM16 frames. Each frame has the same
	// byte length; a short final frame may be dropped.
	Frames() <-chan []byte

	// Format reports the PCM format of the emitted frames.
	Format() audio.Format

	// Close stops capture and closes the frame channel.
	Close() error
}

// ReaderSource adapts an io.Reader of raw PCM16 into a Source. It is used
// for file playback and in tests.
type ReaderSource struct {
	r      io.Reader
	format audio.Format
	frame  time.Duration

	frames chan []byte

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReaderSource wraps r, emitting frames of frameDuration. A zero
// frameDuration uses DefaultFrameDuration.
func NewReaderSource(r io.Reader, format audio.Format, frameDuration time.Duration) *ReaderSource {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	return &ReaderSource{
		r:      r,
		format: format,
		frame:  frameDuration,
		frames: make(chan []byte, 4),
		done:   make(chan struct{}),
	}
}

// Start begins reading frames from the underlying reader.
func (s *ReaderSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("capture: source already started")
	}
	if s.format.SampleRate <= 0 || s.format.Channels <= 0 {
		return fmt.Errorf("capture: invalid format %+v", s.format)
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.pump(ctx)
	return nil
}

func (s *ReaderSource) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.frames)

	size := frameBytes(s.format, s.frame)
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return
		}
		select {
		case s.frames <- buf:
		case <-ctx.Done():
			return
		}
	}
}

// Frames returns the frame channel.
func (s *ReaderSource) Frames() <-chan []byte { return s.frames }

// Format returns the configured PCM format.
func (s *ReaderSource) Format() audio.Format { return s.format }

// Close stops the source. It is safe to call before Start and more than once.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		close(s.frames)
		close(s.done)
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		// Unblock a pending read when the reader supports it.
		if c, ok := s.r.(io.Closer); ok {
			c.Close()
		}
		<-s.done
	}
	return nil
}

// frameBytes returns the byte length of one frame, rounded down to a whole
// number of samples across all channels.
func frameBytes(f audio.Format, d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	align := 2 * f.Channels
	if n < align {
		return align
	}
	return n - n%align
}

var _ Source = (*ReaderSource)(nil)
