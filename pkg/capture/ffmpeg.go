package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/lumivoice/lumi/pkg/audio"
)

// DefaultFormat is the capture format used when none is configured.
func DefaultFormat() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1}
}

// FFmpegOption configures an FFmpegSource.
type FFmpegOption func(*FFmpegSource)

// WithBinary overrides the ffmpeg executable path.
func WithBinary(path string) FFmpegOption {
	return func(s *FFmpegSource) { s.binary = path }
}

// WithDevice selects the capture device (e.g., "default", "hw:1",
// ":0" on macOS).
func WithDevice(device string) FFmpegOption {
	return func(s *FFmpegSource) { s.device = device }
}

// WithInputFormat sets the ffmpeg input demuxer ("alsa", "pulse",
// "avfoundation", "dshow"). The default is chosen per platform.
func WithInputFormat(format string) FFmpegOption {
	return func(s *FFmpegSource) { s.inputFormat = format }
}

// WithFormat sets the PCM output format. Default is 16 kHz mono.
func WithFormat(f audio.Format) FFmpegOption {
	return func(s *FFmpegSource) { s.format = f }
}

// WithFrameDuration sets the emitted frame length. Default is
// DefaultFrameDuration.
func WithFrameDuration(d time.Duration) FFmpegOption {
	return func(s *FFmpegSource) { s.frame = d }
}

// FFmpegSource captures microphone audio by running ffmpeg against the
// system's default input device and streaming raw s16le PCM from its stdout.
// It needs no cgo audio bindings, only an ffmpeg binary on PATH.
type FFmpegSource struct {
	binary      string
	device      string
	inputFormat string
	format      audio.Format
	frame       time.Duration

	frames chan []byte

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	done    chan struct{}
}

// NewFFmpegSource creates a microphone source with platform defaults.
func NewFFmpegSource(opts ...FFmpegOption) *FFmpegSource {
	s := &FFmpegSource{
		binary:      "ffmpeg",
		inputFormat: defaultInputFormat(),
		device:      defaultDevice(),
		format:      DefaultFormat(),
		frame:       DefaultFrameDuration,
		frames:      make(chan []byte, 4),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

func defaultDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":0"
	default:
		return "default"
	}
}

// Start launches ffmpeg. A missing binary or unopenable device fails here
// with the last ffmpeg stderr line, before any frame is delivered.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("capture: source already started")
	}

	args := []string{
		"-f", s.inputFormat,
		"-i", s.device,
		"-ac", strconv.Itoa(s.format.Channels),
		"-ar", strconv.Itoa(s.format.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	// The device open happens asynchronously; wait one probe interval so a
	// bad device is reported from Start rather than as a silent stream end.
	probe := make(chan error, 1)
	go func() {
		probe <- cmd.Wait()
	}()
	select {
	case err := <-probe:
		stdout.Close()
		return fmt.Errorf("capture: open device %q: %w: %s", s.device, err, lastStderrLine(stderr.Bytes()))
	case <-time.After(200 * time.Millisecond):
	}

	s.started = true
	s.cmd = cmd
	s.stdout = stdout
	go s.pump(stdout, probe)
	return nil
}

func (s *FFmpegSource) pump(r io.Reader, procDone <-chan error) {
	defer close(s.done)
	defer close(s.frames)
	defer func() { <-procDone }()

	size := frameBytes(s.format, s.frame)
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		s.frames <- buf
	}
}

// Frames returns the frame channel.
func (s *FFmpegSource) Frames() <-chan []byte { return s.frames }

// Format returns the configured PCM format.
func (s *FFmpegSource) Format() audio.Format { return s.format }

// Close terminates ffmpeg and closes the frame channel.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		close(s.frames)
		close(s.done)
		return nil
	}
	if s.cmd != nil {
		s.cmd.Process.Kill()
		s.stdout.Close()
		s.cmd = nil
		// Drain so the pump's channel send cannot block shutdown.
		go func() {
			for range s.frames {
			}
		}()
		<-s.done
	}
	return nil
}

func lastStderrLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}

var _ Source = (*FFmpegSource)(nil)
