package vad

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumivoice/lumi/pkg/audio"
	"github.com/lumivoice/lumi/pkg/capture"
)

// Probe computes the energy level of one PCM frame on the 0-255 scale.
type Probe func(frame []byte) (float64, error)

// DefaultProbe measures RMS energy via audio.Level.
func DefaultProbe(frame []byte) (float64, error) {
	return audio.Level(frame), nil
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithProbe overrides the level probe.
func WithProbe(p Probe) ListenerOption {
	return func(l *Listener) { l.probe = p }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

// Listener drives a capture source through a Detector and emits completed
// utterances on a channel.
//
// When the level probe fails, the frame is treated as loud: recording keeps
// running rather than chopping the user's sentence on a measurement glitch.
type Listener struct {
	src    capture.Source
	det    *Detector
	probe  Probe
	logger *slog.Logger

	utterances chan Utterance
}

// NewListener creates a Listener over src with the given segmentation
// config.
func NewListener(src capture.Source, cfg Config, opts ...ListenerOption) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Listener{
		src:        src,
		det:        NewDetector(cfg),
		probe:      DefaultProbe,
		logger:     slog.Default(),
		utterances: make(chan Utterance, 2),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Utterances returns the channel of completed utterances. It is closed when
// Run returns.
func (l *Listener) Utterances() <-chan Utterance { return l.utterances }

// Run starts the source and feeds its frames through the detector until ctx
// is cancelled or the source ends. It always closes the utterance channel
// before returning.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.utterances)

	if err := l.src.Start(ctx); err != nil {
		return fmt.Errorf("vad: start source: %w", err)
	}
	defer l.src.Close()

	probeFailed := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-l.src.Frames():
			if !ok {
				return nil
			}

			level, err := l.probe(frame)
			if err != nil {
				// Degrade to "always loud" so an analyser glitch cannot
				// truncate speech mid-sentence.
				level = l.det.cfg.SilenceThreshold + 1
				if !probeFailed {
					probeFailed = true
					l.logger.Warn("level probe failed, treating frames as loud", "err", err)
				}
			}

			if u, ok := l.det.Feed(time.Now(), frame, level); ok {
				select {
				case l.utterances <- u:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
