// Package vad segments a stream of PCM frames into utterances using
// energy-based voice activity detection.
//
// The Detector is a pure step state machine: the caller feeds it one frame
// per tick together with the frame's energy level, and it reports at most
// one completed utterance per step. All timing flows in through the step
// timestamps, which keeps the machine deterministic and testable.
package vad

import (
	"fmt"
	"time"
)

// Default segmentation parameters.
const (
	DefaultSilenceThreshold    = 20.0
	DefaultSilenceDuration     = 400 * time.Millisecond
	DefaultMinSpeechDuration   = 300 * time.Millisecond
	DefaultMaxSentenceDuration = 8 * time.Second
)

// Config holds the segmentation parameters.
type Config struct {
	// SilenceThreshold is the energy level (0-255 scale) at or below which
	// a frame counts as quiet.
	SilenceThreshold float64

	// SilenceDuration is how long a quiet run must last to close an
	// utterance.
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum speech span for an utterance to be
	// emitted; shorter spans are discarded as noise.
	MinSpeechDuration time.Duration

	// MaxSentenceDuration force-closes an utterance that never goes quiet.
	MaxSentenceDuration time.Duration
}

// DefaultConfig returns the standard segmentation parameters.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:    DefaultSilenceThreshold,
		SilenceDuration:     DefaultSilenceDuration,
		MinSpeechDuration:   DefaultMinSpeechDuration,
		MaxSentenceDuration: DefaultMaxSentenceDuration,
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.SilenceThreshold < 0 {
		return fmt.Errorf("vad: silence threshold %v must not be negative", c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("vad: silence duration %v must be positive", c.SilenceDuration)
	}
	if c.MinSpeechDuration <= 0 {
		return fmt.Errorf("vad: min speech duration %v must be positive", c.MinSpeechDuration)
	}
	if c.MaxSentenceDuration <= 0 {
		return fmt.Errorf("vad: max sentence duration %v must be positive", c.MaxSentenceDuration)
	}
	if c.MinSpeechDuration >= c.MaxSentenceDuration {
		return fmt.Errorf("vad: min speech duration %v must be shorter than max sentence duration %v",
			c.MinSpeechDuration, c.MaxSentenceDuration)
	}
	return nil
}

// State is the detector's position in the segmentation cycle.
type State int

const (
	// StateIdle means no speech is being tracked.
	StateIdle State = iota
	// StateRecording means speech is active.
	StateRecording
	// StateSilenceDetected means speech stopped and the silence window is
	// being measured.
	StateSilenceDetected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSilenceDetected:
		return "silence_detected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Utterance is one completed speech segment.
type Utterance struct {
	// Audio is the concatenated PCM of the speech span, trimmed of the
	// trailing quiet run.
	Audio []byte

	// Start is the timestamp of the first loud frame.
	Start time.Time

	// End is the timestamp at which speech stopped (the first quiet frame,
	// or the force-close time).
	End time.Time
}

// Duration is the speech span of the utterance.
func (u Utterance) Duration() time.Duration { return u.End.Sub(u.Start) }

// Detector segments frames into utterances. It is not safe for concurrent
// use; drive it from a single goroutine.
type Detector struct {
	cfg Config

	state       State
	speechStart time.Time
	quietStart  time.Time
	frames      [][]byte
	speechEnd   int // frame count at the start of the current quiet run
}

// NewDetector creates a Detector. cfg must have been validated.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// State returns the detector's current state.
func (d *Detector) State() State { return d.state }

// Feed advances the machine by one tick. now is the frame's capture time,
// frame its PCM bytes and level its energy on the 0-255 scale. It returns
// a completed utterance and true when one closes on this tick.
func (d *Detector) Feed(now time.Time, frame []byte, level float64) (Utterance, bool) {
	loud := level >= d.cfg.SilenceThreshold

	switch d.state {
	case StateIdle:
		if !loud {
			return Utterance{}, false
		}
		d.state = StateRecording
		d.speechStart = now
		d.frames = append(d.frames[:0], frame)
		d.speechEnd = 1
		d.quietStart = time.Time{}

	case StateRecording:
		d.frames = append(d.frames, frame)
		if loud {
			d.speechEnd = len(d.frames)
		} else {
			d.state = StateSilenceDetected
			d.quietStart = now
		}

	case StateSilenceDetected:
		d.frames = append(d.frames, frame)
		if loud {
			// Speech resumed; the quiet run was a pause, keep it in the take.
			d.state = StateRecording
			d.speechEnd = len(d.frames)
			d.quietStart = time.Time{}
		} else if now.Sub(d.quietStart) >= d.cfg.SilenceDuration {
			return d.close(d.quietStart)
		}
	}

	if now.Sub(d.speechStart) >= d.cfg.MaxSentenceDuration {
		end := now
		if d.state == StateSilenceDetected {
			end = d.quietStart
		}
		return d.close(end)
	}
	return Utterance{}, false
}

// close finishes the current segment ending at end and resets to idle.
// Segments with less speech than MinSpeechDuration are dropped.
func (d *Detector) close(end time.Time) (Utterance, bool) {
	start := d.speechStart
	speech := d.frames[:d.speechEnd]

	var audio []byte
	for _, f := range speech {
		audio = append(audio, f...)
	}

	d.state = StateIdle
	d.frames = nil
	d.speechEnd = 0
	d.quietStart = time.Time{}

	if end.Sub(start) < d.cfg.MinSpeechDuration {
		return Utterance{}, false
	}
	return Utterance{Audio: audio, Start: start, End: end}, true
}
