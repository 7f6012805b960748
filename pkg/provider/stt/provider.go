// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider transcribes one complete utterance per call: the client's voice
// activity detector has already segmented the audio, so there is no streaming
// session to manage. Implementations wrap an HTTP transcription API (an
// OpenAI-compatible /audio/transcriptions endpoint, or a local whisper.cpp
// server) and must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when Transcribe is called with no audio bytes.
var ErrEmptyAudio = errors.New("stt: empty audio input")

// TranscribeConfig carries per-request recognition hints. The zero value is
// valid; providers apply their own defaults.
type TranscribeConfig struct {
	// Model overrides the provider's default transcription model.
	Model string

	// Language is a BCP-47 language hint (e.g., "en", "zh"). Empty lets the
	// provider auto-detect.
	Language string

	// Prompt biases recognition toward expected vocabulary.
	Prompt string

	// Format is the audio container extension without the dot ("mp3", "wav").
	// Providers use it for the upload filename; empty defaults to "mp3".
	Format string
}

// Provider is the abstraction over any speech-to-text backend.
//
// Transcribe converts one complete utterance to text. An empty transcript
// with a nil error is a valid outcome (the service heard nothing usable);
// callers decide what to do with it. Implementations transcribe exactly
// once per call and must not retry internally.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, cfg TranscribeConfig) (string, error)
}
