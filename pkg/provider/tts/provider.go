// Package tts defines the Provider interface for text-to-speech backends.
//
// The pipeline synthesizes one complete reply per call and ships the encoded
// audio to the client as a single binary frame, so there is no streaming
// surface here. Implementations wrap a synthesis HTTP API and must be safe
// for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with empty text.
var ErrEmptyText = errors.New("tts: empty input text")

// VoiceProfile selects the voice and delivery for synthesis. The zero value
// is valid; providers apply their own defaults.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier ("alloy" for OpenAI,
	// a voice UUID for ElevenLabs).
	ID string

	// Model overrides the provider's default synthesis model.
	Model string

	// Speed scales speaking rate; zero means the provider default (1.0).
	Speed float64

	// Format is the requested audio container ("mp3", "wav", "opus").
	// Empty means the provider default.
	Format string
}

// Provider is the abstraction over any text-to-speech backend.
//
// Synthesize returns the complete encoded audio for text. Implementations
// synthesize exactly once per call and must not retry internally.
type Provider interface {
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
