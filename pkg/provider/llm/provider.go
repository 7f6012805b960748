// Package llm defines the Provider interface for language model backends.
//
// The pipeline sends one completion request per utterance: a persona system
// prompt plus the user's transcript, without tool calling or streaming. A
// provider wraps a remote or local model API and must be safe for concurrent
// use.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyRequest is returned when a completion request carries no messages.
var ErrEmptyRequest = errors.New("llm: completion request has no messages")

// Message is a single entry in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CompletionRequest carries everything the model needs for one reply.
type CompletionRequest struct {
	// SystemPrompt is the persona instruction injected before Messages.
	// Providers that lack a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The pipeline sends a single
	// "user" message carrying the transcript.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Provider is the abstraction over any language model backend.
//
// Complete returns the model's reply text. An empty reply with a nil error
// is valid (the model produced nothing); callers decide what to do with it.
// Implementations complete exactly once per call and must not retry.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
