// Package mock provides a test double for stt.Provider.
//
// Configure Text/Err for the canned result and inspect Calls to verify what
// audio and hints the caller submitted.
package mock

import (
	"context"
	"sync"

	"github.com/lumivoice/lumi/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Audio []byte
	Cfg   stt.TranscribeConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is the transcript returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, overrides Text/Err entirely.
	Fn func(ctx context.Context, audio []byte, cfg stt.TranscribeConfig) (string, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the canned result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.TranscribeConfig) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Audio: audio, Cfg: cfg})
	fn := p.Fn
	text, err := p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, cfg)
	}
	return text, err
}

// CallCount returns the number of recorded Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
