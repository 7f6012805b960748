package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lumivoice/lumi/pkg/audio"
	"github.com/lumivoice/lumi/pkg/provider/llm"
	"github.com/lumivoice/lumi/pkg/provider/stt"
	"github.com/lumivoice/lumi/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to constructor functions for each pipeline
// stage. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]func(ProviderEntry) (stt.Provider, error)
	llm       map[string]func(ProviderEntry) (llm.Provider, error)
	tts       map[string]func(ProviderEntry) (tts.Provider, error)
	transcode map[string]func(ProviderEntry) (audio.Transcoder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm:       make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:       make(map[string]func(ProviderEntry) (tts.Provider, error)),
		transcode: make(map[string]func(ProviderEntry) (audio.Transcoder, error)),
	}
}

// RegisterSTT registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers a completion provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterTranscoder registers an audio transcoder factory under name.
func (r *Registry) RegisterTranscoder(name string, factory func(ProviderEntry) (audio.Transcoder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcode[name] = factory
}

// CreateSTT instantiates the transcription provider registered under
// entry.Name. Returns [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates the completion provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates the synthesis provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranscoder instantiates the transcoder registered under entry.Name.
// An empty name yields the passthrough transcoder.
func (r *Registry) CreateTranscoder(entry ProviderEntry) (audio.Transcoder, error) {
	if entry.Name == "" {
		return audio.Passthrough{}, nil
	}
	r.mu.RLock()
	factory, ok := r.transcode[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcode/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
