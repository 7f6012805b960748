// Package openai implements tts.Provider against an OpenAI-compatible
// /audio/speech endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumivoice/lumi/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "tts-1"
	defaultVoice   = "alloy"
	defaultTimeout = 30 * time.Second

	speechPath = "/audio/speech"
)

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a compatible gateway.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the default synthesis model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the default voice identifier.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider calls an OpenAI-compatible speech endpoint. It is safe for
// concurrent use.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	client  *http.Client
}

// New creates a Provider with OpenAI defaults.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		voice:   defaultVoice,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to encoded audio in one request.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	reqBody := speechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: voice.Format,
		Speed:          voice.Speed,
	}
	if voice.Model != "" {
		reqBody.Model = voice.Model
	}
	if voice.ID != "" {
		reqBody.Voice = voice.ID
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+speechPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tts/openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts/openai: synthesis failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: read audio: %w", err)
	}
	return audio, nil
}

var _ tts.Provider = (*Provider)(nil)
