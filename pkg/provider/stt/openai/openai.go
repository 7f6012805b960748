// Package openai implements stt.Provider against any OpenAI-compatible
// /audio/transcriptions endpoint, including SiliconFlow and self-hosted
// gateways.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lumivoice/lumi/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 60 * time.Second

	transcribePath = "/audio/transcriptions"
)

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a compatible gateway. The path prefix
// up to /v1 is included (e.g., "https://api.siliconflow.cn/v1").
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the default transcription model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider calls an OpenAI-compatible transcription endpoint with a
// multipart file upload. It is safe for concurrent use.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New creates a Provider with OpenAI defaults.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Transcribe uploads one utterance and returns its transcript.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.TranscribeConfig) (string, error) {
	if len(audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	format := cfg.Format
	if format == "" {
		format = "mp3"
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "utterance."+format)
	if err != nil {
		return "", fmt.Errorf("stt/openai: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("stt/openai: write audio: %w", err)
	}
	if err := w.WriteField("model", model); err != nil {
		return "", fmt.Errorf("stt/openai: write model field: %w", err)
	}
	if cfg.Language != "" {
		if err := w.WriteField("language", cfg.Language); err != nil {
			return "", fmt.Errorf("stt/openai: write language field: %w", err)
		}
	}
	if cfg.Prompt != "" {
		if err := w.WriteField("prompt", cfg.Prompt); err != nil {
			return "", fmt.Errorf("stt/openai: write prompt field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("stt/openai: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcribePath, &body)
	if err != nil {
		return "", fmt.Errorf("stt/openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt/openai: transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("stt/openai: transcription failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt/openai: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

var _ stt.Provider = (*Provider)(nil)
