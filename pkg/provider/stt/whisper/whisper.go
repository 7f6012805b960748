// Package whisper implements stt.Provider against a local whisper.cpp
// server (POST /inference). Utterances arrive already segmented, so each
// call is one batch inference request; raw PCM input is wrapped as WAV
// before upload.
package whisper

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

	"github.com/lumivoice/lumi/pkg/audio"
	"github.com/lumivoice/lumi/pkg/provider/stt"
)

const defaultTimeout = 120 * time.Second

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithPCMFormat sets the sample rate and channel count assumed when a raw
// "pcm" upload needs WAV wrapping. Default is 16 kHz mono.
func WithPCMFormat(f audio.Format) Option {
	return func(p *Provider) { p.pcm = f }
}

// Provider submits utterances to a whisper.cpp server. It is safe for
// concurrent use.
type Provider struct {
	serverURL string
	client    *http.Client
	pcm       audio.Format
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) *Provider {
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
		pcm:       audio.Format{SampleRate: 16000, Channels: 1},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Transcribe POSTs one utterance to /inference and returns the transcript.
// Raw PCM input (cfg.Format "pcm" or empty) is wrapped in a WAV header;
// other containers are uploaded as-is.
func (p *Provider) Transcribe(ctx context.Context, in []byte, cfg stt.TranscribeConfig) (string, error) {
	if len(in) == 0 {
		return "", stt.ErrEmptyAudio
	}

	data := in
	filename := "audio." + cfg.Format
	if cfg.Format == "" || cfg.Format == "pcm" {
		data = audio.EncodeWAV(in, p.pcm.SampleRate, p.pcm.Channels)
		filename = "audio.wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("stt/whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("stt/whisper: write audio: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("stt/whisper: write response_format field: %w", err)
	}
	if cfg.Language != "" {
		if err := mw.WriteField("language", cfg.Language); err != nil {
			return "", fmt.Errorf("stt/whisper: write language field: %w", err)
		}
	}
	if cfg.Model != "" {
		if err := mw.WriteField("model", cfg.Model); err != nil {
			return "", fmt.Errorf("stt/whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("stt/whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("stt/whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt/whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("stt/whisper: inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt/whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

var _ stt.Provider = (*Provider)(nil)
