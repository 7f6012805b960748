// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for lumi.
package config

import (
	"time"

	"github.com/lumivoice/lumi/internal/vad"
	"github.com/lumivoice/lumi/pkg/capture"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration for both the lumid server and the
// lumi client. It is typically loaded from a YAML file using [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// ServerConfig holds network and logging settings for lumid.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, sends logs to a rotated file instead of stderr.
	LogFile string `yaml:"log_file"`

	// ShutdownGrace bounds the drain period on shutdown. Defaults to 5s.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// ReportInterval sets how often per-connection statistics are logged.
	// Defaults to 60s.
	ReportInterval time.Duration `yaml:"report_interval"`
}

// ClientConfig holds settings for the lumi capture client.
type ClientConfig struct {
	// ServerURL is the websocket endpoint of lumid
	// (e.g., "ws://localhost:8080/ws").
	ServerURL string `yaml:"server_url"`

	// RequestTimeout bounds how long the client waits for a reply to a
	// sent utterance. Defaults to 15s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ReconnectInterval is the fixed delay between reconnect attempts.
	// Defaults to 3s.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// MaxReconnectAttempts caps reconnect attempts before giving up.
	// Defaults to 5.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	VAD     VADConfig     `yaml:"vad"`
	Capture CaptureConfig `yaml:"capture"`
}

// VADConfig tunes utterance segmentation. Zero values fall back to the
// detector defaults.
type VADConfig struct {
	// SilenceThreshold is the peak amplitude (0-255) below which a frame
	// counts as quiet.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDuration is how long quiet must persist to close an utterance.
	SilenceDuration time.Duration `yaml:"silence_duration"`

	// MinSpeechDuration discards utterances shorter than this.
	MinSpeechDuration time.Duration `yaml:"min_speech_duration"`

	// MaxSentenceDuration force-closes an utterance after this long.
	MaxSentenceDuration time.Duration `yaml:"max_sentence_duration"`
}

// Detector converts the YAML block into a vad.Config with defaults applied.
func (v VADConfig) Detector() vad.Config {
	cfg := vad.DefaultConfig()
	if v.SilenceThreshold > 0 {
		cfg.SilenceThreshold = v.SilenceThreshold
	}
	if v.SilenceDuration > 0 {
		cfg.SilenceDuration = v.SilenceDuration
	}
	if v.MinSpeechDuration > 0 {
		cfg.MinSpeechDuration = v.MinSpeechDuration
	}
	if v.MaxSentenceDuration > 0 {
		cfg.MaxSentenceDuration = v.MaxSentenceDuration
	}
	return cfg
}

// CaptureConfig selects the microphone input.
type CaptureConfig struct {
	// Device is the platform capture device (e.g., "default" for ALSA,
	// ":0" for avfoundation).
	Device string `yaml:"device"`

	// InputFormat is the ffmpeg demuxer name. Defaults per platform.
	InputFormat string `yaml:"input_format"`

	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count. Defaults to 1.
	Channels int `yaml:"channels"`

	// FrameDuration is the audio span per frame handed to the detector.
	FrameDuration time.Duration `yaml:"frame_duration"`
}

// SourceOptions converts the YAML block into capture options.
func (c CaptureConfig) SourceOptions() []capture.FFmpegOption {
	var opts []capture.FFmpegOption
	if c.Device != "" {
		opts = append(opts, capture.WithDevice(c.Device))
	}
	if c.InputFormat != "" {
		opts = append(opts, capture.WithInputFormat(c.InputFormat))
	}
	if c.SampleRate > 0 || c.Channels > 0 {
		f := capture.DefaultFormat()
		if c.SampleRate > 0 {
			f.SampleRate = c.SampleRate
		}
		if c.Channels > 0 {
			f.Channels = c.Channels
		}
		opts = append(opts, capture.WithFormat(f))
	}
	if c.FrameDuration > 0 {
		opts = append(opts, capture.WithFrameDuration(c.FrameDuration))
	}
	return opts
}

// ProvidersConfig declares which implementation serves each pipeline
// stage. Each entry selects a factory registered in the [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	LLM       ProviderEntry `yaml:"llm"`
	TTS       ProviderEntry `yaml:"tts"`
	Transcode ProviderEntry `yaml:"transcode"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named entry from Options as a string, or ""
// when absent or not a string.
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// PipelineConfig shapes the reply generation. Persona is hot-reloadable.
type PipelineConfig struct {
	// Persona is the system prompt injected into every completion.
	Persona string `yaml:"persona"`

	// Temperature for the LLM, in [0, 2]. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the generated reply length. Zero means no cap.
	MaxTokens int `yaml:"max_tokens"`

	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the synthesis voice.
type VoiceConfig struct {
	// ID is the provider-specific voice identifier.
	ID string `yaml:"id"`

	// Model overrides the synthesis model.
	Model string `yaml:"model"`

	// Speed adjusts speaking rate in [0.5, 2.0]. Zero means default.
	Speed float64 `yaml:"speed"`

	// Format is the requested output encoding (e.g., "mp3").
	Format string `yaml:"format"`
}

// ArchiveConfig selects the exchange archive backend.
type ArchiveConfig struct {
	// Driver is "postgres", "sqlite" or empty for no archiving.
	Driver string `yaml:"driver"`

	// DSN is the driver connection string or file path.
	DSN string `yaml:"dsn"`
}
