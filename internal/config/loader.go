package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per pipeline stage.
// Used by [Validate] to warn about likely typos.
var ValidProviderNames = map[string][]string{
	"stt":       {"openai", "whisper"},
	"llm":       {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"tts":       {"openai", "elevenlabs"},
	"transcode": {"passthrough", "wav", "ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_grace %v must not be negative", cfg.Server.ShutdownGrace))
	}
	if cfg.Server.ReportInterval < 0 {
		errs = append(errs, fmt.Errorf("server.report_interval %v must not be negative", cfg.Server.ReportInterval))
	}

	if cfg.Client.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("client.request_timeout %v must not be negative", cfg.Client.RequestTimeout))
	}
	if cfg.Client.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("client.max_reconnect_attempts %d must not be negative", cfg.Client.MaxReconnectAttempts))
	}
	if err := cfg.Client.VAD.Detector().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("client.vad: %w", err))
	}
	if cfg.Client.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("client.capture.sample_rate %d must not be negative", cfg.Client.Capture.SampleRate))
	}
	if cfg.Client.Capture.Channels < 0 {
		errs = append(errs, fmt.Errorf("client.capture.channels %d must not be negative", cfg.Client.Capture.Channels))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("transcode", cfg.Providers.Transcode.Name)

	if cfg.Pipeline.Temperature < 0 || cfg.Pipeline.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", cfg.Pipeline.Temperature))
	}
	if cfg.Pipeline.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens %d must not be negative", cfg.Pipeline.MaxTokens))
	}
	if s := cfg.Pipeline.Voice.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("pipeline.voice.speed %.2f is out of range [0.5, 2.0]", s))
	}

	switch cfg.Archive.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q is invalid; valid values: postgres, sqlite or empty", cfg.Archive.Driver))
	}
	if cfg.Archive.Driver != "" && cfg.Archive.DSN == "" {
		errs = append(errs, fmt.Errorf("archive.dsn is required when archive.driver is set"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning when name is non-empty and not in
// the [ValidProviderNames] list for the given stage.
func validateProviderName(stage, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[stage]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"stage", stage,
		"name", name,
		"known", known,
	)
}
