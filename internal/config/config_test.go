package config

import (
	"strings"
	"testing"
	"time"

	"github.com/lumivoice/lumi/internal/vad"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  shutdown_grace: 10s
  report_interval: 30s
client:
  server_url: "ws://localhost:8080/ws"
  request_timeout: 20s
  reconnect_interval: 2s
  max_reconnect_attempts: 3
  vad:
    silence_threshold: 25
    silence_duration: 500ms
    min_speech_duration: 200ms
    max_sentence_duration: 6s
  capture:
    device: "hw:1"
    sample_rate: 44100
    channels: 2
providers:
  stt:
    name: whisper
    base_url: "http://localhost:9000"
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: elevenlabs
    api_key: el-test
  transcode:
    name: ffmpeg
    options:
      binary: /usr/bin/ffmpeg
pipeline:
  persona: "You are a helpful assistant."
  temperature: 0.7
  max_tokens: 350
  voice:
    id: rachel
    speed: 1.1
    format: mp3
archive:
  driver: sqlite
  dsn: /var/lib/lumi/exchanges.db
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Client.RequestTimeout != 20*time.Second {
		t.Errorf("request_timeout = %v", cfg.Client.RequestTimeout)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt provider = %q", cfg.Providers.STT.Name)
	}
	if cfg.Providers.Transcode.StringOption("binary") != "/usr/bin/ffmpeg" {
		t.Errorf("transcode binary option = %q", cfg.Providers.Transcode.StringOption("binary"))
	}
	if cfg.Pipeline.Voice.Speed != 1.1 {
		t.Errorf("voice speed = %v", cfg.Pipeline.Voice.Speed)
	}
	if cfg.Archive.Driver != "sqlite" {
		t.Errorf("archive driver = %q", cfg.Archive.Driver)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
	if err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestVADConfigDetector(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := VADConfig{}.Detector()
		want := vad.DefaultConfig()
		if got != want {
			t.Errorf("Detector() = %+v, want defaults %+v", got, want)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		got := VADConfig{SilenceThreshold: 40, SilenceDuration: time.Second}.Detector()
		if got.SilenceThreshold != 40 {
			t.Errorf("threshold = %v", got.SilenceThreshold)
		}
		if got.SilenceDuration != time.Second {
			t.Errorf("silence duration = %v", got.SilenceDuration)
		}
		if got.MaxSentenceDuration != vad.DefaultMaxSentenceDuration {
			t.Errorf("max sentence duration = %v, want default", got.MaxSentenceDuration)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid empty", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "log_level"},
		{"negative grace", func(c *Config) { c.Server.ShutdownGrace = -time.Second }, "shutdown_grace"},
		{"min speech exceeds max sentence", func(c *Config) {
			c.Client.VAD.MinSpeechDuration = 10 * time.Second
			c.Client.VAD.MaxSentenceDuration = 2 * time.Second
		}, "client.vad"},
		{"temperature out of range", func(c *Config) { c.Pipeline.Temperature = 2.5 }, "temperature"},
		{"voice speed out of range", func(c *Config) { c.Pipeline.Voice.Speed = 3 }, "voice.speed"},
		{"unknown archive driver", func(c *Config) { c.Archive.Driver = "redis" }, "archive.driver"},
		{"archive driver without dsn", func(c *Config) { c.Archive.Driver = "postgres" }, "archive.dsn"},
		{"negative reconnect attempts", func(c *Config) { c.Client.MaxReconnectAttempts = -1 }, "max_reconnect_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Pipeline.Temperature = 9
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"log_level", "temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}
