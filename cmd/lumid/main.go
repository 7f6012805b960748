// Command lumid is the lumi voice server: it accepts utterances on a
// websocket endpoint and answers them through the cascaded
// transcode → transcribe → generate → synthesize pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/lumivoice/lumi/internal/archive"
	"github.com/lumivoice/lumi/internal/config"
	"github.com/lumivoice/lumi/internal/health"
	"github.com/lumivoice/lumi/internal/logging"
	"github.com/lumivoice/lumi/internal/observe"
	"github.com/lumivoice/lumi/internal/pipeline"
	"github.com/lumivoice/lumi/internal/server"
	"github.com/lumivoice/lumi/internal/session"
	"github.com/lumivoice/lumi/pkg/audio"
	"github.com/lumivoice/lumi/pkg/provider/llm"
	"github.com/lumivoice/lumi/pkg/provider/llm/anyllm"
	oaillm "github.com/lumivoice/lumi/pkg/provider/llm/openai"
	"github.com/lumivoice/lumi/pkg/provider/stt"
	oaistt "github.com/lumivoice/lumi/pkg/provider/stt/openai"
	"github.com/lumivoice/lumi/pkg/provider/stt/whisper"
	"github.com/lumivoice/lumi/pkg/provider/tts"
	"github.com/lumivoice/lumi/pkg/provider/tts/elevenlabs"
	oaitts "github.com/lumivoice/lumi/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "lumi.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lumid: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lumid: %v\n", err)
		}
		return 1
	}

	var logOpts []logging.Option
	if cfg.Server.LogFile != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Server.LogFile))
	}
	logger := logging.New(string(cfg.Server.LogLevel), logOpts...)
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	slog.Info("lumid starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	telemetry, err := observe.InitProvider(observe.ProviderConfig{ServiceName: "lumid"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(telemetry.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	transcoder, err := reg.CreateTranscoder(cfg.Providers.Transcode)
	if err != nil {
		slog.Error("failed to create transcoder", "name", cfg.Providers.Transcode.Name, "err", err)
		return 1
	}
	slog.Info("providers ready",
		"stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name,
		"tts", cfg.Providers.TTS.Name,
		"transcode", cfg.Providers.Transcode.Name,
	)

	store, err := archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
	if err != nil {
		slog.Error("failed to open exchange archive", "driver", cfg.Archive.Driver, "err", err)
		return 1
	}
	defer store.Close()

	orch := pipeline.New(transcoder, sttP, llmP, ttsP,
		pipeline.WithArchive(store),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger.Logger),
		pipeline.WithPersona(cfg.Pipeline.Persona),
		pipeline.WithTemperature(cfg.Pipeline.Temperature),
		pipeline.WithMaxTokens(cfg.Pipeline.MaxTokens),
		pipeline.WithVoice(tts.VoiceProfile{
			ID:     cfg.Pipeline.Voice.ID,
			Model:  cfg.Pipeline.Voice.Model,
			Speed:  cfg.Pipeline.Voice.Speed,
			Format: cfg.Pipeline.Voice.Format,
		}),
		pipeline.WithTranscribeConfig(stt.TranscribeConfig{
			Model: cfg.Providers.STT.Model,
		}),
		pipeline.WithSourceFormat(cfg.Providers.Transcode.StringOption("source_format")),
	)

	registryOpts := []session.RegistryOption{session.WithLogger(logger.Logger)}
	if cfg.Server.ReportInterval > 0 {
		registryOpts = append(registryOpts, session.WithReportInterval(cfg.Server.ReportInterval))
	}
	sessions := session.NewRegistry(registryOpts...)

	hh := health.NewHandler()
	hh.AddCheck("archive", func(context.Context) error {
		// The store is write-only; a failed open would have aborted startup.
		return nil
	})

	srv := server.New(server.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		ShutdownGrace: cfg.Server.ShutdownGrace,
		Logger:        logger.Logger,
		Metrics:       metrics,
	}, orch, sessions, hh)

	// Hot reload for log level and persona.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logger.SetLevel(string(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PersonaChanged {
			orch.SetPersona(d.NewPersona)
			slog.Info("persona changed", "chars", len(d.NewPersona))
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}

	if err := telemetry.Shutdown(context.Background()); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider factories that ship with
// lumid into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai uses the native SDK; everything else goes through any-llm.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})
	for _, name := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}
	// ollama is a local server; BaseURL is the address, no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		return oaistt.New(entry.APIKey, opts...), nil
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.BaseURL), nil
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		return oaitts.New(entry.APIKey, opts...), nil
	})
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscoder("passthrough", func(config.ProviderEntry) (audio.Transcoder, error) {
		return audio.Passthrough{}, nil
	})
	reg.RegisterTranscoder("wav", func(config.ProviderEntry) (audio.Transcoder, error) {
		return audio.WAVWrapper{}, nil
	})
	reg.RegisterTranscoder("ffmpeg", func(entry config.ProviderEntry) (audio.Transcoder, error) {
		var opts []audio.FFmpegOption
		if bin := entry.StringOption("binary"); bin != "" {
			opts = append(opts, audio.WithBinary(bin))
		}
		if format := entry.StringOption("format"); format != "" {
			opts = append(opts, audio.WithTargetFormat(format))
		}
		return audio.NewFFmpegTranscoder(opts...), nil
	})
}
