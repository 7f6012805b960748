// Package pipeline runs a received utterance through the cascaded
// transcode, transcribe, generate and synthesize stages and produces the
// reply to ship back to the client.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lumivoice/lumi/internal/archive"
	"github.com/lumivoice/lumi/internal/observe"
	"github.com/lumivoice/lumi/pkg/audio"
	"github.com/lumivoice/lumi/pkg/provider/llm"
	"github.com/lumivoice/lumi/pkg/provider/stt"
	"github.com/lumivoice/lumi/pkg/provider/tts"
)

// Result is the outcome of processing one utterance. At most one of Audio
// and FallbackText is set. Both empty means nothing should be sent back.
type Result struct {
	// Transcript is the recognized user speech.
	Transcript string

	// Reply is the generated response text.
	Reply string

	// Audio is the synthesized reply, ready to ship as a binary frame.
	Audio []byte

	// FallbackText carries the reply as text when synthesis failed.
	FallbackText string

	// Outcome labels the exchange for metrics (observe.Outcome*).
	Outcome string
}

// Orchestrator drives the four pipeline stages sequentially. Each stage
// gets exactly one attempt per utterance; a failed stage ends the exchange
// rather than retrying, since a voice reply that arrives seconds late is
// worse than none.
type Orchestrator struct {
	transcoder audio.Transcoder
	sttP       stt.Provider
	llmP       llm.Provider
	ttsP       tts.Provider

	store   archive.Store
	metrics *observe.Metrics
	logger  *slog.Logger

	srcFormat string

	mu          sync.RWMutex
	persona     string
	temperature float64
	maxTokens   int
	voice       tts.VoiceProfile
	sttCfg      stt.TranscribeConfig
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchive sets the exchange archive. Defaults to archive.Noop.
func WithArchive(s archive.Store) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPersona sets the system prompt injected into every completion.
func WithPersona(persona string) Option {
	return func(o *Orchestrator) { o.persona = persona }
}

// WithTemperature sets the completion temperature. Zero keeps the
// provider default.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithMaxTokens caps the generated reply length.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithVoice sets the synthesis voice profile.
func WithVoice(v tts.VoiceProfile) Option {
	return func(o *Orchestrator) { o.voice = v }
}

// WithTranscribeConfig sets the transcription parameters. The upload
// Format is derived from the transcoder's output; setting it here only
// matters when the transcoder keeps the container and no source format
// is configured.
func WithTranscribeConfig(cfg stt.TranscribeConfig) Option {
	return func(o *Orchestrator) { o.sttCfg = cfg }
}

// WithSourceFormat declares the container clients record in ("webm",
// "ogg"). It is passed to the transcoder as the source hint and used as
// the upload format when the transcoder keeps the container.
func WithSourceFormat(format string) Option {
	return func(o *Orchestrator) { o.srcFormat = format }
}

// New builds an Orchestrator over the four stage providers.
func New(tc audio.Transcoder, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transcoder: tc,
		sttP:       sttP,
		llmP:       llmP,
		ttsP:       ttsP,
		store:      archive.Noop{},
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetPersona swaps the system prompt. Used by config hot-reload; in-flight
// exchanges keep the persona they started with.
func (o *Orchestrator) SetPersona(persona string) {
	o.mu.Lock()
	o.persona = persona
	o.mu.Unlock()
}

// Persona returns the current system prompt.
func (o *Orchestrator) Persona() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.persona
}

// Process runs one utterance through all stages. A non-nil error means a
// stage failed and nothing should be sent to the client; a nil error with
// an empty Result means the utterance produced nothing worth answering.
func (o *Orchestrator) Process(ctx context.Context, raw []byte, connectionID string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()

	log := observe.Logger(ctx, o.logger).With("connection", connectionID)
	started := time.Now()
	o.metrics.RecordUtterance(ctx, len(raw))

	o.mu.RLock()
	persona := o.persona
	temperature := o.temperature
	maxTokens := o.maxTokens
	voice := o.voice
	sttCfg := o.sttCfg
	o.mu.RUnlock()

	encoded, err := o.timedStage(ctx, observe.StageTranscode, func() ([]byte, error) {
		return o.transcoder.Transcode(ctx, raw, o.srcFormat)
	})
	if err != nil {
		o.metrics.RecordExchange(ctx, observe.OutcomeError, time.Since(started))
		return Result{Outcome: observe.OutcomeError}, fmt.Errorf("pipeline: transcode: %w", err)
	}

	// The upload format must name the container the transcription service
	// actually receives, which is whatever the transcoder produced.
	if tf := o.transcoder.TargetFormat(); tf != "" {
		sttCfg.Format = tf
	} else if o.srcFormat != "" {
		sttCfg.Format = o.srcFormat
	}

	var transcript string
	_, err = o.timedStage(ctx, observe.StageSTT, func() ([]byte, error) {
		var serr error
		transcript, serr = o.sttP.Transcribe(ctx, encoded, sttCfg)
		return nil, serr
	})
	if err != nil {
		o.metrics.RecordExchange(ctx, observe.OutcomeError, time.Since(started))
		return Result{Outcome: observe.OutcomeError}, fmt.Errorf("pipeline: transcribe: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		log.Debug("no speech recognized, dropping utterance", "bytes", len(raw))
		o.metrics.RecordExchange(ctx, observe.OutcomeNone, time.Since(started))
		return Result{Outcome: observe.OutcomeNone}, nil
	}

	var reply string
	_, err = o.timedStage(ctx, observe.StageLLM, func() ([]byte, error) {
		var lerr error
		reply, lerr = o.llmP.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: persona,
			Messages:     []llm.Message{{Role: "user", Content: transcript}},
			Temperature:  temperature,
			MaxTokens:    maxTokens,
		})
		return nil, lerr
	})
	if err != nil {
		o.metrics.RecordExchange(ctx, observe.OutcomeError, time.Since(started))
		return Result{Transcript: transcript, Outcome: observe.OutcomeError}, fmt.Errorf("pipeline: complete: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Debug("model produced an empty reply", "transcript", transcript)
		o.metrics.RecordExchange(ctx, observe.OutcomeNone, time.Since(started))
		return Result{Transcript: transcript, Outcome: observe.OutcomeNone}, nil
	}

	// The archive is write-only and best-effort: a failed insert must not
	// cost the client its reply.
	if err := o.store.SaveExchange(ctx, archive.Exchange{
		ConnectionID: connectionID,
		Transcript:   transcript,
		Reply:        reply,
		CreatedAt:    time.Now(),
	}); err != nil {
		log.Warn("archive write failed", "err", err)
	}

	speech, err := o.timedStage(ctx, observe.StageTTS, func() ([]byte, error) {
		return o.ttsP.Synthesize(ctx, reply, voice)
	})
	if err != nil {
		log.Warn("synthesis failed, falling back to text reply", "err", err)
		o.metrics.RecordExchange(ctx, observe.OutcomeFallback, time.Since(started))
		return Result{
			Transcript:   transcript,
			Reply:        reply,
			FallbackText: reply,
			Outcome:      observe.OutcomeFallback,
		}, nil
	}

	o.metrics.RecordExchange(ctx, observe.OutcomeAudio, time.Since(started))
	log.Info("utterance answered",
		"transcript_chars", len(transcript),
		"reply_chars", len(reply),
		"audio_bytes", len(speech),
		"duration", time.Since(started))
	return Result{
		Transcript: transcript,
		Reply:      reply,
		Audio:      speech,
		Outcome:    observe.OutcomeAudio,
	}, nil
}

// timedStage runs fn and records its duration under the stage label.
func (o *Orchestrator) timedStage(ctx context.Context, stage string, fn func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	out, err := fn()
	o.metrics.RecordStage(ctx, stage, time.Since(start), err)
	return out, err
}
