package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lumivoice/lumi"

// Pipeline stage names used as the "stage" metric attribute.
const (
	StageTranscode = "transcode"
	StageSTT       = "stt"
	StageLLM       = "llm"
	StageTTS       = "tts"
)

// Pipeline outcome values used as the "outcome" metric attribute.
const (
	OutcomeAudio    = "audio"
	OutcomeFallback = "fallback"
	OutcomeNone     = "none"
	OutcomeError    = "error"
)

// latencyBuckets cover provider round trips from tens of milliseconds up
// to slow LLM generations.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics bundles the instruments recorded by the server pipeline.
type Metrics struct {
	// StageDuration measures each pipeline stage, labeled by stage and
	// success.
	StageDuration metric.Float64Histogram
	// PipelineDuration measures one full utterance exchange end to end.
	PipelineDuration metric.Float64Histogram
	// PipelineOutcomes counts finished exchanges by outcome.
	PipelineOutcomes metric.Int64Counter
	// UtteranceBytes measures the size of received audio chunks.
	UtteranceBytes metric.Int64Histogram
	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections metric.Int64UpDownCounter
	// HTTPRequestDuration measures inbound HTTP handling time.
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates all instruments on the given meter provider. Pass nil
// to use the globally registered provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &Metrics{}
	var err error

	m.StageDuration, err = meter.Float64Histogram("lumi.stage.duration",
		metric.WithDescription("Duration of a single pipeline stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, err
	}
	m.PipelineDuration, err = meter.Float64Histogram("lumi.pipeline.duration",
		metric.WithDescription("Duration of a full utterance exchange in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, err
	}
	m.PipelineOutcomes, err = meter.Int64Counter("lumi.pipeline.outcomes",
		metric.WithDescription("Finished utterance exchanges by outcome"))
	if err != nil {
		return nil, err
	}
	m.UtteranceBytes, err = meter.Int64Histogram("lumi.utterance.bytes",
		metric.WithDescription("Size of received utterance audio in bytes"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	m.ActiveConnections, err = meter.Int64UpDownCounter("lumi.connections.active",
		metric.WithDescription("Currently open client connections"))
	if err != nil {
		return nil, err
	}
	m.HTTPRequestDuration, err = meter.Float64Histogram("lumi.http.request.duration",
		metric.WithDescription("Inbound HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, err
	}

	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns process-wide metrics on the global meter
// provider, creating them on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(nil)
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordStage records one pipeline stage execution.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m.StageDuration == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("success", err == nil),
	))
}

// RecordExchange records a completed utterance exchange with its outcome.
func (m *Metrics) RecordExchange(ctx context.Context, outcome string, d time.Duration) {
	if m.PipelineDuration != nil {
		m.PipelineDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
	if m.PipelineOutcomes != nil {
		m.PipelineOutcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

// RecordUtterance records the size of a received audio chunk.
func (m *Metrics) RecordUtterance(ctx context.Context, bytes int) {
	if m.UtteranceBytes == nil {
		return
	}
	m.UtteranceBytes.Record(ctx, int64(bytes))
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m.ActiveConnections != nil {
		m.ActiveConnections.Add(ctx, 1)
	}
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m.ActiveConnections != nil {
		m.ActiveConnections.Add(ctx, -1)
	}
}
