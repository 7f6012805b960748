package observe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func metricNames(rm metricdata.ResourceMetrics) map[string]bool {
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordStage(ctx, StageSTT, 120*time.Millisecond, nil)
	m.RecordExchange(ctx, OutcomeAudio, 800*time.Millisecond)
	m.RecordUtterance(ctx, 6400)
	m.ConnectionOpened(ctx)
	m.ConnectionClosed(ctx)

	names := metricNames(collect(t, reader))
	for _, want := range []string{
		"lumi.stage.duration",
		"lumi.pipeline.duration",
		"lumi.pipeline.outcomes",
		"lumi.utterance.bytes",
		"lumi.connections.active",
	} {
		if !names[want] {
			t.Errorf("metric %q not recorded, got %v", want, names)
		}
	}
}

func TestMetricsNilInstruments(t *testing.T) {
	// Zero-value metrics must be safe to record on.
	m := &Metrics{}
	ctx := context.Background()
	m.RecordStage(ctx, StageLLM, time.Second, nil)
	m.RecordExchange(ctx, OutcomeError, time.Second)
	m.RecordUtterance(ctx, 1)
	m.ConnectionOpened(ctx)
	m.ConnectionClosed(ctx)
}

func TestMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	handler := Middleware(m, slog.New(slog.DiscardHandler), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	names := metricNames(collect(t, reader))
	if !names["lumi.http.request.duration"] {
		t.Errorf("http duration metric not recorded, got %v", names)
	}
}

func TestMiddlewareAllowsHijack(t *testing.T) {
	hijacked := make(chan error, 1)
	handler := Middleware(nil, slog.New(slog.DiscardHandler), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		hijacked <- err
		if err != nil {
			return
		}
		io.WriteString(conn, "HTTP/1.1 204 No Content\r\n\r\n")
		conn.Close()
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if err := <-hijacked; err != nil {
		t.Fatalf("hijack through middleware: %v", err)
	}
}

func TestInitProvider(t *testing.T) {
	p, err := InitProvider(ProviderConfig{
		ServiceName: "lumid-test",
		Registerer:  prometheus.NewRegistry(),
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if p.MeterProvider == nil || p.TracerProvider == nil {
		t.Fatal("providers not initialized")
	}

	ctx, span := StartSpan(context.Background(), "test")
	if CorrelationID(ctx) == "" {
		t.Error("expected a trace id on a sampled span")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCorrelationIDEmpty(t *testing.T) {
	if id := CorrelationID(context.Background()); id != "" {
		t.Fatalf("CorrelationID on bare context = %q, want empty", id)
	}
}
