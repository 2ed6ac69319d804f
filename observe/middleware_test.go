package observe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMiddleware(t *testing.T, buf *bytes.Buffer) (*Middleware, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	m, reader := newTestMetrics(t)
	return NewMiddleware(NewTracer(tp.Tracer("test")), m, NewLoggerWithWriter("debug", buf)), recorder, reader
}

func TestMiddleware_WrapSuccess(t *testing.T) {
	var buf bytes.Buffer
	mw, recorder, reader := newTestMiddleware(t, &buf)

	meta := EventMeta{Component: "strategy", Operation: "fetch", Route: "cultural"}
	h := mw.Wrap(meta, func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Header: http.Header{SourceHeader: []string{SourceCache}}}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/events/fado", nil)
	resp, err := h(context.Background(), req)
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("handler = %v, %v", resp, err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "worker.strategy.fetch" {
		t.Fatalf("spans = %v", spans)
	}

	total := findMetric(collect(t, reader), "worker.fetch.total")
	if total == nil || sumWhere(t, total, "worker.source", SourceCache) != 1 {
		t.Error("cache source not recorded")
	}

	entry := decodeLines(t, &buf)[0]
	if entry["msg"] != "fetch handled" || entry["route"] != "cultural" || entry["source"] != SourceCache {
		t.Errorf("log entry = %v", entry)
	}
}

func TestMiddleware_WrapError(t *testing.T) {
	var buf bytes.Buffer
	mw, recorder, _ := newTestMiddleware(t, &buf)

	wantErr := errors.New("network down")
	h := mw.Wrap(EventMeta{Component: "strategy", Operation: "fetch", Route: "api"},
		func(context.Context, *http.Request) (*http.Response, error) { return nil, wantErr })

	_, err := h(context.Background(), httptest.NewRequest(http.MethodGet, "https://lusotown.example/api/events", nil))
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || len(spans[0].Events()) == 0 {
		t.Errorf("error not recorded on span")
	}
	entry := decodeLines(t, &buf)[0]
	if entry["level"] != "warn" || entry["error"] != "network down" {
		t.Errorf("log entry = %v", entry)
	}
}
