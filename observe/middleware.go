package observe

import (
	"context"
	"net/http"
	"time"
)

// HandlerFunc is the shape of a fetch strategy.
type HandlerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Middleware instruments fetch handlers with a span, a metric and a log line.
//
// Contract:
//   - Concurrency: Wrap returns a handler safe for concurrent use if fn is.
//   - Errors: errors from fn are recorded and returned unchanged.
//   - Responses pass through unmodified.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap instruments fn. meta.Route labels the metric.
func (m *Middleware) Wrap(meta EventMeta, fn HandlerFunc) HandlerFunc {
	log := m.logger.With(meta)
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		ctx, span := m.tracer.Start(ctx, meta)
		start := time.Now()

		resp, err := fn(ctx, req)

		duration := time.Since(start)
		m.tracer.End(span, err)

		source := SourceNetwork
		if resp != nil {
			if s := resp.Header.Get(SourceHeader); s != "" {
				source = s
			}
		}
		m.metrics.RecordFetch(ctx, meta.Route, source, duration, err)

		fields := []Field{
			F("url", req.URL.String()),
			F("source", source),
			F("duration_ms", float64(duration.Milliseconds())),
		}
		if err != nil {
			log.Warn(ctx, "fetch rejected", append(fields, Err(err))...)
		} else {
			log.Debug(ctx, "fetch handled", append(fields, F("status", resp.StatusCode))...)
		}
		return resp, err
	}
}
