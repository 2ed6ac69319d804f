package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/resilience"
)

func mockClient() (*http.Client, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	return &http.Client{Transport: mt}, mt
}

func TestHTTPFetcher_RewritesToUpstream(t *testing.T) {
	client, mt := mockClient()
	mt.RegisterResponder(http.MethodGet, "http://upstream.internal:3000/api/events",
		httpmock.NewStringResponder(200, `{"events":[]}`))
	mt.RegisterResponder(http.MethodGet, "https://res.cloudinary.com/lusotown/fado.jpg",
		httpmock.NewStringResponder(200, "jpeg"))

	origin, _ := url.Parse("https://lusotown.example")
	upstream, _ := url.Parse("http://upstream.internal:3000")
	f := NewHTTPFetcher(client, WithUpstream(origin, upstream))

	resp, err := f.Fetch(context.Background(), get("/api/events"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if b, _ := io.ReadAll(resp.Body); string(b) != `{"events":[]}` {
		t.Errorf("body = %q", b)
	}

	cdn, _ := http.NewRequest(http.MethodGet, "https://res.cloudinary.com/lusotown/fado.jpg", nil)
	if _, err := f.Fetch(context.Background(), cdn); err != nil {
		t.Errorf("CDN Fetch() error = %v", err)
	}
	if got := mt.GetTotalCallCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestHTTPFetcher_StatusIsNotError(t *testing.T) {
	client, mt := mockClient()
	mt.RegisterResponder(http.MethodGet, "https://lusotown.example/api/events",
		httpmock.NewStringResponder(500, "boom"))

	resp, err := NewHTTPFetcher(client).Fetch(context.Background(), get("/api/events"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

func TestHTTPFetcher_BreakerOpensOnTransportFailures(t *testing.T) {
	client, mt := mockClient()
	mt.RegisterResponder(http.MethodGet, "https://lusotown.example/events",
		httpmock.NewErrorResponder(errNetworkDown))

	guard := resilience.NewGuard(resilience.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Hour,
	})))
	f := NewHTTPFetcher(client, WithGuard(guard))

	for range 2 {
		if _, err := f.Fetch(context.Background(), get("/events")); err == nil {
			t.Fatal("Fetch() should fail")
		}
	}
	_, err := f.Fetch(context.Background(), get("/events"))
	if !errors.Is(err, resilience.ErrOriginUnavailable) {
		t.Errorf("Fetch() = %v, want ErrOriginUnavailable", err)
	}
	if got := mt.GetTotalCallCount(); got != 2 {
		t.Errorf("transport calls = %d, want 2", got)
	}
}

func TestCoalescer_SharesInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	slow := FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		calls.Add(1)
		<-release
		return &http.Response{StatusCode: 200, Header: http.Header{}, Body: io.NopCloser(stringReader("fado"))}, nil
	})
	c := NewCoalescer(slow)

	const callers = 5
	var wg sync.WaitGroup
	bodies := make([]string, callers)
	started := make(chan struct{}, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			resp, err := c.Fetch(context.Background(), get("/events/fado"))
			if err != nil {
				t.Errorf("Fetch() error = %v", err)
				return
			}
			b, _ := io.ReadAll(resp.Body)
			bodies[i] = string(b)
		}(i)
	}
	for range callers {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() >= callers {
		t.Errorf("upstream calls = %d, want fewer than %d", calls.Load(), callers)
	}
	for i, b := range bodies {
		if b != "fado" {
			t.Errorf("caller %d body = %q", i, b)
		}
	}
}

func TestCoalescer_DistinctQueriesNotShared(t *testing.T) {
	var calls atomic.Int64
	c := NewCoalescer(FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{StatusCode: 200, Header: http.Header{}, Body: io.NopCloser(stringReader(req.URL.RawQuery))}, nil
	}))

	pt, _ := c.Fetch(context.Background(), get("/api/events?lang=pt"))
	en, _ := c.Fetch(context.Background(), get("/api/events?lang=en"))
	pb, _ := io.ReadAll(pt.Body)
	eb, _ := io.ReadAll(en.Body)
	if string(pb) != "lang=pt" || string(eb) != "lang=en" {
		t.Errorf("bodies = %q, %q", pb, eb)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func waitCalls(calls *atomic.Int64, n int64) bool {
	deadline := time.Now().Add(time.Second)
	for calls.Load() < n {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func TestCoalescer_RangedRequestsNotShared(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	c := NewCoalescer(FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		calls.Add(1)
		<-release
		if req.Header.Get("Range") != "" {
			return &http.Response{StatusCode: http.StatusPartialContent, Header: http.Header{}, Body: io.NopCloser(stringReader("part"))}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(stringReader("full"))}, nil
	}))

	var wg sync.WaitGroup
	var full, part string
	wg.Go(func() {
		resp, err := c.Fetch(context.Background(), get("/streams/fado.mp4"))
		if err != nil {
			t.Errorf("Fetch() error = %v", err)
			return
		}
		b, _ := io.ReadAll(resp.Body)
		full = string(b)
	})
	if !waitCalls(&calls, 1) {
		t.Fatal("first fetch never started")
	}
	wg.Go(func() {
		req := get("/streams/fado.mp4")
		req.Header.Set("Range", "bytes=0-99")
		resp, err := c.Fetch(context.Background(), req)
		if err != nil {
			t.Errorf("Fetch() error = %v", err)
			return
		}
		b, _ := io.ReadAll(resp.Body)
		part = string(b)
	})
	separate := waitCalls(&calls, 2)
	close(release)
	wg.Wait()

	if !separate {
		t.Error("ranged request joined the in-flight full fetch")
	}
	if full != "full" || part != "part" {
		t.Errorf("bodies = %q, %q; want full, part", full, part)
	}
}

func TestDetached_LogsFailureWithoutPropagating(t *testing.T) {
	var logged atomic.Int64
	d := NewDetached(countingLogger{n: &logged})

	ctx, cancel := context.WithCancel(context.Background())
	var sawCancel atomic.Bool
	d.Go(ctx, "refresh", func(ctx context.Context) error {
		cancel()
		sawCancel.Store(ctx.Err() != nil)
		return errors.New("upstream 500")
	})
	d.Go(ctx, "panics", func(context.Context) error { panic("boom") })
	d.Wait()

	if sawCancel.Load() {
		t.Error("detached task observed caller cancellation")
	}
	if logged.Load() != 2 {
		t.Errorf("logged = %d, want 2", logged.Load())
	}
}

type countingLogger struct {
	n *atomic.Int64
}

func (l countingLogger) Info(context.Context, string, ...observe.Field)  {}
func (l countingLogger) Debug(context.Context, string, ...observe.Field) {}
func (l countingLogger) Warn(context.Context, string, ...observe.Field)  { l.n.Add(1) }
func (l countingLogger) Error(context.Context, string, ...observe.Field) { l.n.Add(1) }
func (l countingLogger) With(observe.EventMeta) observe.Logger           { return l }
