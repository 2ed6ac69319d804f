package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonwraymond/offlineworker/resilience"
)

// ErrUnavailable wraps a failed API fetch that had no cached fallback.
var ErrUnavailable = errors.New("strategy: resource unavailable")

// Fetcher performs network requests.
//
// Transport failures are returned as errors. HTTP error statuses are
// responses, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches through an http.Client. Requests for the public origin
// are sent to the upstream origin instead; other hosts (trusted CDNs) are
// fetched as-is.
type HTTPFetcher struct {
	client   *http.Client
	origin   *url.URL
	upstream *url.URL
	guard    *resilience.Guard
}

// HTTPFetcherOption configures an HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithUpstream routes public-origin requests to upstream.
func WithUpstream(origin, upstream *url.URL) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.origin = origin
		f.upstream = upstream
	}
}

// WithGuard runs every fetch through guard.
func WithGuard(guard *resilience.Guard) HTTPFetcherOption {
	return func(f *HTTPFetcher) { f.guard = guard }
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...HTTPFetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{client: client, guard: resilience.NewGuard()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch sends req upstream.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	if f.upstream != nil && f.sameOrigin(out) {
		out.URL.Scheme = f.upstream.Scheme
		out.URL.Host = f.upstream.Host
		out.Host = f.upstream.Host
	}
	if out.URL.Scheme == "" {
		out.URL.Scheme = "http"
	}
	if out.URL.Host == "" {
		out.URL.Host = out.Host
	}
	stripHopHeaders(out.Header)

	var resp *http.Response
	err := f.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = f.client.Do(out.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *HTTPFetcher) sameOrigin(req *http.Request) bool {
	if f.origin == nil {
		return true
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	return host == "" || strings.EqualFold(host, f.origin.Host)
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
