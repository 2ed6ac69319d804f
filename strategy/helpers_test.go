package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/route"
)

var errNetworkDown = errors.New("dial tcp: network is unreachable")

// network is a fake upstream. Responses are keyed by path+query.
type network struct {
	mu     sync.Mutex
	down   bool
	status map[string]int
	bodies map[string]string
	calls  atomic.Int64
}

func newNetwork() *network {
	return &network{status: map[string]int{}, bodies: map[string]string{}}
}

func (n *network) serve(target string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status[target] = status
	n.bodies[target] = body
}

func (n *network) setDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

func (n *network) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return nil, errNetworkDown
	}
	target := req.URL.RequestURI()
	status, ok := n.status[target]
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(n.bodies[target])),
		Request:    req,
	}, nil
}

type fixture struct {
	deps *Deps
	net  *network
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := cache.NewRegistry(cache.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	origin, _ := url.Parse("https://lusotown.example")
	net := newNetwork()
	deps := &Deps{
		Registry:   reg,
		Tiers:      cache.NewTierSet("lusotown", "3.0.1", cache.DefaultTierLimits()),
		Fetcher:    net,
		Classifier: route.DefaultClassifier(origin),
		Detached:   NewDetached(observe.NopLogger()),
		Logger:     observe.NopLogger(),
	}
	t.Cleanup(deps.Detached.Wait)
	return &fixture{deps: deps, net: net}
}

func get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "https://lusotown.example"+target, nil)
}

func navigate(target string) *http.Request {
	req := get(target)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func (f *fixture) seed(t *testing.T, tier cache.Tier, target, body string) {
	t.Helper()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	if err := f.deps.Registry.Put(context.Background(), tier, get(target), resp); err != nil {
		t.Fatalf("seed %s: %v", target, err)
	}
}

func (f *fixture) cached(t *testing.T, tier cache.Tier, target string) (string, bool) {
	t.Helper()
	resp, ok := f.deps.Registry.Match(context.Background(), tier, get(target))
	if !ok {
		return "", false
	}
	return readBody(t, resp), true
}

func stringReader(s string) io.Reader { return strings.NewReader(s) }
