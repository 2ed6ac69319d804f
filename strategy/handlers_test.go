package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jonwraymond/offlineworker/observe"
)

func TestAPINetworkFirst_MirrorsAllowListed(t *testing.T) {
	f := newFixture(t)
	f.net.serve("/api/events?lang=pt", 200, `{"events":["fado"]}`)
	f.net.serve("/api/payments", 200, `{}`)
	h := APINetworkFirst{f.deps}
	ctx := context.Background()

	resp, err := h.Handle(ctx, get("/api/events?lang=pt"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if body := readBody(t, resp); body != `{"events":["fado"]}` {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get(observe.SourceHeader) != observe.SourceNetwork {
		t.Errorf("source = %q", resp.Header.Get(observe.SourceHeader))
	}
	if _, ok := f.cached(t, f.deps.Tiers.API, "/api/events?lang=pt"); !ok {
		t.Error("allow-listed API response not mirrored")
	}

	if _, err := h.Handle(ctx, get("/api/payments")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cached(t, f.deps.Tiers.API, "/api/payments"); ok {
		t.Error("non-allow-listed API response mirrored")
	}
}

func TestAPINetworkFirst_DoesNotMirrorErrors(t *testing.T) {
	f := newFixture(t)
	f.net.serve("/api/events", 503, `busy`)

	resp, err := APINetworkFirst{f.deps}.Handle(context.Background(), get("/api/events"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
	if _, ok := f.cached(t, f.deps.Tiers.API, "/api/events"); ok {
		t.Error("error response was cached")
	}
}

func TestAPINetworkFirst_FallsBackToCache(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.deps.Tiers.API, "/api/businesses?type=restaurants", `{"businesses":["Tasca"]}`)
	f.net.setDown(true)

	resp, err := APINetworkFirst{f.deps}.Handle(context.Background(), get("/api/businesses?type=restaurants"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Tasca") {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get(observe.SourceHeader) != observe.SourceCache {
		t.Errorf("source = %q", resp.Header.Get(observe.SourceHeader))
	}
}

func TestAPINetworkFirst_PropagatesFailure(t *testing.T) {
	f := newFixture(t)
	f.net.setDown(true)

	resp, err := APINetworkFirst{f.deps}.Handle(context.Background(), get("/api/matches"))
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, errNetworkDown) {
		t.Errorf("err = %v, want ErrUnavailable wrapping network error", err)
	}
}

// Scenario: cultural request, network down, prior cache hit.
func TestStaleWhileRevalidate_OfflineHit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.deps.Tiers.Cultural, "/events?category=fado-nights&lang=pt", `{"events":["Noite de Fado"]}`)
	f.net.setDown(true)

	resp, err := StaleWhileRevalidate{f.deps}.Handle(context.Background(), get("/events?category=fado-nights&lang=pt"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `{"events":["Noite de Fado"]}` {
		t.Errorf("body = %q", body)
	}
	f.deps.Detached.Wait()
}

func TestStaleWhileRevalidate_HitIndependentOfNetwork(t *testing.T) {
	for _, down := range []bool{false, true} {
		f := newFixture(t)
		target := "/events/fado-night-camden"
		f.seed(t, f.deps.Tiers.Cultural, target, "cached")
		f.net.serve(target, 200, "fresh")
		f.net.setDown(down)

		resp, err := StaleWhileRevalidate{f.deps}.Handle(context.Background(), get(target))
		if err != nil {
			t.Fatalf("down=%v: Handle() error = %v", down, err)
		}
		if body := readBody(t, resp); body != "cached" {
			t.Errorf("down=%v: body = %q, want cached entry", down, body)
		}
		f.deps.Detached.Wait()
	}
}

func TestStaleWhileRevalidate_RefreshesInBackground(t *testing.T) {
	f := newFixture(t)
	target := "/portuguese-heritage/25-abril"
	f.seed(t, f.deps.Tiers.Cultural, target, "old")
	f.net.serve(target, 200, "new")

	if _, err := (StaleWhileRevalidate{f.deps}).Handle(context.Background(), get(target)); err != nil {
		t.Fatal(err)
	}
	f.deps.Detached.Wait()

	if body, _ := f.cached(t, f.deps.Tiers.Cultural, target); body != "new" {
		t.Errorf("cached body after refresh = %q, want new", body)
	}
}

func TestStaleWhileRevalidate_FailedRefreshKeepsEntry(t *testing.T) {
	f := newFixture(t)
	target := "/cultural-calendar"
	f.seed(t, f.deps.Tiers.Cultural, target, "old")
	f.net.serve(target, 500, "boom")

	if _, err := (StaleWhileRevalidate{f.deps}).Handle(context.Background(), get(target)); err != nil {
		t.Fatal(err)
	}
	f.deps.Detached.Wait()

	if body, _ := f.cached(t, f.deps.Tiers.Cultural, target); body != "old" {
		t.Errorf("cached body = %q, want old", body)
	}
}

func TestStaleWhileRevalidate_MissPopulatesOrGoesOffline(t *testing.T) {
	f := newFixture(t)
	h := StaleWhileRevalidate{f.deps}
	f.net.serve("/events/santo-antonio", 200, "arraial")

	resp, _ := h.Handle(context.Background(), get("/events/santo-antonio"))
	if body := readBody(t, resp); body != "arraial" {
		t.Errorf("body = %q", body)
	}
	if _, ok := f.cached(t, f.deps.Tiers.Cultural, "/events/santo-antonio"); !ok {
		t.Error("miss was not populated")
	}

	f.net.setDown(true)
	resp, err := h.Handle(context.Background(), get("/events/festa-junina"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.Header.Get(observe.SourceHeader) != observe.SourceOffline {
		t.Errorf("source = %q, want offline", resp.Header.Get(observe.SourceHeader))
	}
}

// Scenario: navigation, network down, no offline doc cached.
func TestNavigationNetworkFirst_SynthesizesOffline(t *testing.T) {
	f := newFixture(t)
	f.net.setDown(true)

	resp, err := NavigationNetworkFirst{f.deps}.Handle(context.Background(), navigate("/my-network"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body := readBody(t, resp)
	for _, want := range []string{"Offline", "Tentar Novamente", "window.location.reload()"} {
		if !strings.Contains(body, want) {
			t.Errorf("offline document missing %q", want)
		}
	}
}

func TestNavigationNetworkFirst_PrefersCachedOfflineDoc(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.deps.Tiers.Core, "/offline.html", "<p>precached</p>")
	f.net.setDown(true)

	resp, _ := NavigationNetworkFirst{f.deps}.Handle(context.Background(), navigate("/events"))
	if body := readBody(t, resp); body != "<p>precached</p>" {
		t.Errorf("body = %q", body)
	}
}

func TestCacheFirst(t *testing.T) {
	f := newFixture(t)
	h := CacheFirst{f.deps}
	ctx := context.Background()

	f.net.serve("/images/ponte-25-abril.jpg", 200, "jpeg")
	f.net.serve("/_next/static/app.js", 200, "js")

	if _, err := h.Handle(ctx, get("/images/ponte-25-abril.jpg")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Handle(ctx, get("/_next/static/app.js")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cached(t, f.deps.Tiers.Images, "/images/ponte-25-abril.jpg"); !ok {
		t.Error("image not cached in images tier")
	}
	if _, ok := f.cached(t, f.deps.Tiers.Static, "/_next/static/app.js"); !ok {
		t.Error("script not cached in static tier")
	}

	calls := f.net.calls.Load()
	resp, _ := h.Handle(ctx, get("/_next/static/app.js"))
	if readBody(t, resp) != "js" || f.net.calls.Load() != calls {
		t.Error("cache hit went to the network")
	}
}

func TestCacheFirst_FindsPrecachedCoreAsset(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.deps.Tiers.Core, "/fonts/poppins-regular.woff2", "font")
	f.net.setDown(true)

	resp, _ := CacheFirst{f.deps}.Handle(context.Background(), get("/fonts/poppins-regular.woff2"))
	if body := readBody(t, resp); body != "font" {
		t.Errorf("body = %q", body)
	}
}

func TestCacheFirst_OversizedImageServedNotCached(t *testing.T) {
	f := newFixture(t)
	big := strings.Repeat("x", 600*1024)
	f.net.serve("/images/pasteis-de-nata.jpg", 200, big)

	resp, err := CacheFirst{f.deps}.Handle(context.Background(), get("/images/pasteis-de-nata.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(readBody(t, resp)) != len(big) {
		t.Error("caller did not receive full body")
	}
	if _, ok := f.cached(t, f.deps.Tiers.Images, "/images/pasteis-de-nata.jpg"); ok {
		t.Error("oversized image was cached")
	}
}

func TestNetworkFirst(t *testing.T) {
	f := newFixture(t)
	h := NetworkFirst{f.deps}
	f.net.serve("/manifest.json", 200, `{"name":"LusoTown"}`)

	if _, err := h.Handle(context.Background(), get("/manifest.json")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.cached(t, f.deps.Tiers.Core, "/manifest.json"); !ok {
		t.Error("response not mirrored into core tier")
	}

	f.net.setDown(true)
	resp, _ := h.Handle(context.Background(), get("/manifest.json"))
	if body := readBody(t, resp); body != `{"name":"LusoTown"}` {
		t.Errorf("fallback body = %q", body)
	}

	resp, _ = h.Handle(context.Background(), get("/robots.txt"))
	if resp.Header.Get(observe.SourceHeader) != observe.SourceOffline {
		t.Errorf("source = %q, want offline", resp.Header.Get(observe.SourceHeader))
	}
}

func TestNetworkFirst_DoesNotStorePartialContent(t *testing.T) {
	f := newFixture(t)
	var down bool
	f.deps.Fetcher = FetcherFunc(func(_ context.Context, req *http.Request) (*http.Response, error) {
		if down {
			return nil, errNetworkDown
		}
		if req.Header.Get("Range") != "" {
			return &http.Response{StatusCode: http.StatusPartialContent, Header: http.Header{}, Body: io.NopCloser(stringReader("first-100-bytes"))}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(stringReader("full-stream"))}, nil
	})
	h := NetworkFirst{f.deps}

	ranged := get("/streams/fado-ao-vivo.mp4")
	ranged.Header.Set("Range", "bytes=0-99")
	resp, err := h.Handle(context.Background(), ranged)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusPartialContent || readBody(t, resp) != "first-100-bytes" {
		t.Fatalf("ranged response = %d", resp.StatusCode)
	}
	if _, ok := f.cached(t, f.deps.Tiers.Core, "/streams/fado-ao-vivo.mp4"); ok {
		t.Fatal("partial response was cached")
	}

	down = true
	resp, _ = h.Handle(context.Background(), get("/streams/fado-ao-vivo.mp4"))
	if resp.StatusCode == http.StatusPartialContent || readBody(t, resp) == "first-100-bytes" {
		t.Error("full request replayed the partial response")
	}
	if got := resp.Header.Get(observe.SourceHeader); got != observe.SourceOffline {
		t.Errorf("source = %q, want offline", got)
	}
}
