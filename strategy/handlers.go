package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/offline"
	"github.com/jonwraymond/offlineworker/route"
)

// DefaultOfflineURL is the path of the precached offline document.
const DefaultOfflineURL = "/offline.html"

// Handler answers one class of intercepted request.
type Handler interface {
	Handle(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Registry   *cache.Registry
	Tiers      cache.TierSet
	Fetcher    Fetcher
	Classifier *route.Classifier
	Detached   *Detached
	Logger     observe.Logger

	// OfflineURL is the core-tier path served on failed navigations.
	// Default: DefaultOfflineURL
	OfflineURL string
}

func (d *Deps) offlineURL() string {
	if d.OfflineURL == "" {
		return DefaultOfflineURL
	}
	return d.OfflineURL
}

func (d *Deps) put(ctx context.Context, tier cache.Tier, req *http.Request, resp *http.Response) {
	err := d.Registry.Put(ctx, tier, req, resp)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrEntryTooLarge), errors.Is(err, cache.ErrPartialContent):
		d.Logger.Debug(ctx, "response not cached", observe.F("url", req.URL.String()), observe.F("tier", tier.Name), observe.Err(err))
	default:
		d.Logger.Warn(ctx, "cache write failed", observe.F("url", req.URL.String()), observe.F("tier", tier.Name), observe.Err(err))
	}
}

// fallback answers from the core tier, then with the offline document.
func (d *Deps) fallback(ctx context.Context, req *http.Request) *http.Response {
	if cached, ok := d.Registry.Match(ctx, d.Tiers.Core, req); ok {
		return withSource(cached, observe.SourceCache)
	}
	return withSource(offline.Response(req), observe.SourceOffline)
}

// successful reports a complete 2xx response. 206 is never stored.
func successful(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusPartialContent
}

func withSource(resp *http.Response, source string) *http.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(observe.SourceHeader, source)
	return resp
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// APINetworkFirst serves /api/ requests from the network, mirroring
// allow-listed successes into the API tier. When the network fails, a mirrored
// entry is served; otherwise the failure is returned to the caller.
type APINetworkFirst struct{ *Deps }

func (h APINetworkFirst) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	mirrored := h.Classifier.Mirrored(req.URL.Path)

	resp, err := h.Fetcher.Fetch(ctx, req)
	if err == nil {
		if mirrored && successful(resp) {
			h.put(ctx, h.Tiers.API, req, resp)
		}
		return withSource(resp, observe.SourceNetwork), nil
	}

	if mirrored {
		if cached, ok := h.Registry.Match(ctx, h.Tiers.API, req); ok {
			h.Logger.Info(ctx, "serving API data from cache", observe.F("url", req.URL.String()))
			return withSource(cached, observe.SourceCache), nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, req.URL.Path, err)
}

// StaleWhileRevalidate serves cultural content from its tier immediately and
// refreshes the entry in the background. On a miss it fetches and populates.
type StaleWhileRevalidate struct{ *Deps }

func (h StaleWhileRevalidate) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	tier := h.Tiers.Cultural

	if cached, ok := h.Registry.Match(ctx, tier, req); ok {
		refresh := req.Clone(context.WithoutCancel(ctx))
		h.Detached.Go(ctx, "revalidate "+req.URL.String(), func(ctx context.Context) error {
			resp, err := h.Fetcher.Fetch(ctx, refresh)
			if err != nil {
				return err
			}
			defer discard(resp)
			if !successful(resp) {
				return fmt.Errorf("revalidate %s: HTTP %d", refresh.URL.Path, resp.StatusCode)
			}
			return h.Registry.Put(ctx, tier, refresh, resp)
		})
		return withSource(cached, observe.SourceCache), nil
	}

	resp, err := h.Fetcher.Fetch(ctx, req)
	if err != nil {
		return withSource(offline.Response(req), observe.SourceOffline), nil
	}
	if successful(resp) {
		h.put(ctx, tier, req, resp)
	}
	return withSource(resp, observe.SourceNetwork), nil
}

// NavigationNetworkFirst serves page navigations from the network. On failure
// it serves the precached offline document, or synthesizes one.
type NavigationNetworkFirst struct{ *Deps }

func (h NavigationNetworkFirst) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := h.Fetcher.Fetch(ctx, req)
	if err == nil {
		return withSource(resp, observe.SourceNetwork), nil
	}

	h.Logger.Debug(ctx, "navigation failed", observe.F("url", req.URL.String()), observe.Err(err))
	if doc, ok := h.Registry.Match(ctx, h.Tiers.Core, h.offlineRequest(req)); ok {
		return withSource(doc, observe.SourceCache), nil
	}
	return withSource(offline.Response(req), observe.SourceOffline), nil
}

func (h NavigationNetworkFirst) offlineRequest(req *http.Request) *http.Request {
	u := &url.URL{Scheme: req.URL.Scheme, Host: req.URL.Host, Path: h.offlineURL()}
	out, _ := http.NewRequestWithContext(req.Context(), http.MethodGet, u.String(), nil)
	return out
}

// CacheFirst serves static assets from cache, populating on the first
// successful fetch. Images use the images tier, everything else the static
// tier; assets precached at install are found in the core tier.
type CacheFirst struct{ *Deps }

func (h CacheFirst) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	tier := h.Tiers.Static
	if route.IsImage(req.URL.Path) {
		tier = h.Tiers.Images
	}

	for _, t := range []cache.Tier{tier, h.Tiers.Core} {
		if cached, ok := h.Registry.Match(ctx, t, req); ok {
			return withSource(cached, observe.SourceCache), nil
		}
	}

	resp, err := h.Fetcher.Fetch(ctx, req)
	if err != nil {
		return h.fallback(ctx, req), nil
	}
	if successful(resp) {
		h.put(ctx, tier, req, resp)
	}
	return withSource(resp, observe.SourceNetwork), nil
}

// NetworkFirst handles everything else: network with best-effort mirroring
// into the core tier, core tier or offline document on failure.
type NetworkFirst struct{ *Deps }

func (h NetworkFirst) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := h.Fetcher.Fetch(ctx, req)
	if err != nil {
		return h.fallback(ctx, req), nil
	}
	if successful(resp) {
		h.put(ctx, h.Tiers.Core, req, resp)
	}
	return withSource(resp, observe.SourceNetwork), nil
}
