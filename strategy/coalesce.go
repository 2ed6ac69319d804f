package strategy

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/offlineworker/cache"
)

// Coalescer de-duplicates concurrent fetches for the same canonical request.
// Callers that arrive while a fetch is in flight share its result; each caller
// receives its own copy of the response.
type Coalescer struct {
	next  Fetcher
	group singleflight.Group
}

// NewCoalescer wraps next.
func NewCoalescer(next Fetcher) *Coalescer {
	return &Coalescer{next: next}
}

// Fetch coalesces GET requests. Other methods and ranged requests go
// straight through.
func (c *Coalescer) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	key, err := cache.RequestKey(req)
	if req.Method != http.MethodGet || req.Header.Get("Range") != "" || err != nil {
		return c.next.Fetch(ctx, req)
	}

	// The shared fetch outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := c.next.Fetch(shared, req)
		if err != nil {
			return nil, err
		}
		return cache.Snapshot(req, resp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Entry).Response(req), nil
}
