package strategy

import (
	"context"
	"net/http"

	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/route"
)

// Router classifies intercepted requests and dispatches them to the handler
// for their class.
type Router struct {
	classifier *route.Classifier
	handlers   map[route.Class]observe.HandlerFunc
}

// NewRouter builds the handler table from deps. When mw is non-nil every
// handler is instrumented.
func NewRouter(deps *Deps, mw *observe.Middleware) *Router {
	table := map[route.Class]Handler{
		route.API:             APINetworkFirst{deps},
		route.CulturalContent: StaleWhileRevalidate{deps},
		route.Navigation:      NavigationNetworkFirst{deps},
		route.StaticAsset:     CacheFirst{deps},
		route.Other:           NetworkFirst{deps},
	}

	r := &Router{
		classifier: deps.Classifier,
		handlers:   make(map[route.Class]observe.HandlerFunc, len(table)),
	}
	for class, h := range table {
		fn := observe.HandlerFunc(h.Handle)
		if mw != nil {
			fn = mw.Wrap(observe.EventMeta{Component: "strategy", Operation: "fetch", Route: class.String()}, fn)
		}
		r.handlers[class] = fn
	}
	return r
}

// Intercepts reports whether req is handled by the router.
func (r *Router) Intercepts(req *http.Request) bool {
	return r.classifier.InScope(req)
}

// Handle dispatches an in-scope request.
func (r *Router) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	return r.handlers[r.classifier.Classify(req)](ctx, req)
}
