// Package strategy implements the per-class fetch handlers and the router
// that dispatches intercepted requests to them.
//
// Handlers never hold cache handles across calls; every cache access goes
// through the cache.Registry. Only the API handler returns errors: every other
// handler answers with cached content or the offline document when both the
// cache and the network fail.
package strategy
