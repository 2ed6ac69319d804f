// Package health reports whether the worker can serve traffic.
//
// Checkers cover the cache store, the release lifecycle and the upstream
// circuit breaker. An Aggregator runs them together and the HTTP handlers
// expose the result as liveness (/healthz), readiness (/readyz) and a
// detailed JSON report (/health).
package health
