package health

import (
	"context"

	"github.com/jonwraymond/offlineworker/lifecycle"
	"github.com/jonwraymond/offlineworker/resilience"
)

// Pinger is a store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker is unhealthy when the cache store cannot be reached.
func StoreChecker(p Pinger) Checker {
	return CheckerFunc("store", func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("cache store unreachable", err)
		}
		return Healthy("cache store reachable")
	})
}

// LifecycleChecker is healthy once the release is activated, degraded while
// it installs or activates and unhealthy when the install failed.
func LifecycleChecker(current func() lifecycle.State) Checker {
	return CheckerFunc("lifecycle", func(context.Context) Result {
		state := current()
		details := map[string]any{"state": state.String()}
		switch state {
		case lifecycle.StateActivated:
			return Healthy("release active").WithDetails(details)
		case lifecycle.StateRedundant:
			return Unhealthy("install failed", nil).WithDetails(details)
		default:
			return Degraded("release not active").WithDetails(details)
		}
	})
}

// BreakerChecker is degraded while the upstream breaker is not closed.
// The worker still serves cached content in that state.
func BreakerChecker(b *resilience.Breaker) Checker {
	return CheckerFunc("upstream", func(context.Context) Result {
		state := b.State()
		details := map[string]any{"breaker": state.String(), "failures": b.Failures()}
		if state == resilience.StateClosed {
			return Healthy("upstream reachable").WithDetails(details)
		}
		return Degraded("upstream failing, serving from cache").WithDetails(details)
	})
}
