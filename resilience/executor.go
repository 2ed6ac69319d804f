package resilience

import "context"

// Guard composes the configured patterns. Order, outermost first:
// bulkhead, breaker, retry. A call waiting on retries keeps its bulkhead slot,
// and each retry attempt passes through the breaker.
type Guard struct {
	bulkhead *Bulkhead
	breaker  *Breaker
	retry    *Retry
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// NewGuard creates a guard. With no options it calls op directly.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) GuardOption {
	return func(g *Guard) { g.bulkhead = b }
}

// WithBreaker adds origin failure tracking.
func WithBreaker(b *Breaker) GuardOption {
	return func(g *Guard) { g.breaker = b }
}

// WithRetry adds retries.
func WithRetry(r *Retry) GuardOption {
	return func(g *Guard) { g.retry = r }
}

// Breaker returns the configured breaker, or nil.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Do runs op through the configured patterns.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	call := op

	if g.breaker != nil {
		inner := call
		call = func(ctx context.Context) error { return g.breaker.Do(ctx, inner) }
	}
	if g.retry != nil {
		inner := call
		call = func(ctx context.Context) error { return g.retry.Do(ctx, inner) }
	}
	if g.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) error { return g.bulkhead.Do(ctx, inner) }
	}
	return call(ctx)
}
