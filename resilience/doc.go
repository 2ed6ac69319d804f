// Package resilience guards calls to the upstream origin.
//
// A Guard composes three patterns around each attempt:
//
//   - Bulkhead: caps concurrent upstream calls.
//   - Breaker: after repeated transport failures the origin is treated as
//     unreachable and calls fail fast with ErrOriginUnavailable, so cache
//     fallbacks answer immediately instead of waiting on dead connections.
//   - Retry: re-attempts transient failures with exponential backoff.
//
// Any of the three may be omitted:
//
//	guard := resilience.NewGuard(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 16})),
//	    resilience.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{Threshold: 5})),
//	)
//
//	err := guard.Do(ctx, func(ctx context.Context) error {
//	    resp, err = client.Do(req.WithContext(ctx))
//	    return err
//	})
package resilience
