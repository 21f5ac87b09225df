// Package ratelimit throttles calls to the live lookup API.
//
// SlidingWindow admits at most N requests in any rolling window. Wait
// blocks until a slot frees up or the context is done and reports how long
// the caller was held back so it can be logged.
//
//	limiter := ratelimit.PerMinute(60)
//	if _, err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
