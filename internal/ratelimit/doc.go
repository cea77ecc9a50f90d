// Package ratelimit provides provider-call admission control and retry.
//
// A Limiter enforces a fixed-window ceiling on calls across everything that
// shares its Counter. With the in-memory cache store the budget is
// process-wide; with the Redis store it is shared by every process pointed
// at the same Redis. Callers over the ceiling wait out the rest of the
// current window and then proceed.
//
// A Retrier wraps a provider call: each attempt first acquires from the
// Limiter, and failed attempts are retried with exponential backoff. When all
// attempts are used up the error is classified:
//
//   - errors wrapping ErrThrottled become ErrProviderThrottled
//   - anything else becomes ErrProviderError
//
// Both wrap the last underlying error so errors.Is works on either.
//
// All waiting goes through an injected clockwork.Clock, which lets tests
// drive windows and backoff with a fake clock.
package ratelimit
