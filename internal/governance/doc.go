// Package governance implements the gateway's request-resilience primitives:
// per-source rate limiting, retry backoff policy, and circuit breaking for
// the upstream provider.
package governance
