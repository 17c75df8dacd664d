// Package stores provides the Redis-backed verification code store used by the
// email verification and password reset flows.
//
// # Design
//
// Each code is persisted as a versioned, binary-encoded record keyed by the
// SHA-256 of the code, so plaintext codes never reach Redis. Records carry a
// Redis TTL matching their expiry. Consume uses a WATCH/MULTI optimistic
// transaction with retry on contention: a code is deleted before success is
// reported, so two concurrent consumers can never both win.
//
// A per-user, per-purpose sorted set records issue times for rate limiting.
//
// # What this package must NOT do
//
//   - Import sessionauth.
//   - Log or expose plaintext codes.
//   - Tell callers why a code was rejected.
package stores
