// Package session provides the Redis-backed session store: one record per
// logged-in device, with lazy expiry and an atomic near-expiry rotation.
//
// # Layout
//
// Each session is a Redis hash under "<prefix>:<sessionID>" holding the owner,
// the user agent and two unix-millisecond timestamps. The key also carries a
// Redis TTL so abandoned sessions are reclaimed without a sweep. A set under
// "<prefix>:u:<userID>" indexes a user's sessions for listing and bulk deletion.
//
// # Rotation
//
// [Store.RotateIfNearExpiry] runs as a single Lua script. Only the first of
// several concurrent callers inside the rotation window extends the expiry;
// the rest observe the extended record and report no rotation. Expiry never
// moves backwards.
//
// # What this package must NOT do
//
//   - Import sessionauth or jwt (no upward imports).
//   - Interpret tokens or make authorization decisions.
package session
