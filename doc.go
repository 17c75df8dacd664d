// Package sessionauth is an authentication and session-lifecycle engine. It
// registers users, logs them in behind an optional TOTP second factor, issues
// and rotates access/refresh token pairs, and manages the single-use codes
// behind email verification and password reset.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The engine holds no mutable state
// of its own: sessions, codes and throttle counters live in Redis, users live
// behind [UserProvider].
//
// # Architecture boundaries
//
// sessionauth is the public surface. It exposes [Engine], [Builder], [Config],
// the domain error taxonomy and value types. Token signing lives in jwt,
// session persistence in session, password hashing in password. Storage of
// user records and delivery of notifications are collaborators supplied by
// the caller (see userstore and notify for the bundled implementations).
//
// # What this package must NOT do
//
//   - Log plaintext passwords, codes, TOTP secrets or tokens.
//   - Tell a caller which part of a credential was wrong.
//   - Import httpapi, userstore or notify (no import cycles).
package sessionauth
