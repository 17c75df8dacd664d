// Package jwt is the token codec: it signs and verifies the short-lived access
// token and the long-lived refresh token.
//
// Both tokens are HS256 JWTs carrying an audience marker and an embedded
// expiry. The two token kinds are signed with independent secrets, so leaking
// one secret never lets an attacker forge the other kind. Nothing is stored
// server-side; the session record is the revocation point.
package jwt
