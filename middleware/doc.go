// Package middleware exposes net/http adapters for access-token
// authentication built on sessionauth.Engine.Authenticate.
//
// # Guards
//
//   - [Guard] rejects requests without a valid access token and injects the
//     [sessionauth.Principal] into the request context.
//   - [TokenFromRequest] reads the token the way every guard does: the
//     accessToken cookie first, then an Authorization: Bearer header.
//
// The gin router in httpapi uses the same token lookup and context key, so
// handlers written against either stack read the principal with
// [PrincipalFromContext].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the authenticator).
//   - Access Redis. Access tokens are verified statelessly.
//   - Make authorization decisions beyond pass/reject.
package middleware
