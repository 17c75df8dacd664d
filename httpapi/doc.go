// Package httpapi is the gin HTTP surface of sessionauth.
//
// Tokens travel in HTTP-only cookies: accessToken on path "/" and
// refreshToken only on the refresh route. Every failure is rendered by
// [RespondError] as {"message", "errorCode", "errors"}.
//
// What this package must NOT do:
//
//   - implement auth decisions (delegated to the engine)
//   - render internal error causes to clients
package httpapi
