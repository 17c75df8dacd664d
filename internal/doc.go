// Package internal contains helpers that are private to sessionauth, such as
// secure random code generation.
//
// # Sub-packages
//
//   - audit - buffered delivery of flow outcome events to a sink
//   - config - viper-backed process configuration for cmd/authd
//   - rate - Redis fixed-window counters for the login throttle
//   - stores - the Redis verification code store
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionauth API.
package internal
