// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on the first hit. Keys are
// "al:<identifier>" where the identifier is lower-cased before use.
package rate
