package rate

import "errors"

var (
	// ErrRateLimited is returned once the failure budget for the window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when a Redis command fails.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
