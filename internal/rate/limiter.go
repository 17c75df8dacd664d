package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window: the TTL is set on the first hit. A counter found without a
// TTL gets one too, so it can never outlive its window.
const incrWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var incrWindowLua = redis.NewScript(incrWindowScript)

// Config holds the failed-login budget.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

// Limiter counts failed logins per identifier using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client. A
// non-positive MaxFailures disables the limiter.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.config.MaxFailures > 0 && l.config.Window > 0
}

// CheckLogin returns ErrRateLimited when identifier has used up its failure
// budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	if !l.enabled() {
		return nil
	}

	count, err := l.redis.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

// IncrementLogin records a failed login for identifier and returns the
// failure count in the current window.
//
//	Performance: 1 EVALSHA.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier string) (int, error) {
	if !l.enabled() {
		return 0, nil
	}

	count, err := incrWindowLua.Run(ctx, l.redis, []string{loginKey(identifier)}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return int(count), nil
}

// ResetLogin clears the counter after a successful login or password reset.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if !l.enabled() {
		return nil
	}

	if err := l.redis.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func loginKey(identifier string) string {
	return "al:" + strings.ToLower(strings.TrimSpace(identifier))
}
