package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailures: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := l.CheckLogin(ctx, "alice@x.com"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		n, err := l.IncrementLogin(ctx, "alice@x.com")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != i {
			t.Fatalf("count = %d, want %d", n, i)
		}
	}

	if err := l.CheckLogin(ctx, "ALICE@x.com "); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob"); err != nil {
		t.Fatalf("other identifier should not be limited: %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxFailures: 1, Window: time.Minute})
	ctx := context.Background()

	if _, err := l.IncrementLogin(ctx, "alice"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestIncrementSetsWindowTTL(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxFailures: 5, Window: time.Minute})
	ctx := context.Background()

	if _, err := l.IncrementLogin(ctx, "alice"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ttl := mr.TTL("al:alice"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, want within the window", ttl)
	}

	mr.FastForward(30 * time.Second)
	if _, err := l.IncrementLogin(ctx, "alice"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ttl := mr.TTL("al:alice"); ttl > 30*time.Second {
		t.Fatalf("later hits must not extend the window, ttl = %v", ttl)
	}
}

func TestIncrementRepairsCounterWithoutTTL(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxFailures: 3, Window: time.Minute})
	ctx := context.Background()

	if err := mr.Set("al:alice", "7"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := l.IncrementLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n != 8 {
		t.Fatalf("count = %d, want 8", n)
	}
	if ttl := mr.TTL("al:alice"); ttl <= 0 {
		t.Fatalf("counter left without expiry, ttl = %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("counter should have expired: %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailures: 1, Window: time.Minute})
	ctx := context.Background()

	_, _ = l.IncrementLogin(ctx, "alice")
	if err := l.ResetLogin(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("expected cleared counter, got %v", err)
	}
}

func TestDisabledLimiter(t *testing.T) {
	l, mr := newTestLimiter(t, Config{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.IncrementLogin(ctx, "alice"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "alice"); err != nil {
		t.Fatalf("disabled limiter should never block: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("disabled limiter wrote keys: %v", mr.Keys())
	}
}
