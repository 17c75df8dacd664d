package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
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
	return mr, rdb
}

func newTestStore(t *testing.T) (*VerificationCodeStore, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	now := time.UnixMilli(1_700_000_000_000)
	store := NewVerificationCodeStore(rdb, "", func() time.Time { return now })
	return store, mr, &now
}

func TestIssueAndConsume(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	code, err := store.Issue(ctx, "u1", PurposeEmailVerification, 45*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if code == "" {
		t.Fatal("expected code")
	}

	userID, err := store.Consume(ctx, code, PurposeEmailVerification)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("userID = %q", userID)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	code, _ := store.Issue(ctx, "u1", PurposePasswordReset, time.Hour)
	if _, err := store.Consume(ctx, code, PurposePasswordReset); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := store.Consume(ctx, code, PurposePasswordReset); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	code, _ := store.Issue(ctx, "u1", PurposePasswordReset, time.Hour)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, code, PurposePasswordReset); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected one successful consume, got %d", wins)
	}
}

func TestConsumeExpiredByClock(t *testing.T) {
	store, _, now := newTestStore(t)
	ctx := context.Background()

	code, _ := store.Issue(ctx, "u1", PurposeEmailVerification, 45*time.Minute)
	*now = now.Add(45 * time.Minute)

	if _, err := store.Consume(ctx, code, PurposeEmailVerification); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

func TestConsumeExpiredByRedisTTL(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	code, _ := store.Issue(ctx, "u1", PurposeEmailVerification, time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, code, PurposeEmailVerification); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

func TestConsumeWrongPurposeKeepsCode(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	code, _ := store.Issue(ctx, "u1", PurposeEmailVerification, time.Hour)
	if _, err := store.Consume(ctx, code, PurposePasswordReset); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if _, err := store.Consume(ctx, code, PurposeEmailVerification); err != nil {
		t.Fatalf("code should still be usable for its own purpose: %v", err)
	}
}

func TestConsumeUnknownCode(t *testing.T) {
	store, _, _ := newTestStore(t)

	for _, code := range []string{"", "does-not-exist"} {
		if _, err := store.Consume(context.Background(), code, PurposeEmailVerification); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("code %q: expected ErrCodeInvalid, got %v", code, err)
		}
	}
}

func TestCodesAreNotStoredInPlaintext(t *testing.T) {
	store, mr, _ := newTestStore(t)

	code, _ := store.Issue(context.Background(), "u1", PurposeEmailVerification, time.Hour)
	for _, key := range mr.Keys() {
		if key == "avc:"+code {
			t.Fatal("plaintext code used as key")
		}
	}
}

func TestReserve(t *testing.T) {
	store, _, now := newTestStore(t)
	ctx := context.Background()
	window := 3 * time.Minute

	for i := 0; i < 2; i++ {
		ok, err := store.Reserve(ctx, "u1", PurposePasswordReset, *now, window, 2)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if !ok {
			t.Fatalf("reservation #%d refused", i+1)
		}
		*now = now.Add(time.Minute)
	}

	if ok, _ := store.Reserve(ctx, "u1", PurposePasswordReset, *now, window, 2); ok {
		t.Fatal("third reservation inside the window must be refused")
	}
	if ok, _ := store.Reserve(ctx, "u1", PurposeEmailVerification, *now, window, 2); !ok {
		t.Fatal("other purpose must have its own budget")
	}
	if ok, _ := store.Reserve(ctx, "u2", PurposePasswordReset, *now, window, 2); !ok {
		t.Fatal("other user must have its own budget")
	}

	*now = now.Add(2 * time.Minute)
	if ok, _ := store.Reserve(ctx, "u1", PurposePasswordReset, *now, window, 2); !ok {
		t.Fatal("oldest slot should have left the window")
	}
	if ok, _ := store.Reserve(ctx, "u1", PurposePasswordReset, *now, window, 2); ok {
		t.Fatal("window holds two reservations again")
	}
}

func TestReserveConcurrentRespectsLimit(t *testing.T) {
	store, _, now := newTestStore(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Reserve(ctx, "u1", PurposePasswordReset, *now, 3*time.Minute, 2)
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 2 {
		t.Fatalf("granted %d reservations, want 2", granted)
	}
}

func TestReserveRejectsBadInput(t *testing.T) {
	store, _, now := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "", PurposePasswordReset, *now, time.Minute, 2); err == nil {
		t.Fatal("expected error for empty user")
	}
	if _, err := store.Reserve(ctx, "u1", PurposePasswordReset, *now, time.Minute, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Issue(ctx, "", PurposePasswordReset, time.Hour); err == nil {
		t.Fatal("expected error for empty user")
	}
	if _, err := store.Issue(ctx, "u1", Purpose("OTHER"), time.Hour); err == nil {
		t.Fatal("expected error for unknown purpose")
	}
	if _, err := store.Issue(ctx, "u1", PurposePasswordReset, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestCodeRecordRoundTrip(t *testing.T) {
	in := &VerificationCode{
		UserID:    "user-42",
		Purpose:   PurposePasswordReset,
		CreatedAt: time.UnixMilli(1_700_000_000_000),
		ExpiresAt: time.UnixMilli(1_700_003_600_000),
	}
	data, err := encodeCodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeCodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.Purpose != in.Purpose || !out.CreatedAt.Equal(in.CreatedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	if _, err := decodeCodeRecord(data[:5]); err == nil {
		t.Fatal("expected error for truncated record")
	}
}
