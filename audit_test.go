package sessionauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionauth/internal/audit"
)

func newAuditEngine(t *testing.T, sink AuditSink) *Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserProvider(newMockUserProvider(clock.Now)).
		WithNotifier(&recordingNotifier{}).
		WithClock(clock.Now).
		WithAudit(sink, AuditOptions{BufferSize: 64}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return engine
}

func nextEvent(t *testing.T, sink *audit.ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditEvents(t *testing.T) {
	sink := audit.NewChannelSink(64)
	engine := newAuditEngine(t, sink)
	defer engine.Close()

	ctx := WithRequestID(WithClientIP(context.Background(), "10.0.0.7"), "req-1")

	profile, err := engine.Register(ctx, alice)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.Type != flowRegister || !ev.Success || ev.UserID != profile.ID {
		t.Fatalf("unexpected register event %+v", ev)
	}
	if ev.RequestID != "req-1" || ev.IP != "10.0.0.7" {
		t.Fatalf("request context missing from event %+v", ev)
	}

	if _, err := engine.Login(ctx, alice.Email, "wrong-password", "ua"); err == nil {
		t.Fatal("expected login failure")
	}
	ev = nextEvent(t, sink)
	if ev.Type != flowLogin || ev.Success || ev.Code != ErrInvalidCredentials.Code || ev.UserID != "" {
		t.Fatalf("unexpected failed login event %+v", ev)
	}

	res, err := engine.Login(ctx, alice.Email, alice.Password, "ua")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	ev = nextEvent(t, sink)
	if !ev.Success || ev.UserID != profile.ID || ev.SessionID != res.SessionID {
		t.Fatalf("unexpected login event %+v", ev)
	}

	if err := engine.Logout(ctx, res.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	ev = nextEvent(t, sink)
	if ev.Type != flowLogout || ev.SessionID != res.SessionID {
		t.Fatalf("unexpected logout event %+v", ev)
	}
}

func TestAuditJSONSinkFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	engine := newAuditEngine(t, NewJSONAuditSink(&buf))

	if _, err := engine.Register(context.Background(), alice); err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one event line, got %q", buf.String())
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != flowRegister || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if strings.Contains(buf.String(), alice.Password) {
		t.Fatal("audit output leaks the password")
	}
}

func TestEngineWithoutAudit(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, alice)
	env.engine.Close()
	if env.engine.AuditDropped() != 0 {
		t.Fatal("engine without audit must report no drops")
	}
}
