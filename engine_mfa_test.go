package sessionauth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func (env *testEnv) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

// wrongCode returns a code that is invalid across the whole skew window.
func (env *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := env.engine.totp.Code(secret, env.clock.Now().Add(d))
		if err != nil {
			t.Fatalf("totp code: %v", err)
		}
		valid[code] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no invalid code candidate")
	return ""
}

func (env *testEnv) enableMFA(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.BeginMFASetup(ctx, userID)
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}
	changed, err := env.engine.ConfirmMFASetup(ctx, userID, env.totpCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmMFASetup: %v", err)
	}
	if !changed {
		t.Fatal("expected MFA state change")
	}
	return setup.Secret
}

func TestBeginMFASetup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)

	setup, err := env.engine.BeginMFASetup(ctx, p.ID)
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}
	if setup.AlreadyEnabled || setup.Secret == "" {
		t.Fatalf("unexpected setup %+v", setup)
	}
	if !strings.HasPrefix(setup.SetupURI, "otpauth://totp/") || !strings.Contains(setup.SetupURI, "issuer=Roodx") {
		t.Fatalf("unexpected setup URI %q", setup.SetupURI)
	}
	if !strings.HasPrefix(setup.QRImageURL, "data:image/png;base64,") {
		t.Fatalf("unexpected QR image (%d bytes)", len(setup.QRImageURL))
	}

	u := env.users.get(t, p.ID)
	if u.MFAState() != MFAPendingSetup || u.MFA.Secret != setup.Secret {
		t.Fatalf("expected pending enrollment, got %v", u.MFAState())
	}

	again, err := env.engine.BeginMFASetup(ctx, p.ID)
	if err != nil {
		t.Fatalf("BeginMFASetup again: %v", err)
	}
	if again.Secret != setup.Secret {
		t.Fatal("pending secret must be reused")
	}
}

func TestBeginMFASetupAlreadyEnabled(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, alice)
	env.enableMFA(t, p.ID)

	setup, err := env.engine.BeginMFASetup(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}
	if !setup.AlreadyEnabled || setup.Secret != "" || setup.QRImageURL != "" {
		t.Fatalf("expected bare already-enabled result, got %+v", setup)
	}
}

func TestConfirmMFASetup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)

	_, err := env.engine.ConfirmMFASetup(ctx, p.ID, "123456")
	assertIs(t, err, ErrMFASetupRequired)

	setup, err := env.engine.BeginMFASetup(ctx, p.ID)
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}

	wrong := env.wrongCode(t, setup.Secret)
	_, err = env.engine.ConfirmMFASetup(ctx, p.ID, wrong)
	assertIs(t, err, ErrInvalidMFACode)
	if env.users.get(t, p.ID).MFAState() != MFAPendingSetup {
		t.Fatal("wrong code must leave enrollment pending")
	}

	changed, err := env.engine.ConfirmMFASetup(ctx, p.ID, env.totpCode(t, setup.Secret))
	if err != nil || !changed {
		t.Fatalf("ConfirmMFASetup: changed=%v err=%v", changed, err)
	}
	if env.users.get(t, p.ID).MFAState() != MFAEnabled {
		t.Fatal("expected MFA enabled")
	}

	changed, err = env.engine.ConfirmMFASetup(ctx, p.ID, "whatever")
	if err != nil || changed {
		t.Fatalf("second confirm: changed=%v err=%v", changed, err)
	}
}

func TestLoginWithMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)
	secret := env.enableMFA(t, p.ID)

	res := env.login(t, "alice", "secret1")
	if !res.MFARequired {
		t.Fatal("expected MFARequired")
	}
	if res.SessionID != "" || res.Tokens.AccessToken != "" || res.User != nil {
		t.Fatalf("MFA login must not issue a session: %+v", res)
	}
	sessions, err := env.engine.ListSessions(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}

	done, err := env.engine.VerifyMFAForLogin(ctx, "Alice@x.com", env.totpCode(t, secret), "phone")
	if err != nil {
		t.Fatalf("VerifyMFAForLogin: %v", err)
	}
	if done.MFARequired || done.SessionID == "" || done.Tokens.RefreshToken == "" {
		t.Fatalf("expected a session, got %+v", done)
	}
	if !done.User.MFAEnabled {
		t.Fatal("profile should report MFA enabled")
	}

	if _, err := env.engine.Refresh(ctx, done.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestVerifyMFAForLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)

	_, err := env.engine.VerifyMFAForLogin(ctx, "nobody@x.com", "123456", "ua")
	assertIs(t, err, ErrUserNotFound)

	_, err = env.engine.VerifyMFAForLogin(ctx, alice.Email, "123456", "ua")
	assertIs(t, err, ErrMFANotEnabled)
	assertIs(t, err, ErrUnauthorized)

	secret := env.enableMFA(t, p.ID)
	wrong := env.wrongCode(t, secret)
	_, err = env.engine.VerifyMFAForLogin(ctx, alice.Email, wrong, "ua")
	assertIs(t, err, ErrInvalidMFACode)
	if err.Error() != "Invalid MFA code. Please try again." {
		t.Fatalf("unexpected message %q", err)
	}

	_, err = env.engine.VerifyMFAForLogin(ctx, alice.Email, "12", "ua")
	assertIs(t, err, ErrInvalidMFACode)
}

func TestVerifyMFAForLoginAcceptsPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, alice)

	setup, err := env.engine.BeginMFASetup(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}

	res, err := env.engine.VerifyMFAForLogin(context.Background(), alice.Email, env.totpCode(t, setup.Secret), "ua")
	if err != nil {
		t.Fatalf("VerifyMFAForLogin: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a session")
	}
}

func TestVerifyMFAForLoginAllowsSkew(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, alice)
	secret := env.enableMFA(t, p.ID)

	code := env.totpCode(t, secret)
	env.clock.Advance(30 * time.Second)

	if _, err := env.engine.VerifyMFAForLogin(context.Background(), alice.Email, code, "ua"); err != nil {
		t.Fatalf("code from previous step rejected: %v", err)
	}
}

func TestVerifyMFAForLoginThrottle(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Security.MaxLoginFailures = 2
	})
	ctx := context.Background()
	p := env.register(t, alice)
	secret := env.enableMFA(t, p.ID)

	wrong := env.wrongCode(t, secret)
	for i := 0; i < 2; i++ {
		_, err := env.engine.VerifyMFAForLogin(ctx, alice.Email, wrong, "ua")
		assertIs(t, err, ErrInvalidMFACode)
	}

	_, err := env.engine.VerifyMFAForLogin(ctx, alice.Email, env.totpCode(t, secret), "ua")
	assertIs(t, err, ErrLoginRateLimited)

	// The password throttle is keyed separately.
	res := env.login(t, "alice@x.com", "secret1")
	if !res.MFARequired {
		t.Fatal("expected MFARequired")
	}
}

func TestRevokeMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)

	changed, err := env.engine.RevokeMFA(ctx, p.ID)
	if err != nil || changed {
		t.Fatalf("revoke on disabled: changed=%v err=%v", changed, err)
	}

	env.enableMFA(t, p.ID)
	changed, err = env.engine.RevokeMFA(ctx, p.ID)
	if err != nil || !changed {
		t.Fatalf("revoke on enabled: changed=%v err=%v", changed, err)
	}
	u := env.users.get(t, p.ID)
	if u.MFAState() != MFADisabled || u.MFA.Secret != "" {
		t.Fatalf("expected cleared MFA, got %+v", u.MFA)
	}

	res := env.login(t, "alice", "secret1")
	if res.MFARequired {
		t.Fatal("MFA login gate should be gone")
	}

	_, err = env.engine.VerifyMFAForLogin(ctx, alice.Email, "123456", "ua")
	assertIs(t, err, ErrMFANotEnabled)
}

func TestRevokeMFAClearsPendingEnrollment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.register(t, alice)

	if _, err := env.engine.BeginMFASetup(ctx, p.ID); err != nil {
		t.Fatalf("BeginMFASetup: %v", err)
	}
	changed, err := env.engine.RevokeMFA(ctx, p.ID)
	if err != nil || changed {
		t.Fatalf("revoke pending: changed=%v err=%v", changed, err)
	}
	if env.users.get(t, p.ID).MFA.Secret != "" {
		t.Fatal("pending secret should be cleared")
	}
}

func TestMFAUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.BeginMFASetup(ctx, "missing")
	assertIs(t, err, ErrUserNotFound)
	_, err = env.engine.ConfirmMFASetup(ctx, "missing", "123456")
	assertIs(t, err, ErrUserNotFound)
	_, err = env.engine.RevokeMFA(ctx, "missing")
	assertIs(t, err, ErrUserNotFound)
}
