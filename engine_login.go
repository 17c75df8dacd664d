package sessionauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/sessionauth/internal/rate"
	"go.uber.org/zap"
)

// Login checks identifier (email, username or phone) and password.
//
// Unknown identifiers and wrong passwords both fail with
// ErrInvalidCredentials. For users with MFA enabled no session is created:
// the result only carries MFARequired and the caller must finish with
// VerifyMFAForLogin.
func (e *Engine) Login(ctx context.Context, identifier, plaintext, userAgent string) (res *LoginResult, err error) {
	ev := e.auditEvent(ctx, flowLogin, "")
	defer func() {
		if res != nil && res.User != nil {
			ev.UserID = res.User.ID
			ev.SessionID = res.SessionID
		}
		if err == nil && res != nil && res.MFARequired {
			ev.Metadata = map[string]string{"mfa_required": "true"}
			e.observeOutcome(flowLogin, "mfa_required")
		} else {
			e.observe(flowLogin, err)
		}
		e.emitAudit(ctx, ev, err)
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plaintext == "" {
		return nil, ErrInvalidCredentials
	}

	if err := e.limiter.CheckLogin(ctx, identifier); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, ErrLoginRateLimited
		}
		return nil, internalErr(err)
	}

	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.hasher.Compare(plaintext, e.dummyHash)
			return nil, e.loginFailed(ctx, identifier)
		}
		e.log(ctx).Error("user lookup failed", zap.Error(err))
		return nil, internalErr(err)
	}

	ok, err := e.hasher.Compare(plaintext, user.PasswordHash)
	if err != nil {
		e.log(ctx).Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, e.loginFailed(ctx, identifier)
	}
	if !ok {
		return nil, e.loginFailed(ctx, identifier)
	}

	if err := e.limiter.ResetLogin(ctx, identifier); err != nil {
		e.log(ctx).Warn("login throttle reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	e.upgradeHash(ctx, user, plaintext)

	if user.MFA.Enabled {
		return &LoginResult{MFARequired: true}, nil
	}

	return e.startSession(ctx, user, userAgent)
}

func (e *Engine) loginFailed(ctx context.Context, identifier string) error {
	if _, err := e.limiter.IncrementLogin(ctx, identifier); err != nil {
		e.log(ctx).Warn("login throttle increment failed", zap.Error(err))
	}
	return ErrInvalidCredentials
}

// upgradeHash rewrites legacy or under-cost hashes after a successful
// compare. Failures only cost a log line.
func (e *Engine) upgradeHash(ctx context.Context, user *User, plaintext string) {
	if stale, err := e.hasher.NeedsRehash(user.PasswordHash); err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if _, err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		e.log(ctx).Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}
