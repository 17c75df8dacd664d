package sessionauth

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/MrEthical07/sessionauth/internal/stores"
	"go.uber.org/zap"
)

// ForgotPassword issues a password reset code for the user owning email and
// mails the reset link.
//
// At most PasswordReset.MaxPerWindow codes are issued per user per rolling
// PasswordReset.Window; the next request fails with ErrResetRateLimited.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (res *ForgotPasswordResult, err error) {
	ev := e.auditEvent(ctx, flowForgotPassword, "")
	defer func() {
		e.observe(flowForgotPassword, err)
		e.emitAudit(ctx, ev, err)
	}()

	email = normalizeEmail(email)
	if email == "" {
		return nil, fieldError("email", "Email is required")
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		e.log(ctx).Error("user lookup failed", zap.String("email", maskEmail(email)), zap.Error(err))
		return nil, internalErr(err)
	}

	now := e.now()
	if limit := e.config.PasswordReset.MaxPerWindow; limit > 0 {
		ok, err := e.codes.Reserve(ctx, user.ID, stores.PurposePasswordReset, now, e.config.PasswordReset.Window, limit)
		if err != nil {
			e.log(ctx).Error("reset slot reserve failed", zap.String("user_id", user.ID), zap.Error(err))
			return nil, internalErr(err)
		}
		if !ok {
			e.log(ctx).Warn("password reset rate limited", zap.String("user_id", user.ID))
			return nil, ErrResetRateLimited
		}
	}

	ttl := e.config.PasswordReset.CodeTTL
	code, err := e.codes.Issue(ctx, user.ID, stores.PurposePasswordReset, ttl)
	if err != nil {
		e.log(ctx).Error("reset code issue failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, internalErr(err)
	}

	expiresAt := now.Add(ttl)
	link := e.resetURL(code, expiresAt.UnixMilli())
	if err := e.notify(ctx, Message{
		To:       user.Email,
		Subject:  "Reset Password",
		Template: TemplateResetPassword,
		Data:     map[string]string{"url": link},
	}); err != nil {
		return nil, err
	}

	return &ForgotPasswordResult{URL: link, ExpiresAt: expiresAt}, nil
}

// ResetPassword consumes a reset code, stores the new password and deletes
// every session of the user.
func (e *Engine) ResetPassword(ctx context.Context, code, newPassword string) (err error) {
	ev := e.auditEvent(ctx, flowResetPassword, "")
	defer func() {
		e.observe(flowResetPassword, err)
		e.emitAudit(ctx, ev, err)
	}()

	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	userID, err := e.codes.Consume(ctx, code, stores.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, stores.ErrCodeInvalid) {
			return ErrInvalidOrExpiredCode
		}
		e.log(ctx).Error("reset code consume failed", zap.Error(err))
		return internalErr(err)
	}

	ev.UserID = userID

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalErr(err)
	}

	user, err := e.users.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidOrExpiredCode
		}
		e.log(ctx).Error("password update failed", zap.String("user_id", userID), zap.Error(err))
		return internalErr(err)
	}

	n, err := e.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		e.log(ctx).Error("session purge after reset failed", zap.String("user_id", user.ID), zap.Error(err))
		return internalErr(err)
	}

	for _, id := range []string{user.Email, user.Username, user.Phone} {
		if id == "" {
			continue
		}
		if err := e.limiter.ResetLogin(ctx, id); err != nil {
			e.log(ctx).Warn("login throttle reset failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	e.log(ctx).Info("password reset", zap.String("user_id", user.ID), zap.Int("sessions_revoked", n))
	return nil
}

func (e *Engine) resetURL(code string, expMillis int64) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("exp", strconv.FormatInt(expMillis, 10))
	return e.config.linkBase() + "/auth/reset-password?" + q.Encode()
}
