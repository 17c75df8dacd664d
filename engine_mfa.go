package sessionauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/sessionauth/internal/rate"
	"go.uber.org/zap"
)

// BeginMFASetup starts TOTP enrollment for userID.
//
// If MFA is already enabled the result only has AlreadyEnabled set. Otherwise
// a secret is generated and stored as a pending enrollment unless one is
// already pending, and the otpauth URI and its QR rendering are returned.
func (e *Engine) BeginMFASetup(ctx context.Context, userID string) (setup *MFASetup, err error) {
	ev := e.auditEvent(ctx, flowMFASetup, userID)
	defer func() {
		e.observe(flowMFASetup, err)
		e.emitAudit(ctx, ev, err)
	}()

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAState() == MFAEnabled {
		return &MFASetup{AlreadyEnabled: true}, nil
	}

	secret := user.MFA.Secret
	if secret == "" {
		secret, err = e.totp.GenerateSecret(user.Email)
		if err != nil {
			return nil, internalErr(err)
		}
		if _, err := e.users.UpdateMFA(ctx, user.ID, MFAPreferences{Enabled: false, Secret: secret}); err != nil {
			e.log(ctx).Error("pending mfa secret store failed", zap.String("user_id", user.ID), zap.Error(err))
			return nil, internalErr(err)
		}
	}

	key, err := e.totp.Key(secret, user.Email)
	if err != nil {
		return nil, internalErr(err)
	}
	qr, err := e.totp.QRDataURL(key)
	if err != nil {
		return nil, internalErr(err)
	}

	return &MFASetup{
		Secret:     secret,
		SetupURI:   key.URL(),
		QRImageURL: qr,
	}, nil
}

// ConfirmMFASetup enables MFA once code matches the pending secret. It
// reports whether the state changed; confirming an already enabled user is a
// no-op. A wrong code leaves the enrollment pending.
func (e *Engine) ConfirmMFASetup(ctx context.Context, userID, code string) (changed bool, err error) {
	ev := e.auditEvent(ctx, flowMFAConfirm, userID)
	defer func() {
		e.observe(flowMFAConfirm, err)
		e.emitAudit(ctx, ev, err)
	}()

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}

	switch user.MFAState() {
	case MFAEnabled:
		return false, nil
	case MFADisabled:
		return false, ErrMFASetupRequired
	}

	ok, err := e.totp.Validate(user.MFA.Secret, code, e.now())
	if err != nil {
		return false, internalErr(err)
	}
	if !ok {
		return false, ErrInvalidMFACode
	}

	if _, err := e.users.UpdateMFA(ctx, user.ID, MFAPreferences{Enabled: true, Secret: user.MFA.Secret}); err != nil {
		e.log(ctx).Error("mfa enable failed", zap.String("user_id", user.ID), zap.Error(err))
		return false, internalErr(err)
	}

	e.log(ctx).Info("mfa enabled", zap.String("user_id", user.ID))
	return true, nil
}

// VerifyMFAForLogin completes a login that returned MFARequired. Only the
// second factor is checked here.
//
// Any stored secret is accepted, including a pending enrollment that was
// never confirmed.
func (e *Engine) VerifyMFAForLogin(ctx context.Context, email, code, userAgent string) (res *LoginResult, err error) {
	ev := e.auditEvent(ctx, flowMFALogin, "")
	defer func() {
		if res != nil && res.User != nil {
			ev.UserID = res.User.ID
			ev.SessionID = res.SessionID
		}
		e.observe(flowMFALogin, err)
		e.emitAudit(ctx, ev, err)
	}()

	email = normalizeEmail(email)
	throttleKey := "mfa:" + email

	if err := e.limiter.CheckLogin(ctx, throttleKey); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, ErrLoginRateLimited
		}
		return nil, internalErr(err)
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		e.log(ctx).Error("user lookup failed", zap.String("email", maskEmail(email)), zap.Error(err))
		return nil, internalErr(err)
	}
	if user.MFA.Secret == "" {
		return nil, ErrMFANotEnabled
	}

	ok, err := e.totp.Validate(user.MFA.Secret, strings.TrimSpace(code), e.now())
	if err != nil {
		return nil, internalErr(err)
	}
	if !ok {
		if _, err := e.limiter.IncrementLogin(ctx, throttleKey); err != nil {
			e.log(ctx).Warn("mfa throttle increment failed", zap.Error(err))
		}
		return nil, ErrInvalidMFACode
	}

	if err := e.limiter.ResetLogin(ctx, throttleKey); err != nil {
		e.log(ctx).Warn("mfa throttle reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	return e.startSession(ctx, user, userAgent)
}

// RevokeMFA disables MFA and clears the secret. It reports whether MFA was
// enabled beforehand.
func (e *Engine) RevokeMFA(ctx context.Context, userID string) (changed bool, err error) {
	ev := e.auditEvent(ctx, flowMFARevoke, userID)
	defer func() {
		e.observe(flowMFARevoke, err)
		e.emitAudit(ctx, ev, err)
	}()

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.MFAState() == MFADisabled {
		return false, nil
	}

	if _, err := e.users.UpdateMFA(ctx, user.ID, MFAPreferences{}); err != nil {
		e.log(ctx).Error("mfa revoke failed", zap.String("user_id", user.ID), zap.Error(err))
		return false, internalErr(err)
	}

	e.log(ctx).Info("mfa revoked", zap.String("user_id", user.ID))
	return user.MFA.Enabled, nil
}
