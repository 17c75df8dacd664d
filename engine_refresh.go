package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/session"
	"go.uber.org/zap"
)

// Refresh exchanges a refresh token for a new access token.
//
// The session behind the token must still exist and be unexpired. When it
// is within the rotation window its expiry is pushed to now+RefreshTTL and a
// new refresh token is returned as well; otherwise RefreshToken is empty and
// the caller keeps the one it has.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (res *RefreshResult, err error) {
	ev := e.auditEvent(ctx, flowRefresh, "")
	defer func() {
		e.observe(flowRefresh, err)
		e.emitAudit(ctx, ev, err)
	}()

	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.log(ctx).Debug("refresh token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}

	ev.SessionID = claims.SessionID

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, e.mapSessionError(ctx, claims.SessionID, err)
	}

	ev.UserID = sess.UserID

	rot, err := e.sessions.RotateIfNearExpiry(ctx, sess.ID, e.now())
	if err != nil {
		return nil, e.mapSessionError(ctx, sess.ID, err)
	}

	access, err := e.tokens.SignAccess(sess.UserID, sess.ID)
	if err != nil {
		return nil, internalErr(err)
	}

	out := &RefreshResult{
		AccessToken: access,
		Rotated:     rot.Extended,
		ExpiresAt:   rot.ExpiresAt,
	}
	if rot.Extended {
		out.RefreshToken, err = e.tokens.SignRefresh(sess.ID)
		if err != nil {
			return nil, internalErr(err)
		}
		e.observeRotation()
		e.log(ctx).Debug("session rotated", zap.String("session_id", sess.ID), zap.Time("expires_at", rot.ExpiresAt))
	}

	return out, nil
}

func (e *Engine) mapSessionError(ctx context.Context, sessionID string, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrUnauthorized
	case errors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired
	default:
		e.log(ctx).Error("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return internalErr(err)
	}
}
