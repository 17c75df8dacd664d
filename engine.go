package sessionauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/internal/stores"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/MrEthical07/sessionauth/session"
	"go.uber.org/zap"
)

// Engine runs the authentication flows. Build one with [Builder].
type Engine struct {
	config   Config
	users    UserProvider
	notifier Notifier
	sessions *session.Store
	codes    *stores.VerificationCodeStore
	limiter  *rate.Limiter
	tokens   *jwt.Manager
	hasher   *password.Hasher
	// dummyHash is never a user's hash; see Login.
	dummyHash string
	policy   password.Policy
	totp     *totpManager
	metrics  *Metrics
	audit    *audit.Dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Authenticate verifies an access token and returns its principal. It does
// not consult the session store: a token stays acceptable until its own
// expiry even if the session was deleted.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		e.log(ctx).Debug("access token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}

	return &Principal{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

// CurrentUser returns the profile of userID.
func (e *Engine) CurrentUser(ctx context.Context, userID string) (*UserProfile, error) {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// Logout deletes sessionID. Logging out of a session that no longer exists
// succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) (err error) {
	ev := e.auditEvent(ctx, flowLogout, "")
	ev.SessionID = sessionID
	defer func() {
		e.observe(flowLogout, err)
		e.emitAudit(ctx, ev, err)
	}()

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		e.log(ctx).Error("session delete failed", zap.String("session_id", sessionID), zap.Error(err))
		return internalErr(err)
	}
	return nil
}

// startSession creates a session for user and signs the token pair.
func (e *Engine) startSession(ctx context.Context, user *User, userAgent string) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, user.ID, userAgent)
	if err != nil {
		e.log(ctx).Error("session create failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, internalErr(err)
	}

	access, err := e.tokens.SignAccess(user.ID, sess.ID)
	if err != nil {
		return nil, internalErr(err)
	}
	refresh, err := e.tokens.SignRefresh(sess.ID)
	if err != nil {
		return nil, internalErr(err)
	}

	profile := user.Profile()
	return &LoginResult{
		User:      &profile,
		Tokens:    TokenPair{AccessToken: access, RefreshToken: refresh},
		SessionID: sess.ID,
	}, nil
}

// loadUser maps provider lookups onto domain errors.
func (e *Engine) loadUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		e.log(ctx).Error("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, internalErr(err)
	}
	return user, nil
}

func (e *Engine) notify(ctx context.Context, msg Message) error {
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.log(ctx).Error("notification failed",
			zap.String("template", msg.Template),
			zap.String("to", maskEmail(msg.To)),
			zap.Error(err),
		)
		return errors.Join(ErrNotificationFailed, err)
	}
	return nil
}
