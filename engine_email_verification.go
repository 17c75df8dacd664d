package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/internal/stores"
	"go.uber.org/zap"
)

// VerifyEmail consumes an email verification code and marks its owner's
// email as verified. Unknown, expired and already used codes all fail with
// ErrInvalidOrExpiredCode.
func (e *Engine) VerifyEmail(ctx context.Context, code string) (profile *UserProfile, err error) {
	ev := e.auditEvent(ctx, flowVerifyEmail, "")
	defer func() {
		e.observe(flowVerifyEmail, err)
		e.emitAudit(ctx, ev, err)
	}()

	userID, err := e.codes.Consume(ctx, code, stores.PurposeEmailVerification)
	if err != nil {
		if errors.Is(err, stores.ErrCodeInvalid) {
			return nil, ErrInvalidOrExpiredCode
		}
		e.log(ctx).Error("verification code consume failed", zap.Error(err))
		return nil, internalErr(err)
	}

	ev.UserID = userID

	user, err := e.users.MarkEmailVerified(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		e.log(ctx).Error("mark email verified failed", zap.String("user_id", userID), zap.Error(err))
		return nil, internalErr(err)
	}

	e.log(ctx).Info("email verified", zap.String("user_id", user.ID))
	p := user.Profile()
	return &p, nil
}
