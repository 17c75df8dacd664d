package sessionauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/sessionauth/internal/stores"
	"github.com/MrEthical07/sessionauth/password"
	"go.uber.org/zap"
)

// Register creates a user and mails an email verification link.
//
// A taken email, username or phone fails with ErrEmailExists,
// ErrUsernameExists or ErrPhoneExists, checked in that order. A notifier
// failure fails the call even though the user has been stored.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (profile *UserProfile, err error) {
	ev := e.auditEvent(ctx, flowRegister, "")
	defer func() {
		e.observe(flowRegister, err)
		e.emitAudit(ctx, ev, err)
	}()

	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Email == "" || in.Password == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "email", Message: "Please enter email and password"}}}
	}
	if err := e.checkPassword(in.Password, in.Username, in.Email, in.FirstName, in.LastName); err != nil {
		return nil, err
	}

	existing, err := e.users.FindByAny(ctx, in.Email, in.Username, in.Phone)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		e.log(ctx).Error("user uniqueness lookup failed", zap.Error(err))
		return nil, internalErr(err)
	}
	if len(existing) > 0 {
		return nil, conflictFor(existing, in)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalErr(err)
	}

	user, err := e.users.CreateUser(ctx, NewUser{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         DefaultRole,
	})
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return nil, duplicateToConflict(dup)
		}
		e.log(ctx).Error("user create failed", zap.String("email", maskEmail(in.Email)), zap.Error(err))
		return nil, internalErr(err)
	}

	ev.UserID = user.ID

	code, err := e.codes.Issue(ctx, user.ID, stores.PurposeEmailVerification, e.config.Verification.EmailCodeTTL)
	if err != nil {
		e.log(ctx).Error("verification code issue failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, internalErr(err)
	}

	if err := e.notify(ctx, Message{
		To:       user.Email,
		Subject:  "Account Activation",
		Template: TemplateActivation,
		Data:     map[string]string{"url": e.verificationURL(code)},
	}); err != nil {
		return nil, err
	}

	e.log(ctx).Info("user registered", zap.String("user_id", user.ID))
	p := user.Profile()
	return &p, nil
}

func (e *Engine) checkPassword(plaintext string, userInputs ...string) error {
	if err := e.policy.Check(plaintext, userInputs...); err != nil {
		var perr *password.PolicyError
		if errors.As(err, &perr) {
			return fieldError("password", perr.Reason)
		}
		return internalErr(err)
	}
	return nil
}

func (e *Engine) verificationURL(code string) string {
	return e.config.linkBase() + "/auth/verify/email/" + code
}

// conflictFor reports the highest-priority taken field: email, then
// username, then phone.
func conflictFor(existing []*User, in RegisterInput) error {
	var username, phone bool
	for _, u := range existing {
		if strings.EqualFold(u.Email, in.Email) {
			return ErrEmailExists
		}
		username = username || (in.Username != "" && u.Username == in.Username)
		phone = phone || (in.Phone != "" && u.Phone == in.Phone)
	}
	switch {
	case username:
		return ErrUsernameExists
	case phone:
		return ErrPhoneExists
	default:
		return ErrConflict
	}
}

func duplicateToConflict(dup *DuplicateError) error {
	switch dup.Field {
	case "email":
		return ErrEmailExists
	case "username":
		return ErrUsernameExists
	case "phone":
		return ErrPhoneExists
	default:
		return ErrConflict
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
