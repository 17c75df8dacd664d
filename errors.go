package sessionauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a domain failure with an HTTP-equivalent status, a
// machine-readable code and a client-safe message.
//
// Kind errors (ErrConflict, ErrUnauthorized, ...) have no parent. Specific
// errors derive from a kind and unwrap to it, so errors.Is matches both.
type Error struct {
	parent  *Error
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the kind this error derives from.
func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// Kind returns the root of e's kind chain.
func (e *Error) Kind() *Error {
	k := e
	for k.parent != nil {
		k = k.parent
	}
	return k
}

func newKind(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) derive(code, message string) *Error {
	return &Error{parent: e, Status: e.Status, Code: code, Message: message}
}

// Error kinds.
var (
	ErrValidation           = newKind(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed")
	ErrConflict             = newKind(http.StatusBadRequest, "AUTH_ALREADY_EXISTS", "Resource already exists")
	ErrInvalidCredentials   = newKind(http.StatusBadRequest, "AUTH_USER_NOT_FOUND", "Invalid email or password")
	ErrUnauthorized         = newKind(http.StatusUnauthorized, "ACCESS_UNAUTHORIZED", "Unauthorized")
	ErrInvalidOrExpiredCode = newKind(http.StatusBadRequest, "AUTH_INVALID_CODE", "Invalid or expired verification code")
	ErrInvalidMFACode       = newKind(http.StatusBadRequest, "AUTH_INVALID_MFA_CODE", "Invalid MFA code. Please try again.")
	ErrTooManyRequests      = newKind(http.StatusTooManyRequests, "AUTH_TOO_MANY_ATTEMPTS", "Too many requests")
	ErrNotFound             = newKind(http.StatusNotFound, "RESOURCE_NOT_FOUND", "Not found")
	ErrInternal             = newKind(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// Specific errors.
var (
	ErrEmailExists    = ErrConflict.derive("AUTH_EMAIL_ALREADY_EXISTS", "Email already exist")
	ErrUsernameExists = ErrConflict.derive("AUTH_USERNAME_ALREADY_EXISTS", "Username already exist")
	ErrPhoneExists    = ErrConflict.derive("AUTH_PHONE_ALREADY_EXISTS", "Phone number already exist")

	ErrUserNotFound       = ErrNotFound.derive("AUTH_USER_NOT_FOUND", "User not found")
	ErrSessionNotFound    = ErrNotFound.derive("SESSION_NOT_FOUND", "Session not found")
	ErrInvalidToken       = ErrUnauthorized.derive("AUTH_INVALID_TOKEN", "Invalid or expired token")
	ErrSessionExpired     = ErrUnauthorized.derive("AUTH_SESSION_EXPIRED", "Session expired")
	ErrMFANotEnabled      = ErrUnauthorized.derive("AUTH_MFA_NOT_ENABLED", "MFA not enabled for this user")
	ErrMFASetupRequired   = ErrValidation.derive("AUTH_MFA_SETUP_REQUIRED", "MFA setup has not been started")
	ErrLoginRateLimited   = ErrTooManyRequests.derive("AUTH_TOO_MANY_ATTEMPTS", "Too many failed login attempts")
	ErrResetRateLimited   = ErrTooManyRequests.derive("AUTH_TOO_MANY_ATTEMPTS", "Too many password reset attempts in the last 3 minutes")
	ErrEngineNotReady     = ErrInternal.derive("ENGINE_NOT_READY", "Internal server error")
	ErrNotificationFailed = ErrInternal.derive("NOTIFICATION_FAILED", "Unable to send notification")

	// ErrCannotDeleteCurrentSession is returned by DeleteSession for the caller's own session.
	ErrCannotDeleteCurrentSession = ErrValidation.derive("SESSION_IS_CURRENT", "Session cannot be deleted. Please logout.")
)

// FieldError is one per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed or semantically invalid request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func fieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// DuplicateError is returned by a [UserProvider] when a write violates the
// uniqueness of Field ("email", "username" or "phone").
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

// internalErr wraps an unexpected failure. The cause stays reachable for logs
// while errors.As still resolves to ErrInternal.
func internalErr(err error) error {
	if err == nil {
		return nil
	}
	var domain *Error
	if errors.As(err, &domain) {
		return err
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return errors.Join(ErrInternal, err)
}

// AsError resolves err to its domain error, defaulting to ErrInternal.
func AsError(err error) *Error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ErrValidation
	}
	var domain *Error
	if errors.As(err, &domain) {
		return domain
	}
	return ErrInternal
}
