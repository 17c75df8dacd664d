package httpapi

import (
	"context"

	"github.com/MrEthical07/sessionauth"
)

// Service is the engine surface the handlers call. *sessionauth.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, in sessionauth.RegisterInput) (*sessionauth.UserProfile, error)
	Login(ctx context.Context, identifier, password, userAgent string) (*sessionauth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*sessionauth.RefreshResult, error)
	VerifyEmail(ctx context.Context, code string) (*sessionauth.UserProfile, error)
	ForgotPassword(ctx context.Context, email string) (*sessionauth.ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, code, newPassword string) error
	Logout(ctx context.Context, sessionID string) error

	BeginMFASetup(ctx context.Context, userID string) (*sessionauth.MFASetup, error)
	ConfirmMFASetup(ctx context.Context, userID, code string) (bool, error)
	VerifyMFAForLogin(ctx context.Context, email, code, userAgent string) (*sessionauth.LoginResult, error)
	RevokeMFA(ctx context.Context, userID string) (bool, error)

	ListSessions(ctx context.Context, userID, currentSessionID string) ([]sessionauth.SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*sessionauth.SessionInfo, *sessionauth.UserProfile, error)
	DeleteSession(ctx context.Context, userID, sessionID, currentSessionID string) error

	Authenticate(ctx context.Context, accessToken string) (*sessionauth.Principal, error)
	CurrentUser(ctx context.Context, userID string) (*sessionauth.UserProfile, error)
}

var _ Service = (*sessionauth.Engine)(nil)
