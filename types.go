package sessionauth

import (
	"context"
	"time"
)

// DefaultRole is assigned to users registered without an explicit role.
const DefaultRole = "user"

// User is the identity record kept by a [UserProvider].
type User struct {
	ID            string
	FirstName     string
	LastName      string
	Username      string
	Email         string
	Phone         string
	PasswordHash  string
	Role          string
	EmailVerified bool
	MFA           MFAPreferences
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MFAPreferences is the per-user second-factor state. A secret with
// Enabled=false is a pending enrollment.
type MFAPreferences struct {
	Enabled bool
	Secret  string
}

// MFAState is the enrollment state derived from [MFAPreferences].
type MFAState uint8

const (
	MFADisabled MFAState = iota
	MFAPendingSetup
	MFAEnabled
)

func (s MFAState) String() string {
	switch s {
	case MFAPendingSetup:
		return "pending_setup"
	case MFAEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// MFAState reports where the user is in the enrollment state machine.
func (u *User) MFAState() MFAState {
	switch {
	case u.MFA.Enabled:
		return MFAEnabled
	case u.MFA.Secret != "":
		return MFAPendingSetup
	default:
		return MFADisabled
	}
}

// Profile returns the client-safe view of u.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Username:      u.Username,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		MFAEnabled:    u.MFA.Enabled,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserProfile never carries the password hash or the TOTP secret.
type UserProfile struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"isEmailVerified"`
	MFAEnabled    bool      `json:"enable2FA"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewUser is what Register hands to [UserProvider.CreateUser]. PasswordHash
// is already hashed.
type NewUser struct {
	FirstName    string
	LastName     string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
}

// UserProvider is the user document store. Implementations must enforce
// uniqueness of username, email and phone and report a violation as a
// [*DuplicateError]. Lookups that match nothing return [ErrUserNotFound].
type UserProvider interface {
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	GetByID(ctx context.Context, userID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByIdentifier matches identifier against email, username or phone.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	// FindByAny returns every user holding one of the given values. No match
	// is an empty slice, not an error.
	FindByAny(ctx context.Context, email, username, phone string) ([]*User, error)
	MarkEmailVerified(ctx context.Context, userID string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) (*User, error)
	UpdateMFA(ctx context.Context, userID string, prefs MFAPreferences) (*User, error)
}

// Message is one outbound notification.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

// Notifier delivers notifications. A returned error aborts the flow that
// triggered the send.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Notification templates.
const (
	TemplateActivation    = "activation-mail"
	TemplateResetPassword = "forgot-password-mail"
)

// RegisterInput is the registration request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Phone     string
	Password  string
}

// TokenPair is an access token and, when one was minted, a refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by Login and VerifyMFAForLogin. When MFARequired is
// set no session was created and the tokens and user are empty.
type LoginResult struct {
	User        *UserProfile
	Tokens      TokenPair
	SessionID   string
	MFARequired bool
}

// RefreshResult always carries a new access token. RefreshToken is empty
// unless the session was rotated.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Rotated      bool
	ExpiresAt    time.Time
}

// Principal is the authenticated caller behind an access token.
type Principal struct {
	UserID    string
	SessionID string
}

// SessionInfo is the client-facing view of one session.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiredAt"`
	Current   bool      `json:"isCurrent,omitempty"`
}

// MFASetup is returned by BeginMFASetup. With AlreadyEnabled set the other
// fields are empty.
type MFASetup struct {
	AlreadyEnabled bool
	Secret         string
	SetupURI       string
	QRImageURL     string
}

// ForgotPasswordResult carries the reset link that was mailed.
type ForgotPasswordResult struct {
	URL       string
	ExpiresAt time.Time
}
