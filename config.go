package sessionauth

import (
	"errors"
	"strings"
	"time"
)

// Config is the engine configuration. Start from [DefaultConfig] and set the
// two JWT secrets.
type Config struct {
	// AppOrigin and BasePath prefix the links placed in notifications,
	// e.g. "https://app.example.com" and "/api/v1".
	AppOrigin string
	BasePath  string

	JWT           JWTConfig
	Session       SessionConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	TOTP          TOTPConfig
	Password      PasswordConfig
	Security      SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the two independent signing configurations.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Audience      string
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the session store. Sessions live as long as refresh
// tokens (JWT.RefreshTTL).
type SessionConfig struct {
	RedisPrefix    string
	RotationWindow time.Duration
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig tunes the verification code store.
type VerificationConfig struct {
	RedisPrefix  string
	EmailCodeTTL time.Duration
}

// PasswordResetConfig bounds how often reset codes may be issued.
type PasswordResetConfig struct {
	CodeTTL      time.Duration
	Window       time.Duration
	MaxPerWindow int
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig is the second-factor algorithm configuration.
type TOTPConfig struct {
	Issuer string
	Period uint
	Digits int
	Skew   uint
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost and the password policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
	// MinScore is a zxcvbn score (0-4); 0 disables the strength check.
	MinScore int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the failed-login throttle. MaxLoginFailures=0
// disables it.
type SecurityConfig struct {
	MaxLoginFailures   int
	LoginFailureWindow time.Duration
}

// DefaultConfig returns the production defaults without secrets.
func DefaultConfig() Config {
	return Config{
		BasePath: "/api/v1",
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Audience:   "user",
		},
		Session: SessionConfig{
			RedisPrefix:    "as",
			RotationWindow: 24 * time.Hour,
		},
		Verification: VerificationConfig{
			RedisPrefix:  "avc",
			EmailCodeTTL: 45 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:      time.Hour,
			Window:       3 * time.Minute,
			MaxPerWindow: 2,
		},
		TOTP: TOTPConfig{
			Issuer: "Roodx",
			Period: 30,
			Digits: 6,
			Skew:   1,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   6,
		},
		Security: SecurityConfig{
			MaxLoginFailures:   10,
			LoginFailureWindow: 15 * time.Minute,
		},
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("jwt access and refresh secrets are required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("jwt access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("jwt AccessTTL must be shorter than RefreshTTL")
	}
	if c.Session.RotationWindow <= 0 || c.Session.RotationWindow >= c.JWT.RefreshTTL {
		return errors.New("session RotationWindow must be positive and shorter than RefreshTTL")
	}
	if c.Verification.EmailCodeTTL <= 0 {
		return errors.New("verification EmailCodeTTL must be positive")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("password reset CodeTTL must be positive")
	}
	if c.PasswordReset.MaxPerWindow < 0 || (c.PasswordReset.MaxPerWindow > 0 && c.PasswordReset.Window <= 0) {
		return errors.New("password reset rate window is invalid")
	}
	if c.TOTP.Issuer == "" {
		return errors.New("totp Issuer is required")
	}
	if c.TOTP.Period == 0 {
		return errors.New("totp Period must be positive")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("totp Digits must be 6 or 8")
	}
	if c.TOTP.Skew > 3 {
		return errors.New("totp Skew must be at most 3")
	}
	if c.Password.MinLength < 1 {
		return errors.New("password MinLength must be positive")
	}
	if c.Password.MinScore < 0 || c.Password.MinScore > 4 {
		return errors.New("password MinScore must be between 0 and 4")
	}
	if c.Security.MaxLoginFailures < 0 || (c.Security.MaxLoginFailures > 0 && c.Security.LoginFailureWindow <= 0) {
		return errors.New("security login throttle is invalid")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return errors.New("BasePath must start with /")
	}
	return nil
}

func (c *Config) linkBase() string {
	return strings.TrimRight(c.AppOrigin, "/") + strings.TrimRight(c.BasePath, "/")
}
