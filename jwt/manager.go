package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is stamped into every token when Options.Audience is empty.
const DefaultAudience = "user"

var (
	// ErrInvalidSignature is returned when the signature does not match the secret
	// or the token was signed with an unexpected algorithm.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned when the embedded expiry is in the past.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the token cannot be parsed at all.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidClaims is returned for audience/issuer mismatches and missing claims.
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Options is one signing configuration: a secret, a lifetime and the audience
// and issuer markers checked on verify.
type Options struct {
	Secret    []byte
	ExpiresIn time.Duration
	Audience  string
	Issuer    string
}

// Config holds the two independent signing configurations.
type Config struct {
	Access  Options
	Refresh Options
	Leeway  time.Duration
	Now     func() time.Time
}

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens.
type RefreshClaims struct {
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

type stamped interface {
	jwt.Claims
	registered() *jwt.RegisteredClaims
}

func (c *AccessClaims) registered() *jwt.RegisteredClaims  { return &c.RegisteredClaims }
func (c *RefreshClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// Manager signs and verifies access and refresh tokens. It holds no mutable
// state and is safe for concurrent use.
type Manager struct {
	access  Options
	refresh Options
	leeway  time.Duration
	now     func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := validateOptions("access", cfg.Access); err != nil {
		return nil, err
	}
	if err := validateOptions("refresh", cfg.Refresh); err != nil {
		return nil, err
	}
	if bytes.Equal(cfg.Access.Secret, cfg.Refresh.Secret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		access:  withDefaults(cfg.Access),
		refresh: withDefaults(cfg.Refresh),
		leeway:  cfg.Leeway,
		now:     cfg.Now,
	}, nil
}

// AccessTTL returns the lifetime of access tokens.
func (m *Manager) AccessTTL() time.Duration { return m.access.ExpiresIn }

// RefreshTTL returns the lifetime of refresh tokens.
func (m *Manager) RefreshTTL() time.Duration { return m.refresh.ExpiresIn }

// SignAccess issues an access token for the user's session.
func (m *Manager) SignAccess(userID, sessionID string) (string, error) {
	return Sign(&AccessClaims{UserID: userID, SessionID: sessionID}, m.access, m.now())
}

// SignRefresh issues a refresh token bound to sessionID.
func (m *Manager) SignRefresh(sessionID string) (string, error) {
	return Sign(&RefreshClaims{SessionID: sessionID}, m.refresh, m.now())
}

// VerifyAccess verifies an access token with the access configuration.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := Verify(token, claims, m.access, m.leeway, m.now); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token with the refresh configuration.
func (m *Manager) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := Verify(token, claims, m.refresh, m.leeway, m.now); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// Sign stamps iat/exp/aud/iss onto claims and signs them with opts.Secret.
// The output depends only on the claims, the options and now.
func Sign(claims stamped, opts Options, now time.Time) (string, error) {
	opts = withDefaults(opts)

	rc := claims.registered()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(opts.ExpiresIn))
	rc.Audience = jwt.ClaimStrings{opts.Audience}
	if opts.Issuer != "" {
		rc.Issuer = opts.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opts.Secret)
}

// Verify parses token into claims and classifies failures as ErrMalformed,
// ErrInvalidSignature, ErrExpired or ErrInvalidClaims.
func Verify(token string, claims jwt.Claims, opts Options, leeway time.Duration, now func() time.Time) error {
	opts = withDefaults(opts)

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(opts.Audience),
		jwt.WithExpirationRequired(),
	}
	if now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(now))
	}
	if leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(leeway))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	parsed, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return opts.Secret, nil
	})
	if err != nil {
		return classify(err)
	}
	if !parsed.Valid {
		return ErrInvalidClaims
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}

func withDefaults(opts Options) Options {
	if opts.Audience == "" {
		opts.Audience = DefaultAudience
	}
	return opts
}

func validateOptions(name string, opts Options) error {
	if len(opts.Secret) == 0 {
		return fmt.Errorf("%s secret required", name)
	}
	if opts.ExpiresIn <= 0 {
		return fmt.Errorf("invalid %s TTL configuration", name)
	}
	return nil
}
