package sessionauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	"github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/internal/stores"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/MrEthical07/sessionauth/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	users    UserProvider
	notifier Notifier
	logger   *zap.Logger
	registry prometheus.Registerer
	now      func() time.Time
	built    bool

	auditSink AuditSink
	auditOpts AuditOptions
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing sessions, codes and the throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the user document store.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithNotifier sets the notification sender.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics registers the engine collectors with reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- TOKEN CODEC --------
	tokens, err := jwt.NewManager(jwt.Config{
		Access: jwt.Options{
			Secret:    []byte(cfg.JWT.AccessSecret),
			ExpiresIn: cfg.JWT.AccessTTL,
			Audience:  cfg.JWT.Audience,
			Issuer:    cfg.JWT.Issuer,
		},
		Refresh: jwt.Options{
			Secret:    []byte(cfg.JWT.RefreshSecret),
			ExpiresIn: cfg.JWT.RefreshTTL,
			Audience:  cfg.JWT.Audience,
			Issuer:    cfg.JWT.Issuer,
		},
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	sessions, err := session.NewStore(b.redis, session.Config{
		Prefix:         cfg.Session.RedisPrefix,
		Lifetime:       cfg.JWT.RefreshTTL,
		RotationWindow: cfg.Session.RotationWindow,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIAL VERIFIER --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// Unknown identifiers are compared against this so a miss costs as much
	// as a wrong password.
	decoy, err := internal.NewCode()
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(decoy)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(b.registry)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		notifier: b.notifier,
		sessions: sessions,
		codes:    stores.NewVerificationCodeStore(b.redis, cfg.Verification.RedisPrefix, now),
		limiter: rate.New(b.redis, rate.Config{
			MaxFailures: cfg.Security.MaxLoginFailures,
			Window:      cfg.Security.LoginFailureWindow,
		}),
		tokens: tokens,
		hasher:    hasher,
		dummyHash: dummyHash,
		policy: password.Policy{
			MinLength: cfg.Password.MinLength,
			MinScore:  cfg.Password.MinScore,
		},
		totp:    newTOTPManager(cfg.TOTP),
		metrics: metrics,
		audit: audit.NewDispatcher(audit.Config{
			BufferSize: b.auditOpts.BufferSize,
			DropIfFull: b.auditOpts.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
		logger: logger,
		now:    now,
	}

	b.built = true

	return engine, nil
}
