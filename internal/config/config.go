// Package config loads the authd service configuration from an optional
// YAML file, .env files and AUTH_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MrEthical07/sessionauth"
)

const envPrefix = "AUTH"

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	HTTP         HTTPSettings         `mapstructure:"http"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	JWT          JWTSettings          `mapstructure:"jwt"`
	Session      SessionSettings      `mapstructure:"session"`
	Verification VerificationSettings `mapstructure:"verification"`
	Reset        ResetSettings        `mapstructure:"reset"`
	TOTP         TOTPSettings         `mapstructure:"totp"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	Security     SecuritySettings     `mapstructure:"security"`
}

type AppSettings struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Origin   string `mapstructure:"origin"`
	BasePath string `mapstructure:"base_path"`
}

// HTTPSettings configures the server and the per-IP limiter on the
// unauthenticated routes. RatePerSecond 0 disables the limiter.
type HTTPSettings struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// PostgresSettings selects the user store. An empty DSN keeps users in
// memory.
type PostgresSettings struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// KafkaSettings selects the notifier. Without brokers notifications are
// only logged.
type KafkaSettings struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type JWTSettings struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Audience      string        `mapstructure:"audience"`
	Issuer        string        `mapstructure:"issuer"`
}

type SessionSettings struct {
	Prefix         string        `mapstructure:"prefix"`
	RotationWindow time.Duration `mapstructure:"rotation_window"`
}

type VerificationSettings struct {
	Prefix       string        `mapstructure:"prefix"`
	EmailCodeTTL time.Duration `mapstructure:"email_code_ttl"`
}

type ResetSettings struct {
	CodeTTL      time.Duration `mapstructure:"code_ttl"`
	Window       time.Duration `mapstructure:"window"`
	MaxPerWindow int           `mapstructure:"max_per_window"`
}

type TOTPSettings struct {
	Issuer string `mapstructure:"issuer"`
	Period uint   `mapstructure:"period"`
	Digits int    `mapstructure:"digits"`
	Skew   uint   `mapstructure:"skew"`
}

type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
	MinLength   int    `mapstructure:"min_length"`
	MinScore    int    `mapstructure:"min_score"`
}

type SecuritySettings struct {
	MaxLoginFailures   int           `mapstructure:"max_login_failures"`
	LoginFailureWindow time.Duration `mapstructure:"login_failure_window"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.origin",
	"app.base_path",
	"http.read_timeout",
	"http.write_timeout",
	"http.shutdown_timeout",
	"http.rate_per_second",
	"http.rate_burst",
	"redis.addr",
	"redis.db",
	"redis.password",
	"postgres.dsn",
	"postgres.max_conns",
	"postgres.migrate",
	"kafka.brokers",
	"kafka.topic",
	"kafka.client_id",
	"jwt.access_secret",
	"jwt.refresh_secret",
	"jwt.access_ttl",
	"jwt.refresh_ttl",
	"jwt.audience",
	"jwt.issuer",
	"session.prefix",
	"session.rotation_window",
	"verification.prefix",
	"verification.email_code_ttl",
	"reset.code_ttl",
	"reset.window",
	"reset.max_per_window",
	"totp.issuer",
	"totp.period",
	"totp.digits",
	"totp.skew",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"argon2.min_length",
	"argon2.min_score",
	"security.max_login_failures",
	"security.login_failure_window",
}

// Load reads configFile when set, then envFiles (missing ones are skipped),
// then the environment. Variables already set in the environment win over
// .env entries.
func Load(configFile string, envFiles ...string) (*AppConfig, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// AUTH_KAFKA_BROKERS arrives as one comma separated string.
	cfg.Kafka.Brokers = splitList(strings.Join(cfg.Kafka.Brokers, ","))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := sessionauth.DefaultConfig()

	v.SetDefault("app.name", "authd")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.origin", "http://localhost:8080")
	v.SetDefault("app.base_path", d.BasePath)

	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.rate_per_second", 5)
	v.SetDefault("http.rate_burst", 20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "auth.notifications")
	v.SetDefault("kafka.client_id", "authd")

	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_ttl", d.JWT.AccessTTL.String())
	v.SetDefault("jwt.refresh_ttl", d.JWT.RefreshTTL.String())
	v.SetDefault("jwt.audience", d.JWT.Audience)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)

	v.SetDefault("session.prefix", d.Session.RedisPrefix)
	v.SetDefault("session.rotation_window", d.Session.RotationWindow.String())

	v.SetDefault("verification.prefix", d.Verification.RedisPrefix)
	v.SetDefault("verification.email_code_ttl", d.Verification.EmailCodeTTL.String())

	v.SetDefault("reset.code_ttl", d.PasswordReset.CodeTTL.String())
	v.SetDefault("reset.window", d.PasswordReset.Window.String())
	v.SetDefault("reset.max_per_window", d.PasswordReset.MaxPerWindow)

	v.SetDefault("totp.issuer", d.TOTP.Issuer)
	v.SetDefault("totp.period", d.TOTP.Period)
	v.SetDefault("totp.digits", d.TOTP.Digits)
	v.SetDefault("totp.skew", d.TOTP.Skew)

	v.SetDefault("argon2.memory", d.Password.Memory)
	v.SetDefault("argon2.iterations", d.Password.Time)
	v.SetDefault("argon2.parallelism", d.Password.Parallelism)
	v.SetDefault("argon2.salt_length", d.Password.SaltLength)
	v.SetDefault("argon2.key_length", d.Password.KeyLength)
	v.SetDefault("argon2.min_length", d.Password.MinLength)
	v.SetDefault("argon2.min_score", d.Password.MinScore)

	v.SetDefault("security.max_login_failures", d.Security.MaxLoginFailures)
	v.SetDefault("security.login_failure_window", d.Security.LoginFailureWindow.String())
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Production reports whether the service runs with production cookies and
// logging.
func (c *AppConfig) Production() bool {
	return c.App.Env == "production"
}

// Addr is the HTTP listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// Engine converts the settings into the engine configuration.
func (c *AppConfig) Engine() sessionauth.Config {
	return sessionauth.Config{
		AppOrigin: c.App.Origin,
		BasePath:  c.App.BasePath,
		JWT: sessionauth.JWTConfig{
			AccessSecret:  c.JWT.AccessSecret,
			RefreshSecret: c.JWT.RefreshSecret,
			AccessTTL:     c.JWT.AccessTTL,
			RefreshTTL:    c.JWT.RefreshTTL,
			Audience:      c.JWT.Audience,
			Issuer:        c.JWT.Issuer,
		},
		Session: sessionauth.SessionConfig{
			RedisPrefix:    c.Session.Prefix,
			RotationWindow: c.Session.RotationWindow,
		},
		Verification: sessionauth.VerificationConfig{
			RedisPrefix:  c.Verification.Prefix,
			EmailCodeTTL: c.Verification.EmailCodeTTL,
		},
		PasswordReset: sessionauth.PasswordResetConfig{
			CodeTTL:      c.Reset.CodeTTL,
			Window:       c.Reset.Window,
			MaxPerWindow: c.Reset.MaxPerWindow,
		},
		TOTP: sessionauth.TOTPConfig{
			Issuer: c.TOTP.Issuer,
			Period: c.TOTP.Period,
			Digits: c.TOTP.Digits,
			Skew:   c.TOTP.Skew,
		},
		Password: sessionauth.PasswordConfig{
			Memory:      c.Argon2.Memory,
			Time:        c.Argon2.Iterations,
			Parallelism: c.Argon2.Parallelism,
			SaltLength:  c.Argon2.SaltLength,
			KeyLength:   c.Argon2.KeyLength,
			MinLength:   c.Argon2.MinLength,
			MinScore:    c.Argon2.MinScore,
		},
		Security: sessionauth.SecurityConfig{
			MaxLoginFailures:   c.Security.MaxLoginFailures,
			LoginFailureWindow: c.Security.LoginFailureWindow,
		},
	}
}
