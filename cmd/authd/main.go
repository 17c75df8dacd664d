// Command authd serves the session authentication HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/httpapi"
	"github.com/MrEthical07/sessionauth/internal/config"
	"github.com/MrEthical07/sessionauth/notify"
	"github.com/MrEthical07/sessionauth/userstore"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile, ".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Printf("authd stopped: %v", err)
		os.Exit(1)
	}
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProductionConfig().Build()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	logger, err := newLogger(cfg.Production())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// -------- REDIS --------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// -------- USERS --------
	var users sessionauth.UserProvider
	if cfg.Postgres.DSN != "" {
		pool, err := openPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		users = userstore.NewPostgres(pool)
	} else {
		logger.Warn("postgres dsn not set, users are kept in memory")
		users = userstore.NewMemory()
	}

	// -------- NOTIFICATIONS --------
	var notifier sessionauth.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := notify.NewKafkaProducer(notify.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return err
		}
		k := notify.NewKafka(producer, cfg.Kafka.Topic, logger)
		defer func() {
			if err := k.Close(); err != nil {
				logger.Warn("kafka close failed", zap.Error(err))
			}
		}()
		notifier = k
	} else {
		logger.Warn("kafka brokers not set, notifications are only logged")
		notifier = notify.NewLog(logger)
	}

	// -------- ENGINE --------
	engine, err := sessionauth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserProvider(users).
		WithNotifier(notifier).
		WithLogger(logger).
		WithMetrics(prometheus.DefaultRegisterer).
		WithAudit(sessionauth.NewLogAuditSink(logger), sessionauth.AuditOptions{DropIfFull: true}).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	httpMetrics, err := httpapi.NewHTTPMetrics(httpapi.HTTPMetricsOptions{})
	if err != nil {
		return err
	}

	engineCfg := engine.Config()
	router := httpapi.NewRouter(engine, httpapi.Options{
		BasePath:       engineCfg.BasePath,
		Production:     cfg.Production(),
		AccessTTL:      engineCfg.JWT.AccessTTL,
		RefreshTTL:     engineCfg.JWT.RefreshTTL,
		Logger:         logger,
		Metrics:        httpMetrics,
		MetricsHandler: promhttp.Handler(),
		RateLimit: httpapi.RateLimitOptions{
			PerSecond: cfg.HTTP.RatePerSecond,
			Burst:     cfg.HTTP.RateBurst,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting authd",
		zap.String("env", cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("base_path", engineCfg.BasePath),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		logger.Info("authd stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func openPostgres(ctx context.Context, cfg config.PostgresSettings, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.Migrate {
		if err := userstore.Migrate(ctx, cfg.DSN); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return pool, nil
}
