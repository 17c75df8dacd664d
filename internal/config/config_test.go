package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := cfg.Engine()
	want := sessionauth.DefaultConfig()
	want.AppOrigin = "http://localhost:8080"
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("engine config mismatch\n got: %+v\nwant: %+v", got, want)
	}
	if cfg.Production() {
		t.Fatal("default env must not be production")
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
	if len(cfg.Kafka.Brokers) != 0 || cfg.Postgres.DSN != "" {
		t.Fatal("external backends must be opt-in")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "authd.yaml")
	yaml := []byte(`
app:
  env: production
  port: 9000
jwt:
  access_secret: from-file
  access_ttl: 5m
kafka:
  brokers: ["k1:9092"]
`)
	if err := os.WriteFile(file, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AUTH_JWT_ACCESS_SECRET", "from-env")
	t.Setenv("AUTH_RESET_MAX_PER_WINDOW", "5")
	t.Setenv("AUTH_SECURITY_LOGIN_FAILURE_WINDOW", "1h")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.Production() || cfg.App.Port != 9000 {
		t.Fatalf("file values not applied: %+v", cfg.App)
	}
	if cfg.JWT.AccessSecret != "from-env" {
		t.Fatalf("env must override file, got %q", cfg.JWT.AccessSecret)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.JWT.AccessTTL)
	}
	if cfg.Reset.MaxPerWindow != 5 || cfg.Security.LoginFailureWindow != time.Hour {
		t.Fatalf("env values not applied: %+v %+v", cfg.Reset, cfg.Security)
	}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"k1:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := []byte("AUTH_JWT_REFRESH_SECRET=dotenv-secret\nAUTH_KAFKA_BROKERS=a:9092, b:9092\n")
	if err := os.WriteFile(envFile, content, 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("AUTH_JWT_REFRESH_SECRET")
		os.Unsetenv("AUTH_KAFKA_BROKERS")
	})

	cfg, err := Load("", filepath.Join(dir, "missing.env"), envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.RefreshSecret != "dotenv-secret" {
		t.Fatalf("expected secret from .env, got %q", cfg.JWT.RefreshSecret)
	}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"a:9092", "b:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
