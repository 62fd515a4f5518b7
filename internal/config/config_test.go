package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.DocumentStore != "postgres" {
		t.Fatalf("expected postgres document store, got %q", cfg.DocumentStore)
	}
	if cfg.CheckinRadiusM != 100 {
		t.Fatalf("expected 100m radius, got %v", cfg.CheckinRadiusM)
	}
	if cfg.CheckinCooldown != 30*time.Minute {
		t.Fatalf("expected 30m cooldown, got %v", cfg.CheckinCooldown)
	}
	if cfg.LocationMinDistanceM != 10 {
		t.Fatalf("expected 10m watch interval, got %v", cfg.LocationMinDistanceM)
	}
	if cfg.DeviceIdleTimeout != 30*time.Minute {
		t.Fatalf("expected 30m device idle timeout, got %v", cfg.DeviceIdleTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DOCUMENT_STORE", "mongo")
	t.Setenv("CHECKIN_COOLDOWN", "5m")
	t.Setenv("CHECKIN_NEAREST_FIRST", "true")
	t.Setenv("DEVICE_IDLE_TIMEOUT", "2h")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.DocumentStore != "mongo" {
		t.Fatalf("expected override document store")
	}
	if cfg.CheckinCooldown != 5*time.Minute {
		t.Fatalf("expected override cooldown, got %v", cfg.CheckinCooldown)
	}
	if !cfg.CheckinNearestFirst {
		t.Fatalf("expected nearest-first override")
	}
	if cfg.DeviceIdleTimeout != 2*time.Hour {
		t.Fatalf("expected override idle timeout, got %v", cfg.DeviceIdleTimeout)
	}
}
