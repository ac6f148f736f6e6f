package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CART_EXPIRY_MINUTES", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()

	if cfg.CartExpiry != 30*time.Minute {
		t.Errorf("Expected cart expiry 30m, got %v", cfg.CartExpiry)
	}
	if cfg.CartExpiryMaxRetry != 10000 {
		t.Errorf("Expected max retry 10000, got %d", cfg.CartExpiryMaxRetry)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("Expected postgres store driver, got %s", cfg.StoreDriver)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CART_EXPIRY_MINUTES", "5")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("ASYNQ_CONCURRENCY", "not-a-number")

	cfg := Load()

	if cfg.CartExpiry != 5*time.Minute {
		t.Errorf("Expected cart expiry 5m, got %v", cfg.CartExpiry)
	}
	if cfg.Redis.Addr() != "cache:6380" {
		t.Errorf("Expected redis addr cache:6380, got %s", cfg.Redis.Addr())
	}
	if cfg.AsynqConcurrency != 10 {
		t.Errorf("Expected fallback concurrency 10, got %d", cfg.AsynqConcurrency)
	}
}
