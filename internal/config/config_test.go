package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "RUN_MAX_CYCLES", "HISTORY_WINDOW", "STATE_IDLE_TTL", "GATEWAY_BASE_URL", "TRANSCRIPT_ARCHIVE_BUCKET", "TRANSCRIPT_ARCHIVE_SCHEDULE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RunMaxCycles != 10 {
		t.Fatalf("expected default cycle cap 10, got %d", cfg.RunMaxCycles)
	}
	if cfg.HistoryWindow != 12 {
		t.Fatalf("expected default history window 12, got %d", cfg.HistoryWindow)
	}
	if cfg.StateIdleTTL != 60*time.Minute {
		t.Fatalf("expected default idle ttl 60m, got %s", cfg.StateIdleTTL)
	}
	if cfg.StateSweepSchedule != "@every 1m" {
		t.Fatalf("expected default sweep schedule, got %s", cfg.StateSweepSchedule)
	}
	if cfg.TranscriptBucket != "" || cfg.TranscriptSchedule != "30 0 * * *" {
		t.Fatalf("expected archive disabled with nightly schedule, got %q %q", cfg.TranscriptBucket, cfg.TranscriptSchedule)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("RUN_MAX_CYCLES", "4")
	t.Setenv("RUN_POLL_INTERVAL", "250ms")
	t.Setenv("STATE_IDLE_TTL", "30m")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("GATEWAY_BASE_URL", "https://gateway.example.com/")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("expected port/env overrides, got %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.RunMaxCycles != 4 {
		t.Fatalf("expected cycle cap override, got %d", cfg.RunMaxCycles)
	}
	if cfg.RunPollInterval != 250*time.Millisecond {
		t.Fatalf("expected poll interval override, got %s", cfg.RunPollInterval)
	}
	if cfg.StateIdleTTL != 30*time.Minute {
		t.Fatalf("expected idle ttl override, got %s", cfg.StateIdleTTL)
	}
	if !cfg.UseMemoryQueue {
		t.Fatal("expected memory queue enabled")
	}
	if cfg.GatewayBaseURL != "https://gateway.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.GatewayBaseURL)
	}
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("RUN_TIMEOUT", "soon")
	cfg := Load()
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.RedisTLS {
		t.Fatal("expected redis tls default false")
	}
	if cfg.RunTimeout != 90*time.Second {
		t.Fatalf("expected default run timeout, got %s", cfg.RunTimeout)
	}
}
