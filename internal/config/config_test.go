package config

import (
	"testing"
	"time"
)

var keys = []string{
	"STORE_BACKEND", "REDIS_ADDR", "POSTGRES_DSN", "DYNAMO_TABLE", "AWS_REGION",
	"NATS_URL", "METRICS_ADDR", "MAX_DISTANCE_MILES", "SWEEP_INTERVAL",
	"SUBMIT_RATE_LIMIT", "SUBMIT_RATE_WINDOW", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://x@db/y")
	t.Setenv("MAX_DISTANCE_MILES", "10.5")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SUBMIT_RATE_LIMIT", "3")
	t.Setenv("SUBMIT_RATE_WINDOW", "10s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendPostgres || cfg.PostgresDSN != "postgres://x@db/y" {
		t.Errorf("store settings not applied: %+v", cfg)
	}
	if cfg.MaxDistanceMiles != 10.5 {
		t.Errorf("expected max distance 10.5, got %v", cfg.MaxDistanceMiles)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.SubmitRateWindow != 10*time.Second {
		t.Errorf("durations not applied: %+v", cfg)
	}
	if cfg.SubmitRateLimit != 3 || cfg.LogLevel != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"STORE_BACKEND", "mongo"},
		{"MAX_DISTANCE_MILES", "-1"},
		{"MAX_DISTANCE_MILES", "far"},
		{"SUBMIT_RATE_LIMIT", "0"},
		{"SWEEP_INTERVAL", "often"},
		{"SUBMIT_RATE_WINDOW", "-5s"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("expected an error for %s=%q", tc.key, tc.value)
			}
		})
	}
}
