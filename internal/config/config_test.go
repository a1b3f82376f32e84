package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "STORE_TIMEOUT", "STATS_CACHE_TTL", "FACE_MATCH_THRESHOLD", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.HTTPPort != "5000" {
		t.Fatalf("expected default port 5000, got %s", cfg.HTTPPort)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Fatalf("expected postgres driver, got %s", cfg.StoreDriver)
	}
	if cfg.StoreTimeout != 5*time.Second || cfg.StatsCacheTTL != 30*time.Second {
		t.Fatalf("unexpected durations: store=%s ttl=%s", cfg.StoreTimeout, cfg.StatsCacheTTL)
	}
	if cfg.Face.Threshold != 80 {
		t.Fatalf("expected threshold 80, got %v", cfg.Face.Threshold)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected cache disabled by default, got %q", cfg.RedisAddr)
	}
}

func TestFromEnvDisablesGRPCHealthWhenEmpty(t *testing.T) {
	t.Setenv("GRPC_HEALTH_PORT", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GRPCHealthPort != "" {
		t.Fatalf("expected gRPC health disabled, got %q", cfg.GRPCHealthPort)
	}
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")

	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), "STORE_TIMEOUT") {
		t.Fatalf("expected STORE_TIMEOUT parse error, got %v", err)
	}
}

func TestFromEnvRejectsBadBoolAndFloat(t *testing.T) {
	t.Setenv("IMAGE_HOST_USE_SSL", "sometimes")
	t.Setenv("FACE_MATCH_THRESHOLD", "high")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"IMAGE_HOST_USE_SSL", "FACE_MATCH_THRESHOLD"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg := &Config{
		HTTPPort:        "http",
		StoreDriver:     DriverMongo,
		StoreTimeout:    time.Second,
		StatsCacheTTL:   time.Second,
		ShutdownTimeout: time.Second,
		Face:            FaceConfig{Threshold: 120},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"MONGO_URI", "MONGO_DATABASE", "PORT", "FACE_MATCH_THRESHOLD"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "dynamo")

	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestFeatureToggles(t *testing.T) {
	if (ImageHostConfig{Endpoint: "minio:9000"}).Enabled() {
		t.Fatal("expected image host without bucket to be disabled")
	}
	if !(ImageHostConfig{Endpoint: "minio:9000", Bucket: "checks"}).Enabled() {
		t.Fatal("expected image host to be enabled")
	}
	if (FaceConfig{}).Enabled() {
		t.Fatal("expected face engine disabled without collection")
	}
}
