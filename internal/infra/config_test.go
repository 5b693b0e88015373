package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mediaforge")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.VideoPollInterval != 5*time.Second {
		t.Errorf("poll interval = %s", cfg.VideoPollInterval)
	}
	if cfg.VideoMaxPollAttempts != 60 {
		t.Errorf("max poll attempts = %d", cfg.VideoMaxPollAttempts)
	}
	if cfg.MaxActiveRunsPerUser != 3 {
		t.Errorf("max active runs = %d", cfg.MaxActiveRunsPerUser)
	}
	// SSE connections stay open indefinitely.
	if cfg.HTTPWriteTimeout != 0 {
		t.Errorf("write timeout = %s, want 0", cfg.HTTPWriteTimeout)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mediaforge")
	t.Setenv("VIDEO_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("VIDEO_MAX_POLL_ATTEMPTS", "10")
	t.Setenv("VIDEO_PROVIDER_SUPPORTS_CANCEL", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VideoPollInterval != 2*time.Second {
		t.Errorf("poll interval = %s", cfg.VideoPollInterval)
	}
	if cfg.VideoMaxPollAttempts != 10 {
		t.Errorf("max poll attempts = %d", cfg.VideoMaxPollAttempts)
	}
	if !cfg.VideoCancelEnable {
		t.Error("cancel support not enabled")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRejectsNonPositiveAttempts(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mediaforge")
	t.Setenv("VIDEO_MAX_POLL_ATTEMPTS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero poll attempts")
	}
}
