package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	CostTablePath string

	ImageProviderURL  string
	ImageProviderKey  string
	VideoProviderURL  string
	VideoProviderKey  string
	VideoCancelEnable bool
	ModerationURL     string

	ProviderCallTimeout  time.Duration
	VideoPollInterval    time.Duration
	VideoMaxPollAttempts int

	MaxActiveRunsPerUser int
	EventRetention       time.Duration
	HeartbeatInterval    time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),
		CostTablePath: os.Getenv("COST_TABLE_PATH"),

		ImageProviderURL:  os.Getenv("IMAGE_PROVIDER_URL"),
		ImageProviderKey:  os.Getenv("IMAGE_PROVIDER_API_KEY"),
		VideoProviderURL:  os.Getenv("VIDEO_PROVIDER_URL"),
		VideoProviderKey:  os.Getenv("VIDEO_PROVIDER_API_KEY"),
		VideoCancelEnable: getEnvBool("VIDEO_PROVIDER_SUPPORTS_CANCEL", false),
		ModerationURL:     os.Getenv("MODERATION_URL"),

		ProviderCallTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_CALL_TIMEOUT_SECONDS", 60)),
		VideoPollInterval:    time.Second * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 5)),
		VideoMaxPollAttempts: getEnvInt("VIDEO_MAX_POLL_ATTEMPTS", 60),

		MaxActiveRunsPerUser: getEnvInt("MAX_ACTIVE_RUNS_PER_USER", 3),
		EventRetention:       time.Second * time.Duration(getEnvInt("EVENT_RETENTION_SECONDS", 300)),
		HeartbeatInterval:    time.Second * time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 15)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		AllowedOrigins:   splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.VideoMaxPollAttempts <= 0 {
		return nil, fmt.Errorf("VIDEO_MAX_POLL_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
