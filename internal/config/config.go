package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scheduling Provider
	SchedulingBaseURL string
	SchedulingToken   string
	ProviderTimeout   time.Duration

	// Notification
	NotifyAPIURL string
	NotifyAPIKey string

	// Sync
	SyncStartupDelay time.Duration
	SyncInterval     time.Duration
	SyncRunTimeout   time.Duration
	SyncPaginateAll  bool
	SyncPageSize     int

	// Rate Limit
	RateLimitGeneral     int
	RateLimitSyncTrigger int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SchedulingToken = os.Getenv("SCHEDULING_API_TOKEN")
	if cfg.SchedulingToken == "" {
		missing = append(missing, "SCHEDULING_API_TOKEN")
	}

	cfg.NotifyAPIURL = os.Getenv("NOTIFY_API_URL")
	if cfg.NotifyAPIURL == "" {
		missing = append(missing, "NOTIFY_API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SchedulingBaseURL = getEnvString("SCHEDULING_API_BASE_URL", "https://api.calendly.com")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.NotifyAPIKey = getEnvString("NOTIFY_API_KEY", "")
	cfg.SyncStartupDelay = getEnvDuration("SYNC_STARTUP_DELAY", 30*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 10*time.Minute)
	cfg.SyncRunTimeout = getEnvDuration("SYNC_RUN_TIMEOUT", 5*time.Minute)
	cfg.SyncPaginateAll = getEnvBool("SYNC_PAGINATE_ALL", false)
	cfg.SyncPageSize = getEnvInt("SYNC_PAGE_SIZE", 100)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSyncTrigger = getEnvInt("RATE_LIMIT_SYNC_TRIGGER", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
