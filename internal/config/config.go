package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr         string
	StoreMode          string
	StateFile          string
	DatabaseURL        string
	StateEncryptionKey string
	AdminUsername      string
	AdminPassword      string
	JWTSecret          string
	APITokenTTL        time.Duration
	ConnectorTimeout   time.Duration
	EngineHTTPTimeout  time.Duration
	PublishTimeout     time.Duration
	WebhookURL         string
	WebhookTimeout     time.Duration
	WebhookMaxRetries  int
	WebhookRetryBase   time.Duration
	WebhookRetryMax    time.Duration
	TelegramBotToken   string
	TelegramChatID     string
	LogLevel           slog.Level
}

func Load() Config {
	return Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":18090"),
		StoreMode:          strings.ToLower(getEnv("STORE_MODE", "file")),
		StateFile:          getEnv("STATE_FILE", "solutionhub-state.json"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		StateEncryptionKey: getEnv("STATE_ENCRYPTION_KEY", ""),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		JWTSecret:          getEnv("JWT_SECRET", "change-this-secret"),
		APITokenTTL:        getDuration("API_TOKEN_TTL", 12*time.Hour),
		ConnectorTimeout:   getDuration("CONNECTOR_TIMEOUT", 10*time.Second),
		EngineHTTPTimeout:  getDuration("ENGINE_HTTP_TIMEOUT", 10*time.Second),
		PublishTimeout:     getDuration("PUBLISH_TIMEOUT", 10*time.Second),
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:     getDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:  getInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookRetryBase:   getDuration("WEBHOOK_RETRY_BASE", 500*time.Millisecond),
		WebhookRetryMax:    getDuration("WEBHOOK_RETRY_MAX", 5*time.Second),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		LogLevel:           getLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}
