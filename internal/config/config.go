package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              int
	DatabaseURL       string
	LogLevel          string
	AnthropicAPIKey   string
	AnthropicModel    string
	NatsURL           string
	NatsToken         string
	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
	AutosaveQuiet     time.Duration
}

func Load() Config {
	return Config{
		Port:              envInt("INTAKE_PORT", 8640),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("INTAKE_MODEL", "claude-sonnet-4-20250514"),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		JWTSecret:         envStr("INTAKE_JWT_SECRET", ""),
		AdminEmail:        envStr("INTAKE_ADMIN_EMAIL", ""),
		AdminPasswordHash: envStr("INTAKE_ADMIN_PASSWORD_HASH", ""),
		AutosaveQuiet:     envDuration("INTAKE_AUTOSAVE_QUIET_MS", 1000),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(envInt(key, fallbackMs)) * time.Millisecond
}
