package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      int
	LogLevel  string
	LogFile   string
	APIKey    string
	NatsURL   string
	NatsToken string

	DatabaseURL string

	// GenProvider selects the reply generator: "gemini", "anthropic" or "none".
	GenProvider      string
	GeminiAPIKey     string
	GeminiModel      string
	AnthropicAPIKey  string
	AnthropicModel   string
	GenTimeout       time.Duration
	GenHistoryWindow int

	PersonasFile     string
	SessionCacheSize int
	SessionTTL       time.Duration
	ExtractFromReply bool

	ReportURL           string
	ReportAPIKey        string
	ReportTimeout       time.Duration
	ReportTurnThreshold int
}

func Load() Config {
	return Config{
		Port:      envInt("SENTINEL_PORT", 8760),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFile:   envStr("LOG_FILE", ""),
		APIKey:    envStr("SENTINEL_API_KEY", ""),
		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		DatabaseURL: envStr("DATABASE_URL", ""),

		GenProvider:      strings.ToLower(envStr("GEN_PROVIDER", "gemini")),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   envStr("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		GenTimeout:       envDuration("GEN_TIMEOUT", 1500*time.Millisecond),
		GenHistoryWindow: envInt("GEN_HISTORY_WINDOW", 6),

		PersonasFile:     envStr("PERSONAS_FILE", ""),
		SessionCacheSize: envInt("SESSION_CACHE_SIZE", 10000),
		SessionTTL:       envDuration("SESSION_TTL", 24*time.Hour),
		ExtractFromReply: envBool("EXTRACT_FROM_REPLY", false),

		ReportURL:           envStr("REPORT_URL", ""),
		ReportAPIKey:        envStr("REPORT_API_KEY", ""),
		ReportTimeout:       envDuration("REPORT_TIMEOUT", 1500*time.Millisecond),
		ReportTurnThreshold: envInt("REPORT_TURN_THRESHOLD", 4),
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
