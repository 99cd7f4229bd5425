package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. It is built once at
// startup and passed by reference into each component; nothing mutates it
// afterwards, so tests can construct alternate configs without shared state.
type Config struct {
	Port         string
	Env          string
	DatabasePath string
	RedisURL     string

	// Completion gateway
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AITemperature float64

	// Detection pipeline
	EnableAutomatedScans        bool
	LookbackHours               int    // global scan window
	MaxConversationsPerScan     int
	MessageThreshold            int    // high-volume trigger
	QualityMessageThreshold     int    // lower trigger, needs participants too
	QualityParticipantThreshold int
	CooldownMinutes             int
	StateTTLMinutes             int
	RoomScanMessageLimit        int
	RoomScanThreadLimit         int
	RoomScanContextBackfill     int
	RoomScanLookbackHours       int
	FallbackCron                string

	// Background workers
	ScanWorkers int
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/feedscout.db"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		AIAPIKey:      os.Getenv("AI_GATEWAY_API_KEY"),
		AIBaseURL:     getEnv("AI_GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh/v1"),
		AIModel:       getEnv("AUTOMATED_FEED_AI_MODEL", "anthropic/claude-haiku-4.5"),
		AITemperature: getEnvFloat("AI_GATEWAY_DEFAULT_TEMPERATURE", 0.7),

		EnableAutomatedScans:        getEnv("AUTOMATED_FEED_ENABLED", "true") == "true",
		LookbackHours:               getEnvInt("AUTOMATED_FEED_LOOKBACK_HOURS", 2),
		MaxConversationsPerScan:     getEnvInt("AUTOMATED_FEED_MAX_CONVERSATIONS", 999),
		MessageThreshold:            getEnvInt("AUTOMATED_FEED_MESSAGE_THRESHOLD", 15),
		QualityMessageThreshold:     getEnvInt("AUTOMATED_FEED_QUALITY_MESSAGE_THRESHOLD", 8),
		QualityParticipantThreshold: getEnvInt("AUTOMATED_FEED_QUALITY_PARTICIPANT_THRESHOLD", 3),
		CooldownMinutes:             getEnvInt("AUTOMATED_FEED_COOLDOWN_MINUTES", 30),
		StateTTLMinutes:             getEnvInt("AUTOMATED_FEED_STATE_TTL_MINUTES", 240),
		RoomScanMessageLimit:        getEnvInt("AUTOMATED_FEED_ROOM_SCAN_MESSAGE_LIMIT", 120),
		RoomScanThreadLimit:         getEnvInt("AUTOMATED_FEED_ROOM_SCAN_THREAD_LIMIT", 40),
		RoomScanContextBackfill:     getEnvInt("AUTOMATED_FEED_ROOM_SCAN_CONTEXT_BACKFILL", 20),
		RoomScanLookbackHours:       getEnvInt("AUTOMATED_FEED_ROOM_SCAN_LOOKBACK_HOURS", 12),
		FallbackCron:                getEnv("AUTOMATED_FEED_FALLBACK_CRON", "0 */2 * * *"),

		ScanWorkers: getEnvInt("AUTOMATED_FEED_SCAN_WORKERS", 2),
	}

	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Cooldown returns the post-scan cooldown window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// StateTTL returns the lifetime of per-room activity state in the shared
// store, clamped to keep counters from living forever or vanishing mid-burst.
func (c *Config) StateTTL() time.Duration {
	ttl := time.Duration(c.StateTTLMinutes) * time.Minute
	if ttl < 5*time.Minute {
		ttl = 5 * time.Minute
	}
	if ttl > 24*time.Hour {
		ttl = 24 * time.Hour
	}
	return ttl
}

// RoomScanLookback returns the recent window for room-scoped scans.
func (c *Config) RoomScanLookback() time.Duration {
	hours := c.RoomScanLookbackHours
	if hours <= 0 {
		hours = 12
	}
	return time.Duration(hours) * time.Hour
}

// GlobalLookback returns the window for scheduled global scans.
func (c *Config) GlobalLookback() time.Duration {
	hours := c.LookbackHours
	if hours <= 0 {
		hours = 2
	}
	return time.Duration(hours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
