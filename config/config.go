package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
	StorageSQLite = "sqlite"

	EventsGoChannel   = "gochannel"
	EventsRedisStream = "redisstream"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage configuration
	StorageBackend string
	RedisURL       string
	KeyPrefix      string

	// Marketplace configuration
	StartingBalance int64

	// Domain events
	EventsBackend       string
	EventsConsumerGroup string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Ticket passes
	PassSecret string

	// Security
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
	LogLevel        string
}

// LoadConfig reads the environment, after merging a local .env file when one
// exists.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		StorageBackend: getEnv("STORAGE_BACKEND", StorageRedis),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		KeyPrefix:      getEnv("KEY_PREFIX", "market:"),

		// Marketplace
		StartingBalance: int64(getEnvAsInt("STARTING_BALANCE", 200)),

		// Events
		EventsBackend:       getEnv("EVENTS_BACKEND", EventsGoChannel),
		EventsConsumerGroup: getEnv("EVENTS_CONSUMER_GROUP", "ticket-marketplace"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Passes
		PassSecret: getEnv("PASS_SECRET", "change-me-in-production"),

		// Security
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// NotificationsEnabled reports whether PubNub keys are configured.
func (c *Config) NotificationsEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
