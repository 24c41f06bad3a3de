package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the eventing-core configuration loaded from the environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	RabbitURL       string
	Queue           string
	DeadLetterQueue string
	Prefetch        int
	MaxDeliveries   int
	ReconnectDelay  time.Duration
	PublishBuffer   int

	DatabaseURL string

	RedisURL        string
	CacheDefaultTTL time.Duration

	GatewaySocketURL    string
	RelayReconnectDelay time.Duration
	RelayMaxAttempts    int

	UserServiceURL          string
	UserServiceTimeout      time.Duration
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "notification_service"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8085"),

		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		Queue:           getEnv("NOTIFICATION_QUEUE", "notification_events"),
		DeadLetterQueue: getEnv("NOTIFICATION_DLQ", "notification_events_dlq"),
		Prefetch:        getEnvAsInt("NOTIFICATION_PREFETCH", 1),
		MaxDeliveries:   getEnvAsInt("MAX_DELIVERIES", 5),
		ReconnectDelay:  getEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
		PublishBuffer:   getEnvAsInt("PUBLISH_BUFFER", 256),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:        getEnv("REDIS_URL", ""),
		CacheDefaultTTL: getEnvAsDuration("CACHE_DEFAULT_TTL", 60*time.Second),

		GatewaySocketURL:    getEnv("GATEWAY_SOCKET_URL", "ws://localhost:8080/socket"),
		RelayReconnectDelay: getEnvAsDuration("RELAY_RECONNECT_DELAY", time.Second),
		RelayMaxAttempts:    getEnvAsInt("RELAY_MAX_ATTEMPTS", 10),

		UserServiceURL:          getEnv("USER_SERVICE_URL", ""),
		UserServiceTimeout:      getEnvAsDuration("USER_SERVICE_TIMEOUT", 5*time.Second),
		BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 2),
		BreakerOpenTimeout:      getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.UserServiceURL == "" {
		missing = append(missing, "USER_SERVICE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
