package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the intake service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port      string
	StaticDir string

	// Listing and acknowledgment policy
	VisibilityDelay time.Duration
	AckPolicy       string

	// Uploads. Files go to MinIO when MinIOEndpoint is set, to UploadDir otherwise.
	MaxUploadMB    int
	UploadDir      string
	PublicBaseURL  string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIOPublicURL string

	// Cross-replica fanout, disabled when RedisURL is empty
	RedisURL     string
	RedisChannel string

	// Report events, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Submission rate limit per client IP, disabled when SubmitRatePerMin is 0
	SubmitRatePerMin int
	SubmitBurst      int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "sosdesk"),

		// Server defaults
		Port:      getEnv("PORT", "8080"),
		StaticDir: getEnv("STATIC_DIR", ""),

		// Pending reports are visible immediately unless a delay is configured
		VisibilityDelay: getDurationEnv("VISIBILITY_DELAY", 0),
		AckPolicy:       getEnv("ACK_POLICY", "overwrite"),

		MaxUploadMB:    getIntEnv("MAX_UPLOAD_MB", 50),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "/uploads"), "/"),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "sos-media"),
		MinIOUseSSL:    getBoolEnv("MINIO_USE_SSL", true),
		MinIOPublicURL: strings.TrimRight(getEnv("MINIO_PUBLIC_URL", ""), "/"),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "sosdesk:reports"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "sosdesk"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "reports"),

		SubmitRatePerMin: getIntEnv("SUBMIT_RATE_PER_MIN", 30),
		SubmitBurst:      getIntEnv("SUBMIT_BURST", 5),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
