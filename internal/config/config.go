package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Worker pool and retry policy for the billing queue.
	NumWorkers  int
	MaxAttempts int
	BackoffBase time.Duration

	// How often consumers poll the queue for due jobs.
	PollInterval time.Duration

	// Upper bound on a single payment gateway call.
	PaymentTimeout time.Duration

	// Simulated gateway decline rate in [0, 1).
	PaymentFailureRate float64

	// How long graceful shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables. A local .env file
// is applied first if present so dev setups do not need exported vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        dbURL,
		RedisURL:           redisURL,
		NumWorkers:         getEnvInt("NUM_WORKERS", 3),
		MaxAttempts:        getEnvInt("MAX_ATTEMPTS", 3),
		BackoffBase:        getEnvDuration("BACKOFF_BASE", time.Minute),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 100*time.Millisecond),
		PaymentTimeout:     getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second),
		PaymentFailureRate: getEnvFloat("PAYMENT_FAILURE_RATE", 0.1),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
