package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxContexts   int           // Concurrent contexts for storm tests
	EventsPerLoop int           // Events delivered per context per loop
	StackCapacity int           // Stack capacity for overflow tests
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         getEnv("LEAFZ_RELIABILITY_LEVEL", ""),
		Duration:      parseDuration(getEnv("LEAFZ_RELIABILITY_DURATION", "10s")),
		MaxContexts:   parseInt(getEnv("LEAFZ_RELIABILITY_MAX_CONTEXTS", "64"), 64),
		EventsPerLoop: parseInt(getEnv("LEAFZ_RELIABILITY_EVENTS", "10000"), 10000),
		StackCapacity: parseInt(getEnv("LEAFZ_RELIABILITY_STACK_CAPACITY", "64"), 64),
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses a positive integer with a fallback.
func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}

// parseDuration parses duration from string with default fallback.
func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 10 * time.Second
}
