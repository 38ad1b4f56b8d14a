package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Helper to get float64 env with default
func getEnvAsFloat64(key string, fallback float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	val, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float64 for config %s, using default %f", valueStr, fallback)
		return fallback
	}
	return val
}

// Helper to get int env with default
func getEnvAsInt(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	val, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid int for config %s, using default %d", valueStr, fallback)
		return fallback
	}
	return val
}

// Helper to get string env with default
func getEnvAsString(key, fallback string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return fallback
}

// Helper to get duration env with default. Accepts Go duration syntax
// ("30s", "15m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	val, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for config %s, using default %s", valueStr, fallback)
		return fallback
	}
	return val
}
