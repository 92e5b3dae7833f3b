package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of an environment variable or a default value if not set
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value if not set
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value if not set
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationMSEnv reads an integer number of milliseconds from the
// environment and returns it as a duration.
func GetDurationMSEnv(key string, defaultMS int) time.Duration {
	return time.Duration(GetIntEnv(key, defaultMS)) * time.Millisecond
}

// MustGetEnv returns the value of an environment variable or panics if not set
func MustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	panic("Required environment variable " + key + " is not set")
}

// GetHost returns the bind host for HTTP servers
func GetHost() string {
	return GetEnv("HOST", "localhost")
}

// GetAPIPrefix returns the optional mount prefix for the JSON API, e.g.
// "/api". Empty means the API mounts at the router root.
func GetAPIPrefix() string {
	prefix := GetEnv("API_PREFIX", "")
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return prefix
}
