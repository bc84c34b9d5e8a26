package history

import (
	"os"
	"strconv"
)

const defaultPageSize = 15

// Config carries reconciler settings. LoadConfig fills it from the
// environment with sane defaults, so reconciliation tooling needs no flag
// plumbing.
type Config struct {
	DatabaseFile string // path to the history sqlite file
	PageSize     int    // History endpoint page size
	LogLevel     string // "debug", "info", "warn", "error"
	LogFormat    string // "json", "text"
}

func LoadConfig() Config {
	return Config{
		DatabaseFile: getEnvOrDefault("INSYNC_HISTORY_DB", "history.db"),
		PageSize:     getEnvIntOrDefault("INSYNC_HISTORY_PAGE_SIZE", defaultPageSize),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}
