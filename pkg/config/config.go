package config

import (
	"os"
	"strconv"
	"strings"
)

// App holds runtime configuration for the gateway and the maintenance runner.
type App struct {
	Environment string
	LogLevel    string
	APIPort     string
	CORSOrigins []string

	// DatabaseParams and ObjectStorageParams are JSON-encoded connection parameters.
	DatabaseParams      string
	ObjectStorageParams string

	KafkaBrokers []string
	KafkaTopic   string

	AllowRawQuery   bool
	DedupeJobsFile  string
	DefaultPageSize int
}

// FromEnv loads the application configuration from environment variables.
func FromEnv() App {
	return App{
		Environment:         getEnv("ENVIRONMENT", "production"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		APIPort:             getEnv("API_PORT", "8080"),
		CORSOrigins:         getCORSOrigins(),
		DatabaseParams:      os.Getenv("DATABASE_PARAMS"),
		ObjectStorageParams: os.Getenv("OBJECT_STORAGE_PARAMS"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "datman.mutations"),
		AllowRawQuery:       getBool("ALLOW_RAW_QUERY", false),
		DedupeJobsFile:      os.Getenv("DEDUPE_JOBS_FILE"),
		DefaultPageSize:     getInt("DEFAULT_PAGE_SIZE", 100),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// getCORSOrigins returns the configured origins, or a wildcard when unset.
func getCORSOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		return []string{"*"}
	}
	return splitList(raw)
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
