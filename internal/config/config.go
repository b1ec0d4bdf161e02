package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string
	// Document store
	StoreHost        string
	StorePort        int
	StoreAPIKey      string
	StoreIndex       string
	StoreSourceField string
	StoreLogRequests bool
	// Command surface
	CommandToken string
	// Chat delivery
	ChatWebhookURL string
	// Redis cache - optional, disabled when URL is empty
	RedisURL string
	CacheTTL time.Duration
	// Query audit log - optional, disabled when URL is empty
	DatabaseURL string
}

func Load() Config {
	return Config{
		Addr:             getenv("PUNK_ADDR", ":8080"),
		StoreHost:        getenv("PUNK_STORE_HOST", "127.0.0.1"),
		StorePort:        getenvInt("PUNK_STORE_PORT", 7700),
		StoreAPIKey:      getenv("PUNK_STORE_API_KEY", ""),
		StoreIndex:       getenv("PUNK_STORE_INDEX", "capistrano"),
		StoreSourceField: getenv("PUNK_STORE_SOURCE_FIELD", "apps_v2"),
		StoreLogRequests: getenvBool("PUNK_STORE_LOG", false),
		CommandToken:     getenv("PUNK_COMMAND_TOKEN", ""),
		ChatWebhookURL:   getenv("PUNK_CHAT_WEBHOOK_URL", ""),
		RedisURL:         getenv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getenvInt("PUNK_CACHE_TTL_SECONDS", 30)) * time.Second,
		DatabaseURL:      getenv("DATABASE_URL", ""),
	}
}

// StoreURL is the document store address built from host and port.
func (c Config) StoreURL() string {
	return fmt.Sprintf("http://%s:%d", c.StoreHost, c.StorePort)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
