package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
	OpenAI   OpenAIConfig
	Redis    RedisConfig
	OTEL     OTELConfig

	// AllowedOrigins is the CORS allow-list; empty means wildcard.
	AllowedOrigins []string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	Env  string
}

// RegistryConfig holds the registry source URLs and cache policy.
type RegistryConfig struct {
	// SnapshotURL is the primary registry snapshot document.
	SnapshotURL string
	// FeaturesURL is the optional standalone features document, used as the
	// fallback source when the snapshot yields no features.
	FeaturesURL string
	// RedflagsURL is the optional standalone redflags document.
	RedflagsURL string
	// CacheTTLSeconds is the freshness window of the in-process snapshot.
	CacheTTLSeconds int
	// KeepLastKnownGood, when true, keeps a previously non-empty snapshot if
	// a refresh comes back empty. When false the refresh result always
	// overwrites, empty or not.
	KeepLastKnownGood bool
}

// OpenAIConfig holds the remote extractor configuration.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	Temperature    float64
	RateLimitRPM   int
	RateLimitBurst int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 3000),
			Env:  getEnv("APP_ENV", "production"),
		},
		Registry: RegistryConfig{
			SnapshotURL:       strings.TrimSpace(getEnv("REGISTRY_URL", "")),
			FeaturesURL:       strings.TrimSpace(getEnv("REGISTRY_FEATURES_URL", "")),
			RedflagsURL:       strings.TrimSpace(getEnv("REGISTRY_REDFLAGS_URL", "")),
			CacheTTLSeconds:   getEnvAsInt("REGISTRY_CACHE_TTL_SECONDS", 600),
			KeepLastKnownGood: getEnvAsBool("REGISTRY_KEEP_LAST_KNOWN_GOOD", false),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature:    getEnvAsFloat("LLM_TEMPERATURE", 1),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "robotto-triage"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		AllowedOrigins: splitCSV(getEnv("ALLOW_ORIGINS", "")),
	}, nil
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
