package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	App      AppConfig
	Tenancy  TenancyConfig
	CORS     CORSConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL     string
	Enabled bool
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment string
	LogLevel    string
	GinMode     string
}

// TenancyConfig controls how requests are mapped to tenants
type TenancyConfig struct {
	// HeaderName is the request header carrying an explicit tenant id
	HeaderName string

	// BaseDomain is the platform domain tenants get subdomains under (e.g., "projectmeats.app").
	// Hosts equal to the base domain itself never resolve a tenant.
	BaseDomain string

	// SubdomainRequiresMembership enables a membership check on subdomain resolution.
	// Off by default: the header path checks membership, the subdomain path does not.
	SubdomainRequiresMembership bool

	// HostCacheTTLSeconds is how long a host -> tenant mapping stays in Redis
	HostCacheTTLSeconds int

	// DefaultTrialDays is the trial length applied to tenants created with trial=true
	DefaultTrialDays int

	// TrialSweepIntervalMinutes is how often expired trials are deactivated
	TrialSweepIntervalMinutes int

	// InvitationExpiryHours is how long a member invitation can be accepted
	InvitationExpiryHours int
}

// CORSConfig holds allowed origins for browser clients
type CORSConfig struct {
	AllowOrigins []string
}

// New creates a new configuration instance
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("PORT", "8000"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: secrets.GetDBPassword(), // Fetch from GCP Secret Manager if enabled
			Name:     getEnvWithDefault("DB_NAME", "projectmeats"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: secrets.GetSecretOrEnv("REDIS_PASSWORD_SECRET_NAME", "REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:     getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBoolWithDefault("NATS_ENABLED", true),
		},
		App: AppConfig{
			Environment: getEnvWithDefault("APP_ENV", "development"),
			LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
			GinMode:     getEnvWithDefault("GIN_MODE", "debug"),
		},
		Tenancy: TenancyConfig{
			HeaderName:                  getEnvWithDefault("TENANT_HEADER", "X-Tenant-ID"),
			BaseDomain:                  strings.ToLower(getEnvWithDefault("BASE_DOMAIN", "projectmeats.app")),
			SubdomainRequiresMembership: getEnvAsBoolWithDefault("TENANT_SUBDOMAIN_REQUIRE_MEMBERSHIP", false),
			HostCacheTTLSeconds:         getEnvAsIntWithDefault("TENANT_HOST_CACHE_TTL_SECONDS", 300),
			DefaultTrialDays:            getEnvAsIntWithDefault("TENANT_TRIAL_DAYS", 14),
			TrialSweepIntervalMinutes:   getEnvAsIntWithDefault("TENANT_TRIAL_SWEEP_INTERVAL_MINS", 60),
			InvitationExpiryHours:       getEnvAsIntWithDefault("INVITATION_EXPIRY_HOURS", 168), // 7 days
		},
		CORS: CORSConfig{
			AllowOrigins: getEnvAsListWithDefault("CORS_ALLOW_ORIGINS", []string{
				"http://localhost:3000", // Frontend (local)
				"https://app.projectmeats.app",
			}),
		},
	}
}

// DSN builds the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolWithDefault gets environment variable as boolean with default fallback
func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsListWithDefault reads a comma-separated list
func getEnvAsListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
