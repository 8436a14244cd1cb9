package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
)

// MinInternalSecretLength is the shortest accepted HS256 signing secret.
const MinInternalSecretLength = 32

type Config struct {
	InternalIssuer string // Issuer claim for gateway-minted JWTs (default: driftlock-gateway)
	InternalSecret string // Required outside development: HS256 secret for internal tokens

	// Provider (BYOA) configuration. Which fields are set decides the
	// authentication mode, see auth.DetectMode.
	IssuerURL         string   // Optional: external issuer URL (JWKS verification)
	Audience          string   // Optional: expected audience for external tokens
	JWKSURL           string   // Optional: JWKS endpoint override (default: issuer well-known path)
	PublicKeyPEM      string   // Optional: static PEM public key (legacy mode)
	SharedSecret      string   // Optional: static HS* shared secret (legacy mode)
	Algorithm         string   // Optional: algorithm for legacy mode (default: HS256/RS256 by material)
	AuthorizedParties []string // Optional: Clerk azp allow-list
	FirebaseProjectID string   // Optional: Firebase project (configured-issuer mode)
	SupabaseJWTSecret string   // Optional: Supabase project JWT secret (legacy mode)

	SessionTTL time.Duration // Session token lifetime (default: 10m)

	ExchangeLimitMax       int           // Exchanges allowed per window per client key (default: 10)
	ExchangeLimitWindow    time.Duration // Exchange window (default: 1m)
	ExchangeSkipSuccessful bool          // Successful exchanges don't count toward the limit
	ExchangeSkipFailed     bool          // Failed exchanges don't count toward the limit

	UserMaxTokens     int           // LLM tokens per user per token window (default: 100000)
	UserTokenWindow   time.Duration // Token window (default: 1h)
	UserMaxRequests   int           // Requests per user per request window (default: 60)
	UserRequestWindow time.Duration // Request window (default: 1m)

	StoreDriver    string        // Store driver (memory, sqlite) (default: memory)
	DatabaseFile   string        // Path to SQLite database file (default: ./gateway.db)
	AuditRetention time.Duration // How long exchange audit rows are kept (default: 168h)

	Env                  string        // Environment (development, staging, production) (default: development)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		InternalIssuer: getEnvOrDefault("GATEWAY_INTERNAL_ISSUER", "driftlock-gateway"),
		InternalSecret: os.Getenv("GATEWAY_INTERNAL_SECRET"),

		IssuerURL:         os.Getenv("AUTH_ISSUER_URL"),
		Audience:          os.Getenv("AUTH_AUDIENCE"),
		JWKSURL:           os.Getenv("AUTH_JWKS_URL"),
		PublicKeyPEM:      os.Getenv("AUTH_PUBLIC_KEY_PEM"),
		SharedSecret:      os.Getenv("AUTH_SHARED_SECRET"),
		Algorithm:         os.Getenv("AUTH_ALGORITHM"),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		SupabaseJWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),

		SessionTTL: getEnvDurationOrDefault("SESSION_TTL", 10*time.Minute),

		ExchangeLimitMax:       getEnvIntOrDefault("EXCHANGE_LIMIT_MAX", 10),
		ExchangeLimitWindow:    getEnvDurationOrDefault("EXCHANGE_LIMIT_WINDOW", time.Minute),
		ExchangeSkipSuccessful: getEnvBoolOrDefault("EXCHANGE_SKIP_SUCCESSFUL", false),
		ExchangeSkipFailed:     getEnvBoolOrDefault("EXCHANGE_SKIP_FAILED", false),

		UserMaxTokens:     getEnvIntOrDefault("USER_MAX_TOKENS", 100000),
		UserTokenWindow:   getEnvDurationOrDefault("USER_TOKEN_WINDOW", time.Hour),
		UserMaxRequests:   getEnvIntOrDefault("USER_MAX_REQUESTS", 60),
		UserRequestWindow: getEnvDurationOrDefault("USER_REQUEST_WINDOW", time.Minute),

		StoreDriver:    getEnvOrDefault("STORE_DRIVER", "memory"),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "gateway.db"),
		AuditRetention: getEnvDurationOrDefault("AUDIT_RETENTION", 7*24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}

	if parties := os.Getenv("CLERK_AUTHORIZED_PARTIES"); parties != "" {
		for _, p := range strings.Split(parties, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.AuthorizedParties = append(cfg.AuthorizedParties, p)
			}
		}
	}

	return cfg
}

// Validate rejects configurations the gateway must not start with.
func (c Config) Validate() error {
	if c.InternalSecret != "" && len(c.InternalSecret) < MinInternalSecretLength {
		return errors.New("app: GATEWAY_INTERNAL_SECRET must be at least 32 bytes")
	}
	if c.InternalSecret == "" && c.Env != "development" {
		return errors.New("app: GATEWAY_INTERNAL_SECRET is required outside development")
	}
	switch c.StoreDriver {
	case "memory", "sqlite":
	default:
		return errors.New("app: STORE_DRIVER must be memory or sqlite")
	}
	return nil
}

// Provider assembles the BYOA provider configuration for the auth factory.
func (c Config) Provider() domain.ProviderConfig {
	return domain.ProviderConfig{
		IssuerURL:         c.IssuerURL,
		Audience:          c.Audience,
		JWKSURL:           c.JWKSURL,
		PublicKeyPEM:      c.PublicKeyPEM,
		SharedSecret:      c.SharedSecret,
		Algorithm:         c.Algorithm,
		AuthorizedParties: c.AuthorizedParties,
		ProjectID:         c.FirebaseProjectID,
		JWTSecret:         c.SupabaseJWTSecret,
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are read as seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
