// Package config loads qrorder settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("missing required configuration")

type Config struct {
	HTTPPort           string
	BackendURL         string
	PaymentGatewayKey  string
	GatewayScriptURL   string
	StoreName          string
	RedisAddr          string
	RedisPassword      string
	DBDriver           string
	DBDSN              string
	MigrationsPath     string
	KafkaBrokers       []string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	SessionIdleTTL     time.Duration
	MaxRequestBodySize int64
	AdminContactEmail  string
	LogLevel           string
	SecureCookies      bool
}

// Load reads .env files (if present) and then the environment. Variables
// already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	requestTimeout, err := getDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	idleTTL, err := getDuration("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		BackendURL:         strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		PaymentGatewayKey:  getEnv("PAYMENT_GATEWAY_KEY", ""),
		GatewayScriptURL:   getEnv("PAYMENT_GATEWAY_SCRIPT_URL", "https://checkout.razorpay.com/v1/checkout.js"),
		StoreName:          getEnv("STORE_NAME", "BhojanQR Order"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBDSN:              getEnv("DB_DSN", "file:qrorder.db?_pragma=busy_timeout(5000)"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
		SessionIdleTTL:     idleTTL,
		MaxRequestBodySize: 5 << 20, // menu images
		AdminContactEmail:  getEnv("ADMIN_CONTACT_EMAIL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SecureCookies:      getEnv("SECURE_COOKIES", "false") == "true",
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "internal/repository/migrations/" + cfg.DBDriver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.BackendURL == "" {
		missing = append(missing, "BACKEND_URL")
	}
	if c.PaymentGatewayKey == "" {
		missing = append(missing, "PAYMENT_GATEWAY_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("invalid DB_DRIVER %q: want sqlite or postgres", c.DBDriver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
