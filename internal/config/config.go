package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Fraud    FraudConfig
	Alert    AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// AuthConfig covers the dashboard read-side: fraud logs and statistics
// are behind a JWT issued by the merchant platform.
type AuthConfig struct {
	JWTSecret string
}

// FraudConfig holds the per-policy windows and thresholds plus retention
// settings. Defaults match the reference policies; all are env-overridable.
type FraudConfig struct {
	IPDeviceWindow      time.Duration
	IPDeviceMaxAttempts int

	IPWindow      time.Duration
	IPMaxAttempts int

	MerchantWindow      time.Duration
	MerchantMaxAttempts int

	DeviceFailureWindow    time.Duration
	DeviceFailureThreshold int
	PatternWindow          time.Duration
	MaxUniqueIPsPerGAN     int

	SuspicionWindow         time.Duration
	SuspicionAlertAfter     int
	SuspicionHighSeverityAt int

	SweepInterval time.Duration
	LogRetention  time.Duration
}

// AlertConfig configures outbound fraud alerting. An empty WebhookURL
// disables webhook delivery; an empty EmailTo disables the email channel.
type AlertConfig struct {
	WebhookURL    string
	SigningSecret string
	MaxAttempts   int
	BackoffBase   time.Duration
	Timeout       time.Duration

	AWSRegion string
	EmailFrom string
	EmailTo   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "cardguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		Fraud: FraudConfig{
			IPDeviceWindow:      getEnvAsDuration("FRAUD_IP_DEVICE_WINDOW", 10*time.Minute),
			IPDeviceMaxAttempts: getEnvAsInt("FRAUD_IP_DEVICE_MAX_ATTEMPTS", 5),

			IPWindow:      getEnvAsDuration("FRAUD_IP_WINDOW", 1*time.Minute),
			IPMaxAttempts: getEnvAsInt("FRAUD_IP_MAX_ATTEMPTS", 3),

			MerchantWindow:      getEnvAsDuration("FRAUD_MERCHANT_WINDOW", 5*time.Minute),
			MerchantMaxAttempts: getEnvAsInt("FRAUD_MERCHANT_MAX_ATTEMPTS", 10),

			DeviceFailureWindow:    getEnvAsDuration("FRAUD_DEVICE_FAILURE_WINDOW", 60*time.Minute),
			DeviceFailureThreshold: getEnvAsInt("FRAUD_DEVICE_FAILURE_THRESHOLD", 5),
			PatternWindow:          getEnvAsDuration("FRAUD_PATTERN_WINDOW", 60*time.Minute),
			MaxUniqueIPsPerGAN:     getEnvAsInt("FRAUD_MAX_UNIQUE_IPS_PER_GAN", 3),

			SuspicionWindow:         getEnvAsDuration("FRAUD_SUSPICION_WINDOW", 5*time.Minute),
			SuspicionAlertAfter:     getEnvAsInt("FRAUD_SUSPICION_ALERT_AFTER", 3),
			SuspicionHighSeverityAt: getEnvAsInt("FRAUD_SUSPICION_HIGH_SEVERITY_AT", 5),

			SweepInterval: getEnvAsDuration("FRAUD_SWEEP_INTERVAL", 5*time.Minute),
			LogRetention:  getEnvAsDuration("FRAUD_LOG_RETENTION", 90*24*time.Hour),
		},
		Alert: AlertConfig{
			WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
			SigningSecret: getEnv("ALERT_SIGNING_SECRET", ""),
			MaxAttempts:   getEnvAsInt("ALERT_MAX_ATTEMPTS", 3),
			BackoffBase:   getEnvAsDuration("ALERT_BACKOFF_BASE", 1*time.Second),
			Timeout:       getEnvAsDuration("ALERT_TIMEOUT", 10*time.Second),

			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			EmailFrom: getEnv("ALERT_EMAIL_FROM", ""),
			EmailTo:   getEnv("ALERT_EMAIL_TO", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("JWT_SECRET", jwtSecret, env); err != nil {
		return nil, err
	}

	// A configured webhook without a signing secret would deliver
	// unauthenticated alerts; refuse the half-configuration.
	if cfg.Alert.WebhookURL != "" {
		if cfg.Alert.SigningSecret == "" {
			return nil, fmt.Errorf("ALERT_SIGNING_SECRET is required when ALERT_WEBHOOK_URL is set")
		}
		if err := validateSecret("ALERT_SIGNING_SECRET", cfg.Alert.SigningSecret, env); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// validateSecret enforces minimum strength for shared secrets
func validateSecret(name, secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires a stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
