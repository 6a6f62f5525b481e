package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for attempts, sessions and challenges
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Alerts   AlertConfig
	Relay    RelayConfig
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
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration

	// AuthRequestsPerMinute throttles /auth/* per client IP ahead of the lockout logic.
	AuthRequestsPerMinute int
}

type AuthConfig struct {
	JWTSecret         string
	TOTPEncryptionKey []byte
	TOTPIssuer        string
	TOTPSkew          uint
	AdminTokenExpiry  time.Duration
	MaxLoginAttempts  int
	LockoutDuration   time.Duration
	LockoutByIP       bool
	SessionDuration   time.Duration
	ChallengeTTL      time.Duration
	MaxStepFailures   int
	TimingBaseDelay   time.Duration
	TimingJitter      time.Duration
	StoreBackend      string
	CleanupInterval   time.Duration
	AuditRetention    time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Enabled reports whether security events should be published to Kafka.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

type AlertConfig struct {
	Region     string
	Sender     string
	Recipients []string
}

// Enabled reports whether lockout and suspicious-activity alerts are mailed.
func (c AlertConfig) Enabled() bool {
	return c.Sender != "" && len(c.Recipients) > 0
}

// RelayConfig configures the /api/admin/* reverse proxy.
type RelayConfig struct {
	BackendURL  *url.URL
	AdminSecret string
}

// Enabled reports whether the admin relay is mounted.
func (c RelayConfig) Enabled() bool {
	return c.BackendURL != nil
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	totpKey, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:                  getEnv("PORT", "8080"),
			Env:                   env,
			LogLevel:              getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:        parseAllowedOrigins(env),
			TrustedProxies:        getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:           getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:          getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:           getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRequestsPerMinute: getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 20),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			TOTPEncryptionKey: totpKey,
			TOTPIssuer:        getEnv("TOTP_ISSUER", "Bastion"),
			TOTPSkew:          uint(getEnvAsInt("TOTP_SKEW", 1)),
			AdminTokenExpiry:  getEnvAsDuration("ADMIN_TOKEN_EXPIRY", 12*time.Hour),
			MaxLoginAttempts:  getEnvAsInt("MAX_LOGIN_ATTEMPTS", 3),
			LockoutDuration:   getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			LockoutByIP:       getEnvAsBool("LOCKOUT_BY_IP", true),
			SessionDuration:   getEnvAsDuration("SESSION_DURATION", 1*time.Hour),
			ChallengeTTL:      getEnvAsDuration("CHALLENGE_TTL", 5*time.Minute),
			MaxStepFailures:   getEnvAsInt("MAX_STEP_FAILURES", 5),
			TimingBaseDelay:   getEnvAsDuration("TIMING_BASE_DELAY", 250*time.Millisecond),
			TimingJitter:      getEnvAsDuration("TIMING_JITTER", 100*time.Millisecond),
			StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreBackendMemory)),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
			AuditRetention:    getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "bastion"),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsList("KAFKA_BROKERS"),
			Topic:    getEnv("KAFKA_SECURITY_TOPIC", "bastion.security-events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "bastion"),
		},
		Alerts: AlertConfig{
			Region:     getEnv("AWS_REGION", "us-east-1"),
			Sender:     getEnv("ALERT_SENDER", ""),
			Recipients: getEnvAsList("ALERT_RECIPIENTS"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}

	relay, err := loadRelay()
	if err != nil {
		return nil, err
	}
	cfg.Relay = relay

	return cfg, nil
}

func (a *AuthConfig) validate() error {
	switch a.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBackendMemory, StoreBackendRedis, a.StoreBackend)
	}
	if a.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if a.MaxStepFailures < 1 {
		return fmt.Errorf("MAX_STEP_FAILURES must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"LOCKOUT_DURATION":   a.LockoutDuration,
		"SESSION_DURATION":   a.SessionDuration,
		"CHALLENGE_TTL":      a.ChallengeTTL,
		"ADMIN_TOKEN_EXPIRY": a.AdminTokenExpiry,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// parseEncryptionKey decodes the 64 hex character AES-256 key for TOTP secrets.
func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func loadRelay() (RelayConfig, error) {
	raw := getEnv("BACKEND_URL", "")
	if raw == "" {
		return RelayConfig{}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return RelayConfig{}, fmt.Errorf("BACKEND_URL must be an absolute URL")
	}

	secret := getEnv("ADMIN_SECRET", "")
	if secret == "" {
		return RelayConfig{}, fmt.Errorf("ADMIN_SECRET is required when BACKEND_URL is set")
	}

	return RelayConfig{BackendURL: u, AdminSecret: secret}, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: local dashboard dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
