package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAccessTTL  = 7 * 24 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

type Config struct {
	Env                     string
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	WebhookSecret string
	ServiceUserID string

	GoogleClientID string

	RequireEmailVerification bool

	RateLimitEnforce bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	CORSOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		JWTSecret:  strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AccessTTL:  getTTL("JWT_EXPIRES_IN", defaultAccessTTL),
		RefreshTTL: getTTL("REFRESH_EXPIRES_IN", defaultRefreshTTL),

		WebhookSecret: strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
		ServiceUserID: strings.TrimSpace(os.Getenv("SERVICE_USER_ID")),

		GoogleClientID: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),

		RequireEmailVerification: getBool("EMAIL_VERIFICATION_REQUIRED", false),

		RateLimitEnforce: getBool("RATE_LIMIT_ENFORCE", false),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// RateLimitEnabled reports whether the limiter should actually reject
// requests. Disabled outside production unless explicitly forced on, so
// local and test runs stay unthrottled.
func (c *Config) RateLimitEnabled() bool {
	return c.IsProduction() || c.RateLimitEnforce
}

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTTL parses a compact TTL string such as "30d", "12h", "15m" or
// "45s". Anything else yields the fallback.
func ParseTTL(raw string, fallback time.Duration) time.Duration {
	m := ttlPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return fallback
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return fallback
	}

	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second
	case "m":
		return time.Duration(n) * time.Minute
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	}

	return fallback
}

func getTTL(key string, fallback time.Duration) time.Duration {
	return ParseTTL(os.Getenv(key), fallback)
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
