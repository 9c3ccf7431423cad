package app

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/portal/pkg/httpx"
)

type Config struct {
	Issuer         string // TOTP issuer and JWT iss claim (default: portal)
	BaseURL        string // Base of the links in verification and reset emails
	BootstrapToken string // Optional: enables POST /v1/bootstrap for the first root account

	DatabaseFile  string // Path to SQLite database file (default: ./portal.db)
	PepperFile    string // Path to the password pepper file (default: ./pepper)
	MasterKey     string // Optional: key material sealing TOTP secrets
	MasterKeyPath string // Optional: file holding the key material, used when MasterKey is empty
	SessionSecret string // Optional: HMAC key of the session JWT, random per boot when empty
	SeedFile      string // Optional: YAML catalog replacing the embedded default

	SessionTTL           time.Duration
	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	MFASetupTTL          time.Duration
	MFAChallengeTTL      time.Duration
	MFAChallengeAttempts int
	ResetTokenTTL        time.Duration
	CookieSecure         bool
	CookieDomain         string
	CaptchaSecret        string // Optional: reCAPTCHA secret; empty accepts every submission
	AMQPURL              string // Optional: RabbitMQ URL for outgoing mail; empty logs mail instead
	MailQueue            string
	RedisAddr            string // Optional: Redis for HTTP throttling; empty throttles in process
	RedisPassword        string
	RedisDB              int
	StrictLimit          httpx.RateLimitConfig
	ModerateLimit        httpx.RateLimitConfig
	LenientLimit         httpx.RateLimitConfig
	PublicLimit          httpx.RateLimitConfig
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the environment after merging the optional dotenv file
// named by PORTAL_ENV_FILE. Variables already set win over the file.
func LoadConfig() Config {
	loadDotEnv(getEnvOrDefault("PORTAL_ENV_FILE", ".env"))

	env := getEnvOrDefault("ENV", "dev")
	cfg := Config{
		Issuer:         getEnvOrDefault("PORTAL_ISSUER", "portal"),
		BaseURL:        getEnvOrDefault("PORTAL_BASE_URL", "http://localhost:8080"),
		BootstrapToken: os.Getenv("PORTAL_BOOTSTRAP_TOKEN"),

		DatabaseFile:  getEnvOrDefault("PORTAL_DATABASE_FILE", "portal.db"),
		PepperFile:    getEnvOrDefault("PORTAL_PEPPER_FILE", "pepper"),
		MasterKey:     os.Getenv("PORTAL_MASTER_KEY"),
		MasterKeyPath: os.Getenv("PORTAL_MASTER_KEY_PATH"),
		SessionSecret: os.Getenv("PORTAL_SESSION_SECRET"),
		SeedFile:      os.Getenv("PORTAL_SEED_FILE"),

		SessionTTL:           getEnvDurationOrDefault("PORTAL_SESSION_TTL", 2*time.Hour),
		MaxLoginAttempts:     getEnvIntOrDefault("PORTAL_MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:      getEnvDurationOrDefault("PORTAL_LOCKOUT_DURATION", 15*time.Minute),
		MFASetupTTL:          getEnvDurationOrDefault("PORTAL_MFA_SETUP_TTL", 10*time.Minute),
		MFAChallengeTTL:      getEnvDurationOrDefault("PORTAL_MFA_CHALLENGE_TTL", 5*time.Minute),
		MFAChallengeAttempts: getEnvIntOrDefault("PORTAL_MFA_CHALLENGE_ATTEMPTS", 5),
		ResetTokenTTL:        getEnvDurationOrDefault("PORTAL_RESET_TOKEN_TTL", time.Hour),
		CookieSecure:         getEnvBoolOrDefault("PORTAL_COOKIE_SECURE", env != "dev"),
		CookieDomain:         os.Getenv("PORTAL_COOKIE_DOMAIN"),
		CaptchaSecret:        os.Getenv("PORTAL_CAPTCHA_SECRET"),
		AMQPURL:              os.Getenv("PORTAL_AMQP_URL"),
		MailQueue:            getEnvOrDefault("PORTAL_MAIL_QUEUE", "portal.mail"),
		RedisAddr:            os.Getenv("PORTAL_REDIS_ADDR"),
		RedisPassword:        os.Getenv("PORTAL_REDIS_PASSWORD"),
		RedisDB:              getEnvIntOrDefault("PORTAL_REDIS_DB", 0),

		StrictLimit:   httpx.RateLimitFromEnv("STRICT", httpx.StrictLimit),
		ModerateLimit: httpx.RateLimitFromEnv("MODERATE", httpx.ModerateLimit),
		LenientLimit:  httpx.RateLimitFromEnv("LENIENT", httpx.LenientLimit),
		PublicLimit:   httpx.RateLimitFromEnv("PUBLIC", httpx.PublicLimit),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}

	return cfg
}

func loadDotEnv(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", path, "error", err)
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

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds, matching the session and lockout settings
	// the portal has always been configured with.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
