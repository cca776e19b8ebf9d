package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

const (
	defaultJWTAccessTTL        = "15m"
	defaultRefreshTTL          = "336h" // 14 days
	defaultReplayGraceTTL      = "45s"
	defaultReplayRetries       = "3"
	defaultReplayBackoff       = "150ms"
	defaultCookieSecure        = "false"
	defaultCookieSameSite      = "Lax"
	defaultCookiePath          = "/api/v1/auth"
	defaultJWTSecret           = "change-me-jwt-secret"
	defaultRefreshTokenPepper  = "change-me-refresh-pepper"
	defaultLoginIPLimit        = "10"
	defaultLoginIPWindow       = "5m"
	defaultLoginEmailLimit     = "5"
	defaultLoginEmailWindow    = "15m"
	defaultRegisterIPLimit     = "5"
	defaultRegisterIPWindow    = "1h"
	defaultRefreshIPLimit      = "60"
	defaultRefreshIPWindow     = "1m"
)

type Config struct {
	AppEnv      string
	DatabaseURL string
	RedisAddr   string

	JWTSecret    string
	JWTAccessTTL time.Duration

	RefreshTTL         time.Duration
	RefreshTokenPepper string

	// Grace window for duplicate refresh calls: how long a just-rotated
	// token's successor stays in the replay cache, and how the lookup
	// retries are paced while a concurrent rotation is mid-flight.
	ReplayGraceTTL      time.Duration
	ReplayLookupRetries int
	ReplayLookupBackoff time.Duration

	CookieSecure   bool
	CookieSameSite string
	CookiePath     string

	LoginIPLimit      int
	LoginIPWindow     time.Duration
	LoginEmailLimit   int
	LoginEmailWindow  time.Duration
	RegisterIPLimit   int
	RegisterIPWindow  time.Duration
	RefreshIPLimit    int
	RefreshIPWindow   time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", "justgov.db"))
	cfg.RedisAddr = strings.TrimSpace(getEnv("REDIS_ADDR", "127.0.0.1:6379"))

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.RefreshTokenPepper = strings.TrimSpace(getEnv("REFRESH_TOKEN_PEPPER", defaultRefreshTokenPepper))

	var err error
	cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TTL", defaultRefreshTTL)
	if err != nil {
		return nil, err
	}
	cfg.ReplayGraceTTL, err = parseDurationEnv("REPLAY_GRACE_TTL", defaultReplayGraceTTL)
	if err != nil {
		return nil, err
	}
	cfg.ReplayLookupBackoff, err = parseDurationEnv("REPLAY_LOOKUP_BACKOFF", defaultReplayBackoff)
	if err != nil {
		return nil, err
	}
	cfg.ReplayLookupRetries, err = parseIntEnv("REPLAY_LOOKUP_RETRIES", defaultReplayRetries)
	if err != nil {
		return nil, err
	}

	cfg.CookieSecure = parseBoolEnv("COOKIE_SECURE", defaultCookieSecure)
	cfg.CookieSameSite = strings.TrimSpace(getEnv("COOKIE_SAMESITE", defaultCookieSameSite))
	cfg.CookiePath = strings.TrimSpace(getEnv("COOKIE_PATH", defaultCookiePath))

	if cfg.LoginIPLimit, err = parseIntEnv("LOGIN_IP_LIMIT", defaultLoginIPLimit); err != nil {
		return nil, err
	}
	if cfg.LoginIPWindow, err = parseDurationEnv("LOGIN_IP_WINDOW", defaultLoginIPWindow); err != nil {
		return nil, err
	}
	if cfg.LoginEmailLimit, err = parseIntEnv("LOGIN_EMAIL_LIMIT", defaultLoginEmailLimit); err != nil {
		return nil, err
	}
	if cfg.LoginEmailWindow, err = parseDurationEnv("LOGIN_EMAIL_WINDOW", defaultLoginEmailWindow); err != nil {
		return nil, err
	}
	if cfg.RegisterIPLimit, err = parseIntEnv("REGISTER_IP_LIMIT", defaultRegisterIPLimit); err != nil {
		return nil, err
	}
	if cfg.RegisterIPWindow, err = parseDurationEnv("REGISTER_IP_WINDOW", defaultRegisterIPWindow); err != nil {
		return nil, err
	}
	if cfg.RefreshIPLimit, err = parseIntEnv("REFRESH_IP_LIMIT", defaultRefreshIPLimit); err != nil {
		return nil, err
	}
	if cfg.RefreshIPWindow, err = parseDurationEnv("REFRESH_IP_WINDOW", defaultRefreshIPWindow); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Printf("auth config: env=%s cookie(secure=%t sameSite=%s path=%s) refresh_ttl=%s grace=%s",
		cfg.AppEnv, cfg.CookieSecure, cfg.CookieSameSite, cfg.CookiePath, cfg.RefreshTTL, cfg.ReplayGraceTTL)

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TTL must be > 0")
	}
	if cfg.ReplayGraceTTL <= 0 {
		return fmt.Errorf("REPLAY_GRACE_TTL must be > 0")
	}
	if cfg.ReplayLookupRetries < 1 {
		return fmt.Errorf("REPLAY_LOOKUP_RETRIES must be >= 1")
	}
	if cfg.ReplayLookupBackoff < 0 {
		return fmt.Errorf("REPLAY_LOOKUP_BACKOFF must be >= 0")
	}
	if cfg.CookiePath == "" {
		return fmt.Errorf("COOKIE_PATH must not be empty")
	}
	sameSite := strings.ToLower(strings.TrimSpace(cfg.CookieSameSite))
	if sameSite != "lax" && sameSite != "none" && sameSite != "strict" {
		return fmt.Errorf("COOKIE_SAMESITE must be one of: Lax, None, Strict")
	}
	if sameSite == "none" && !cfg.CookieSecure {
		return fmt.Errorf("COOKIE_SECURE must be true when COOKIE_SAMESITE=None")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.RefreshTokenPepper, defaultRefreshTokenPepper) {
			return fmt.Errorf("in prod/release REFRESH_TOKEN_PEPPER must be set and not default")
		}
		if !cfg.CookieSecure {
			return fmt.Errorf("in prod/release COOKIE_SECURE must be true")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
