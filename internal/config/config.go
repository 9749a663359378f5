package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const (
	defaultPort           = "8080"
	defaultCookieName     = "__session"
	defaultLoginURL       = "/login"
	defaultRequiredRole   = "update:edit"
	defaultSessionTTL     = 5 * time.Minute
	defaultReadyTimeout   = 5 * time.Second
	defaultCallTimeout    = 30 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultAllowedOrigins = "*"
)

// Config captures gateway runtime configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	DatabaseURL    string
	RedisAddr      string
	SessionTTL     time.Duration

	UpdateServices map[domain.Mode]string
	ReadyTimeout   time.Duration
	CallTimeout    time.Duration
	UpdateTLS      bool

	SessionCookie string
	LoginURL      string
	RequiredRole  string

	OIDCClientID     string
	OIDCClientSecret string
	OIDCTokenURL     string

	LogLevel  string
	LogFormat string
}

// Load reads environment variables into a Config structure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORTAL_PORT", defaultPort),
		AllowedOrigins: splitList(getEnv("PORTAL_ALLOWED_ORIGINS", defaultAllowedOrigins)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		SessionTTL:     parseDuration("REDIS_SESSION_TTL", defaultSessionTTL),
		UpdateServices: map[domain.Mode]string{
			domain.ModeGame:     getEnv("UPDATESERVICE_GAME_ADDRESS", ""),
			domain.ModeLauncher: getEnv("UPDATESERVICE_LAUNCHER_ADDRESS", ""),
		},
		ReadyTimeout:     parseDuration("UPDATESERVICE_READY_TIMEOUT", defaultReadyTimeout),
		CallTimeout:      parseDuration("UPDATESERVICE_CALL_TIMEOUT", defaultCallTimeout),
		UpdateTLS:        parseBool("UPDATESERVICE_TLS", false),
		SessionCookie:    getEnv("SESSION_COOKIE", defaultCookieName),
		LoginURL:         getEnv("LOGIN_URL", defaultLoginURL),
		RequiredRole:     getEnv("UPLOAD_REQUIRED_ROLE", defaultRequiredRole),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCTokenURL:     getEnv("OIDC_TOKEN_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", defaultLogFormat),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.UpdateServices[domain.ModeGame] == "" {
		return nil, errors.New("UPDATESERVICE_GAME_ADDRESS is required")
	}
	if cfg.UpdateServices[domain.ModeLauncher] == "" {
		return nil, errors.New("UPDATESERVICE_LAUNCHER_ADDRESS is required")
	}
	if (cfg.OIDCClientID == "") != (cfg.OIDCTokenURL == "") {
		return nil, errors.New("OIDC_CLIENT_ID and OIDC_TOKEN_URL must be set together")
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	return cfg, nil
}

// OIDCEnabled reports whether expired access tokens can be refreshed.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCClientID != "" && c.OIDCTokenURL != ""
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return dur
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
