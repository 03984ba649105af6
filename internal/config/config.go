package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config aggregates every setting the service needs. It is built once at
// startup, validated, and injected read-only into each component.
type Config struct {
	Server  ServerConfig
	Bot     BotConfig
	Storage StorageConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// BotConfig holds the Telegram credentials and delivery limits.
type BotConfig struct {
	// Token authenticates against the Bot API and doubles as the secret
	// webhook path segment.
	Token        string `validate:"required"`
	PublicDomain string `validate:"required,hostname_rfc1123"`
	FileLimitMB  int64  `validate:"gt=0"`
}

// StorageConfig describes the on-disk layout and retention windows.
type StorageConfig struct {
	// DownloadDir holds in-flight download artifacts; contents are
	// ephemeral and removed at job end.
	DownloadDir string `validate:"required"`
	// CookiesDir persists one cookie file per user across jobs.
	CookiesDir string `validate:"required"`
	CookieTTL  time.Duration
	SessionTTL time.Duration
}

// WebhookURL is the public endpoint registered with Telegram.
func (c BotConfig) WebhookURL() string {
	return "https://" + c.PublicDomain + "/webhook/" + c.Token
}

// Load reads configuration from environment variables and fails fast on
// anything missing or malformed, before the service accepts any events.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	limitMB, err := parseIntEnv("FILE_LIMIT_MB", 49)
	if err != nil {
		return nil, err
	}
	cookieTTLDays, err := parseIntEnv("COOKIE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	sessionTTLMinutes, err := parseIntEnv("SESSION_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: server,
		Bot: BotConfig{
			Token:        strings.TrimSpace(os.Getenv("BOT_TOKEN")),
			PublicDomain: strings.TrimSpace(os.Getenv("PUBLIC_DOMAIN")),
			FileLimitMB:  limitMB,
		},
		Storage: StorageConfig{
			DownloadDir: getEnvOrDefault("DOWNLOAD_DIR", "downloads"),
			CookiesDir:  getEnvOrDefault("COOKIES_DIR", "user_cookies"),
			CookieTTL:   time.Duration(cookieTTLDays) * 24 * time.Hour,
			SessionTTL:  time.Duration(sessionTTLMinutes) * time.Minute,
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return nil, fmt.Errorf("invalid configuration: %s failed %q", fieldErrs[0].Namespace(), fieldErrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadServerConfig parses the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
