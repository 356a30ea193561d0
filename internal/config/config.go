package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionBackendFile     = "file"
	SessionBackendSQLite   = "sqlite"
	SessionBackendPostgres = "postgres"
)

type Config struct {
	Env          string
	HTTP         HTTPConfig
	API          APIConfig
	Session      SessionConfig
	Notify       NotifyConfig
	DemoAccounts []DemoAccount
	AuditLogFile string
	LogLevel     string
	LogFormat    string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type APIConfig struct {
	BaseURL string
	// Zero means requests never time out.
	Timeout time.Duration
}

type SessionConfig struct {
	Backend string
	File    string
	DSN     string
}

type NotifyConfig struct {
	ErrorTTL   time.Duration
	SuccessTTL time.Duration
}

type DemoAccount struct {
	Label    string
	Email    string
	Password string
}

// LoadDotEnv reads .env into the process environment when the file exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		Env: strings.ToLower(getEnv("APP_ENV", "development")),
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":3000"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("AGENDA_API_URL", "http://localhost:8000"), "/"),
			Timeout: time.Duration(getEnvInt("AGENDA_API_TIMEOUT_SEC", 0)) * time.Second,
		},
		Session: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendFile)),
			File:    getEnv("SESSION_FILE", "./data/session.json"),
			DSN:     getEnv("SESSION_DSN", ""),
		},
		Notify: NotifyConfig{
			ErrorTTL:   time.Duration(getEnvInt("NOTIFY_ERROR_TTL_SEC", 5)) * time.Second,
			SuccessTTL: time.Duration(getEnvInt("NOTIFY_SUCCESS_TTL_SEC", 3)) * time.Second,
		},
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/activity.log"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	demo, err := parseDemoAccounts(getEnv("AGENDA_DEMO_ACCOUNTS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.DemoAccounts = demo

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if !strings.HasPrefix(cfg.API.BaseURL, "http://") && !strings.HasPrefix(cfg.API.BaseURL, "https://") {
		return Config{}, fmt.Errorf("AGENDA_API_URL must be an http(s) URL")
	}
	if cfg.API.Timeout < 0 {
		return Config{}, fmt.Errorf("AGENDA_API_TIMEOUT_SEC must be >= 0")
	}
	switch cfg.Session.Backend {
	case SessionBackendFile:
		if cfg.Session.File == "" {
			return Config{}, fmt.Errorf("SESSION_FILE must not be empty")
		}
	case SessionBackendSQLite, SessionBackendPostgres:
		if cfg.Session.DSN == "" {
			return Config{}, fmt.Errorf("SESSION_DSN is required for the %s session backend", cfg.Session.Backend)
		}
	default:
		return Config{}, fmt.Errorf("SESSION_BACKEND must be file, sqlite, or postgres")
	}
	if cfg.Notify.ErrorTTL <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_ERROR_TTL_SEC must be > 0")
	}
	if cfg.Notify.SuccessTTL <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_SUCCESS_TTL_SEC must be > 0")
	}
	if cfg.Production() && len(cfg.DemoAccounts) > 0 {
		return Config{}, fmt.Errorf("AGENDA_DEMO_ACCOUNTS must not be set when APP_ENV=production")
	}

	return cfg, nil
}

func (c Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// parseDemoAccounts reads "label|email|password" entries separated by ';'.
func parseDemoAccounts(raw string) ([]DemoAccount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []DemoAccount
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("AGENDA_DEMO_ACCOUNTS entry %q must be label|email|password", entry)
		}
		acc := DemoAccount{
			Label:    strings.TrimSpace(parts[0]),
			Email:    strings.TrimSpace(parts[1]),
			Password: parts[2],
		}
		if acc.Email == "" || acc.Password == "" {
			return nil, fmt.Errorf("AGENDA_DEMO_ACCOUNTS entry %q needs an email and a password", entry)
		}
		if acc.Label == "" {
			acc.Label = acc.Email
		}
		out = append(out, acc)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
