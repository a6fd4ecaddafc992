package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string
	// TrustedProxies are extra CIDRs whose forwarded headers are honored.
	TrustedProxies []string
	// RateLimitPerMinute bounds form submissions per client IP.
	RateLimitPerMinute int

	// Backend API
	BackendAPIURL  string
	BackendTimeout time.Duration

	// Sessions
	SessionDBPath       string
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool

	// Alerts and installments
	AlertPollInterval   time.Duration
	AlertIdleTimeout    time.Duration
	PreloadInstallments bool

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string

	// ExportBackend selects where report exports go: "sheets", "memory" or
	// "none". Empty picks sheets when a spreadsheet is configured.
	ExportBackend string

	// Google Sheets export, optional
	GoogleSpreadsheetID          string
	GoogleSheetName              string
	GoogleServiceAccountJSON     string
	GoogleServiceAccountFile     string
	GoogleApplicationCredentials string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		BackendAPIURL:  getEnv("BACKEND_API_URL", "http://localhost:8080/api"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),

		SessionDBPath:       getEnv("SESSION_DB_PATH", "./data/nelfy.db"),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "nelfy_session"),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),

		AlertPollInterval:   getEnvDuration("ALERT_POLL_INTERVAL", 30*time.Second),
		AlertIdleTimeout:    getEnvDuration("ALERT_IDLE_TIMEOUT", 10*time.Minute),
		PreloadInstallments: getEnvBool("PRELOAD_INSTALLMENTS", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "nelfy"),

		ExportBackend: strings.ToLower(getEnv("EXPORT_BACKEND", "")),

		GoogleSpreadsheetID:          getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:              getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleServiceAccountJSON:     getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile:     getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether report export to Google Sheets is
// configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// ExportMode resolves ExportBackend to "sheets", "memory" or "none".
func (c *Config) ExportMode() string {
	if c.ExportBackend != "" {
		return c.ExportBackend
	}
	if c.SheetsEnabled() {
		return "sheets"
	}
	return "none"
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if parsedURL, err := url.Parse(c.BackendAPIURL); err != nil || c.BackendAPIURL == "" {
		errors = append(errors, fmt.Sprintf("invalid backend API URL '%s'", c.BackendAPIURL))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid backend API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}
	if c.BackendTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid backend timeout %v: must be at least 1 second", c.BackendTimeout))
	}

	if c.SessionDBPath == "" {
		errors = append(errors, "session database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SessionDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create session database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionCookieName == "" {
		errors = append(errors, "session cookie name cannot be empty")
	}

	if c.AlertPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at least 1 second", c.AlertPollInterval))
	} else if c.AlertPollInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at most 1 hour", c.AlertPollInterval))
	}
	if c.AlertIdleTimeout < c.AlertPollInterval {
		errors = append(errors, fmt.Sprintf("invalid alert idle timeout %v: must not be shorter than the poll interval", c.AlertIdleTimeout))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SheetsEnabled() {
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleApplicationCredentials == "" {
			errors = append(errors, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for report export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	switch c.ExportBackend {
	case "", "none", "memory":
	case "sheets":
		if !c.SheetsEnabled() {
			errors = append(errors, "EXPORT_BACKEND=sheets requires GOOGLE_SPREADSHEET_ID")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be sheets, memory or none", c.ExportBackend))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the subset the export worker needs: a broker, a
// spreadsheet and the session database holding export jobs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if !c.AMQPEnabled() {
		errors = append(errors, "AMQP_URL is required for the export worker")
	}
	if !c.SheetsEnabled() {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if err := c.Validate(); err != nil {
		errors = append(errors, err.Error())
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
