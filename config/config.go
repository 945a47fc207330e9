package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	DatabaseURL        string
	JWTSecretKey       string
	JWTTTL             time.Duration
	ServerPort         int
	PublicURL          string
	CORSAllowedOrigins []string
	RedisURL           string
	SentryDSN          string
	Environment        string

	SendgridAPIKey string
	EmailFromName  string
	EmailFrom      string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	APNSKeyPath    string
	APNSKeyID      string
	APNSTeamID     string
	APNSTopic      string
	APNSProduction bool

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	ReminderInterval time.Duration
	ReminderWindow   time.Duration
}

// Load reads the configuration from environment variables, loading a .env
// file first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, so tests can supply values
// without touching the process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:       env("DATABASE_URL", ""),
		JWTSecretKey:      env("JWT_SECRET_KEY", ""),
		PublicURL:         strings.TrimRight(env("PUBLIC_URL", "http://localhost:3000"), "/"),
		RedisURL:          env("REDIS_URL", ""),
		SentryDSN:         env("SENTRY_DSN", ""),
		Environment:       env("APP_ENV", "development"),
		SendgridAPIKey:    env("SENDGRID_API_KEY", ""),
		EmailFromName:     env("EMAIL_FROM_NAME", "LMSLocal"),
		EmailFrom:         env("EMAIL_FROM", ""),
		SMTPHost:          env("SMTP_HOST", ""),
		SMTPUser:          env("SMTP_USER", ""),
		SMTPPass:          env("SMTP_PASS", ""),
		R2AccountID:       env("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     env("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: env("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      env("R2_BUCKET_NAME", ""),
		R2PublicBaseURL:   env("R2_PUBLIC_BASE_URL", ""),
		APNSKeyPath:       env("APNS_KEY_PATH", ""),
		APNSKeyID:         env("APNS_KEY_ID", ""),
		APNSTeamID:        env("APNS_TEAM_ID", ""),
		APNSTopic:         env("APNS_TOPIC", ""),
		VAPIDPublicKey:    env("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:   env("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:      env("VAPID_SUBJECT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	var err error
	if cfg.ServerPort, err = parsePort("SERVER_PORT", env("SERVER_PORT", "8080")); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = parsePort("SMTP_PORT", env("SMTP_PORT", "587")); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = parseDuration("JWT_TTL", env("JWT_TTL", "24h")); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = parseDuration("REMINDER_INTERVAL", env("REMINDER_INTERVAL", "5m")); err != nil {
		return nil, err
	}
	if cfg.ReminderWindow, err = parseDuration("REMINDER_WINDOW", env("REMINDER_WINDOW", "24h")); err != nil {
		return nil, err
	}
	if cfg.APNSProduction, err = strconv.ParseBool(env("APNS_PRODUCTION", "false")); err != nil {
		return nil, fmt.Errorf("invalid APNS_PRODUCTION environment variable: %w", err)
	}

	for _, origin := range strings.Split(env("CORS_ALLOWED_ORIGINS", cfg.PublicURL), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	return cfg, nil
}

func parsePort(name, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return port, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func (c *Config) SendgridEnabled() bool {
	return c.SendgridAPIKey != "" && c.EmailFrom != ""
}

func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.EmailFrom != ""
}

func (c *Config) APNSEnabled() bool {
	return c.APNSKeyPath != "" && c.APNSKeyID != "" && c.APNSTeamID != "" && c.APNSTopic != ""
}

func (c *Config) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" && c.VAPIDSubject != ""
}
