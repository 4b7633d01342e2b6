package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken         string
	DatabaseURL           string
	ChannelID             int64   // the managed channel
	AdminUserIDs          []int64 // static admin allowlist
	LogLevel              string
	Environment           string
	DefaultWelcomeMessage string

	// SMTP settings for the contact-request notification email.
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPToEmail  string
	SMTPSubject  string
}

// IsAdmin reports whether the given Telegram user ID is on the allowlist.
func (c *AppConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	channelIDStr := os.Getenv("CHANNEL_ID")
	if channelIDStr == "" {
		return nil, fmt.Errorf("CHANNEL_ID is not set")
	}
	cfg.ChannelID, err = strconv.ParseInt(channelIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_ID: %w", err)
	}

	adminIDsStr := os.Getenv("ADMIN_USER_IDS")
	if adminIDsStr == "" {
		return nil, fmt.Errorf("ADMIN_USER_IDS is not set")
	}
	for _, part := range strings.Split(adminIDsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_USER_IDS entry %q: %w", part, err)
		}
		cfg.AdminUserIDs = append(cfg.AdminUserIDs, id)
	}
	if len(cfg.AdminUserIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_USER_IDS contains no valid IDs")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.DefaultWelcomeMessage = os.Getenv("DEFAULT_WELCOME_MESSAGE")
	if cfg.DefaultWelcomeMessage == "" {
		cfg.DefaultWelcomeMessage = "Добро пожаловать в наш канал! Ваша заявка на подписку была одобрена."
	}

	cfg.SMTPServer = os.Getenv("SMTP_SERVER")
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = "smtp.gmail.com"
	}
	portStr := os.Getenv("SMTP_PORT")
	if portStr == "" {
		portStr = "465"
	}
	cfg.SMTPPort, err = strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPToEmail = os.Getenv("SMTP_TO_EMAIL")
	cfg.SMTPSubject = os.Getenv("SMTP_SUBJECT")
	if cfg.SMTPSubject == "" {
		cfg.SMTPSubject = "Новый запрос на консультацию"
	}

	return cfg, nil
}
