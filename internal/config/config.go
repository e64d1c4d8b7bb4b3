package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string

	// Correlation domain used in Message-ID headers, e.g. "lynsa.com".
	Domain string

	// MailboxAddress is the platform's own reply-to mailbox. Replies that
	// quote the original message contain "<MailboxAddress>", which is where
	// stored reply bodies are truncated.
	MailboxAddress string

	IMAPServer  string
	IMAPMailbox string
	IMAPUseTLS  bool

	SMTPServer string
	SMTPUseTLS bool

	// MailUser/MailPassword authenticate both the IMAP poller and the SMTP
	// submission, mirroring a single platform mailbox account.
	MailUser     string
	MailPassword string

	PollInterval     time.Duration
	SnapshotInterval time.Duration
	SnapshotPath     string

	MaxAttachmentBytes int64

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

const (
	defaultPollInterval     = 20 * time.Minute
	defaultSnapshotInterval = time.Minute
	defaultMaxAttachment    = 5 << 20
)

func NewConfig() (*Config, error) {
	env := os.Getenv("OUTREACH_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	pollInterval, err := getDurationOrDefault("OUTREACH_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return nil, err
	}

	snapshotInterval, err := getDurationOrDefault("OUTREACH_SNAPSHOT_INTERVAL", defaultSnapshotInterval)
	if err != nil {
		return nil, err
	}

	maxAttachment, err := getInt64OrDefault("OUTREACH_MAX_ATTACHMENT_BYTES", defaultMaxAttachment)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Environment:        env,
		Port:               getEnvOrDefault("PORT", "8080"),
		Domain:             getEnvOrDefault("OUTREACH_DOMAIN", "lynsa.com"),
		MailboxAddress:     getEnvOrDefault("OUTREACH_MAILBOX_ADDRESS", "lynsanetwork@gmail.com"),
		IMAPServer:         getEnvOrDefault("OUTREACH_IMAP_SERVER", "imap.gmail.com:993"),
		IMAPMailbox:        getEnvOrDefault("OUTREACH_IMAP_MAILBOX", "INBOX"),
		IMAPUseTLS:         getBoolOrDefault("OUTREACH_IMAP_TLS", true),
		SMTPServer:         getEnvOrDefault("OUTREACH_SMTP_SERVER", "smtp.gmail.com:465"),
		SMTPUseTLS:         getBoolOrDefault("OUTREACH_SMTP_TLS", true),
		MailUser:           os.Getenv("OUTREACH_MAIL_USER"),
		MailPassword:       os.Getenv("OUTREACH_MAIL_PASSWORD"),
		PollInterval:       pollInterval,
		SnapshotInterval:   snapshotInterval,
		SnapshotPath:       getEnvOrDefault("OUTREACH_SNAPSHOT_PATH", "data/message-status.json"),
		MaxAttachmentBytes: maxAttachment,
		DBHost:             getEnvOrDefault("OUTREACH_DB_HOST", "localhost"),
		DBPort:             getEnvOrDefault("OUTREACH_DB_PORT", "5432"),
		DBUsername:         getEnvOrDefault("OUTREACH_DB_USER", "outreach"),
		DBPassword:         os.Getenv("OUTREACH_DB_PASSWORD"),
		DBName:             getEnvOrDefault("OUTREACH_DB_NAME", "outreach"),
		DBSSLMode:          getEnvOrDefault("OUTREACH_DB_SSLMODE", "disable"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.MailUser == "" {
		return fmt.Errorf("OUTREACH_MAIL_USER is required")
	}

	if c.MailPassword == "" {
		return fmt.Errorf("OUTREACH_MAIL_PASSWORD is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("OUTREACH_DB_PASSWORD is required")
	}

	if !isValidPort(c.DBPort) {
		return fmt.Errorf("OUTREACH_DB_PORT is not a valid port number")
	}

	if !isValidPort(c.Port) {
		return fmt.Errorf("PORT is not a valid port number")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("OUTREACH_POLL_INTERVAL must be positive")
	}

	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("OUTREACH_SNAPSHOT_INTERVAL must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.DBUsername),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// FromAddress is the envelope sender of outbound outreach mail.
func (c *Config) FromAddress() string {
	return c.MailboxAddress
}

func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", key, err)
	}
	return parsed, nil
}

func getInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid integer: %w", key, err)
	}
	return parsed, nil
}
