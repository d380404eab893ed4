package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	JobTimezone      string
	JobSchedule      string
	SendTimeout      time.Duration
	ReminderLeadDays int

	JWTSecret         string
	SessionTTL        time.Duration
	AdminEmail        string
	AdminPasswordHash string

	PostmarkToken string
	FromEmail     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	BackupS3Endpoint    string
	BackupS3Bucket      string
	BackupS3Region      string
	BackupS3AccessKey   string
	BackupS3SecretKey   string
	BackupPassphrase    string
	BackupSchedule      string
	BackupRetentionDays int
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port:      getEnv("MAINTCUE_PORT", "8080"),
		DBPath:    getEnv("MAINTCUE_DB_PATH", "maintcue.db"),
		BaseURL:   strings.TrimRight(getEnv("MAINTCUE_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:  getEnv("MAINTCUE_LOG_LEVEL", "info"),
		LogFormat: getEnv("MAINTCUE_LOG_FORMAT", "text"),

		JobTimezone:      getEnv("MAINTCUE_JOB_TIMEZONE", "America/New_York"),
		JobSchedule:      getEnv("MAINTCUE_JOB_SCHEDULE", "0 9 * * *"),
		SendTimeout:      getEnvDuration("MAINTCUE_SEND_TIMEOUT", 20*time.Second),
		ReminderLeadDays: getEnvInt("MAINTCUE_REMINDER_LEAD_DAYS", 7),

		JWTSecret:         os.Getenv("MAINTCUE_JWT_SECRET"),
		SessionTTL:        getEnvDuration("MAINTCUE_SESSION_TTL", 7*24*time.Hour),
		AdminEmail:        os.Getenv("MAINTCUE_ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("MAINTCUE_ADMIN_PASSWORD_HASH"),

		PostmarkToken: os.Getenv("MAINTCUE_POSTMARK_TOKEN"),
		FromEmail:     getEnv("MAINTCUE_FROM_EMAIL", "reminders@maintcue.com"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),

		BackupS3Endpoint:    os.Getenv("MAINTCUE_BACKUP_S3_ENDPOINT"),
		BackupS3Bucket:      os.Getenv("MAINTCUE_BACKUP_S3_BUCKET"),
		BackupS3Region:      getEnv("MAINTCUE_BACKUP_S3_REGION", "us-east-1"),
		BackupS3AccessKey:   os.Getenv("MAINTCUE_BACKUP_S3_ACCESS_KEY"),
		BackupS3SecretKey:   os.Getenv("MAINTCUE_BACKUP_S3_SECRET_KEY"),
		BackupPassphrase:    os.Getenv("MAINTCUE_BACKUP_PASSPHRASE"),
		BackupSchedule:      getEnv("MAINTCUE_BACKUP_SCHEDULE", "0 3 * * *"),
		BackupRetentionDays: getEnvInt("MAINTCUE_BACKUP_RETENTION_DAYS", 30),
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.JobTimezone); err != nil {
		errs = append(errs, fmt.Errorf("MAINTCUE_JOB_TIMEZONE %q: %w", c.JobTimezone, err))
	}
	if _, err := cron.ParseStandard(c.JobSchedule); err != nil {
		errs = append(errs, fmt.Errorf("MAINTCUE_JOB_SCHEDULE %q: %w", c.JobSchedule, err))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("MAINTCUE_JWT_SECRET is required"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MAINTCUE_SEND_TIMEOUT must be positive, got %s", c.SendTimeout))
	}
	if c.ReminderLeadDays < 0 {
		errs = append(errs, fmt.Errorf("MAINTCUE_REMINDER_LEAD_DAYS must not be negative, got %d", c.ReminderLeadDays))
	}
	if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("MAINTCUE_BACKUP_SCHEDULE %q: %w", c.BackupSchedule, err))
	}
	if c.BackupRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("MAINTCUE_BACKUP_RETENTION_DAYS must be positive, got %d", c.BackupRetentionDays))
	}
	if c.BackupS3Bucket != "" && c.BackupPassphrase == "" {
		errs = append(errs, errors.New("MAINTCUE_BACKUP_PASSPHRASE is required when MAINTCUE_BACKUP_S3_BUCKET is set"))
	}
	return errors.Join(errs...)
}

// Location returns the job timezone. Call Validate first.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.JobTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TwilioConfigured reports whether all SMS credentials are present.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// BackupConfigured reports whether snapshot storage and a passphrase are present.
func (c Config) BackupConfigured() bool {
	return c.BackupS3Bucket != "" && c.BackupS3AccessKey != "" && c.BackupS3SecretKey != "" && c.BackupPassphrase != ""
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
