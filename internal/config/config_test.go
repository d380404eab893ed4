package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAINTCUE_PORT", "")
	t.Setenv("MAINTCUE_JOB_TIMEZONE", "")
	t.Setenv("MAINTCUE_JOB_SCHEDULE", "")
	t.Setenv("MAINTCUE_SEND_TIMEOUT", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.JobTimezone != "America/New_York" {
		t.Errorf("JobTimezone = %q", cfg.JobTimezone)
	}
	if cfg.JobSchedule != "0 9 * * *" {
		t.Errorf("JobSchedule = %q", cfg.JobSchedule)
	}
	if cfg.SendTimeout != 20*time.Second {
		t.Errorf("SendTimeout = %s, want 20s", cfg.SendTimeout)
	}
	if cfg.ReminderLeadDays != 7 {
		t.Errorf("ReminderLeadDays = %d, want 7", cfg.ReminderLeadDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAINTCUE_BASE_URL", "https://app.maintcue.com/")
	t.Setenv("MAINTCUE_SEND_TIMEOUT", "5s")
	t.Setenv("MAINTCUE_REMINDER_LEAD_DAYS", "3")
	t.Setenv("MAINTCUE_SESSION_TTL", "not-a-duration")

	cfg := Load()
	if cfg.BaseURL != "https://app.maintcue.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.SendTimeout != 5*time.Second {
		t.Errorf("SendTimeout = %s, want 5s", cfg.SendTimeout)
	}
	if cfg.ReminderLeadDays != 3 {
		t.Errorf("ReminderLeadDays = %d, want 3", cfg.ReminderLeadDays)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %s, want default on parse failure", cfg.SessionTTL)
	}
}

func validConfig() Config {
	return Config{
		JobTimezone: "America/New_York",
		JobSchedule: "0 9 * * *",
		SendTimeout: 20 * time.Second,
		JWTSecret:   "secret",

		BackupSchedule:      "0 3 * * *",
		BackupRetentionDays: 30,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timezone", func(c *Config) { c.JobTimezone = "Mars/Olympus" }, "MAINTCUE_JOB_TIMEZONE"},
		{"bad schedule", func(c *Config) { c.JobSchedule = "every morning" }, "MAINTCUE_JOB_SCHEDULE"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "MAINTCUE_JWT_SECRET"},
		{"zero timeout", func(c *Config) { c.SendTimeout = 0 }, "MAINTCUE_SEND_TIMEOUT"},
		{"bad backup schedule", func(c *Config) { c.BackupSchedule = "nightly" }, "MAINTCUE_BACKUP_SCHEDULE"},
		{"zero retention", func(c *Config) { c.BackupRetentionDays = 0 }, "MAINTCUE_BACKUP_RETENTION_DAYS"},
		{"bucket without passphrase", func(c *Config) { c.BackupS3Bucket = "snapshots" }, "MAINTCUE_BACKUP_PASSPHRASE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestTwilioConfigured(t *testing.T) {
	cfg := Config{TwilioAccountSID: "AC1", TwilioAuthToken: "tok"}
	if cfg.TwilioConfigured() {
		t.Error("expected false without from number")
	}
	cfg.TwilioFromNumber = "+15550000000"
	if !cfg.TwilioConfigured() {
		t.Error("expected true with all credentials")
	}
}

func TestBackupConfigured(t *testing.T) {
	cfg := Config{BackupS3Bucket: "b", BackupS3AccessKey: "k", BackupS3SecretKey: "s"}
	if cfg.BackupConfigured() {
		t.Error("expected false without passphrase")
	}
	cfg.BackupPassphrase = "p"
	if !cfg.BackupConfigured() {
		t.Error("expected true with storage and passphrase")
	}
}
