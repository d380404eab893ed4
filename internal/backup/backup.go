package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"

	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/store"
)

const (
	DefaultSchedule      = "0 3 * * *"
	DefaultRetentionDays = 30
	DefaultPrefix        = "maintcue"
)

var (
	ErrDisabled   = errors.New("backups are not configured")
	ErrInProgress = errors.New("backup already in progress")
	ErrNotFound   = errors.New("backup not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3            S3Config
	Passphrase    string
	Schedule      string
	RetentionDays int
	Prefix        string
	Location      *time.Location
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager snapshots the database, encrypts the snapshot and uploads it to
// S3-compatible storage on a cron schedule or on demand.
type Manager struct {
	cfg      Config
	db       *sql.DB
	backups  *store.BackupStore
	client   s3Client
	logger   *slog.Logger
	callback StatusCallback

	running atomic.Bool

	mu     sync.RWMutex
	status Status
	cron   *cron.Cron
}

// NewManager creates a backup manager. It is disabled unless the S3
// credentials and a passphrase are all set.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger, callback StatusCallback) *Manager {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		db:       db,
		backups:  bs,
		logger:   logger.With("component", "backup"),
		callback: callback,
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether storage and a passphrase are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start schedules nightly backups and restores the last completed time from
// the backup records. It does nothing when backups are disabled.
func (m *Manager) Start(ctx context.Context) error {
	if !m.Enabled() {
		m.logger.Info("backups disabled")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}

	latest, err := m.backups.LatestCompleted(ctx)
	if err != nil {
		return err
	}
	if latest != nil {
		m.status.LastBackup = latest.CompletedAt
	}

	c := cron.New(cron.WithLocation(m.cfg.Location))
	if _, err := c.AddFunc(m.cfg.Schedule, func() {
		if _, err := m.Run(ctx); err != nil && !errors.Is(err, ErrInProgress) {
			m.logger.Error("scheduled backup failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("parse backup schedule %q: %w", m.cfg.Schedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("backup scheduler started", "schedule", m.cfg.Schedule, "retention_days", m.cfg.RetentionDays)
	return nil
}

// Stop halts the schedule and waits for a running backup to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop backup scheduler: %w", ctx.Err())
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// List returns recent backup records, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// Run takes one backup now. Overlapping calls return ErrInProgress.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer m.running.Store(false)

	m.setStatus(Status{State: StateRunning, InProgress: true})

	started := time.Now().UTC()
	key := fmt.Sprintf("%s/%s.db.enc", strings.Trim(m.cfg.Prefix, "/"), started.Format("2006-01-02T150405.000Z"))
	record, err := m.backups.Create(ctx, key, started)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, record)
	if err != nil {
		m.logger.Error("backup failed", "backup_id", record.ID, "error", err)
		if uerr := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "backup_id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	if err := m.backups.UpdateCompleted(ctx, record.ID, size); err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}
	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup completed", "backup_id", record.ID, "key", key, "size_bytes", size,
		"duration", time.Since(started).Round(time.Millisecond))

	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}

	return m.backups.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup) (int64, error) {
	if err := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	sealed, err := Seal(snapshot, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt snapshot: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "maintcue-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Cleanup deletes backups older than the retention period. Failed object
// deletes are logged and do not stop the sweep.
func (m *Manager) Cleanup(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	before := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.backups.DeleteOlderThan(ctx, before)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete expired backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("expired backups removed", "count", len(keys))
	}
	return nil
}

// Download streams an encrypted backup from storage.
func (m *Manager) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Backup, error) {
	if !m.Enabled() {
		return nil, nil, ErrDisabled
	}

	record, err := m.backups.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return nil, nil, ErrNotFound
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, record, nil
}
