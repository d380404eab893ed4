package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/upkeepqr/maintcue/internal/auth"
	"github.com/upkeepqr/maintcue/internal/backup"
	"github.com/upkeepqr/maintcue/internal/config"
	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/handler"
	"github.com/upkeepqr/maintcue/internal/jobs"
	"github.com/upkeepqr/maintcue/internal/metrics"
	"github.com/upkeepqr/maintcue/internal/middleware"
	"github.com/upkeepqr/maintcue/internal/schedule"
	"github.com/upkeepqr/maintcue/internal/sms"
	"github.com/upkeepqr/maintcue/internal/store"
	ws "github.com/upkeepqr/maintcue/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	authH          *handler.AuthHandler
	householdH     *handler.HouseholdHandler
	taskH          *handler.TaskHandler
	adminH         *handler.AdminHandler
	backupH        *handler.BackupHandler
	issuer         *auth.Issuer
	magicLinkStore *store.MagicLinkStore
	rateLimiter    *middleware.RateLimiter
	runner         *jobs.Runner
	backups        *backup.Manager
	planner        *schedule.Planner
	metrics        *metrics.Metrics
	wsOrigins      []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg config.Config, emailClient *email.Client, smsClient *sms.Client, m *metrics.Metrics, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	loc := cfg.Location()

	householdStore := store.NewHouseholdStore(db)
	taskStore := store.NewTaskStore(db)
	reminderStore := store.NewReminderStore(db)
	magicLinkStore := store.NewMagicLinkStore(db)

	planner := schedule.NewPlanner(taskStore, reminderStore, cfg.ReminderLeadDays, loc, logger.With("component", "planner"))

	dispatcher := jobs.NewDispatcher(reminderStore, householdStore, emailClient, smsClient, jobs.DispatcherConfig{
		SendTimeout: cfg.SendTimeout,
		Location:    loc,
		Metrics:     m,
		Logger:      logger.With("component", "dispatcher"),
	})
	overdue := jobs.NewOverdueUpdater(taskStore, loc, logger.With("component", "overdue"))
	runner := jobs.NewRunner(overdue, dispatcher, jobs.RunnerConfig{
		Schedule: cfg.JobSchedule,
		Location: loc,
		Metrics:  m,
		Logger:   logger.With("component", "jobs"),
		OnStatus: func(st jobs.Status) {
			hub.BroadcastRetained("job:"+st.Job, ws.NewMessage("job", string(st.State), 0, st))
		},
	})

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.BackupS3Endpoint,
			Bucket:    cfg.BackupS3Bucket,
			Region:    cfg.BackupS3Region,
			AccessKey: cfg.BackupS3AccessKey,
			SecretKey: cfg.BackupS3SecretKey,
		},
		Passphrase:    cfg.BackupPassphrase,
		Schedule:      cfg.BackupSchedule,
		RetentionDays: cfg.BackupRetentionDays,
		Location:      loc,
	}, db, store.NewBackupStore(db), logger, func(st backup.Status) {
		hub.BroadcastRetained("backup", ws.NewMessage("backup", string(st.State), 0, st))
	})

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	admin := auth.AdminCredentials{Email: cfg.AdminEmail, PasswordHash: cfg.AdminPasswordHash}

	return &Server{
		db:             db,
		hub:            hub,
		authH:          handler.NewAuthHandler(householdStore, magicLinkStore, emailClient, issuer, admin, cfg.BaseURL, logger.With("component", "auth")),
		householdH:     handler.NewHouseholdHandler(householdStore, logger.With("component", "household")),
		taskH:          handler.NewTaskHandler(taskStore, planner, logger.With("component", "task")),
		adminH:         handler.NewAdminHandler(householdStore, taskStore, reminderStore, planner, runner, loc, logger.With("component", "admin")),
		backupH:        handler.NewBackupHandler(backups, logger.With("component", "backup")),
		issuer:         issuer,
		magicLinkStore: magicLinkStore,
		rateLimiter:    middleware.NewRateLimiter(),
		runner:         runner,
		backups:        backups,
		planner:        planner,
		metrics:        m,
		wsOrigins:      originPatterns(cfg.BaseURL),
		logger:         logger,
	}
}

// Runner returns the job runner so the caller can start and stop the
// daily schedule.
func (s *Server) Runner() *jobs.Runner {
	return s.runner
}

// Backups returns the snapshot manager so the caller can start and stop
// the nightly schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// MagicLinkStore returns the magic link store for cleanup tasks.
func (s *Server) MagicLinkStore() *store.MagicLinkStore {
	return s.magicLinkStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /auth/magic-link", s.rateLimitedHandler(s.authH.RequestMagicLink))
	outerMux.HandleFunc("GET /auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /auth/exchange", s.rateLimitedHandler(s.authH.Exchange))
	outerMux.HandleFunc("POST /admin/login", s.rateLimitedHandler(s.authH.AdminLogin))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	requireAuth := middleware.RequireAuth(s.issuer)

	homeMux := http.NewServeMux()
	s.registerHomeownerRoutes(homeMux)
	outerMux.Handle("/api/", requireAuth(middleware.RequireHousehold(homeMux)))

	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	outerMux.Handle("/api/admin/", requireAuth(middleware.RequireAdmin(adminMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check ping", "error", err)
		status["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, authRateLimit, authRateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerHomeownerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/household", s.householdH.Get)
	mux.HandleFunc("PUT /api/household/notifications", s.householdH.UpdateNotifications)

	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/skip", s.taskH.Skip)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/households", s.adminH.ListHouseholds)
	mux.HandleFunc("POST /api/admin/households", s.adminH.CreateHousehold)
	mux.HandleFunc("GET /api/admin/households/{id}", s.adminH.GetHousehold)
	mux.HandleFunc("POST /api/admin/households/{id}/tasks", s.adminH.CreateTask)

	mux.HandleFunc("GET /api/admin/reminders", s.adminH.ListReminders)

	// Jobs
	mux.HandleFunc("POST /api/admin/jobs/reminders/run", s.adminH.RunReminders)
	mux.HandleFunc("POST /api/admin/jobs/overdue/run", s.adminH.RunOverdue)
	mux.HandleFunc("GET /api/admin/jobs/status", s.adminH.JobsStatus)

	// Backups
	mux.HandleFunc("GET /api/admin/backups", s.backupH.List)
	mux.HandleFunc("POST /api/admin/backups/run", s.backupH.Run)
	mux.HandleFunc("GET /api/admin/backups/{id}/download", s.backupH.Download)

	// WebSocket
	mux.HandleFunc("GET /api/admin/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.wsOrigins...))
}

// originPatterns allows the dashboard served from baseURL to open the
// status feed.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
