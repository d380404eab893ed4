package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upkeepqr/maintcue/internal/config"
	"github.com/upkeepqr/maintcue/internal/database"
	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/logging"
	"github.com/upkeepqr/maintcue/internal/metrics"
	"github.com/upkeepqr/maintcue/internal/server"
	"github.com/upkeepqr/maintcue/internal/sms"
)

const cleanupInterval = time.Hour

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	if !emailClient.Configured() {
		slog.Warn("postmark not configured, email reminders will fail")
	}
	smsClient := sms.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	if !cfg.TwilioConfigured() {
		slog.Warn("twilio not configured, sms reminders will fail")
	}

	srv := server.New(db, cfg, emailClient, smsClient, metrics.New(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stop, not the signal, ends an in-flight scheduled run.
	if err := srv.Runner().Start(context.WithoutCancel(ctx)); err != nil {
		slog.Error("failed to start jobs", "error", err)
		os.Exit(1)
	}
	if !cfg.BackupConfigured() {
		slog.Warn("backup storage not configured, nightly snapshots disabled")
	}
	if err := srv.Backups().Start(context.WithoutCancel(ctx)); err != nil {
		slog.Error("failed to start backups", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Manual job runs reply when the run finishes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.MagicLinkStore().DeleteExpired(ctx); err != nil {
					slog.Error("cleanup expired magic links", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired magic links", "count", n)
				}
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("cleaned up rate limit entries", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("maintcue starting", "addr", httpServer.Addr, "schedule", cfg.JobSchedule, "timezone", cfg.JobTimezone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Runner().Stop(shutdownCtx); err != nil {
		slog.Error("stop jobs", "error", err)
	}
	if err := srv.Backups().Stop(shutdownCtx); err != nil {
		slog.Error("stop backups", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
