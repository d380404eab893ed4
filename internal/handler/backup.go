package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/upkeepqr/maintcue/internal/backup"
	"github.com/upkeepqr/maintcue/internal/model"
)

const defaultBackupLimit = 30

// BackupManager runs and lists encrypted database snapshots.
type BackupManager interface {
	Run(ctx context.Context) (*model.Backup, error)
	List(ctx context.Context, limit int) ([]model.Backup, error)
	Download(ctx context.Context, id int64) (io.ReadCloser, *model.Backup, error)
	Status() backup.Status
}

type BackupHandler struct {
	manager BackupManager
	logger  *slog.Logger
}

func NewBackupHandler(manager BackupManager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, logger: logger}
}

type backupListResponse struct {
	Status  backup.Status  `json:"status"`
	Backups []model.Backup `json:"backups"`
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.manager.List(r.Context(), defaultBackupLimit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backupListResponse{Status: h.manager.Status(), Backups: backups})
}

// Run takes a snapshot now. Like the job triggers it outlives the request.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
	case errors.Is(err, backup.ErrInProgress):
		writeError(w, http.StatusConflict, "backup already in progress")
	case err != nil:
		h.logger.Error("run backup", "error", err)
		writeError(w, http.StatusBadGateway, "backup failed")
	default:
		writeJSON(w, http.StatusCreated, b)
	}
}

// Download streams the encrypted snapshot as stored.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	body, b, err := h.manager.Download(r.Context(), id)
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
		return
	case err != nil:
		h.logger.Error("download backup", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to download backup")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(b.ObjectKey)))
	if b.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(b.SizeBytes, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream backup", "id", id, "error", err)
	}
}
