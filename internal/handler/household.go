package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/upkeepqr/maintcue/internal/auth"
	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/store"
)

// HouseholdHandler serves the signed-in homeowner's own household.
type HouseholdHandler struct {
	households *store.HouseholdStore
	logger     *slog.Logger
}

func NewHouseholdHandler(hs *store.HouseholdStore, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: hs, logger: logger}
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	household, err := h.households.GetByID(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	if household == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	writeJSON(w, http.StatusOK, household)
}

type notificationRequest struct {
	NotificationPreference string `json:"notification_preference"`
	Phone                  string `json:"phone"`
	SMSOptIn               bool   `json:"sms_opt_in"`
}

func (h *HouseholdHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !model.ValidPreference(req.NotificationPreference) {
		writeError(w, http.StatusBadRequest, "notification_preference must be email_only, sms_only or both")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.SMSOptIn && req.Phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required to opt in to SMS")
		return
	}

	id := auth.HouseholdID(r.Context())
	existing, err := h.households.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}

	household, err := h.households.UpdateNotificationSettings(r.Context(), id, req.NotificationPreference, req.Phone, req.SMSOptIn)
	if err != nil {
		h.logger.Error("update notification settings", "household_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	h.logger.Info("notification settings updated",
		"household_id", id,
		"preference", household.NotificationPreference,
		"sms_opt_in", household.SMSOptIn,
	)
	writeJSON(w, http.StatusOK, household)
}
