package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upkeepqr/maintcue/internal/auth"
	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/store"
)

const (
	loginLinkTTL    = 15 * time.Minute
	exchangeCodeTTL = 60 * time.Second
)

// MagicLinkSender delivers login links to homeowners.
type MagicLinkSender interface {
	SendMagicLink(ctx context.Context, to, link string) error
}

type AuthHandler struct {
	households *store.HouseholdStore
	links      *store.MagicLinkStore
	mailer     MagicLinkSender
	issuer     *auth.Issuer
	admin      auth.AdminCredentials
	baseURL    string
	logger     *slog.Logger
}

func NewAuthHandler(
	hs *store.HouseholdStore,
	mls *store.MagicLinkStore,
	mailer MagicLinkSender,
	issuer *auth.Issuer,
	admin auth.AdminCredentials,
	baseURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		households: hs,
		links:      mls,
		mailer:     mailer,
		issuer:     issuer,
		admin:      admin,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestMagicLink emails a login link when a household owns the address.
// The response is the same whether or not it does.
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	emailAddr := strings.TrimSpace(req.Email)
	if emailAddr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	accepted := map[string]string{"status": "check your email"}

	household, err := h.households.GetByEmail(r.Context(), emailAddr)
	if err != nil {
		h.logger.Error("magic link lookup", "error", err)
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}
	if household == nil {
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	hid := household.ID
	ml, err := h.links.Create(r.Context(), household.Email, model.PurposeLogin, &hid, loginLinkTTL)
	if err != nil {
		h.logger.Error("create magic link", "household_id", hid, "error", err)
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	link := h.baseURL + "/auth/verify?token=" + url.QueryEscape(ml.Token)
	if err := h.mailer.SendMagicLink(r.Context(), household.Email, link); err != nil {
		h.logger.Error("send magic link", "household_id", hid, "error", err)
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

// Verify redeems a login link and hands the browser a short-lived exchange
// code on the callback page.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	expired := h.baseURL + "/login?error=expired"

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, expired, http.StatusSeeOther)
		return
	}

	ml, err := h.links.Consume(r.Context(), token, model.PurposeLogin)
	if err != nil {
		h.logger.Error("consume magic link", "error", err)
		http.Redirect(w, r, expired, http.StatusSeeOther)
		return
	}
	if ml == nil || ml.HouseholdID == nil {
		http.Redirect(w, r, expired, http.StatusSeeOther)
		return
	}

	code, err := h.links.Create(r.Context(), ml.Email, model.PurposeExchange, ml.HouseholdID, exchangeCodeTTL)
	if err != nil {
		h.logger.Error("create exchange code", "household_id", *ml.HouseholdID, "error", err)
		http.Redirect(w, r, expired, http.StatusSeeOther)
		return
	}

	h.logger.Info("magic link verified", "household_id", *ml.HouseholdID)
	http.Redirect(w, r, h.baseURL+"/auth/callback?code="+url.QueryEscape(code.Token), http.StatusSeeOther)
}

// Exchange trades a single-use exchange code for a homeowner session token.
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	ml, err := h.links.Consume(r.Context(), req.Code, model.PurposeExchange)
	if err != nil {
		h.logger.Error("consume exchange code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return
	}
	if ml == nil || ml.HouseholdID == nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	household, err := h.households.GetByID(r.Context(), *ml.HouseholdID)
	if err != nil {
		h.logger.Error("exchange household lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return
	}
	if household == nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	token, expiresAt, err := h.issuer.Issue(auth.AuthContext{
		HouseholdID: household.ID,
		Email:       household.Email,
		Role:        auth.RoleHomeowner,
	})
	if err != nil {
		h.logger.Error("issue homeowner token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// AdminLogin checks the operator password and issues an admin token.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.admin.Check(req.Email, req.Password) {
		h.logger.Warn("admin login failed", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.issuer.Issue(auth.AuthContext{
		Email: h.admin.Email,
		Role:  auth.RoleAdmin,
	})
	if err != nil {
		h.logger.Error("issue admin token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	h.logger.Info("admin logged in", "email", h.admin.Email)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}
