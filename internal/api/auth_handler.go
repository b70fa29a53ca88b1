package api

import (
	"net/http"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/metrics"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	auth    *auth.Service
	metrics *metrics.Metrics
}

func newAuthHandler(svc *auth.Service, m *metrics.Metrics) *authHandler {
	return &authHandler{auth: svc, metrics: m}
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	token, u, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncAuthFailure("password")
		}
		// One message for unknown email, bad password and inactive account.
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if h.metrics != nil {
		h.metrics.IncAuthSuccess("password")
		h.metrics.IncSessionsIssued()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":                token,
		"must_change_password": u.MustChangePassword,
		"user":                 u,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), token); err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsRevoked("logout")
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/auth/change-password.
func (h *authHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "current_password and new_password are required")
		return
	}

	token := auth.TokenFromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), caller, token, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsRevoked("password_change")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "password changed",
	})
}
