package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/metrics"
	"github.com/alecgard/entretien/internal/user"
)

// UserDirectory is the user-store surface the admin handlers need.
type UserDirectory interface {
	List(ctx context.Context) ([]*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	Update(ctx context.Context, email string, in user.UpdateUserInput) (*user.User, error)
	Delete(ctx context.Context, email string) error
}

// usersHandler groups user management HTTP handlers (admin only).
type usersHandler struct {
	users    UserDirectory
	importer *user.Importer
	auth     *auth.Service
	metrics  *metrics.Metrics
}

func newUsersHandler(users UserDirectory, importer *user.Importer, authSvc *auth.Service, m *metrics.Metrics) *usersHandler {
	return &usersHandler{users: users, importer: importer, auth: authSvc, metrics: m}
}

// ListUsers handles GET /api/v1/admin/users.
func (h *usersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

// GetUser handles GET /api/v1/admin/users/{email}.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	u, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateUser handles PUT /api/v1/admin/users/{email}. manager_email
// distinguishes absent (keep), null (clear) and a string (reassign).
func (h *usersHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	var req struct {
		Name         *string         `json:"name"`
		Department   *string         `json:"department"`
		ManagerEmail json.RawMessage `json:"manager_email"`
		Roles        *[]string       `json:"roles"`
		IsActive     *bool           `json:"is_active"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Roles != nil {
		for _, role := range *req.Roles {
			if role != user.RoleEmployee && role != user.RoleManager && role != user.RoleAdmin {
				writeError(w, http.StatusUnprocessableEntity, "validation_error", "unknown role "+role)
				return
			}
		}
	}

	input := user.UpdateUserInput{
		Name:       req.Name,
		Department: req.Department,
		Roles:      req.Roles,
		IsActive:   req.IsActive,
	}
	if len(req.ManagerEmail) > 0 {
		var manager *string
		if string(req.ManagerEmail) != "null" {
			var s string
			if err := json.Unmarshal(req.ManagerEmail, &s); err != nil {
				writeError(w, http.StatusUnprocessableEntity, "validation_error", "manager_email must be a string or null")
				return
			}
			manager = &s
		}
		input.ManagerEmail = &manager
	}

	u, err := h.users.Update(r.Context(), email, input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser handles DELETE /api/v1/admin/users/{email}. Sessions and
// conversations cascade at the schema level.
func (h *usersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.users.Delete(r.Context(), email); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportUsers handles POST /api/v1/admin/users/import. New accounts come
// back with one-time generated passwords; this response is the only place
// the plaintext ever appears.
func (h *usersHandler) ImportUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Users []user.ImportRecord `json:"users"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if len(req.Users) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "users must not be empty")
		return
	}

	result, err := h.importer.Import(r.Context(), req.Users)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResetPassword handles POST /api/v1/admin/users/{email}/reset-password.
func (h *usersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	plaintext, err := h.auth.ResetPassword(r.Context(), email)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncPasswordReset()
		h.metrics.IncSessionsRevoked("password_reset")
	}
	writeJSON(w, http.StatusOK, user.GeneratedCredential{
		Email:    user.NormalizeEmail(email),
		Password: plaintext,
	})
}

// ResetPasswords handles POST /api/v1/admin/users/reset-passwords, the
// batch variant.
func (h *usersHandler) ResetPasswords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if len(req.Emails) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "emails must not be empty")
		return
	}

	creds, failures := h.auth.ResetPasswords(r.Context(), req.Emails)
	if h.metrics != nil {
		for range creds {
			h.metrics.IncPasswordReset()
			h.metrics.IncSessionsRevoked("password_reset")
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generated_credentials": creds,
		"errors":                failures,
	})
}
