package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/conversation"
	"github.com/alecgard/entretien/internal/metrics"
)

// conversationsHandler groups review-conversation HTTP handlers.
type conversationsHandler struct {
	conversations *conversation.Service
	metrics       *metrics.Metrics
}

func newConversationsHandler(svc *conversation.Service, m *metrics.Metrics) *conversationsHandler {
	return &conversationsHandler{conversations: svc, metrics: m}
}

// GetMine handles GET /api/v1/conversations/me.
func (h *conversationsHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	conv, err := h.conversations.GetMine(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// UpdateMine handles PUT /api/v1/conversations/me.
func (h *conversationsHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req conversation.EmployeeUpdate
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	conv, err := h.conversations.UpdateMine(r.Context(), caller, req)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil && req.Status != nil {
		h.metrics.IncConversationTransition(*req.Status)
	}
	writeJSON(w, http.StatusOK, conv)
}

// GetByID handles GET /api/v1/conversations/{id}. This is the history read:
// archived cycles stay accessible to the employee, the manager recorded on
// the conversation, and admins.
func (h *conversationsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	conv, err := h.conversations.GetByID(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListReports handles GET /api/v1/reports.
func (h *conversationsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	summaries, err := h.conversations.Reports(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": summaries,
	})
}

// GetReportConversation handles GET /api/v1/reports/{email}/conversation.
func (h *conversationsHandler) GetReportConversation(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	conv, employee, err := h.conversations.GetForReport(r.Context(), caller, chi.URLParam(r, "email"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"employee":     employee,
		"conversation": conv,
	})
}

// UpdateReportConversation handles PUT /api/v1/reports/{email}/conversation.
func (h *conversationsHandler) UpdateReportConversation(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req conversation.ManagerUpdate
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	conv, err := h.conversations.UpdateFeedback(r.Context(), caller, chi.URLParam(r, "email"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil && req.Status != nil {
		h.metrics.IncConversationTransition(*req.Status)
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListCycleConversations handles GET /api/v1/admin/cycles/{id}/conversations.
func (h *conversationsHandler) ListCycleConversations(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	convs, err := h.conversations.ListByCycle(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if convs == nil {
		convs = []*conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
	})
}
