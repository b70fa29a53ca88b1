package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/metrics"
)

// cyclesHandler groups review-cycle HTTP handlers.
type cyclesHandler struct {
	cycles  *cycle.Service
	metrics *metrics.Metrics
}

func newCyclesHandler(svc *cycle.Service, m *metrics.Metrics) *cyclesHandler {
	return &cyclesHandler{cycles: svc, metrics: m}
}

// parseDateParam accepts RFC3339 or a bare date.
func parseDateParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// CreateCycle handles POST /api/v1/admin/cycles.
func (h *cyclesHandler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	start, err := parseDateParam(req.StartDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "start_date must be a date or RFC3339 timestamp")
		return
	}
	end, err := parseDateParam(req.EndDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "end_date must be a date or RFC3339 timestamp")
		return
	}

	c, err := h.cycles.Create(r.Context(), cycle.CreateCycleInput{
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListCycles handles GET /api/v1/admin/cycles.
func (h *cyclesHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.cycles.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if cycles == nil {
		cycles = []*cycle.Cycle{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
	})
}

// GetCycle handles GET /api/v1/admin/cycles/{id}.
func (h *cyclesHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := h.cycles.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetCycleStatus handles PATCH /api/v1/admin/cycles/{id}. Activating a
// draft archives the previously active cycle in the same transaction.
func (h *cyclesHandler) SetCycleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "status is required")
		return
	}

	c, err := h.cycles.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.metrics != nil && c.Status == cycle.StatusActive {
		h.metrics.IncCycleActivation()
	}
	writeJSON(w, http.StatusOK, c)
}

// GetActiveCycle handles GET /api/v1/cycles/active, visible to any
// authenticated user.
func (h *cyclesHandler) GetActiveCycle(w http.ResponseWriter, r *http.Request) {
	c, err := h.cycles.GetActive(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "no_active_cycle", "no review cycle is currently active")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
