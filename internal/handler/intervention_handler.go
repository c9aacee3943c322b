// internal/handler/intervention_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/service"
)

// DetailsService is what the read-only handlers need from the intervention service.
type DetailsService interface {
	GetInterventionWithEvents(ctx context.Context, id string) (*service.InterventionDetails, error)
	InterventionStats(ctx context.Context, tenantID string) (map[string]int, error)
}

// InterventionHandler serves intervention details and per-tenant stats.
type InterventionHandler struct {
	Service DetailsService
}

func NewInterventionHandler(svc DetailsService) *InterventionHandler {
	return &InterventionHandler{Service: svc}
}

func (h *InterventionHandler) Routes(r chi.Router) {
	r.Get("/interventions/{id}", h.GetInterventionHandler)
	r.Get("/tenants/{id}/stats", h.TenantStatsHandler)
}

// GetInterventionHandler returns one intervention with its message events
func (h *InterventionHandler) GetInterventionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetInterventionWithEvents(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to fetch intervention", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// TenantStatsHandler returns intervention counts per status for a tenant
func (h *InterventionHandler) TenantStatsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	stats, err := h.Service.InterventionStats(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "failed to fetch stats", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"stats":     stats,
	})
}

func (h *InterventionHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if appErrors.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	logger.FromContext(r.Context()).Error(msg, zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}
