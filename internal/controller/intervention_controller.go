// internal/controller/intervention_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/queue"
	"github.com/unclebandit/retention-engine/internal/scoring"
	"github.com/unclebandit/retention-engine/internal/service"
)

// InterventionAPI is the slice of service.InterventionService the controller calls.
type InterventionAPI interface {
	RunDailyForTenant(ctx context.Context, tenantID string, opts service.RunOptions) (*service.RunResult, error)
	ListInterventions(ctx context.Context, tenantID string, page, pageSize int, status, channel string) ([]model.Intervention, map[string]int, error)
	ApproveAndSend(ctx context.Context, id string) (*model.Intervention, error)
	CancelIntervention(ctx context.Context, id string) error
	Preview(ctx context.Context, playID, memberID string, subjectOverride, bodyOverride *string, extra map[string]string) (*service.RenderedMessage, error)
	MarkDelivered(ctx context.Context, providerMessageID string) (*model.Intervention, error)
	RecordOutcome(ctx context.Context, memberID string, typ model.OutcomeType, note string, recordedAt *time.Time) (*model.Outcome, error)
	ListOutcomes(ctx context.Context, memberID string) ([]model.Outcome, error)
}

type ScoringAPI interface {
	ScoreTenant(ctx context.Context, tenantID string, now time.Time) (*service.SnapshotResult, error)
	MemberProfile(ctx context.Context, memberID string, asOf time.Time) (*scoring.Profile, error)
}

type InterventionController struct {
	Interventions InterventionAPI
	Scoring       ScoringAPI
	// Queue and RunTopic back async runs; nil Queue disables them.
	Queue    queue.Queue
	RunTopic string
	Clock    func() time.Time
}

func (c *InterventionController) Routes(r chi.Router) {
	r.Post("/tenants/{id}/runs", c.RunDaily)
	r.Post("/tenants/{id}/snapshots", c.ScoreTenant)
	r.Get("/tenants/{id}/interventions", c.ListInterventions)
	r.Post("/interventions/{id}/approve", c.Approve)
	r.Post("/interventions/{id}/cancel", c.Cancel)
	r.Post("/plays/{id}/preview", c.PersonalizedPreview)
	r.Post("/providers/callbacks/delivered", c.Delivered)
	r.Post("/members/{id}/outcomes", c.RecordOutcome)
	r.Get("/members/{id}/outcomes", c.ListOutcomes)
	r.Get("/members/{id}/commitment", c.Commitment)
}

func (c *InterventionController) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *InterventionController) RunDaily(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var body struct {
		ForceApproval bool `json:"force_approval"`
	}
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, appErrors.NewValidation("body", err.Error()))
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if c.Queue == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run queue not configured"})
			return
		}
		job := queue.DailyRunJob{TenantID: tenantID, ForceApproval: body.ForceApproval, RequestedAt: c.now()}
		if err := c.Queue.Publish(r.Context(), c.RunTopic, job); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"tenant_id": tenantID,
			"status":    "queued",
		})
		return
	}

	result, err := c.Interventions.RunDailyForTenant(r.Context(), tenantID, service.RunOptions{ForceApproval: body.ForceApproval})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *InterventionController) ScoreTenant(w http.ResponseWriter, r *http.Request) {
	result, err := c.Scoring.ScoreTenant(r.Context(), chi.URLParam(r, "id"), c.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *InterventionController) ListInterventions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")
	channel := r.URL.Query().Get("channel")

	interventions, pagination, err := c.Interventions.ListInterventions(r.Context(), chi.URLParam(r, "id"), page, pageSize, status, channel)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       interventions,
		"pagination": pagination,
	})
}

func (c *InterventionController) Approve(w http.ResponseWriter, r *http.Request) {
	iv, err := c.Interventions.ApproveAndSend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (c *InterventionController) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := c.Interventions.CancelIntervention(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *InterventionController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MemberID        string            `json:"member_id"`
		OverrideSubject *string           `json:"override_subject"`
		OverrideBody    *string           `json:"override_body"`
		Variables       map[string]string `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, appErrors.NewValidation("body", err.Error()))
		return
	}
	if body.MemberID == "" {
		writeError(w, r, appErrors.NewValidation("member_id", "required"))
		return
	}

	rendered, err := c.Interventions.Preview(r.Context(), chi.URLParam(r, "id"), body.MemberID,
		body.OverrideSubject, body.OverrideBody, body.Variables)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered":  rendered,
		"member_id": body.MemberID,
	})
}

func (c *InterventionController) Delivered(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProviderMessageID string `json:"provider_message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, appErrors.NewValidation("body", err.Error()))
		return
	}

	iv, err := c.Interventions.MarkDelivered(r.Context(), body.ProviderMessageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (c *InterventionController) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type       model.OutcomeType `json:"type"`
		Note       string            `json:"note"`
		RecordedAt *time.Time        `json:"recorded_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, appErrors.NewValidation("body", err.Error()))
		return
	}

	o, err := c.Interventions.RecordOutcome(r.Context(), chi.URLParam(r, "id"), body.Type, body.Note, body.RecordedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (c *InterventionController) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := c.Interventions.ListOutcomes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": outcomes})
}

// Commitment reports the scoring profile for a member. as_of accepts RFC 3339
// or a plain date and defaults to now.
func (c *InterventionController) Commitment(w http.ResponseWriter, r *http.Request) {
	asOf := c.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := parseAsOf(raw)
		if err != nil {
			writeError(w, r, appErrors.NewValidation("as_of", "expected RFC 3339 timestamp or YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	profile, err := c.Scoring.MemberProfile(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"member_id": chi.URLParam(r, "id"),
		"as_of":     asOf,
		"profile":   profile,
	})
}

func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case appErrors.IsInvalidTransition(err):
		status = http.StatusConflict
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	default:
		logger.FromContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
