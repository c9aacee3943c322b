package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

// InterventionDetails is an intervention with its audit trail.
type InterventionDetails struct {
	model.Intervention
	Events []model.MessageEvent `json:"events"`
}

// ListInterventions fetches a tenant's interventions with pagination
func (s *InterventionService) ListInterventions(ctx context.Context, tenantID string, page, pageSize int, status, channel string) ([]model.Intervention, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Interventions.ListByTenant(ctx, tenantID, offset, pageSize, strings.ToUpper(status), strings.ToLower(channel))
	if err != nil {
		return nil, nil, err
	}

	interventions := make([]model.Intervention, len(ptrs))
	for i, iv := range ptrs {
		interventions[i] = *iv
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return interventions, pagination, nil
}

// InterventionStats counts a tenant's interventions per status. Every status
// is present, plus "total".
func (s *InterventionService) InterventionStats(ctx context.Context, tenantID string) (map[string]int, error) {
	counts, err := s.Interventions.StatsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{"total": 0}
	for _, st := range []model.InterventionStatus{
		model.StatusCandidate, model.StatusPendingApproval, model.StatusScheduled,
		model.StatusSent, model.StatusDelivered, model.StatusFailed, model.StatusCanceled,
	} {
		stats[string(st)] = 0
	}
	for status, n := range counts {
		stats[status] = n
		stats["total"] += n
	}
	return stats, nil
}

func (s *InterventionService) GetInterventionWithEvents(ctx context.Context, id string) (*InterventionDetails, error) {
	iv, err := s.Interventions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.Events.ListByIntervention(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InterventionDetails{Intervention: *iv, Events: events}, nil
}

// Preview renders a play's templates for a member without creating anything.
// overrides replace the play's templates when non-empty.
func (s *InterventionService) Preview(ctx context.Context, playID, memberID string, subjectOverride, bodyOverride *string, extra map[string]string) (*RenderedMessage, error) {
	play, err := s.Plays.GetByID(ctx, playID)
	if err != nil {
		return nil, err
	}
	member, err := s.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.TenantID != play.TenantID {
		return nil, appErrors.NewNotFound("member", memberID)
	}

	snap, err := s.Snapshots.LatestForMember(ctx, memberID)
	if err != nil && !appErrors.IsNotFound(err) {
		return nil, err
	}

	subject, body := play.SubjectTemplate, play.BodyTemplate
	if subjectOverride != nil && strings.TrimSpace(*subjectOverride) != "" {
		subject = *subjectOverride
	}
	if bodyOverride != nil && strings.TrimSpace(*bodyOverride) != "" {
		body = *bodyOverride
	}
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.NewValidation("body", "template cannot be empty")
	}

	tc := templateContext(member, snap, s.now())
	tc.Extra = extra
	msg := RenderMessage(subject, body, tc)
	return &msg, nil
}

// RecordOutcome stores a business outcome for a member.
func (s *InterventionService) RecordOutcome(ctx context.Context, memberID string, typ model.OutcomeType, note string, recordedAt *time.Time) (*model.Outcome, error) {
	if !typ.Valid() {
		return nil, appErrors.NewValidation("type", "unknown outcome type "+string(typ))
	}
	member, err := s.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	o := &model.Outcome{
		ID:         uuid.NewString(),
		TenantID:   member.TenantID,
		MemberID:   member.ID,
		Type:       typ,
		Note:       note,
		RecordedAt: s.now(),
	}
	if recordedAt != nil {
		o.RecordedAt = *recordedAt
	}
	if err := s.Outcomes.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *InterventionService) ListOutcomes(ctx context.Context, memberID string) ([]model.Outcome, error) {
	if _, err := s.Members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.Outcomes.ListByMember(ctx, memberID)
}
