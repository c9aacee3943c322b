package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/model"
)

// ApproveAndSend releases a PENDING_APPROVAL intervention. Quiet hours are
// re-checked against the current time: inside the window the intervention is
// SCHEDULED for the window's end, otherwise it is sent now. A failed send is
// recorded as FAILED and is not an error.
func (s *InterventionService) ApproveAndSend(ctx context.Context, id string) (*model.Intervention, error) {
	iv, err := s.Interventions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockTenant(ctx, iv.TenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// re-read under the lock
	iv, err = s.Interventions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if iv.Status != model.StatusPendingApproval {
		return nil, appErrors.NewInvalidTransition(id, string(iv.Status), string(model.StatusSent))
	}

	tenant, err := s.Tenants.GetByID(ctx, iv.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	loc, err := tenant.Location()
	if err != nil {
		return nil, fmt.Errorf("tenant %s timezone %q: %w", tenant.ID, tenant.Timezone, err)
	}
	play, err := s.Plays.GetByID(ctx, iv.PlayID)
	if err != nil {
		return nil, fmt.Errorf("load play: %w", err)
	}
	qh, err := ParseQuietHours(play.QuietHoursStart, play.QuietHoursEnd)
	if err != nil {
		return nil, fmt.Errorf("play %s: %w", play.ID, err)
	}

	log := s.logger(ctx).With(zap.String("intervention_id", id), zap.String("tenant_id", iv.TenantID))
	now := s.now()
	if qh.Contains(now.In(loc)) {
		at := qh.NextAllowed(now, loc)
		upd := model.InterventionUpdate{Status: model.StatusScheduled, ScheduledAt: &at, Reason: "approved during quiet hours"}
		if err := s.Interventions.UpdateStatus(ctx, id, model.StatusPendingApproval, upd); err != nil {
			return nil, s.transitionError(ctx, id, model.StatusScheduled, err)
		}
		iv.Status = model.StatusScheduled
		iv.ScheduledAt = &at
		iv.Reason = upd.Reason
		metrics.ObserveIntervention(string(iv.Channel), string(iv.Status))
		log.Info("approved intervention scheduled for end of quiet hours", zap.Time("scheduled_at", at))
		return iv, nil
	}

	member, err := s.Members.GetByID(ctx, iv.MemberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if err := s.dispatch(ctx, iv, member, model.StatusPendingApproval); err != nil {
		return nil, s.transitionError(ctx, id, model.StatusSent, err)
	}
	log.Info("intervention approved", zap.String("status", string(iv.Status)))
	return iv, nil
}

// CancelIntervention cancels a PENDING_APPROVAL intervention. Any other status
// is left untouched and no error is returned.
func (s *InterventionService) CancelIntervention(ctx context.Context, id string) error {
	iv, err := s.Interventions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if iv.Status != model.StatusPendingApproval {
		return nil
	}

	unlock, err := s.lockTenant(ctx, iv.TenantID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.Interventions.UpdateStatus(ctx, id, model.StatusPendingApproval,
		model.InterventionUpdate{Status: model.StatusCanceled, Reason: "canceled by operator"})
	if errors.Is(err, appErrors.ErrStatusConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	metrics.ObserveIntervention(string(iv.Channel), string(model.StatusCanceled))
	s.logger(ctx).Info("intervention canceled", zap.String("intervention_id", id))
	return nil
}

// transitionError turns a lost conditional update into an invalid
// transition error carrying the status that won.
func (s *InterventionService) transitionError(ctx context.Context, id string, to model.InterventionStatus, err error) error {
	if !errors.Is(err, appErrors.ErrStatusConflict) {
		return err
	}
	cur, getErr := s.Interventions.GetByID(ctx, id)
	if getErr != nil {
		return err
	}
	return appErrors.NewInvalidTransition(id, string(cur.Status), string(to))
}
