package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/provider"
)

// dispatch is the single send path: QUEUED event, provider call, then SENT or
// FAILED. iv.Status reflects the outcome on return. A provider failure is not
// returned as an error; the returned error is for store failures only.
func (s *InterventionService) dispatch(ctx context.Context, iv *model.Intervention, member *model.Member, from model.InterventionStatus) error {
	log := s.logger(ctx).With(
		zap.String("intervention_id", iv.ID),
		zap.String("channel", string(iv.Channel)),
	)
	to := member.Address(iv.Channel)
	s.appendEvent(ctx, log, iv.ID, model.EventQueued, map[string]string{
		"channel": string(iv.Channel),
		"to":      to,
	})

	start := time.Now()
	providerID, sendErr := s.Providers.Send(ctx, iv.Channel, provider.Message{
		To:      to,
		Subject: iv.Subject,
		Body:    iv.Body,
	})
	metrics.ObserveDispatch(string(iv.Channel), start)

	if sendErr != nil {
		log.Warn("send failed", zap.Error(sendErr))
		upd := model.InterventionUpdate{Status: model.StatusFailed, Reason: sendErr.Error()}
		if err := s.Interventions.UpdateStatus(ctx, iv.ID, from, upd); err != nil {
			return fmt.Errorf("record failed send: %w", err)
		}
		iv.Status = model.StatusFailed
		iv.Reason = upd.Reason
		metrics.ObserveIntervention(string(iv.Channel), string(iv.Status))
		s.appendEvent(ctx, log, iv.ID, model.EventFailed, map[string]string{"error": sendErr.Error()})
		return nil
	}

	sentAt := s.now()
	upd := model.InterventionUpdate{Status: model.StatusSent, SentAt: &sentAt, ProviderMessageID: providerID}
	if err := s.Interventions.UpdateStatus(ctx, iv.ID, from, upd); err != nil {
		return fmt.Errorf("record sent message %s: %w", providerID, err)
	}
	iv.Status = model.StatusSent
	iv.SentAt = &sentAt
	iv.ProviderMessageID = providerID
	metrics.ObserveIntervention(string(iv.Channel), string(iv.Status))
	s.appendEvent(ctx, log, iv.ID, model.EventSent, map[string]string{"provider_message_id": providerID})
	log.Info("intervention sent", zap.String("provider_message_id", providerID))
	return nil
}

// appendEvent writes an audit event. The transition it records has already
// happened, so a failed write is logged rather than returned.
func (s *InterventionService) appendEvent(ctx context.Context, log *zap.Logger, interventionID string, typ model.EventType, payload map[string]string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode event payload", zap.Error(err))
		raw = []byte("{}")
	}
	ev := &model.MessageEvent{
		ID:             uuid.NewString(),
		InterventionID: interventionID,
		Type:           typ,
		Payload:        raw,
		CreatedAt:      s.now(),
	}
	if err := s.Events.Append(ctx, ev); err != nil {
		log.Error("failed to append message event", zap.String("event", string(typ)), zap.Error(err))
	}
}

type DispatchResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DispatchDueScheduled sends SCHEDULED interventions whose time has come.
// Each one is re-read under its tenant lock so concurrent dispatchers and
// approvals never send the same record twice.
func (s *InterventionService) DispatchDueScheduled(ctx context.Context, now time.Time, limit int) (*DispatchResult, error) {
	due, err := s.Interventions.ListDueScheduled(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due interventions: %w", err)
	}

	result := &DispatchResult{Due: len(due)}
	for _, iv := range due {
		status, err := s.dispatchScheduled(ctx, iv.TenantID, iv.ID, now)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			s.logger(ctx).Error("scheduled dispatch failed", zap.String("intervention_id", iv.ID), zap.Error(err))
			result.Skipped++
			continue
		}
		switch status {
		case model.StatusSent:
			result.Sent++
		case model.StatusFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

func (s *InterventionService) dispatchScheduled(ctx context.Context, tenantID, id string, now time.Time) (model.InterventionStatus, error) {
	unlock, err := s.lockTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	defer unlock()

	iv, err := s.Interventions.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if iv.Status != model.StatusScheduled || (iv.ScheduledAt != nil && iv.ScheduledAt.After(now)) {
		return iv.Status, nil
	}
	member, err := s.Members.GetByID(ctx, iv.MemberID)
	if err != nil {
		return "", fmt.Errorf("load member: %w", err)
	}
	// contact preferences may have changed since the send was deferred
	if reason := contactBlock(member, iv.Channel); reason != "" {
		upd := model.InterventionUpdate{Status: model.StatusCanceled, Reason: reason}
		if err := s.Interventions.UpdateStatus(ctx, iv.ID, model.StatusScheduled, upd); err != nil {
			return "", fmt.Errorf("cancel scheduled intervention: %w", err)
		}
		metrics.ObserveIntervention(string(iv.Channel), string(model.StatusCanceled))
		s.logger(ctx).Info("scheduled intervention canceled",
			zap.String("intervention_id", iv.ID), zap.String("reason", reason))
		return model.StatusCanceled, nil
	}
	if err := s.dispatch(ctx, iv, member, model.StatusScheduled); err != nil {
		return "", err
	}
	return iv.Status, nil
}

// MarkDelivered records a provider delivery receipt. Repeated callbacks for
// an already delivered message are accepted.
func (s *InterventionService) MarkDelivered(ctx context.Context, providerMessageID string) (*model.Intervention, error) {
	if providerMessageID == "" {
		return nil, appErrors.NewValidation("provider_message_id", "required")
	}
	iv, err := s.Interventions.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}

	switch iv.Status {
	case model.StatusDelivered:
		return iv, nil
	case model.StatusSent:
	default:
		return nil, appErrors.NewInvalidTransition(iv.ID, string(iv.Status), string(model.StatusDelivered))
	}

	if err := s.Interventions.UpdateStatus(ctx, iv.ID, model.StatusSent, model.InterventionUpdate{Status: model.StatusDelivered}); err != nil {
		if errors.Is(err, appErrors.ErrStatusConflict) {
			return s.Interventions.GetByID(ctx, iv.ID)
		}
		return nil, err
	}
	iv.Status = model.StatusDelivered
	metrics.ObserveIntervention(string(iv.Channel), string(iv.Status))

	log := s.logger(ctx).With(zap.String("intervention_id", iv.ID))
	s.appendEvent(ctx, log, iv.ID, model.EventDelivered, map[string]string{"provider_message_id": providerMessageID})
	return iv, nil
}
