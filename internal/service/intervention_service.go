// internal/service/intervention_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/provider"
	"github.com/unclebandit/retention-engine/internal/repository"
	"github.com/unclebandit/retention-engine/internal/scoring"
)

// Dispatcher sends a message on a channel. *provider.Registry implements it.
type Dispatcher interface {
	Send(ctx context.Context, ch model.Channel, msg provider.Message) (string, error)
}

// InterventionService runs the daily batch for a tenant and owns every
// intervention status transition.
type InterventionService struct {
	Tenants       repository.TenantRepositoryInterface
	Members       repository.MemberRepositoryInterface
	Snapshots     repository.RiskSnapshotRepositoryInterface
	Plays         repository.PlayRepositoryInterface
	Interventions repository.InterventionRepositoryInterface
	Events        repository.MessageEventRepositoryInterface
	Outcomes      repository.OutcomeRepositoryInterface
	Guardrails    *GuardrailService
	Providers     Dispatcher
	Locker        TenantLocker
	Log           *zap.Logger
	Clock         func() time.Time
}

// NewInterventionService wires the Postgres store into a service. Runs and
// approvals are serialized per tenant with the store's advisory lock.
func NewInterventionService(store *repository.Store, providers Dispatcher, log *zap.Logger) *InterventionService {
	return &InterventionService{
		Tenants:       store.Tenants,
		Members:       store.Members,
		Snapshots:     store.Snapshots,
		Plays:         store.Plays,
		Interventions: store.Interventions,
		Events:        store.Events,
		Outcomes:      store.Outcomes,
		Guardrails:    &GuardrailService{Interventions: store.Interventions},
		Providers:     providers,
		Locker:        store.Locker,
		Log:           log,
	}
}

type RunOptions struct {
	ForceApproval bool `json:"force_approval"`
}

// RunResult aggregates one run. Skipped counts guardrail denials and
// per-member errors; a member denied on one channel and served on a fallback
// channel counts in both Skipped and Created.
type RunResult struct {
	TenantID        string `json:"tenant_id"`
	Created         int    `json:"created"`
	Scheduled       int    `json:"scheduled"`
	PendingApproval int    `json:"pending_approval"`
	Sent            int    `json:"sent"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
}

func (s *InterventionService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *InterventionService) logger(ctx context.Context) *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.FromContext(ctx)
}

func (s *InterventionService) lockTenant(ctx context.Context, tenantID string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	unlock, err := s.Locker.Lock(ctx, tenantLockKey(tenantID))
	if err != nil {
		return nil, fmt.Errorf("lock tenant %s: %w", tenantID, err)
	}
	return unlock, nil
}

// RunDailyForTenant evaluates every active daily play against the members
// whose latest risk snapshot qualifies. Plays run in creation order. Failures
// for one member are counted and logged; only tenant-level failures abort.
func (s *InterventionService) RunDailyForTenant(ctx context.Context, tenantID string, opts RunOptions) (*RunResult, error) {
	unlock, err := s.lockTenant(ctx, tenantID)
	if err != nil {
		metrics.ObserveRun("error")
		return nil, err
	}
	defer unlock()

	result, err := s.runDaily(ctx, tenantID, opts)
	if err != nil {
		metrics.ObserveRun("error")
		return nil, err
	}
	metrics.ObserveRun("ok")
	return result, nil
}

func (s *InterventionService) runDaily(ctx context.Context, tenantID string, opts RunOptions) (*RunResult, error) {
	log := s.logger(ctx).With(zap.String("tenant_id", tenantID))

	tenant, err := s.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	loc, err := tenant.Location()
	if err != nil {
		return nil, fmt.Errorf("tenant %s timezone %q: %w", tenantID, tenant.Timezone, err)
	}

	plays, err := s.Plays.ListActive(ctx, tenantID, model.TriggerDailyBatch)
	if err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}

	result := &RunResult{TenantID: tenantID}
	for i := range plays {
		play := &plays[i]
		playLog := log.With(zap.String("play_id", play.ID))

		if _, err := ParseQuietHours(play.QuietHoursStart, play.QuietHoursEnd); err != nil {
			playLog.Error("play skipped, bad quiet hours", zap.Error(err))
			continue
		}

		snapshots, err := s.Snapshots.LatestByTenant(ctx, tenantID, play.MinRiskScore)
		if err != nil {
			playLog.Error("play skipped, cannot load risk snapshots", zap.Error(err))
			continue
		}

		for j := range snapshots {
			s.processMember(ctx, playLog, loc, play, &snapshots[j], opts, result)
		}
	}

	log.Info("daily run finished",
		zap.Int("created", result.Created),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("pending_approval", result.PendingApproval),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// processMember walks the play's channels in order until an intervention is
// created or a member-wide denial stops it.
func (s *InterventionService) processMember(ctx context.Context, log *zap.Logger, loc *time.Location, play *model.Play, snap *model.RiskSnapshot, opts RunOptions, result *RunResult) {
	log = log.With(zap.String("member_id", snap.MemberID))

	member, err := s.Members.GetByID(ctx, snap.MemberID)
	if err != nil {
		log.Error("member skipped, cannot load member", zap.Error(err))
		result.Skipped++
		return
	}

	for _, ch := range play.Channels {
		now := s.now()
		decision, err := s.Guardrails.Evaluate(ctx, member, play, ch, loc, now)
		if err != nil {
			log.Error("guardrail evaluation failed", zap.String("channel", string(ch)), zap.Error(err))
			result.Skipped++
			return
		}
		if decision.Denied() {
			log.Info("intervention skipped",
				zap.String("channel", string(ch)),
				zap.String("reason", decision.Reason),
			)
			result.Skipped++
			if decision.ChannelScoped() {
				continue
			}
			return
		}

		iv := s.newIntervention(log, play, member, snap, ch, now)
		switch {
		case play.RequiresApproval || opts.ForceApproval:
			iv.Status = model.StatusPendingApproval
			iv.Reason = approvalReason(snap, decision)
		case decision.Outcome == DecisionDefer:
			iv.Status = model.StatusScheduled
			iv.ScheduledAt = decision.ScheduledAt
			iv.Reason = fmt.Sprintf("%s, scheduled for %s", riskReason(snap), decision.ScheduledAt.In(loc).Format(time.RFC3339))
		default:
			iv.Status = model.StatusCandidate
		}

		if err := s.Interventions.Create(ctx, iv); err != nil {
			log.Error("failed to create intervention", zap.String("channel", string(ch)), zap.Error(err))
			result.Skipped++
			return
		}
		result.Created++
		metrics.ObserveIntervention(string(ch), string(iv.Status))

		switch iv.Status {
		case model.StatusPendingApproval:
			result.PendingApproval++
		case model.StatusScheduled:
			result.Scheduled++
		case model.StatusCandidate:
			if err := s.dispatch(ctx, iv, member, model.StatusCandidate); err != nil {
				log.Error("dispatch bookkeeping failed", zap.String("intervention_id", iv.ID), zap.Error(err))
			}
			switch iv.Status {
			case model.StatusSent:
				result.Sent++
			case model.StatusFailed:
				result.Failed++
			}
		}
		return
	}
}

func (s *InterventionService) newIntervention(log *zap.Logger, play *model.Play, member *model.Member, snap *model.RiskSnapshot, ch model.Channel, now time.Time) *model.Intervention {
	msg := RenderMessage(play.SubjectTemplate, play.BodyTemplate, templateContext(member, snap, now))
	if len(msg.Unknown) > 0 {
		log.Warn("template references unknown variables", zap.Strings("variables", msg.Unknown))
	}
	return &model.Intervention{
		ID:        uuid.NewString(),
		TenantID:  member.TenantID,
		PlayID:    play.ID,
		MemberID:  member.ID,
		Channel:   ch,
		Reason:    riskReason(snap),
		Subject:   msg.Subject,
		Body:      msg.Body,
		CreatedAt: now,
	}
}

func templateContext(member *model.Member, snap *model.RiskSnapshot, now time.Time) TemplateContext {
	tc := TemplateContext{
		FirstName: member.FirstName,
		LastName:  member.LastName,
		Email:     member.Email,
		Phone:     member.Phone,
	}
	if snap != nil {
		score := snap.Score
		tc.RiskScore = &score
		tc.PrimaryRiskReason = snap.PrimaryReason
	}
	if member.LastVisitAt != nil {
		days := scoring.DaysBetween(*member.LastVisitAt, now)
		tc.DaysSinceLastVisit = &days
	}
	return tc
}

func riskReason(snap *model.RiskSnapshot) string {
	if snap.PrimaryReason == "" {
		return fmt.Sprintf("risk score %d", snap.Score)
	}
	return fmt.Sprintf("risk score %d (%s)", snap.Score, snap.PrimaryReason)
}

func approvalReason(snap *model.RiskSnapshot, d Decision) string {
	if d.Outcome == DecisionDefer {
		return riskReason(snap) + ", awaiting approval, quiet hours at creation"
	}
	return riskReason(snap) + ", awaiting approval"
}
