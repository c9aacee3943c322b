// internal/service/snapshot_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/repository"
	"github.com/unclebandit/retention-engine/internal/scoring"
)

// SnapshotService scores members from their visit history and stores the
// resulting risk snapshots that daily runs read.
type SnapshotService struct {
	Members       repository.MemberRepositoryInterface
	Snapshots     repository.RiskSnapshotRepositoryInterface
	Interventions repository.InterventionRepositoryInterface
	Log           *zap.Logger
}

type SnapshotResult struct {
	TenantID string         `json:"tenant_id"`
	Scored   int            `json:"scored"`
	Failed   int            `json:"failed"`
	ByLevel  map[string]int `json:"by_level"`
}

// ScoreTenant writes one risk snapshot per member of the tenant as of now.
func (s *SnapshotService) ScoreTenant(ctx context.Context, tenantID string, now time.Time) (*SnapshotResult, error) {
	log := s.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With(zap.String("tenant_id", tenantID))

	members, err := s.Members.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	result := &SnapshotResult{TenantID: tenantID, ByLevel: map[string]int{}}
	for i := range members {
		m := &members[i]
		profile, err := s.profile(ctx, m, now)
		if err != nil {
			log.Error("member not scored", zap.String("member_id", m.ID), zap.Error(err))
			result.Failed++
			continue
		}

		snap := &model.RiskSnapshot{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			MemberID:      m.ID,
			Score:         profile.Churn.Score,
			Level:         string(profile.Churn.Level),
			PrimaryReason: profile.Churn.PrimaryReason,
			ComputedAt:    now,
		}
		if err := s.Snapshots.Create(ctx, snap); err != nil {
			log.Error("failed to store risk snapshot", zap.String("member_id", m.ID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Scored++
		result.ByLevel[snap.Level]++
	}

	log.Info("tenant scored", zap.Int("scored", result.Scored), zap.Int("failed", result.Failed))
	return result, nil
}

// MemberProfile runs the full scoring engine for one member as of asOf,
// using only visits up to that instant.
func (s *SnapshotService) MemberProfile(ctx context.Context, memberID string, asOf time.Time) (*scoring.Profile, error) {
	m, err := s.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, m, asOf)
}

func (s *SnapshotService) profile(ctx context.Context, m *model.Member, asOf time.Time) (*scoring.Profile, error) {
	visits, err := s.Members.ListVisits(ctx, m.ID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	// members imported without a visit log still carry their last visit
	if len(visits) == 0 && m.LastVisitAt != nil {
		visits = []time.Time{*m.LastVisitAt}
	}

	sent, err := s.Interventions.HasSentForMember(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("check prior sends: %w", err)
	}

	p := scoring.Analyze(
		scoring.History{JoinedAt: m.JoinedAt, Visits: visits},
		scoring.MemberFacts{
			Status:           string(m.Status),
			DistanceKm:       m.DistanceKm,
			Age:              m.Age,
			EmploymentStatus: m.EmploymentStatus,
			CampaignSent:     sent,
		},
		asOf,
	)
	return &p, nil
}

func NewSnapshotService(store *repository.Store, log *zap.Logger) *SnapshotService {
	return &SnapshotService{
		Members:       store.Members,
		Snapshots:     store.Snapshots,
		Interventions: store.Interventions,
		Log:           log,
	}
}
