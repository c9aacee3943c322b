package service_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/service"
)

const (
	tenantID = "tenant-1"
	memberID = "member-1"
	playID   = "play-1"
)

// 15:00 UTC, a Monday
var baseNow = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

type fixture struct {
	clock         *testClock
	tenants       *mockTenantRepo
	members       *mockMemberRepo
	snapshots     *mockSnapshotRepo
	plays         *mockPlayRepo
	interventions *mockInterventionRepo
	events        *mockEventRepo
	outcomes      *mockOutcomeRepo
	dispatcher    *mockDispatcher
	svc           *service.InterventionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: &testClock{t: baseNow},
		tenants: &mockTenantRepo{tenants: map[string]*model.Tenant{
			tenantID: {ID: tenantID, Name: "Iron Temple", Timezone: "UTC"},
		}},
		members:       &mockMemberRepo{members: map[string]*model.Member{}, visits: map[string][]time.Time{}},
		snapshots:     &mockSnapshotRepo{},
		plays:         &mockPlayRepo{},
		interventions: newMockInterventionRepo(),
		events:        &mockEventRepo{},
		outcomes:      &mockOutcomeRepo{},
		dispatcher:    &mockDispatcher{fail: map[model.Channel]error{}},
	}
	f.svc = &service.InterventionService{
		Tenants:       f.tenants,
		Members:       f.members,
		Snapshots:     f.snapshots,
		Plays:         f.plays,
		Interventions: f.interventions,
		Events:        f.events,
		Outcomes:      f.outcomes,
		Guardrails:    &service.GuardrailService{Interventions: f.interventions},
		Providers:     f.dispatcher,
		Locker:        service.NewLocalLocker(),
		Log:           zap.NewNop(),
		Clock:         f.clock.Now,
	}
	return f
}

func (f *fixture) addMember(m model.Member) *model.Member {
	if m.ID == "" {
		m.ID = memberID
	}
	if m.TenantID == "" {
		m.TenantID = tenantID
	}
	if m.Status == "" {
		m.Status = model.MemberActive
	}
	f.members.members[m.ID] = &m
	return &m
}

func (f *fixture) addSnapshot(memberID string, score int) {
	f.snapshots.snapshots = append(f.snapshots.snapshots, model.RiskSnapshot{
		ID:            "snap-" + memberID,
		TenantID:      tenantID,
		MemberID:      memberID,
		Score:         score,
		Level:         "high",
		PrimaryReason: "attendance",
		ComputedAt:    baseNow.Add(-time.Hour),
	})
}

func (f *fixture) addPlay(p model.Play) *model.Play {
	if p.ID == "" {
		p.ID = playID
	}
	if p.TenantID == "" {
		p.TenantID = tenantID
	}
	if p.TriggerType == "" {
		p.TriggerType = model.TriggerDailyBatch
	}
	if len(p.Channels) == 0 {
		p.Channels = []model.Channel{model.ChannelEmail}
	}
	p.Active = true
	if p.CreatedAt.IsZero() {
		p.CreatedAt = baseNow.Add(-time.Duration(30-len(f.plays.plays)) * 24 * time.Hour)
	}
	f.plays.plays = append(f.plays.plays, p)
	return &p
}

func emailMember() model.Member {
	return model.Member{
		FirstName:    "Sam",
		LastName:     "Rivera",
		Email:        "sam@example.com",
		Phone:        "+15550001",
		EmailConsent: true,
		JoinedAt:     baseNow.AddDate(0, 0, -400),
	}
}

func winBackPlay() model.Play {
	return model.Play{
		Name:            "Win back",
		MinRiskScore:    50,
		MaxPerWeek:      2,
		CooldownDays:    14,
		SubjectTemplate: "We miss you, {{firstName}}",
		BodyTemplate:    "Hi {{firstName}}, it has been {{daysSinceLastVisit}} days.",
	}
}
