package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/provider"
	"github.com/unclebandit/retention-engine/internal/repository"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type mockTenantRepo struct {
	tenants map[string]*model.Tenant
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, appErrors.NewNotFound("tenant", id)
	}
	cp := *t
	return &cp, nil
}

type mockMemberRepo struct {
	mu      sync.Mutex
	members map[string]*model.Member
	visits  map[string][]time.Time
}

func (m *mockMemberRepo) GetByID(ctx context.Context, id string) (*model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, appErrors.NewNotFound("member", id)
	}
	cp := *mem
	return &cp, nil
}

func (m *mockMemberRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Member
	for _, mem := range m.members {
		if mem.TenantID == tenantID {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockMemberRepo) ListVisits(ctx context.Context, memberID string, since time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, v := range m.visits[memberID] {
		if !v.Before(since) {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []model.RiskSnapshot
}

func (m *mockSnapshotRepo) Create(ctx context.Context, s *model.RiskSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *mockSnapshotRepo) latest() map[string]model.RiskSnapshot {
	latest := map[string]model.RiskSnapshot{}
	for _, s := range m.snapshots {
		if cur, ok := latest[s.MemberID]; !ok || s.ComputedAt.After(cur.ComputedAt) {
			latest[s.MemberID] = s
		}
	}
	return latest
}

func (m *mockSnapshotRepo) LatestByTenant(ctx context.Context, tenantID string, minScore int) ([]model.RiskSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RiskSnapshot
	for _, s := range m.latest() {
		if s.TenantID == tenantID && s.Score >= minScore {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (m *mockSnapshotRepo) LatestForMember(ctx context.Context, memberID string) (*model.RiskSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest()[memberID]
	if !ok {
		return nil, appErrors.NewNotFound("risk snapshot", memberID)
	}
	return &s, nil
}

type mockPlayRepo struct {
	plays []model.Play
}

func (m *mockPlayRepo) GetByID(ctx context.Context, id string) (*model.Play, error) {
	for _, p := range m.plays {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("play", id)
}

func (m *mockPlayRepo) ListActive(ctx context.Context, tenantID string, trigger model.TriggerType) ([]model.Play, error) {
	var out []model.Play
	for _, p := range m.plays {
		if p.TenantID == tenantID && p.Active && p.TriggerType == trigger {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type mockInterventionRepo struct {
	mu    sync.Mutex
	items map[string]*model.Intervention
}

func newMockInterventionRepo() *mockInterventionRepo {
	return &mockInterventionRepo{items: map[string]*model.Intervention{}}
}

func (m *mockInterventionRepo) Create(ctx context.Context, iv *model.Intervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *iv
	cp.UpdatedAt = cp.CreatedAt
	m.items[iv.ID] = &cp
	return nil
}

func (m *mockInterventionRepo) GetByID(ctx context.Context, id string) (*model.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok {
		return nil, appErrors.NewNotFound("intervention", id)
	}
	cp := *iv
	return &cp, nil
}

func (m *mockInterventionRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, iv := range m.items {
		if iv.ProviderMessageID == providerMessageID {
			cp := *iv
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("intervention", providerMessageID)
}

func (m *mockInterventionRepo) UpdateStatus(ctx context.Context, id string, expected model.InterventionStatus, upd model.InterventionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok {
		return appErrors.NewNotFound("intervention", id)
	}
	if iv.Status != expected {
		return appErrors.ErrStatusConflict
	}
	iv.Status = upd.Status
	if upd.ScheduledAt != nil {
		at := *upd.ScheduledAt
		iv.ScheduledAt = &at
	}
	if upd.SentAt != nil {
		at := *upd.SentAt
		iv.SentAt = &at
	}
	if upd.ProviderMessageID != "" {
		iv.ProviderMessageID = upd.ProviderMessageID
	}
	if upd.Reason != "" {
		iv.Reason = upd.Reason
	}
	return nil
}

func (m *mockInterventionRepo) CountByMemberStatusesSince(ctx context.Context, tenantID, memberID string, statuses []model.InterventionStatus, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, iv := range m.items {
		if iv.TenantID != tenantID || iv.MemberID != memberID || iv.CreatedAt.Before(since) {
			continue
		}
		for _, s := range statuses {
			if iv.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *mockInterventionRepo) ExistsActiveForPlayMemberSince(ctx context.Context, playID, memberID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, iv := range m.items {
		if iv.PlayID != playID || iv.MemberID != memberID || iv.Status == model.StatusCanceled {
			continue
		}
		pending := iv.Status == model.StatusPendingApproval || iv.Status == model.StatusScheduled
		if !iv.CreatedAt.Before(since) || pending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInterventionRepo) HasSentForMember(ctx context.Context, memberID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, iv := range m.items {
		if iv.MemberID == memberID && (iv.Status == model.StatusSent || iv.Status == model.StatusDelivered) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInterventionRepo) all(tenantID string) []*model.Intervention {
	var out []*model.Intervention
	for _, iv := range m.items {
		if tenantID == "" || iv.TenantID == tenantID {
			cp := *iv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *mockInterventionRepo) ListByTenant(ctx context.Context, tenantID string, offset, limit int, status, channel string) ([]*model.Intervention, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []*model.Intervention
	for _, iv := range m.all(tenantID) {
		if status != "" && string(iv.Status) != status {
			continue
		}
		if channel != "" && string(iv.Channel) != channel {
			continue
		}
		filtered = append(filtered, iv)
	}
	total := len(filtered)
	if offset >= total {
		return []*model.Intervention{}, total, nil
	}
	end := min(total, offset+limit)
	return filtered[offset:end], total, nil
}

func (m *mockInterventionRepo) StatsByTenant(ctx context.Context, tenantID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{}
	for _, iv := range m.all(tenantID) {
		stats[string(iv.Status)]++
	}
	return stats, nil
}

func (m *mockInterventionRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*model.Intervention
	for _, iv := range m.all("") {
		if iv.Status == model.StatusScheduled && iv.ScheduledAt != nil && !iv.ScheduledAt.After(now) {
			due = append(due, iv)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// byStatus returns the stored interventions with the given status.
func (m *mockInterventionRepo) byStatus(status model.InterventionStatus) []*model.Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Intervention
	for _, iv := range m.all("") {
		if iv.Status == status {
			out = append(out, iv)
		}
	}
	return out
}

func (m *mockInterventionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type mockEventRepo struct {
	mu     sync.Mutex
	events []model.MessageEvent
}

func (m *mockEventRepo) Append(ctx context.Context, e *model.MessageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockEventRepo) ListByIntervention(ctx context.Context, interventionID string) ([]model.MessageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.MessageEvent{}
	for _, e := range m.events {
		if e.InterventionID == interventionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventRepo) types(interventionID string) []model.EventType {
	events, _ := m.ListByIntervention(context.Background(), interventionID)
	var out []model.EventType
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

type mockOutcomeRepo struct {
	outcomes []model.Outcome
}

func (m *mockOutcomeRepo) Create(ctx context.Context, o *model.Outcome) error {
	m.outcomes = append(m.outcomes, *o)
	return nil
}

func (m *mockOutcomeRepo) ListByMember(ctx context.Context, memberID string) ([]model.Outcome, error) {
	out := []model.Outcome{}
	for _, o := range m.outcomes {
		if o.MemberID == memberID {
			out = append(out, o)
		}
	}
	return out, nil
}

type sentMessage struct {
	Channel model.Channel
	Msg     provider.Message
}

// mockDispatcher records sends. Channels listed in fail return failErr.
type mockDispatcher struct {
	mu      sync.Mutex
	sent    []sentMessage
	fail    map[model.Channel]error
	counter int
}

func (m *mockDispatcher) Send(ctx context.Context, ch model.Channel, msg provider.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[ch]; err != nil {
		return "", err
	}
	m.counter++
	m.sent = append(m.sent, sentMessage{Channel: ch, Msg: msg})
	return fmt.Sprintf("pm-%d", m.counter), nil
}

func (m *mockDispatcher) sends() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

var (
	_ repository.TenantRepositoryInterface       = (*mockTenantRepo)(nil)
	_ repository.MemberRepositoryInterface       = (*mockMemberRepo)(nil)
	_ repository.RiskSnapshotRepositoryInterface = (*mockSnapshotRepo)(nil)
	_ repository.PlayRepositoryInterface         = (*mockPlayRepo)(nil)
	_ repository.InterventionRepositoryInterface = (*mockInterventionRepo)(nil)
	_ repository.MessageEventRepositoryInterface = (*mockEventRepo)(nil)
	_ repository.OutcomeRepositoryInterface      = (*mockOutcomeRepo)(nil)
)
