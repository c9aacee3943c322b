package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/service"
)

func TestListInterventions_Pagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		status := model.StatusSent
		if i%2 == 0 {
			status = model.StatusFailed
		}
		seedIntervention(f, fmt.Sprintf("iv-%d", i), playID, status, baseNow.Add(time.Duration(i)*time.Minute))
	}

	items, pagination, err := f.svc.ListInterventions(context.Background(), tenantID, 1, 2, "", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "iv-4", items[0].ID)
	assert.Equal(t, map[string]int{"page": 1, "page_size": 2, "total_count": 5, "total_pages": 3}, pagination)

	items, pagination, err = f.svc.ListInterventions(context.Background(), tenantID, 0, 500, "failed", "")
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 100, pagination["page_size"])
	assert.Equal(t, 1, pagination["page"])
}

func TestInterventionStats_IncludesEveryStatus(t *testing.T) {
	f := newFixture(t)
	seedIntervention(f, "a", playID, model.StatusSent, baseNow)
	seedIntervention(f, "b", playID, model.StatusSent, baseNow)
	seedIntervention(f, "c", playID, model.StatusCanceled, baseNow)

	stats, err := f.svc.InterventionStats(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total"])
	assert.Equal(t, 2, stats["SENT"])
	assert.Equal(t, 1, stats["CANCELED"])
	assert.Equal(t, 0, stats["PENDING_APPROVAL"])
	assert.Len(t, stats, 8)
}

func TestGetInterventionWithEvents(t *testing.T) {
	f := newFixture(t)
	f.addMember(emailMember())
	f.addSnapshot(memberID, 80)
	f.addPlay(winBackPlay())
	_, err := f.svc.RunDailyForTenant(context.Background(), tenantID, service.RunOptions{})
	require.NoError(t, err)
	iv := f.interventions.byStatus(model.StatusSent)[0]

	details, err := f.svc.GetInterventionWithEvents(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, iv.ID, details.ID)
	assert.Len(t, details.Events, 2)
	assert.JSONEq(t, `{"provider_message_id":"pm-1"}`, string(details.Events[1].Payload))
}

func TestPreview_RendersWithoutCreating(t *testing.T) {
	f := newFixture(t)
	lastVisit := baseNow.AddDate(0, 0, -12)
	m := emailMember()
	m.LastVisitAt = &lastVisit
	f.addMember(m)
	f.addSnapshot(memberID, 64)
	f.addPlay(winBackPlay())

	body := "{{firstName}} scored {{riskScore}} ({{primaryRiskReason}}), {{coach}} {{unknownVar}}"
	msg, err := f.svc.Preview(context.Background(), playID, memberID, nil, &body, map[string]string{"coach": "Alex"})
	require.NoError(t, err)

	assert.Equal(t, "We miss you, Sam", msg.Subject)
	assert.Equal(t, "Sam scored 64 (attendance), Alex {{unknownVar}}", msg.Body)
	assert.Equal(t, []string{"unknownVar"}, msg.Unknown)
	assert.Equal(t, 0, f.interventions.count())
}

func TestPreview_NoSnapshotLeavesScoreEmpty(t *testing.T) {
	f := newFixture(t)
	f.addMember(emailMember())
	f.addPlay(winBackPlay())

	body := "[{{riskScore}}]"
	msg, err := f.svc.Preview(context.Background(), playID, memberID, nil, &body, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", msg.Body)
}

func TestPreview_OtherTenantMemberIsNotFound(t *testing.T) {
	f := newFixture(t)
	m := emailMember()
	m.TenantID = "tenant-2"
	f.addMember(m)
	f.addPlay(winBackPlay())

	_, err := f.svc.Preview(context.Background(), playID, memberID, nil, nil, nil)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestRecordOutcome(t *testing.T) {
	f := newFixture(t)
	f.addMember(emailMember())

	o, err := f.svc.RecordOutcome(context.Background(), memberID, model.OutcomeBooked, "booked a PT session", nil)
	require.NoError(t, err)
	assert.Equal(t, tenantID, o.TenantID)
	assert.Equal(t, baseNow, o.RecordedAt)

	_, err = f.svc.RecordOutcome(context.Background(), memberID, "won_lottery", "", nil)
	assert.True(t, appErrors.IsValidation(err))

	outcomes, err := f.svc.ListOutcomes(context.Background(), memberID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}
