package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/retention-engine/internal/controller"
	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/queue"
	"github.com/unclebandit/retention-engine/internal/scoring"
	"github.com/unclebandit/retention-engine/internal/service"
)

var now = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeAPI struct {
	runOpts     []service.RunOptions
	listArgs    []interface{}
	approveErr  error
	cancelErr   error
	previewArgs []interface{}
	deliveredID string
	outcome     *model.Outcome
}

func (f *fakeAPI) RunDailyForTenant(ctx context.Context, tenantID string, opts service.RunOptions) (*service.RunResult, error) {
	if tenantID == "missing" {
		return nil, appErrors.NewNotFound("tenant", tenantID)
	}
	f.runOpts = append(f.runOpts, opts)
	return &service.RunResult{TenantID: tenantID, Created: 2, Sent: 1, PendingApproval: 1}, nil
}

func (f *fakeAPI) ListInterventions(ctx context.Context, tenantID string, page, pageSize int, status, channel string) ([]model.Intervention, map[string]int, error) {
	f.listArgs = []interface{}{tenantID, page, pageSize, status, channel}
	return []model.Intervention{{ID: "iv-1"}}, map[string]int{"page": 2, "page_size": 10, "total_count": 11, "total_pages": 2}, nil
}

func (f *fakeAPI) ApproveAndSend(ctx context.Context, id string) (*model.Intervention, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &model.Intervention{ID: id, Status: model.StatusSent}, nil
}

func (f *fakeAPI) CancelIntervention(ctx context.Context, id string) error {
	return f.cancelErr
}

func (f *fakeAPI) Preview(ctx context.Context, playID, memberID string, subjectOverride, bodyOverride *string, extra map[string]string) (*service.RenderedMessage, error) {
	f.previewArgs = []interface{}{playID, memberID, bodyOverride != nil, extra["coach"]}
	return &service.RenderedMessage{Subject: "We miss you, Sam", Body: "Hi Sam"}, nil
}

func (f *fakeAPI) MarkDelivered(ctx context.Context, providerMessageID string) (*model.Intervention, error) {
	if providerMessageID == "" {
		return nil, appErrors.NewValidation("provider_message_id", "required")
	}
	f.deliveredID = providerMessageID
	return &model.Intervention{ID: "iv-1", Status: model.StatusDelivered}, nil
}

func (f *fakeAPI) RecordOutcome(ctx context.Context, memberID string, typ model.OutcomeType, note string, recordedAt *time.Time) (*model.Outcome, error) {
	if !typ.Valid() {
		return nil, appErrors.NewValidation("type", "unknown outcome type")
	}
	f.outcome = &model.Outcome{ID: "o-1", MemberID: memberID, Type: typ, Note: note}
	return f.outcome, nil
}

func (f *fakeAPI) ListOutcomes(ctx context.Context, memberID string) ([]model.Outcome, error) {
	return []model.Outcome{{ID: "o-1", MemberID: memberID, Type: model.OutcomeBooked}}, nil
}

type fakeScoring struct {
	asOf time.Time
}

func (f *fakeScoring) ScoreTenant(ctx context.Context, tenantID string, now time.Time) (*service.SnapshotResult, error) {
	return &service.SnapshotResult{TenantID: tenantID, Scored: 3, ByLevel: map[string]int{"high": 1, "none": 2}}, nil
}

func (f *fakeScoring) MemberProfile(ctx context.Context, memberID string, asOf time.Time) (*scoring.Profile, error) {
	f.asOf = asOf
	return &scoring.Profile{Stage: scoring.StageHabitFormation}, nil
}

type capturingQueue struct {
	topic   string
	payload interface{}
}

func (q *capturingQueue) Publish(ctx context.Context, topic string, payload any) error {
	q.topic, q.payload = topic, payload
	return nil
}
func (q *capturingQueue) Subscribe(topic string, h queue.Handler) error { return nil }
func (q *capturingQueue) Close() error                                  { return nil }

type env struct {
	api     *fakeAPI
	scoring *fakeScoring
	queue   *capturingQueue
	router  chi.Router
}

func newEnv() *env {
	e := &env{api: &fakeAPI{}, scoring: &fakeScoring{}, queue: &capturingQueue{}}
	ctrl := &controller.InterventionController{
		Interventions: e.api,
		Scoring:       e.scoring,
		Queue:         e.queue,
		RunTopic:      "daily_runs",
		Clock:         func() time.Time { return now },
	}
	e.router = chi.NewRouter()
	ctrl.Routes(e.router)
	return e
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// --- tests ---

func TestRunDaily_Sync(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/tenants/tenant-1/runs", `{"force_approval": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res service.RunResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []service.RunOptions{{ForceApproval: true}}, e.api.runOpts)
}

func TestRunDaily_EmptyBody(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/tenants/tenant-1/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []service.RunOptions{{}}, e.api.runOpts)
}

func TestRunDaily_UnknownTenant(t *testing.T) {
	w := newEnv().do(http.MethodPost, "/tenants/missing/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunDaily_AsyncPublishesJob(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/tenants/tenant-1/runs?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Empty(t, e.api.runOpts)
	assert.Equal(t, "daily_runs", e.queue.topic)
	assert.Equal(t, queue.DailyRunJob{TenantID: "tenant-1", RequestedAt: now}, e.queue.payload)
}

func TestScoreTenant(t *testing.T) {
	w := newEnv().do(http.MethodPost, "/tenants/tenant-1/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scored":3`)
}

func TestListInterventions_PassesQuery(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodGet, "/tenants/tenant-1/interventions?page=2&page_size=10&status=sent&channel=email", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"tenant-1", 2, 10, "sent", "email"}, e.api.listArgs)

	var body struct {
		Data       []model.Intervention `json:"data"`
		Pagination map[string]int       `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 11, body.Pagination["total_count"])
}

func TestApprove_InvalidTransitionIsConflict(t *testing.T) {
	e := newEnv()
	e.api.approveErr = appErrors.NewInvalidTransition("iv-1", "SENT", "SENT")
	w := e.do(http.MethodPost, "/interventions/iv-1/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "cannot move from SENT")
}

func TestApprove_OK(t *testing.T) {
	w := newEnv().do(http.MethodPost, "/interventions/iv-1/approve", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"SENT"`)
}

func TestCancel(t *testing.T) {
	e := newEnv()
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/interventions/iv-1/cancel", "").Code)

	e.api.cancelErr = appErrors.NewNotFound("intervention", "iv-9")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/interventions/iv-9/cancel", "").Code)
}

func TestPreview(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/plays/play-1/preview",
		`{"member_id":"member-1","override_body":"Hi {{firstName}}","variables":{"coach":"Alex"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"play-1", "member-1", true, "Alex"}, e.api.previewArgs)
	assert.Contains(t, w.Body.String(), "We miss you, Sam")
}

func TestPreview_BadInput(t *testing.T) {
	e := newEnv()
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/plays/play-1/preview", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/plays/play-1/preview", `{}`).Code)
}

func TestDeliveredCallback(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/providers/callbacks/delivered", `{"provider_message_id":"pm-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pm-1", e.api.deliveredID)

	w = e.do(http.MethodPost, "/providers/callbacks/delivered", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutcomes(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/members/member-1/outcomes", `{"type":"booked","note":"PT session"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "PT session", e.api.outcome.Note)

	w = e.do(http.MethodPost, "/members/member-1/outcomes", `{"type":"won_lottery"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/members/member-1/outcomes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"booked"`)
}

func TestCommitment_AsOf(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodGet, "/members/member-1/commitment?as_of=2026-05-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), e.scoring.asOf)
	assert.Contains(t, w.Body.String(), `"stage":"habit_formation"`)

	e.do(http.MethodGet, "/members/member-1/commitment", "")
	assert.Equal(t, now, e.scoring.asOf)

	w = e.do(http.MethodGet, "/members/member-1/commitment?as_of=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
