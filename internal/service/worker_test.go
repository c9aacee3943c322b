package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/queue"
	"github.com/unclebandit/retention-engine/internal/service"
)

type fakeRunner struct {
	mu        sync.Mutex
	runErr    error
	runs      []string
	forced    []bool
	dispatchN []int
	dispatchT []time.Time
}

func (r *fakeRunner) RunDailyForTenant(ctx context.Context, tenantID string, opts service.RunOptions) (*service.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, tenantID)
	r.forced = append(r.forced, opts.ForceApproval)
	if r.runErr != nil {
		return nil, r.runErr
	}
	return &service.RunResult{TenantID: tenantID, Created: 1, Sent: 1}, nil
}

func (r *fakeRunner) DispatchDueScheduled(ctx context.Context, now time.Time, limit int) (*service.DispatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchN = append(r.dispatchN, limit)
	r.dispatchT = append(r.dispatchT, now)
	return &service.DispatchResult{Due: 1, Sent: 1}, nil
}

func (r *fakeRunner) dispatchCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dispatchN)
}

func TestWorker_HandlePassesOptions(t *testing.T) {
	r := &fakeRunner{}
	w := service.NewWorker(r, time.Minute, 50, zap.NewNop())

	require.NoError(t, w.Handle(context.Background(), queue.DailyRunJob{TenantID: tenantID, ForceApproval: true}))
	assert.Equal(t, []string{tenantID}, r.runs)
	assert.Equal(t, []bool{true}, r.forced)
}

func TestWorker_HandleReturnsRunError(t *testing.T) {
	r := &fakeRunner{runErr: errors.New("db down")}
	w := service.NewWorker(r, time.Minute, 50, zap.NewNop())

	err := w.Handle(context.Background(), queue.DailyRunJob{TenantID: tenantID})
	assert.EqualError(t, err, "db down")
}

func TestWorker_DispatchOnceUsesBatchAndClock(t *testing.T) {
	r := &fakeRunner{}
	w := service.NewWorker(r, time.Minute, 25, zap.NewNop())
	w.Clock = func() time.Time { return baseNow }

	w.DispatchOnce(context.Background())
	assert.Equal(t, []int{25}, r.dispatchN)
	assert.Equal(t, []time.Time{baseNow}, r.dispatchT)
}

func TestWorker_RunSchedulerStopsOnCancel(t *testing.T) {
	r := &fakeRunner{}
	w := service.NewWorker(r, 5*time.Millisecond, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunScheduler(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.dispatchCalls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
