package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/queue"
)

// Runner is the part of InterventionService the worker drives.
type Runner interface {
	RunDailyForTenant(ctx context.Context, tenantID string, opts RunOptions) (*RunResult, error)
	DispatchDueScheduled(ctx context.Context, now time.Time, limit int) (*DispatchResult, error)
}

// Worker processes daily run jobs and periodically dispatches scheduled
// interventions. Runs for the same tenant are serialized by the runner's
// tenant lock, so jobs for different tenants may be handled in parallel.
type Worker struct {
	Runner           Runner
	DispatchInterval time.Duration
	DispatchBatch    int
	Log              *zap.Logger
	Clock            func() time.Time
}

func NewWorker(runner Runner, interval time.Duration, batch int, log *zap.Logger) *Worker {
	return &Worker{
		Runner:           runner,
		DispatchInterval: interval,
		DispatchBatch:    batch,
		Log:              log,
	}
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now().UTC()
}

// Handle runs one job. Tenant level failures are returned so the queue
// retries them.
func (w *Worker) Handle(ctx context.Context, job queue.DailyRunJob) error {
	log := w.Log.With(zap.String("tenant_id", job.TenantID))
	res, err := w.Runner.RunDailyForTenant(ctx, job.TenantID, RunOptions{ForceApproval: job.ForceApproval})
	if err != nil {
		log.Error("daily run failed", zap.Error(err))
		return err
	}
	log.Info("daily run job done", zap.Int("created", res.Created), zap.Int("sent", res.Sent))
	return nil
}

// DispatchOnce sends every scheduled intervention that is due now.
func (w *Worker) DispatchOnce(ctx context.Context) {
	res, err := w.Runner.DispatchDueScheduled(ctx, w.now(), w.DispatchBatch)
	if err != nil {
		w.Log.Error("scheduled dispatch failed", zap.Error(err))
		return
	}
	if res.Due > 0 {
		w.Log.Info("scheduled dispatch",
			zap.Int("due", res.Due),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
}

// RunScheduler calls DispatchOnce every DispatchInterval until ctx is done.
func (w *Worker) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(w.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DispatchOnce(ctx)
		}
	}
}
