package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DailyRunJob asks a worker to run the daily batch for one tenant.
type DailyRunJob struct {
	TenantID      string    `json:"tenant_id"`
	ForceApproval bool      `json:"force_approval"`
	RequestedAt   time.Time `json:"requested_at"`
}

// StartDailyRunSubscriber decodes DailyRunJob messages on topic and passes
// them to handle. Malformed messages are dropped without retry.
func StartDailyRunSubscriber(q Queue, topic string, log *zap.Logger, handle func(ctx context.Context, job DailyRunJob) error) error {
	return q.Subscribe(topic, func(ctx context.Context, body []byte) error {
		var job DailyRunJob
		if err := json.Unmarshal(body, &job); err != nil || job.TenantID == "" {
			log.Warn("invalid daily run job dropped", zap.ByteString("body", body), zap.Error(err))
			return nil
		}
		return handle(ctx, job)
	})
}
